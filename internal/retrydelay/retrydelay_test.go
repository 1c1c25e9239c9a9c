// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package retrydelay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFor_DoublesPerRetry(t *testing.T) {
	base := time.Second
	assert.Equal(t, base, For(base, 0))
	assert.Equal(t, 2*base, For(base, 1))
	assert.Equal(t, 4*base, For(base, 2))
	assert.Equal(t, 8*base, For(base, 3))
}

func TestFor_IsPureFunctionOfInputs(t *testing.T) {
	first := For(500*time.Millisecond, 2)
	second := For(500*time.Millisecond, 2)
	assert.Equal(t, first, second)
}
