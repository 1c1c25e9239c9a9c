// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	assert.Equal(t, 0, Score(0, 0))
	assert.Equal(t, 100, Score(5, 5))
	assert.Equal(t, 0, Score(0, 5))
	assert.Equal(t, 66, Score(2, 3))
	assert.Equal(t, 0, Score(3, -1))
}
