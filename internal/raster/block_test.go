package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataTypeSize(t *testing.T) {
	assert.Equal(t, 1, Uint8.Size())
	assert.Equal(t, 2, Int16.Size())
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, "int32", Int32.String())
}
