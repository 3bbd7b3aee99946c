package raster

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndoHorizontal(t *testing.T) {
	// Two samples per pixel, three pixels: (1,10) (2,20) (4,40).
	buf := []byte{1, 10, 1, 10, 2, 20}
	require.NoError(t, undoHorizontal(buf, binary.LittleEndian, len(buf), 2, 1))
	assert.Equal(t, []byte{1, 10, 2, 20, 4, 40}, buf)
}

func TestUndoFloatingPoint(t *testing.T) {
	values := []float32{1.5, -2.25, 1000}
	count := len(values)

	// Split into big-endian byte planes, then byte-difference the row.
	row := make([]byte, count*4)
	for i, v := range values {
		bits := math.Float32bits(v)
		for b := 0; b < 4; b++ {
			row[b*count+i] = byte(bits >> (24 - 8*b))
		}
	}
	for i := len(row) - 1; i >= 1; i-- {
		row[i] -= row[i-1]
	}

	out := make([]float64, count)
	undoFloatingPoint(row, out, Float32, len(row), 1, 4)
	assert.Equal(t, []float64{1.5, -2.25, 1000}, out)
}
