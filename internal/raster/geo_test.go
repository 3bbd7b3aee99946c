package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffineInvert(t *testing.T) {
	tr := Affine{A: 0.5, B: 0.1, C: 2600000, D: -0.05, E: -0.5, F: 1200000}
	inv, err := tr.Invert()
	require.NoError(t, err)

	for _, p := range [][2]float64{{0, 0}, {10, 20}, {1234.5, 77.25}} {
		x, y := tr.Apply(p[0], p[1])
		col, row := inv.Apply(x, y)
		assert.InDelta(t, p[0], col, 1e-6)
		assert.InDelta(t, p[1], row, 1e-6)
	}
}

func TestAffineInvertSingular(t *testing.T) {
	_, err := Affine{A: 1, B: 2, D: 2, E: 4}.Invert()
	assert.Error(t, err)
}

func TestParseNoData(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"", 0, false},
		{"0", 0, true},
		{" -9999 ", -9999, true},
		{"3.4e38", 3.4e38, true},
		{"bogus", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNoData(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	v, ok := parseNoData("NaN")
	assert.True(t, ok)
	assert.True(t, math.IsNaN(v))
}

func TestParseGeoKeys(t *testing.T) {
	dir := []uint16{
		1, 1, 0, 3,
		1024, 0, 1, 1,
		1025, 0, 1, 2,
		3072, 0, 1, 2056,
	}
	keys := parseGeoKeys(dir)
	assert.Equal(t, uint16(2), keys[gkRasterTypeGeoKey])
	assert.Equal(t, uint16(2056), keys[gkProjectedCSTypeGeoKey])
	assert.Empty(t, parseGeoKeys(nil))
}
