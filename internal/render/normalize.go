package render

import (
	"math"

	"github.com/kiesman99/tilewms/internal/raster"
)

// Normalize rewrites the block in place so every sample is a displayable
// 8-bit intensity: nodata samples become 0, everything else is clamped to
// [0, 255]. NaN samples become 0 whether or not NaN is the sentinel.
func Normalize(b *raster.Block) {
	for i, v := range b.Data {
		switch {
		case b.IsNoData(v), math.IsNaN(v):
			b.Data[i] = 0
		case v < 0:
			b.Data[i] = 0
		case v > 255:
			b.Data[i] = 255
		}
	}
}
