package render

import (
	"fmt"
	"image"
	"math"

	"github.com/kiesman99/tilewms/internal/raster"
	"github.com/kiesman99/tilewms/pkg/tile"
)

// Layout is the interpretation of a block's bands as color channels.
type Layout int

const (
	Unsupported Layout = iota
	Grayscale
	GrayAlpha
	RGB
	RGBA
)

func (l Layout) String() string {
	switch l {
	case Grayscale:
		return "grayscale"
	case GrayAlpha:
		return "gray+alpha"
	case RGB:
		return "rgb"
	case RGBA:
		return "rgba"
	default:
		return "unsupported"
	}
}

// LayoutFor resolves the band count of a block into a Layout. Bands beyond
// the fourth are ignored.
func LayoutFor(bands int) Layout {
	switch {
	case bands == 1:
		return Grayscale
	case bands == 2:
		return GrayAlpha
	case bands == 3:
		return RGB
	case bands >= 4:
		return RGBA
	default:
		return Unsupported
	}
}

// Compose converts a normalized block into an image of the same size.
func Compose(b *raster.Block) (*image.NRGBA, Layout, error) {
	layout := LayoutFor(b.Bands)
	if layout == Unsupported {
		return nil, layout, fmt.Errorf("%w: %d bands", tile.ErrUnsupportedBandLayout, b.Bands)
	}

	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	n := b.Width * b.Height
	bands := make([][]float64, min(b.Bands, 4))
	for i := range bands {
		bands[i] = b.Band(i)
	}

	for p := 0; p < n; p++ {
		px := img.Pix[p*4 : p*4+4 : p*4+4]
		switch layout {
		case Grayscale:
			g := to8(bands[0][p])
			px[0], px[1], px[2], px[3] = g, g, g, 255
		case GrayAlpha:
			g := to8(bands[0][p])
			px[0], px[1], px[2], px[3] = g, g, g, to8(bands[1][p])
		case RGB:
			px[0], px[1], px[2], px[3] = to8(bands[0][p]), to8(bands[1][p]), to8(bands[2][p]), 255
		case RGBA:
			px[0], px[1], px[2], px[3] = to8(bands[0][p]), to8(bands[1][p]), to8(bands[2][p]), to8(bands[3][p])
		}
	}
	return img, layout, nil
}

// to8 rounds a sample already clamped to [0, 255].
func to8(v float64) uint8 {
	switch {
	case !(v > 0):
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.Round(v))
}
