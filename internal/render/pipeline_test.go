package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/tilewms/internal/raster"
	"github.com/kiesman99/tilewms/pkg/tile"
)

func blockOf(bands, width, height int, data ...float64) *raster.Block {
	b := raster.NewBlock(bands, width, height)
	copy(b.Data, data)
	return b
}

func TestNormalize(t *testing.T) {
	t.Run("sentinel becomes zero and values clamp", func(t *testing.T) {
		b := blockOf(1, 5, 1, -9999, -3, 12.4, 300, 255)
		b.NoData, b.HasNoData = -9999, true
		Normalize(b)
		assert.Equal(t, []float64{0, 0, 12.4, 255, 255}, b.Data)
	})

	t.Run("no sentinel only clamps", func(t *testing.T) {
		b := blockOf(1, 3, 1, -1, 128, 1e6)
		Normalize(b)
		assert.Equal(t, []float64{0, 128, 255}, b.Data)
	})

	t.Run("nan sentinel", func(t *testing.T) {
		b := blockOf(1, 2, 1, math.NaN(), 40)
		b.NoData, b.HasNoData = math.NaN(), true
		Normalize(b)
		assert.Equal(t, []float64{0, 40}, b.Data)
	})

	t.Run("nan without sentinel", func(t *testing.T) {
		b := blockOf(1, 1, 1, math.NaN())
		Normalize(b)
		assert.Equal(t, []float64{0}, b.Data)
	})

	t.Run("sentinel 255 is zeroed before clamping", func(t *testing.T) {
		b := blockOf(1, 2, 1, 255, 254)
		b.NoData, b.HasNoData = 255, true
		Normalize(b)
		assert.Equal(t, []float64{0, 254}, b.Data)
	})
}

func TestLayoutFor(t *testing.T) {
	assert.Equal(t, Unsupported, LayoutFor(0))
	assert.Equal(t, Grayscale, LayoutFor(1))
	assert.Equal(t, GrayAlpha, LayoutFor(2))
	assert.Equal(t, RGB, LayoutFor(3))
	assert.Equal(t, RGBA, LayoutFor(4))
	assert.Equal(t, RGBA, LayoutFor(7))
}

func TestCompose(t *testing.T) {
	tests := []struct {
		name   string
		block  *raster.Block
		layout Layout
		want   color.NRGBA
	}{
		{"grayscale", blockOf(1, 1, 1, 77), Grayscale, color.NRGBA{77, 77, 77, 255}},
		{"gray alpha", blockOf(2, 1, 1, 77, 10), GrayAlpha, color.NRGBA{77, 77, 77, 10}},
		{"rgb", blockOf(3, 1, 1, 1, 2, 3), RGB, color.NRGBA{1, 2, 3, 255}},
		{"rgba", blockOf(4, 1, 1, 1, 2, 3, 4), RGBA, color.NRGBA{1, 2, 3, 4}},
		{"extra bands ignored", blockOf(5, 1, 1, 1, 2, 3, 4, 99), RGBA, color.NRGBA{1, 2, 3, 4}},
		{"rounds to nearest", blockOf(3, 1, 1, 0.4, 0.5, 254.6), RGB, color.NRGBA{0, 1, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, layout, err := Compose(tt.block)
			require.NoError(t, err)
			assert.Equal(t, tt.layout, layout)
			assert.Equal(t, tt.want, img.NRGBAAt(0, 0))
		})
	}
}

func TestComposeBandMajor(t *testing.T) {
	// Two pixels, three bands: band-major input, interleaved output.
	b := blockOf(3, 2, 1, 10, 11, 20, 21, 30, 31)
	img, _, err := Compose(b)
	require.NoError(t, err)
	assert.Equal(t, []uint8{10, 20, 30, 255, 11, 21, 31, 255}, img.Pix)
	assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
}

func TestComposeUnsupported(t *testing.T) {
	_, layout, err := Compose(raster.NewBlock(0, 2, 2))
	require.Error(t, err)
	assert.Equal(t, Unsupported, layout)
	assert.ErrorIs(t, err, tile.ErrUnsupportedBandLayout)
}

func TestAlphaFor(t *testing.T) {
	assert.Equal(t, uint8(255), AlphaFor(0))
	assert.Equal(t, uint8(128), AlphaFor(50))
	assert.Equal(t, uint8(26), AlphaFor(90))
	assert.Equal(t, uint8(0), AlphaFor(100))
}

func TestApplyTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})
	img.SetNRGBA(1, 0, color.NRGBA{0, 0, 1, 255})
	img.SetNRGBA(2, 0, color.NRGBA{0, 0, 0, 40})

	ApplyTransparency(img, 90)
	assert.Equal(t, color.NRGBA{0, 0, 0, 26}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{0, 0, 1, 255}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{0, 0, 0, 26}, img.NRGBAAt(2, 0))
}

func TestApplyTransparencyZeroIsNoop(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})
	before := append([]uint8(nil), img.Pix...)

	ApplyTransparency(img, 0)
	assert.Equal(t, before, img.Pix)
}

func TestApplyTransparencyFull(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})

	ApplyTransparency(img, 100)
	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).A)
}

func TestPNGEncoderKeepsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 26})
	img.SetNRGBA(1, 0, color.NRGBA{200, 100, 50, 255})

	enc, err := NewEncoder(tile.FormatPNG, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", enc.ContentType())

	var buf bytes.Buffer
	require.NoError(t, enc.Encode(&buf, img))
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), buf.Bytes()[:8])

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{0, 0, 0, 26}, color.NRGBAModel.Convert(decoded.At(0, 0)))
	assert.Equal(t, color.NRGBA{200, 100, 50, 255}, color.NRGBAModel.Convert(decoded.At(1, 0)))
}

func TestJPEGEncoderDropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 200, 200, 200, 0
	}

	enc, err := NewEncoder(tile.FormatJPEG, 95)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", enc.ContentType())

	var buf bytes.Buffer
	require.NoError(t, enc.Encode(&buf, img))
	assert.Equal(t, []byte{0xFF, 0xD8}, buf.Bytes()[:2])

	decoded, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	r, g, b, a := decoded.At(4, 4).RGBA()
	assert.InDelta(t, 200, r>>8, 3)
	assert.InDelta(t, 200, g>>8, 3)
	assert.InDelta(t, 200, b>>8, 3)
	assert.Equal(t, uint32(0xffff), a)

	// The source image is not modified.
	assert.Equal(t, uint8(0), img.Pix[3])
}

func TestNewEncoderUnknownFormat(t *testing.T) {
	_, err := NewEncoder(tile.Format(42), 90)
	require.Error(t, err)
	assert.ErrorIs(t, err, tile.ErrEncoding)
}
