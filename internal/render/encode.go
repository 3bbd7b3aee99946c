package render

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/kiesman99/tilewms/pkg/tile"
)

// DefaultJPEGQuality is used when no quality is configured.
const DefaultJPEGQuality = 90

// Encoder serializes a composed tile.
type Encoder interface {
	Encode(w io.Writer, img *image.NRGBA) error
	ContentType() string
}

// NewEncoder returns the encoder for format. quality applies to JPEG and
// falls back to DefaultJPEGQuality outside [1, 100].
func NewEncoder(format tile.Format, quality int) (Encoder, error) {
	switch format {
	case tile.FormatPNG:
		return pngEncoder{}, nil
	case tile.FormatJPEG:
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		return jpegEncoder{quality: quality}, nil
	default:
		return nil, fmt.Errorf("%w: unknown format %d", tile.ErrEncoding, int(format))
	}
}

type pngEncoder struct{}

func (pngEncoder) ContentType() string { return tile.FormatPNG.ContentType() }

func (pngEncoder) Encode(w io.Writer, img *image.NRGBA) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("%w: png: %v", tile.ErrEncoding, err)
	}
	return nil
}

type jpegEncoder struct {
	quality int
}

func (jpegEncoder) ContentType() string { return tile.FormatJPEG.ContentType() }

// Encode drops alpha by forcing every pixel opaque; RGB is kept as is.
func (e jpegEncoder) Encode(w io.Writer, img *image.NRGBA) error {
	opaque := img
	if !img.Opaque() {
		opaque = image.NewNRGBA(img.Rect)
		copy(opaque.Pix, img.Pix)
		for i := 3; i < len(opaque.Pix); i += 4 {
			opaque.Pix[i] = 255
		}
	}
	if err := imaging.Encode(w, opaque, imaging.JPEG, imaging.JPEGQuality(e.quality)); err != nil {
		return fmt.Errorf("%w: jpeg: %v", tile.ErrEncoding, err)
	}
	return nil
}
