package tile

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Format is the output encoding of a rendered tile.
type Format int

// Output format constants
const (
	FormatPNG Format = iota
	FormatJPEG
)

// Default request values applied when a parameter is omitted.
const (
	DefaultWidth  = 512
	DefaultHeight = 512
)

// ParseFormat maps a format name to a Format. Both the short names and the
// MIME types are accepted.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png", "image/png":
		return FormatPNG, nil
	case "jpeg", "image/jpeg":
		return FormatJPEG, nil
	default:
		return 0, fmt.Errorf("%w: unknown format %q (expected png or jpeg)", ErrInvalidRequest, s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	default:
		return "png"
	}
}

// ContentType returns the MIME type written alongside encoded tiles.
func (f Format) ContentType() string {
	return "image/" + f.String()
}

// Extension returns the file extension used when a tile is written to disk.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

// Request is a single, already-validated GetMap render request.
type Request struct {
	// BBox is expressed in the raster's native CRS: Min is (minX, minY) and
	// Max is (maxX, maxY). Ordering is not enforced here.
	BBox         orb.Bound
	Width        int
	Height       int
	Transparency int // percent, 0-100
	Format       Format
}

// Validate checks the request invariants that do not need the raster.
// maxWidth and maxHeight of zero disable the size limit.
func (r *Request) Validate(maxWidth, maxHeight int) error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: width and height must be positive, got %dx%d", ErrInvalidRequest, r.Width, r.Height)
	}
	if maxWidth > 0 && r.Width > maxWidth {
		return fmt.Errorf("%w: width %d exceeds limit %d", ErrInvalidRequest, r.Width, maxWidth)
	}
	if maxHeight > 0 && r.Height > maxHeight {
		return fmt.Errorf("%w: height %d exceeds limit %d", ErrInvalidRequest, r.Height, maxHeight)
	}
	if r.Transparency < 0 || r.Transparency > 100 {
		return fmt.Errorf("%w: transparent must be between 0 and 100, got %d", ErrInvalidRequest, r.Transparency)
	}
	if r.Format != FormatPNG && r.Format != FormatJPEG {
		return fmt.Errorf("%w: unsupported format %d", ErrInvalidRequest, r.Format)
	}
	return nil
}
