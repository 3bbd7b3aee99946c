package tile

import "errors"

var (
	// Request errors
	ErrMalformedBoundingBox = errors.New("malformed bounding box")
	ErrInvalidRequest       = errors.New("invalid request")

	// Pipeline errors
	ErrRasterAccess          = errors.New("raster access error")
	ErrInvalidWindow         = errors.New("invalid window")
	ErrUnsupportedBandLayout = errors.New("unsupported band layout")
	ErrEncoding              = errors.New("encoding error")
)
