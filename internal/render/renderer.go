package render

import (
	"bytes"
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/kiesman99/tilewms/internal/raster"
	"github.com/kiesman99/tilewms/pkg/tile"
)

// DefaultMaxSize caps request width and height by default. A read holds
// width*height*bands float64 samples, so a 4-band 2048x2048 tile needs about
// 128 MiB while it renders; multiply by server.max_renders for the ceiling.
const DefaultMaxSize = 2048

// Options configures a Renderer.
type Options struct {
	Raster      raster.Options
	JPEGQuality int
	// MaxWidth and MaxHeight cap request sizes; zero disables the cap.
	MaxWidth  int
	MaxHeight int
}

// DefaultOptions returns the renderer defaults.
func DefaultOptions() Options {
	return Options{
		Raster:      raster.DefaultOptions(),
		JPEGQuality: DefaultJPEGQuality,
		MaxWidth:    DefaultMaxSize,
		MaxHeight:   DefaultMaxSize,
	}
}

// Result is an encoded tile.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Bands       int
	Layout      Layout
}

// Renderer turns tile requests into encoded images from a single raster.
// It holds no per-request state and is safe for concurrent use.
type Renderer struct {
	path string
	opts Options
	log  logrus.FieldLogger
}

// New creates a renderer for the raster at path. A nil logger uses the
// logrus standard logger.
func New(path string, opts Options, log logrus.FieldLogger) *Renderer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Renderer{path: path, opts: opts, log: log}
}

// Path returns the raster source path.
func (r *Renderer) Path() string { return r.path }

// Options returns the renderer configuration.
func (r *Renderer) Options() Options { return r.opts }

// Render runs the full pipeline for req. The raster is opened for this
// request only and closed before returning.
func (r *Renderer) Render(ctx context.Context, req tile.Request) (*Result, error) {
	start := time.Now()
	log := r.log.WithFields(logrus.Fields{
		"bbox":   tile.FormatBoundingBox(req.BBox),
		"width":  req.Width,
		"height": req.Height,
		"format": req.Format.String(),
	})

	if err := req.Validate(r.opts.MaxWidth, r.opts.MaxHeight); err != nil {
		return nil, err
	}

	enc, err := NewEncoder(req.Format, r.opts.JPEGQuality)
	if err != nil {
		return nil, err
	}

	ds, err := raster.Open(r.path, r.opts.Raster)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	block, err := ds.ReadWindow(ctx, req.BBox, req.Width, req.Height)
	if err != nil {
		return nil, err
	}
	log.WithField("bands", block.Bands).Debug("window read")

	Normalize(block)

	img, layout, err := Compose(block)
	if err != nil {
		return nil, err
	}

	if req.Transparency > 0 {
		ApplyTransparency(img, req.Transparency)
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"layout":   layout.String(),
		"bytes":    buf.Len(),
		"duration": time.Since(start),
	}).Debug("tile rendered")

	return &Result{
		Data:        buf.Bytes(),
		ContentType: enc.ContentType(),
		Width:       req.Width,
		Height:      req.Height,
		Bands:       block.Bands,
		Layout:      layout,
	}, nil
}

// Info opens the raster and returns its metadata.
func (r *Renderer) Info(ctx context.Context) (raster.Info, error) {
	if err := ctx.Err(); err != nil {
		return raster.Info{}, err
	}
	ds, err := raster.Open(r.path, r.opts.Raster)
	if err != nil {
		return raster.Info{}, err
	}
	defer ds.Close()
	return ds.Info(), nil
}

// Bounds returns the raster extent in its native CRS.
func (r *Renderer) Bounds() (orb.Bound, error) {
	ds, err := raster.Open(r.path, r.opts.Raster)
	if err != nil {
		return orb.Bound{}, err
	}
	defer ds.Close()
	return ds.Bounds(), nil
}
