package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kiesman99/tilewms/internal/render"
	"github.com/kiesman99/tilewms/pkg/tile"
)

// ErrTerminalOutput is returned when no output file is given and stdout is
// a terminal.
var ErrTerminalOutput = errors.New("didn't specify output file and standard output is a terminal")

// Renderer produces an encoded tile.
type Renderer interface {
	Render(ctx context.Context, req tile.Request) (*render.Result, error)
}

// Options controls where a rendered tile is written.
type Options struct {
	// Output is the image path; empty means stdout.
	Output string
	// WriteWorldFile writes a .pgw/.jgw next to Output.
	WriteWorldFile bool
	// Stdout receives the image when Output is empty. Defaults to os.Stdout.
	Stdout io.Writer
}

// Exporter renders tiles and writes them to disk or stdout.
type Exporter struct {
	renderer Renderer
	options  Options
}

// New creates an exporter.
func New(renderer Renderer, opts Options) *Exporter {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return &Exporter{renderer: renderer, options: opts}
}

// Export renders req and writes the result.
func (e *Exporter) Export(ctx context.Context, req tile.Request) (*render.Result, error) {
	if e.options.Output == "" {
		if isTerminal(e.options.Stdout) {
			return nil, ErrTerminalOutput
		}
		if e.options.WriteWorldFile {
			return nil, errors.New("a world file needs an output file")
		}
	}

	result, err := e.renderer.Render(ctx, req)
	if err != nil {
		return nil, err
	}

	if e.options.Output == "" {
		if _, err := e.options.Stdout.Write(result.Data); err != nil {
			return nil, fmt.Errorf("writing tile to stdout: %w", err)
		}
		return result, nil
	}

	if err := os.WriteFile(e.options.Output, result.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", e.options.Output, err)
	}

	// Write world file if requested
	if e.options.WriteWorldFile {
		path := tile.WorldFilePath(e.options.Output, req.Format)
		if err := os.WriteFile(path, tile.WorldFile(req.BBox, req.Width, req.Height), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write world file: %w", err)
		}
	}
	return result, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
