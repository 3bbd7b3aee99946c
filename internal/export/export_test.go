package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/tilewms/internal/render"
	"github.com/kiesman99/tilewms/pkg/tile"
)

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, req tile.Request) (*render.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &render.Result{Data: []byte("encoded"), ContentType: req.Format.ContentType()}, nil
}

func testRequest(format tile.Format) tile.Request {
	return tile.Request{
		BBox:   orb.Bound{Min: orb.Point{100, 200}, Max: orb.Point{110, 220}},
		Width:  10,
		Height: 20,
		Format: format,
	}
}

func TestExportToFileWithWorldFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "tile.jpg")
	e := New(&fakeRenderer{}, Options{Output: out, WriteWorldFile: true})

	res, err := e.Export(context.Background(), testRequest(tile.FormatJPEG))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", res.ContentType)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data))

	wld, err := os.ReadFile(filepath.Join(dir, "tile.jgw"))
	require.NoError(t, err)
	lines := strings.Fields(string(wld))
	require.Len(t, lines, 6)
	assert.Equal(t, []string{"1.0000000000", "0.0000000000", "0.0000000000", "-1.0000000000", "100.5000000000", "219.5000000000"}, lines)
}

func TestExportToStdout(t *testing.T) {
	var buf bytes.Buffer
	e := New(&fakeRenderer{}, Options{Stdout: &buf})

	_, err := e.Export(context.Background(), testRequest(tile.FormatPNG))
	require.NoError(t, err)
	assert.Equal(t, "encoded", buf.String())
}

func TestExportWorldFileNeedsOutput(t *testing.T) {
	r := &fakeRenderer{}
	e := New(r, Options{Stdout: &bytes.Buffer{}, WriteWorldFile: true})

	_, err := e.Export(context.Background(), testRequest(tile.FormatPNG))
	require.Error(t, err)
	assert.Zero(t, r.calls)
}

func TestExportPropagatesRenderError(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tile.png")
	e := New(&fakeRenderer{err: tile.ErrInvalidWindow}, Options{Output: out})

	_, err := e.Export(context.Background(), testRequest(tile.FormatPNG))
	assert.ErrorIs(t, err, tile.ErrInvalidWindow)
	assert.NoFileExists(t, out)
}
