package raster

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/tilewms/pkg/tile"
)

// Window is a fractional pixel rectangle on the full-resolution grid.
type Window struct {
	Col, Row      float64
	Width, Height float64
}

// WindowFor maps a bounding box to the pixel window covering its four
// corners on the full-resolution grid.
func (d *Dataset) WindowFor(bbox orb.Bound) (Window, error) {
	for _, v := range []float64{bbox.Min.X(), bbox.Min.Y(), bbox.Max.X(), bbox.Max.Y()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Window{}, fmt.Errorf("%w: non-finite bounding box %v", tile.ErrInvalidWindow, bbox)
		}
	}

	inv, err := d.geo.Transform.Invert()
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", tile.ErrRasterAccess, err)
	}

	minCol, minRow := math.Inf(1), math.Inf(1)
	maxCol, maxRow := math.Inf(-1), math.Inf(-1)
	corners := []orb.Point{
		bbox.Min,
		{bbox.Max.X(), bbox.Min.Y()},
		{bbox.Min.X(), bbox.Max.Y()},
		bbox.Max,
	}
	for _, p := range corners {
		c, r := inv.Apply(p.X(), p.Y())
		minCol, maxCol = math.Min(minCol, c), math.Max(maxCol, c)
		minRow, maxRow = math.Min(minRow, r), math.Max(maxRow, r)
	}

	w := Window{Col: minCol, Row: minRow, Width: maxCol - minCol, Height: maxRow - minRow}
	if !(w.Width > 0) || !(w.Height > 0) {
		return Window{}, fmt.Errorf("%w: empty pixel window for %v", tile.ErrInvalidWindow, bbox)
	}
	if maxCol <= 0 || minCol >= float64(d.Width()) || maxRow <= 0 || minRow >= float64(d.Height()) {
		return Window{}, fmt.Errorf("%w: bounding box %v does not intersect the raster", tile.ErrInvalidWindow, bbox)
	}
	return w, nil
}

// ReadWindow reads the area under bbox resampled to width x height with
// bilinear interpolation. Samples outside the raster take the fill value.
func (d *Dataset) ReadWindow(ctx context.Context, bbox orb.Bound, width, height int) (*Block, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: output size %dx%d", tile.ErrInvalidWindow, width, height)
	}

	win, err := d.WindowFor(bbox)
	if err != nil {
		return nil, err
	}

	lvl := d.pickLevel(win, width, height)
	// Window in the chosen level's pixel space.
	lw := Window{
		Col:    win.Col / lvl.factorX,
		Row:    win.Row / lvl.factorY,
		Width:  win.Width / lvl.factorX,
		Height: win.Height / lvl.factorY,
	}

	cols := samplePositions(lw.Col, lw.Width, width, lvl.width())
	rows := samplePositions(lw.Row, lw.Height, height, lvl.height())

	cache, err := d.decodeBlocks(ctx, lvl, cols, rows)
	if err != nil {
		return nil, err
	}

	out := NewBlock(d.bands, width, height)
	out.NoData, out.HasNoData = d.noData, d.hasNoData
	fill := d.fill()

	for band := 0; band < d.bands; band++ {
		for j, rp := range rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for i, cp := range cols {
				if rp.outside || cp.outside {
					out.Set(band, i, j, fill)
					continue
				}
				out.Set(band, i, j, d.bilinear(cache, lvl, band, cp, rp))
			}
		}
	}
	return out, nil
}

// pickLevel returns the coarsest level whose decimation does not exceed the
// window-to-output ratio.
func (d *Dataset) pickLevel(win Window, width, height int) *level {
	best := &d.levels[0]
	if !d.opts.UseOverviews {
		return best
	}
	ratio := math.Min(win.Width/float64(width), win.Height/float64(height))
	for i := 1; i < len(d.levels); i++ {
		l := &d.levels[i]
		if math.Max(l.factorX, l.factorY) <= ratio {
			best = l
		}
	}
	return best
}

// samplePos is the source neighborhood of one output column or row.
type samplePos struct {
	lo, hi  int
	frac    float64
	outside bool
}

// samplePositions maps n output pixel centers onto [start, start+extent) of
// a source axis of the given size.
func samplePositions(start, extent float64, n, size int) []samplePos {
	out := make([]samplePos, n)
	step := extent / float64(n)
	for i := range out {
		src := start + (float64(i)+0.5)*step
		if src < 0 || src >= float64(size) {
			out[i].outside = true
			continue
		}
		c := src - 0.5
		lo := int(math.Floor(c))
		frac := c - float64(lo)
		hi := lo + 1
		out[i] = samplePos{
			lo:   clampInt(lo, 0, size-1),
			hi:   clampInt(hi, 0, size-1),
			frac: frac,
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// blockCache holds the decoded blocks of one read, indexed like Offsets.
type blockCache map[int]*decodedBlock

func (l *level) blockIndex(band, col, row int) (idx, by int) {
	d := l.ifd
	bx := col / int(d.BlockWidth)
	by = row / int(d.BlockHeight)
	plane := 0
	if d.PlanarConfig == 2 {
		plane = band
	}
	return plane*d.blocksPerPlane() + by*d.blocksAcross() + bx, by
}

// decodeBlocks decodes every block touched by the sample positions.
func (d *Dataset) decodeBlocks(ctx context.Context, lvl *level, cols, rows []samplePos) (blockCache, error) {
	colSet := map[int]struct{}{}
	for _, c := range cols {
		if !c.outside {
			colSet[c.lo] = struct{}{}
			colSet[c.hi] = struct{}{}
		}
	}
	rowSet := map[int]struct{}{}
	for _, r := range rows {
		if !r.outside {
			rowSet[r.lo] = struct{}{}
			rowSet[r.hi] = struct{}{}
		}
	}

	planes := lvl.ifd.planes()
	want := map[int]int{}
	for row := range rowSet {
		for col := range colSet {
			for p := 0; p < planes; p++ {
				idx, by := lvl.blockIndex(p, col, row)
				want[idx] = by
			}
		}
	}

	var (
		mu    sync.Mutex
		cache = make(blockCache, len(want))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.DecodeWorkers)
	for idx, by := range want {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			blk, err := readBlock(d.file, lvl.ifd, d.dtype, d.order, idx, by)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", tile.ErrRasterAccess, d.path, err)
			}
			mu.Lock()
			cache[idx] = blk
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cache, nil
}

// pixel returns one source sample, or the fill value for sparse blocks.
func (d *Dataset) pixel(cache blockCache, lvl *level, band, col, row int) float64 {
	idx, by := lvl.blockIndex(band, col, row)
	blk := cache[idx]
	if blk == nil {
		return d.fill()
	}
	x := col % int(lvl.ifd.BlockWidth)
	y := row - by*int(lvl.ifd.BlockHeight)
	if x >= blk.width || y >= blk.height {
		return d.fill()
	}
	sample := band
	if lvl.ifd.PlanarConfig == 2 {
		sample = 0
	}
	return blk.at(x, y, sample)
}

// bilinear interpolates the four neighbors around a sample position,
// skipping nodata neighbors and renormalizing the remaining weights.
func (d *Dataset) bilinear(cache blockCache, lvl *level, band int, cp, rp samplePos) float64 {
	type tap struct {
		col, row int
		w        float64
	}
	taps := [4]tap{
		{cp.lo, rp.lo, (1 - cp.frac) * (1 - rp.frac)},
		{cp.hi, rp.lo, cp.frac * (1 - rp.frac)},
		{cp.lo, rp.hi, (1 - cp.frac) * rp.frac},
		{cp.hi, rp.hi, cp.frac * rp.frac},
	}

	var sum, weight float64
	for _, t := range taps {
		if t.w == 0 {
			continue
		}
		v := d.pixel(cache, lvl, band, t.col, t.row)
		if d.hasNoData && isNoData(v, d.noData) {
			continue
		}
		sum += v * t.w
		weight += t.w
	}
	if weight == 0 {
		return d.fill()
	}
	return sum / weight
}
