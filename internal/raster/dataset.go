package raster

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/paulmach/orb"

	"github.com/kiesman99/tilewms/pkg/tile"
)

// Options controls how a Dataset reads windows.
type Options struct {
	// UseOverviews lets downsampling reads use a reduced-resolution level.
	UseOverviews bool
	// DecodeWorkers bounds concurrent block decoding. Values below 1 mean 1.
	DecodeWorkers int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		UseOverviews:  true,
		DecodeWorkers: 4,
	}
}

// level is one resolution of the raster: IFD 0 or an overview.
type level struct {
	ifd       *ifd
	transform Affine
	// factor is the decimation relative to full resolution.
	factorX, factorY float64
}

func (l *level) width() int  { return int(l.ifd.Width) }
func (l *level) height() int { return int(l.ifd.Height) }

// Dataset is an open GeoTIFF. It is safe for concurrent ReadWindow calls;
// Close must be called once all reads are done.
type Dataset struct {
	path   string
	file   *os.File
	order  binary.ByteOrder
	levels []level
	geo    geoInfo
	dtype  DataType
	bands  int

	noData    float64
	hasNoData bool
	rawNoData string

	opts Options
}

// Open parses the GeoTIFF at path. Failures wrap tile.ErrRasterAccess.
func Open(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tile.ErrRasterAccess, err)
	}

	ds, err := newDataset(f, path, opts)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", tile.ErrRasterAccess, path, err)
	}
	return ds, nil
}

func newDataset(f *os.File, path string, opts Options) (*Dataset, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	ifds, order, err := parseTIFF(f, st.Size())
	if err != nil {
		return nil, err
	}

	base := &ifds[0]
	if err := base.validate(); err != nil {
		return nil, err
	}
	dtype, err := base.dataType()
	if err != nil {
		return nil, err
	}

	if opts.DecodeWorkers < 1 {
		opts.DecodeWorkers = 1
	}

	ds := &Dataset{
		path:      path,
		file:      f,
		order:     order,
		geo:       parseGeoInfo(base, path),
		dtype:     dtype,
		bands:     int(base.SamplesPerPixel),
		rawNoData: base.NoData,
		opts:      opts,
	}
	ds.noData, ds.hasNoData = parseNoData(base.NoData)

	ds.levels = append(ds.levels, level{ifd: base, transform: ds.geo.Transform, factorX: 1, factorY: 1})
	for i := 1; i < len(ifds); i++ {
		ov := &ifds[i]
		if !ov.isOverview() || ov.SamplesPerPixel != base.SamplesPerPixel {
			continue
		}
		if ov.validate() != nil {
			continue
		}
		if dt, err := ov.dataType(); err != nil || dt != dtype {
			continue
		}
		fx := float64(base.Width) / float64(ov.Width)
		fy := float64(base.Height) / float64(ov.Height)
		ds.levels = append(ds.levels, level{
			ifd:       ov,
			transform: ds.geo.Transform.Scale(fx, fy),
			factorX:   fx,
			factorY:   fy,
		})
	}
	sort.SliceStable(ds.levels[1:], func(i, j int) bool {
		return ds.levels[1+i].factorX < ds.levels[1+j].factorX
	})
	return ds, nil
}

// Close releases the file handle.
func (d *Dataset) Close() error {
	return d.file.Close()
}

// Width returns the full-resolution width in pixels.
func (d *Dataset) Width() int { return d.levels[0].width() }

// Height returns the full-resolution height in pixels.
func (d *Dataset) Height() int { return d.levels[0].height() }

// Bands returns the number of samples per pixel.
func (d *Dataset) Bands() int { return d.bands }

// DataType returns the on-disk sample type.
func (d *Dataset) DataType() DataType { return d.dtype }

// Transform returns the pixel-to-CRS affine transform of full resolution.
func (d *Dataset) Transform() Affine { return d.geo.Transform }

// Bounds returns the raster extent in its native CRS.
func (d *Dataset) Bounds() orb.Bound {
	return d.geo.Transform.Bounds(d.Width(), d.Height())
}

// NoData returns the declared nodata sentinel.
func (d *Dataset) NoData() (float64, bool) { return d.noData, d.hasNoData }

// fill is the value of samples outside the raster or in sparse blocks.
func (d *Dataset) fill() float64 {
	if d.hasNoData {
		return d.noData
	}
	return 0
}

// OverviewInfo describes one reduced-resolution level.
type OverviewInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Info is a summary of the raster for inspection.
type Info struct {
	Path          string         `json:"path"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	Bands         int            `json:"bands"`
	DataType      string         `json:"data_type"`
	Integer       bool           `json:"integer"`
	Bounds        [4]float64     `json:"bounds"`
	PixelSize     [2]float64     `json:"pixel_size"`
	EPSG          int            `json:"epsg,omitempty"`
	Georeferenced bool           `json:"georeferenced"`
	NoData        string         `json:"nodata,omitempty"`
	Compression   int            `json:"compression"`
	Tiled         bool           `json:"tiled"`
	BlockWidth    int            `json:"block_width"`
	BlockHeight   int            `json:"block_height"`
	Overviews     []OverviewInfo `json:"overviews"`
}

// Info summarizes the dataset.
func (d *Dataset) Info() Info {
	base := d.levels[0].ifd
	b := d.Bounds()
	info := Info{
		Path:          d.path,
		Width:         d.Width(),
		Height:        d.Height(),
		Bands:         d.bands,
		DataType:      d.dtype.String(),
		Integer:       d.dtype.isInteger(),
		Bounds:        [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()},
		PixelSize:     [2]float64{d.geo.Transform.A, d.geo.Transform.E},
		EPSG:          d.geo.EPSG,
		Georeferenced: d.geo.Georeferenced,
		Compression:   int(base.Compression),
		Tiled:         base.Tiled,
		BlockWidth:    int(base.BlockWidth),
		BlockHeight:   int(base.BlockHeight),
		Overviews:     []OverviewInfo{},
	}
	if d.hasNoData {
		info.NoData = d.rawNoData
	}
	for _, l := range d.levels[1:] {
		info.Overviews = append(info.Overviews, OverviewInfo{Width: l.width(), Height: l.height()})
	}
	return info
}
