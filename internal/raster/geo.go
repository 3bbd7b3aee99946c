package raster

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// GeoKey IDs.
const (
	gkModelTypeGeoKey       = 1024
	gkRasterTypeGeoKey      = 1025
	gkGeographicTypeGeoKey  = 2048
	gkProjectedCSTypeGeoKey = 3072
)

const rasterPixelIsPoint = 2

// Affine maps pixel coordinates to CRS coordinates in the GDAL convention:
//
//	x = C + col*A + row*B
//	y = F + col*D + row*E
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity is used for rasters without georeferencing.
var Identity = Affine{A: 1, E: 1}

// Apply maps a pixel position to CRS coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.C + col*t.A + row*t.B, t.F + col*t.D + row*t.E
}

// Invert returns the CRS-to-pixel transform.
func (t Affine) Invert() (Affine, error) {
	det := t.A*t.E - t.B*t.D
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Affine{}, errors.New("affine transform is not invertible")
	}
	inv := Affine{
		A: t.E / det,
		B: -t.B / det,
		D: -t.D / det,
		E: t.A / det,
	}
	inv.C = -(inv.A*t.C + inv.B*t.F)
	inv.F = -(inv.D*t.C + inv.E*t.F)
	return inv, nil
}

// Scale returns the transform of a grid whose pixels are sx by sy times
// larger, as used by overview levels.
func (t Affine) Scale(sx, sy float64) Affine {
	return Affine{
		A: t.A * sx, B: t.B * sy, C: t.C,
		D: t.D * sx, E: t.E * sy, F: t.F,
	}
}

// Bounds returns the CRS extent of a width x height grid.
func (t Affine) Bounds(width, height int) orb.Bound {
	w, h := float64(width), float64(height)
	corners := [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}}

	var mp orb.MultiPoint
	for _, c := range corners {
		x, y := t.Apply(c[0], c[1])
		mp = append(mp, orb.Point{x, y})
	}
	return mp.Bound()
}

// geoInfo holds the georeferencing of IFD 0.
type geoInfo struct {
	Transform     Affine
	EPSG          int
	Georeferenced bool
	PixelIsPoint  bool
}

// parseGeoInfo reads the affine transform from GeoTIFF tags, falling back to
// a sidecar world file next to path.
func parseGeoInfo(d *ifd, path string) geoInfo {
	info := geoInfo{Transform: Identity}
	keys := parseGeoKeys(d.GeoKeys)
	info.EPSG = int(keys[gkProjectedCSTypeGeoKey])
	if info.EPSG == 0 {
		info.EPSG = int(keys[gkGeographicTypeGeoKey])
	}
	info.PixelIsPoint = keys[gkRasterTypeGeoKey] == rasterPixelIsPoint

	switch {
	case len(d.ModelTransformation) >= 16:
		m := d.ModelTransformation
		info.Transform = Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}
		info.Georeferenced = true
	case len(d.ModelPixelScale) >= 2 && len(d.ModelTiepoint) >= 6:
		sx, sy := d.ModelPixelScale[0], d.ModelPixelScale[1]
		tp := d.ModelTiepoint
		info.Transform = Affine{
			A: sx,
			C: tp[3] - tp[0]*sx,
			E: -sy,
			F: tp[4] + tp[1]*sy,
		}
		info.Georeferenced = true
	default:
		if t, ok := readWorldFile(path); ok {
			// World files reference pixel centers.
			t.C -= (t.A + t.B) / 2
			t.F -= (t.D + t.E) / 2
			info.Transform = t
			info.Georeferenced = true
		}
		return info
	}

	if info.PixelIsPoint {
		// The tie point names the center of the pixel; shift to its corner.
		t := info.Transform
		t.C -= (t.A + t.B) / 2
		t.F -= (t.D + t.E) / 2
		info.Transform = t
	}
	return info
}

// parseGeoKeys flattens the GeoKey directory into key -> short value.
// Keys stored in the double or ascii parameter tags are skipped.
func parseGeoKeys(dir []uint16) map[uint16]uint16 {
	keys := map[uint16]uint16{}
	if len(dir) < 4 {
		return keys
	}

	n := int(dir[3])
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base+3 >= len(dir) {
			break
		}
		if dir[base+1] != 0 {
			continue
		}
		keys[dir[base]] = dir[base+3]
	}
	return keys
}

// parseNoData parses the GDAL_NODATA ascii value.
func parseNoData(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.EqualFold(s, "nan") {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// readWorldFile looks for a .tfw, .tifw or .wld sidecar next to path.
func readWorldFile(path string) (Affine, bool) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".tfw", ".tifw", ".wld", ".TFW"} {
		t, err := parseWorldFile(base + ext)
		if err == nil {
			return t, true
		}
	}
	return Affine{}, false
}

// parseWorldFile reads the six world file parameters:
// A, D, B, E, C, F (pixel centers).
func parseWorldFile(path string) (Affine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Affine{}, err
	}

	fields := strings.Fields(string(data))
	if len(fields) < 6 {
		return Affine{}, fmt.Errorf("world file %s: expected 6 values, got %d", path, len(fields))
	}

	var v [6]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Affine{}, fmt.Errorf("world file %s line %d: %w", path, i+1, err)
		}
	}
	return Affine{A: v[0], D: v[1], B: v[2], E: v[3], C: v[4], F: v[5]}, nil
}
