package tile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ParseBoundingBox parses "minX,minY,maxX,maxY" into a bound. Exactly four
// finite numbers are required; their order is kept as given.
func ParseBoundingBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("%w: bounding box should have exactly 4 values, got %d", ErrMalformedBoundingBox, len(parts))
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("%w: value %d: %v", ErrMalformedBoundingBox, i+1, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return orb.Bound{}, fmt.Errorf("%w: value %d is not finite", ErrMalformedBoundingBox, i+1)
		}
		v[i] = f
	}

	// orb.Bound is built directly rather than through orb.MultiPoint.Bound so
	// an inverted box is passed through untouched.
	return orb.Bound{
		Min: orb.Point{v[0], v[1]},
		Max: orb.Point{v[2], v[3]},
	}, nil
}

// FormatBoundingBox renders a bound back into the query string form.
func FormatBoundingBox(b orb.Bound) string {
	return strconv.FormatFloat(b.Min[0], 'f', -1, 64) + "," +
		strconv.FormatFloat(b.Min[1], 'f', -1, 64) + "," +
		strconv.FormatFloat(b.Max[0], 'f', -1, 64) + "," +
		strconv.FormatFloat(b.Max[1], 'f', -1, 64)
}
