package tile

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// WorldFile returns the six-line world file for an image of width x height
// pixels covering bbox. Coordinates refer to the center of the upper-left pixel.
func WorldFile(bbox orb.Bound, width, height int) []byte {
	px := (bbox.Max[0] - bbox.Min[0]) / float64(width)
	py := (bbox.Max[1] - bbox.Min[1]) / float64(height)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%24.10f\n", px)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", 0.0)
	fmt.Fprintf(&buf, "%24.10f\n", -py)
	fmt.Fprintf(&buf, "%24.10f\n", bbox.Min[0]+px/2)
	fmt.Fprintf(&buf, "%24.10f\n", bbox.Max[1]-py/2)
	return buf.Bytes()
}

// WorldFilePath derives the world file name for an image path:
// tile.png -> tile.pgw, tile.jpg -> tile.jgw.
func WorldFilePath(imagePath string, format Format) string {
	ext := ".pgw"
	if format == FormatJPEG {
		ext = ".jgw"
	}

	if idx := strings.LastIndex(imagePath, "."); idx != -1 && !strings.Contains(imagePath[idx:], "/") {
		return imagePath[:idx] + ext
	}
	return imagePath + ext
}
