package raster

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bigTIFFHeader returns a little-endian BigTIFF header whose first IFD
// starts right after it.
func bigTIFFHeader() []byte {
	b := []byte{'I', 'I', 43, 0, 8, 0, 0, 0}
	return binary.LittleEndian.AppendUint64(b, 16)
}

func TestParseTIFFRejectsHugeEntryCount(t *testing.T) {
	data := binary.LittleEndian.AppendUint64(bigTIFFHeader(), 1<<62)
	data = append(data, make([]byte, 64-len(data))...)

	assert.NotPanics(t, func() {
		_, _, err := parseTIFF(bytes.NewReader(data), int64(len(data)))
		assert.ErrorContains(t, err, "exceeds file size")
	})
}

func TestParseTIFFRejectsHugeValueCount(t *testing.T) {
	data := binary.LittleEndian.AppendUint64(bigTIFFHeader(), 1)
	// ImageWidth as doubles with a count whose byte size wraps to zero.
	data = binary.LittleEndian.AppendUint16(data, tagImageWidth)
	data = binary.LittleEndian.AppendUint16(data, dtDouble)
	data = binary.LittleEndian.AppendUint64(data, 1<<61)
	data = append(data, make([]byte, 16)...)

	assert.NotPanics(t, func() {
		_, _, err := parseTIFF(bytes.NewReader(data), int64(len(data)))
		assert.ErrorContains(t, err, "out of range")
	})
}

func TestValidatePlanarConfig(t *testing.T) {
	d := ifd{
		Width:           4,
		Height:          4,
		SamplesPerPixel: 3,
		BlockWidth:      4,
		BlockHeight:     4,
		PlanarConfig:    1,
		Offsets:         []uint64{8, 24, 40},
		ByteCounts:      []uint64{16, 16, 16},
	}
	require.NoError(t, d.validate())

	d.PlanarConfig = 2
	require.NoError(t, d.validate())

	for _, pc := range []uint16{0, 3} {
		d.PlanarConfig = pc
		assert.ErrorContains(t, d.validate(), "planar configuration", "planar config %d", pc)
	}
}
