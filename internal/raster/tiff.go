package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// TIFF tag IDs.
const (
	tagNewSubfileType      = 254
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagJPEGTables          = 347
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoAsciiParams      = 34737
	tagGDALNoData          = 42113
)

// TIFF field types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndef     = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

// Compression schemes understood by the block decoder.
const (
	compressionNone        = 1
	compressionLZW         = 5
	compressionJPEGOld     = 6
	compressionJPEG        = 7
	compressionDeflate     = 8
	compressionDeflateAdob = 32946
	compressionZSTD        = 50000
)

// Predictor values.
const (
	predictorNone          = 1
	predictorHorizontal    = 2
	predictorFloatingPoint = 3
)

// SampleFormat values.
const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// maxEntryBytes guards against corrupt counts that would allocate absurd buffers.
const maxEntryBytes = 256 << 20

// ifd is a parsed TIFF image file directory, reduced to the fields the
// window reader needs.
type ifd struct {
	Width           uint32
	Height          uint32
	NewSubfileType  uint32
	BitsPerSample   []uint16
	SamplesPerPixel uint16
	SampleFormat    []uint16
	Compression     uint16
	Photometric     uint16
	PlanarConfig    uint16
	Predictor       uint16

	// Block layout. Strips are modelled as blocks spanning the full width.
	Tiled       bool
	BlockWidth  uint32
	BlockHeight uint32
	Offsets     []uint64
	ByteCounts  []uint64
	JPEGTables  []byte

	ModelPixelScale     []float64
	ModelTiepoint       []float64
	ModelTransformation []float64
	GeoKeys             []uint16
	GeoDoubleParams     []float64
	GeoAsciiParams      string
	NoData              string
}

// blocksAcross returns the number of blocks in the horizontal direction.
func (d *ifd) blocksAcross() int {
	return int((d.Width + d.BlockWidth - 1) / d.BlockWidth)
}

// blocksDown returns the number of blocks in the vertical direction.
func (d *ifd) blocksDown() int {
	return int((d.Height + d.BlockHeight - 1) / d.BlockHeight)
}

// blocksPerPlane is the number of blocks holding one plane of the image.
func (d *ifd) blocksPerPlane() int {
	return d.blocksAcross() * d.blocksDown()
}

// planes is 1 for chunky images and SamplesPerPixel for planar ones.
func (d *ifd) planes() int {
	if d.PlanarConfig == 2 {
		return int(d.SamplesPerPixel)
	}
	return 1
}

// isOverview reports whether the IFD is a reduced-resolution copy of IFD 0.
func (d *ifd) isOverview() bool {
	return d.NewSubfileType&1 != 0 && d.NewSubfileType&4 == 0
}

// isMask reports whether the IFD is a transparency mask.
func (d *ifd) isMask() bool {
	return d.NewSubfileType&4 != 0
}

// dataType resolves BitsPerSample/SampleFormat into a DataType.
func (d *ifd) dataType() (DataType, error) {
	bits := uint16(8)
	if len(d.BitsPerSample) > 0 {
		bits = d.BitsPerSample[0]
	}
	for _, b := range d.BitsPerSample {
		if b != bits {
			return 0, fmt.Errorf("mixed bits per sample %v", d.BitsPerSample)
		}
	}

	format := uint16(sampleFormatUint)
	if len(d.SampleFormat) > 0 {
		format = d.SampleFormat[0]
	}

	switch {
	case format == sampleFormatUint && bits == 8:
		return Uint8, nil
	case format == sampleFormatInt && bits == 8:
		return Int8, nil
	case format == sampleFormatUint && bits == 16:
		return Uint16, nil
	case format == sampleFormatInt && bits == 16:
		return Int16, nil
	case format == sampleFormatUint && bits == 32:
		return Uint32, nil
	case format == sampleFormatInt && bits == 32:
		return Int32, nil
	case format == sampleFormatFloat && bits == 32:
		return Float32, nil
	case format == sampleFormatFloat && bits == 64:
		return Float64, nil
	}
	return 0, fmt.Errorf("unsupported sample layout: format %d, %d bits", format, bits)
}

func (d *ifd) validate() error {
	if d.Width == 0 || d.Height == 0 {
		return errors.New("missing image dimensions")
	}
	if d.SamplesPerPixel == 0 {
		return errors.New("zero samples per pixel")
	}
	if d.BlockWidth == 0 || d.BlockHeight == 0 {
		return errors.New("missing tile or strip layout")
	}
	if d.PlanarConfig != 1 && d.PlanarConfig != 2 {
		return fmt.Errorf("invalid planar configuration %d", d.PlanarConfig)
	}
	want := d.blocksPerPlane() * d.planes()
	if len(d.Offsets) < want || len(d.ByteCounts) < want {
		return fmt.Errorf("expected %d blocks, found %d offsets and %d byte counts", want, len(d.Offsets), len(d.ByteCounts))
	}
	return nil
}

// tiffEntry is a raw directory entry with its value bytes resolved.
type tiffEntry struct {
	Tag      uint16
	DataType uint16
	Count    uint64
	Value    []byte
}

// parseTIFF reads the header and every IFD in the chain.
func parseTIFF(r io.ReaderAt, size int64) ([]ifd, binary.ByteOrder, error) {
	var header [16]byte
	if _, err := r.ReadAt(header[:8], 0); err != nil {
		return nil, nil, fmt.Errorf("reading TIFF header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("invalid TIFF byte order: %x", header[0:2])
	}

	var (
		bigTIFF bool
		offset  uint64
	)
	switch magic := bo.Uint16(header[2:4]); magic {
	case 42:
		offset = uint64(bo.Uint32(header[4:8]))
	case 43:
		bigTIFF = true
		if _, err := r.ReadAt(header[8:16], 8); err != nil {
			return nil, nil, fmt.Errorf("reading BigTIFF header: %w", err)
		}
		offset = bo.Uint64(header[8:16])
	default:
		return nil, nil, fmt.Errorf("invalid TIFF magic: %d", magic)
	}

	var (
		ifds []ifd
		seen = map[uint64]bool{}
	)
	for offset != 0 {
		if seen[offset] {
			return nil, nil, fmt.Errorf("IFD loop at offset %d", offset)
		}
		seen[offset] = true

		d, next, err := parseIFD(r, size, bo, offset, bigTIFF)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing IFD at offset %d: %w", offset, err)
		}
		ifds = append(ifds, d)
		offset = next
	}
	if len(ifds) == 0 {
		return nil, nil, errors.New("no IFDs found")
	}
	return ifds, bo, nil
}

func parseIFD(r io.ReaderAt, size int64, bo binary.ByteOrder, offset uint64, bigTIFF bool) (ifd, uint64, error) {
	countSize, entrySize, nextSize := 2, 12, 4
	if bigTIFF {
		countSize, entrySize, nextSize = 8, 20, 8
	}

	buf := make([]byte, countSize)
	if _, err := r.ReadAt(buf, int64(offset)); err != nil {
		return ifd{}, 0, err
	}
	var n uint64
	if bigTIFF {
		n = bo.Uint64(buf)
	} else {
		n = uint64(bo.Uint16(buf))
	}
	if size < 0 || n > uint64(size)/uint64(entrySize) {
		return ifd{}, 0, fmt.Errorf("entry count %d exceeds file size", n)
	}

	raw := make([]byte, int(n)*entrySize+nextSize)
	if _, err := r.ReadAt(raw, int64(offset)+int64(countSize)); err != nil {
		return ifd{}, 0, err
	}

	entries := make([]tiffEntry, 0, n)
	for i := 0; i < int(n); i++ {
		e, err := readEntry(r, size, bo, raw[i*entrySize:(i+1)*entrySize], bigTIFF)
		if err != nil {
			return ifd{}, 0, err
		}
		entries = append(entries, e)
	}

	tail := raw[int(n)*entrySize:]
	var next uint64
	if bigTIFF {
		next = bo.Uint64(tail)
	} else {
		next = uint64(bo.Uint32(tail))
	}

	return buildIFD(entries, bo), next, nil
}

// readEntry decodes one directory entry and fetches out-of-line values.
func readEntry(r io.ReaderAt, size int64, bo binary.ByteOrder, buf []byte, bigTIFF bool) (tiffEntry, error) {
	e := tiffEntry{
		Tag:      bo.Uint16(buf[0:2]),
		DataType: bo.Uint16(buf[2:4]),
	}

	var inline []byte
	if bigTIFF {
		e.Count = bo.Uint64(buf[4:12])
		inline = buf[12:20]
	} else {
		e.Count = uint64(bo.Uint32(buf[4:8]))
		inline = buf[8:12]
	}

	if e.Count > maxEntryBytes {
		return tiffEntry{}, fmt.Errorf("tag %d: count %d out of range", e.Tag, e.Count)
	}
	total := e.Count * uint64(dataTypeSize(e.DataType))
	if total > maxEntryBytes || int64(total) > size {
		return tiffEntry{}, fmt.Errorf("tag %d: value size %d out of range", e.Tag, total)
	}

	if total <= uint64(len(inline)) {
		e.Value = make([]byte, len(inline))
		copy(e.Value, inline)
		return e, nil
	}

	var off uint64
	if bigTIFF {
		off = bo.Uint64(inline)
	} else {
		off = uint64(bo.Uint32(inline))
	}
	e.Value = make([]byte, total)
	if _, err := r.ReadAt(e.Value, int64(off)); err != nil {
		return tiffEntry{}, fmt.Errorf("tag %d: reading value at %d: %w", e.Tag, off, err)
	}
	return e, nil
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8, dtIFD8:
		return 8
	default:
		return 1
	}
}

func buildIFD(entries []tiffEntry, bo binary.ByteOrder) ifd {
	d := ifd{
		SamplesPerPixel: 1,
		Compression:     compressionNone,
		PlanarConfig:    1,
		Predictor:       predictorNone,
	}

	var (
		rowsPerStrip              uint32
		stripOffsets, stripCounts []uint64
		tileOffsets, tileCounts   []uint64
	)

	for _, e := range entries {
		switch e.Tag {
		case tagNewSubfileType:
			d.NewSubfileType = uint32(firstUint(e, bo))
		case tagImageWidth:
			d.Width = uint32(firstUint(e, bo))
		case tagImageLength:
			d.Height = uint32(firstUint(e, bo))
		case tagBitsPerSample:
			d.BitsPerSample = uint16s(e, bo)
		case tagSamplesPerPixel:
			d.SamplesPerPixel = uint16(firstUint(e, bo))
		case tagSampleFormat:
			d.SampleFormat = uint16s(e, bo)
		case tagCompression:
			d.Compression = uint16(firstUint(e, bo))
		case tagPhotometric:
			d.Photometric = uint16(firstUint(e, bo))
		case tagPlanarConfig:
			d.PlanarConfig = uint16(firstUint(e, bo))
		case tagPredictor:
			d.Predictor = uint16(firstUint(e, bo))
		case tagRowsPerStrip:
			rowsPerStrip = uint32(firstUint(e, bo))
		case tagStripOffsets:
			stripOffsets = uints(e, bo)
		case tagStripByteCounts:
			stripCounts = uints(e, bo)
		case tagTileWidth:
			d.BlockWidth = uint32(firstUint(e, bo))
		case tagTileLength:
			d.BlockHeight = uint32(firstUint(e, bo))
		case tagTileOffsets:
			tileOffsets = uints(e, bo)
		case tagTileByteCounts:
			tileCounts = uints(e, bo)
		case tagJPEGTables:
			d.JPEGTables = e.Value[:e.Count]
		case tagModelPixelScale:
			d.ModelPixelScale = floats(e, bo)
		case tagModelTiepoint:
			d.ModelTiepoint = floats(e, bo)
		case tagModelTransformation:
			d.ModelTransformation = floats(e, bo)
		case tagGeoKeyDirectory:
			d.GeoKeys = uint16s(e, bo)
		case tagGeoDoubleParams:
			d.GeoDoubleParams = floats(e, bo)
		case tagGeoAsciiParams:
			d.GeoAsciiParams = asciiValue(e)
		case tagGDALNoData:
			d.NoData = asciiValue(e)
		}
	}

	if tileOffsets != nil {
		d.Tiled = true
		d.Offsets = tileOffsets
		d.ByteCounts = tileCounts
	} else {
		d.BlockWidth = d.Width
		d.BlockHeight = rowsPerStrip
		if d.BlockHeight == 0 || d.BlockHeight > d.Height {
			d.BlockHeight = d.Height
		}
		d.Offsets = stripOffsets
		d.ByteCounts = stripCounts
	}
	return d
}

func asciiValue(e tiffEntry) string {
	n := int(e.Count)
	if n > len(e.Value) {
		n = len(e.Value)
	}
	return strings.TrimRight(string(e.Value[:n]), "\x00 ")
}

func firstUint(e tiffEntry, bo binary.ByteOrder) uint64 {
	if e.Count == 0 {
		return 0
	}
	v := uints(tiffEntry{Tag: e.Tag, DataType: e.DataType, Count: 1, Value: e.Value}, bo)
	return v[0]
}

func uints(e tiffEntry, bo binary.ByteOrder) []uint64 {
	n := int(e.Count)
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		switch e.DataType {
		case dtByte, dtUndef:
			out[i] = uint64(e.Value[i])
		case dtShort:
			out[i] = uint64(bo.Uint16(e.Value[i*2:]))
		case dtLong:
			out[i] = uint64(bo.Uint32(e.Value[i*4:]))
		case dtLong8, dtIFD8:
			out[i] = bo.Uint64(e.Value[i*8:])
		}
	}
	return out
}

func uint16s(e tiffEntry, bo binary.ByteOrder) []uint16 {
	v := uints(e, bo)
	out := make([]uint16, len(v))
	for i, x := range v {
		out[i] = uint16(x)
	}
	return out
}

func floats(e tiffEntry, bo binary.ByteOrder) []float64 {
	n := int(e.Count)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		switch e.DataType {
		case dtDouble:
			out[i] = math.Float64frombits(bo.Uint64(e.Value[i*8:]))
		case dtFloat:
			out[i] = float64(math.Float32frombits(bo.Uint32(e.Value[i*4:])))
		case dtShort, dtLong, dtLong8:
			out[i] = float64(uints(tiffEntry{DataType: e.DataType, Count: 1, Value: e.Value[i*dataTypeSize(e.DataType):]}, bo)[0])
		}
	}
	return out
}
