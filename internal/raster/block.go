package raster

import "math"

// DataType is the numeric type of the raster samples on disk.
type DataType int

const (
	Uint8 DataType = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

func (t DataType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// Size returns the number of bytes per sample.
func (t DataType) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	default:
		return 8
	}
}

func (t DataType) isInteger() bool {
	return t != Float32 && t != Float64
}

// Block is a resampled pixel block laid out band-major:
// index = band*Height*Width + row*Width + col.
type Block struct {
	Bands  int
	Width  int
	Height int
	Data   []float64

	// NoData is the declared sentinel; HasNoData is false when the raster
	// declares none.
	NoData    float64
	HasNoData bool
}

// NewBlock allocates a zeroed block.
func NewBlock(bands, width, height int) *Block {
	return &Block{
		Bands:  bands,
		Width:  width,
		Height: height,
		Data:   make([]float64, bands*width*height),
	}
}

// Index returns the flat index of a sample.
func (b *Block) Index(band, col, row int) int {
	return (band*b.Height+row)*b.Width + col
}

// At returns the sample at band, col, row.
func (b *Block) At(band, col, row int) float64 {
	return b.Data[b.Index(band, col, row)]
}

// Set stores a sample at band, col, row.
func (b *Block) Set(band, col, row int, v float64) {
	b.Data[b.Index(band, col, row)] = v
}

// Band returns the samples of one band as a sub-slice of Data.
func (b *Block) Band(band int) []float64 {
	n := b.Width * b.Height
	return b.Data[band*n : (band+1)*n]
}

// IsNoData reports whether v matches the block's sentinel. A NaN sentinel
// matches NaN samples.
func (b *Block) IsNoData(v float64) bool {
	return b.HasNoData && isNoData(v, b.NoData)
}

func isNoData(v, nodata float64) bool {
	if math.IsNaN(nodata) {
		return math.IsNaN(v)
	}
	return v == nodata
}
