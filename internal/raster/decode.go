package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff/lzw"
)

// zstdDecoder is shared by all datasets; DecodeAll is safe for concurrent use.
var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

// decodedBlock holds the samples of one tile or strip as float64. Chunky
// blocks interleave SamplesPerPixel values per pixel; planar blocks hold a
// single band.
type decodedBlock struct {
	width   int
	height  int
	samples int
	data    []float64
}

func (b *decodedBlock) at(col, row, sample int) float64 {
	return b.data[(row*b.width+col)*b.samples+sample]
}

// blockRows returns the number of rows stored in the block at grid row by.
// Tiles are always full height; the last strip may be shorter.
func (d *ifd) blockRows(by int) int {
	if d.Tiled {
		return int(d.BlockHeight)
	}
	rows := int(d.Height) - by*int(d.BlockHeight)
	if rows > int(d.BlockHeight) {
		rows = int(d.BlockHeight)
	}
	return rows
}

// readBlock reads and decodes the block at index idx. A nil block with nil
// error means the block is sparse and must be treated as fill.
func readBlock(r io.ReaderAt, d *ifd, dt DataType, bo binary.ByteOrder, idx, by int) (*decodedBlock, error) {
	if idx >= len(d.Offsets) {
		return nil, fmt.Errorf("block %d out of range", idx)
	}
	offset, count := d.Offsets[idx], d.ByteCounts[idx]
	if offset == 0 || count == 0 {
		return nil, nil
	}
	if count > maxEntryBytes {
		return nil, fmt.Errorf("block %d: byte count %d out of range", idx, count)
	}

	raw := make([]byte, count)
	if _, err := r.ReadAt(raw, int64(offset)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading block %d: %w", idx, err)
	}

	samples := int(d.SamplesPerPixel)
	if d.PlanarConfig == 2 {
		samples = 1
	}
	blk := &decodedBlock{
		width:   int(d.BlockWidth),
		height:  d.blockRows(by),
		samples: samples,
	}

	if d.Compression == compressionJPEG || d.Compression == compressionJPEGOld {
		if err := decodeJPEGBlock(d, raw, blk); err != nil {
			return nil, fmt.Errorf("block %d: %w", idx, err)
		}
		return blk, nil
	}

	buf, err := decompress(d.Compression, raw)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", idx, err)
	}

	size := dt.Size()
	rowBytes := blk.width * samples * size
	want := rowBytes * blk.height
	if len(buf) < want {
		// Truncated streams are padded with zeros rather than rejected.
		buf = append(buf, make([]byte, want-len(buf))...)
	}
	buf = buf[:want]

	blk.data = make([]float64, blk.width*blk.height*samples)
	switch d.Predictor {
	case predictorNone:
		convertSamples(buf, blk.data, dt, bo)
	case predictorHorizontal:
		if err := undoHorizontal(buf, bo, rowBytes, samples, size); err != nil {
			return nil, fmt.Errorf("block %d: %w", idx, err)
		}
		convertSamples(buf, blk.data, dt, bo)
	case predictorFloatingPoint:
		if dt != Float32 && dt != Float64 {
			return nil, fmt.Errorf("block %d: floating point predictor on %s samples", idx, dt)
		}
		undoFloatingPoint(buf, blk.data, dt, rowBytes, samples, size)
	default:
		return nil, fmt.Errorf("block %d: unsupported predictor %d", idx, d.Predictor)
	}
	return blk, nil
}

func decompress(compression uint16, raw []byte) ([]byte, error) {
	switch compression {
	case compressionNone:
		return raw, nil
	case compressionLZW:
		rc := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer rc.Close()
		out, err := io.ReadAll(rc)
		if err != nil && len(out) == 0 {
			return nil, fmt.Errorf("LZW: %w", err)
		}
		return out, nil
	case compressionDeflate, compressionDeflateAdob:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return out, nil
	case compressionZSTD:
		out, err := zstdDecoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
}

// decodeJPEGBlock decodes a JPEG tile, splicing in the shared JPEGTables
// stream when present.
func decodeJPEGBlock(d *ifd, raw []byte, blk *decodedBlock) error {
	data := raw
	if len(d.JPEGTables) > 0 {
		tables := d.JPEGTables
		if len(tables) >= 2 && tables[len(tables)-2] == 0xFF && tables[len(tables)-1] == 0xD9 {
			tables = tables[:len(tables)-2]
		}
		body := raw
		if len(body) >= 2 && body[0] == 0xFF && body[1] == 0xD8 {
			body = body[2:]
		}
		data = make([]byte, 0, len(tables)+len(body))
		data = append(data, tables...)
		data = append(data, body...)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("JPEG: %w", err)
	}

	blk.data = make([]float64, blk.width*blk.height*blk.samples)
	bounds := img.Bounds()
	for row := 0; row < blk.height && row < bounds.Dy(); row++ {
		for col := 0; col < blk.width && col < bounds.Dx(); col++ {
			r, g, b, _ := img.At(bounds.Min.X+col, bounds.Min.Y+row).RGBA()
			rgb := [3]float64{float64(r >> 8), float64(g >> 8), float64(b >> 8)}
			base := (row*blk.width + col) * blk.samples
			for s := 0; s < blk.samples; s++ {
				blk.data[base+s] = rgb[min(s, 2)]
			}
		}
	}
	return nil
}

func convertSamples(buf []byte, out []float64, dt DataType, bo binary.ByteOrder) {
	for i := range out {
		out[i] = sampleAt(buf, i, dt, bo)
	}
}

func sampleAt(buf []byte, i int, dt DataType, bo binary.ByteOrder) float64 {
	switch dt {
	case Uint8:
		return float64(buf[i])
	case Int8:
		return float64(int8(buf[i]))
	case Uint16:
		return float64(bo.Uint16(buf[i*2:]))
	case Int16:
		return float64(int16(bo.Uint16(buf[i*2:])))
	case Uint32:
		return float64(bo.Uint32(buf[i*4:]))
	case Int32:
		return float64(int32(bo.Uint32(buf[i*4:])))
	case Float32:
		return float64(math.Float32frombits(bo.Uint32(buf[i*4:])))
	default:
		return math.Float64frombits(bo.Uint64(buf[i*8:]))
	}
}

// undoHorizontal reverses predictor 2 in place. Differences accumulate per
// sample channel along each row, in the file's byte order.
func undoHorizontal(buf []byte, bo binary.ByteOrder, rowBytes, samples, size int) error {
	for start := 0; start+rowBytes <= len(buf); start += rowBytes {
		row := buf[start : start+rowBytes]
		n := rowBytes / size
		for i := samples; i < n; i++ {
			p, c := (i-samples)*size, i*size
			switch size {
			case 1:
				row[c] += row[p]
			case 2:
				bo.PutUint16(row[c:], bo.Uint16(row[c:])+bo.Uint16(row[p:]))
			case 4:
				bo.PutUint32(row[c:], bo.Uint32(row[c:])+bo.Uint32(row[p:]))
			case 8:
				bo.PutUint64(row[c:], bo.Uint64(row[c:])+bo.Uint64(row[p:]))
			default:
				return fmt.Errorf("horizontal predictor with %d byte samples", size)
			}
		}
	}
	return nil
}

// undoFloatingPoint reverses predictor 3. Each row is byte-differenced with
// a stride of samples, then split into byte planes ordered most significant
// first.
func undoFloatingPoint(buf []byte, out []float64, dt DataType, rowBytes, samples, size int) {
	count := rowBytes / size
	for r := 0; (r+1)*rowBytes <= len(buf); r++ {
		row := buf[r*rowBytes : (r+1)*rowBytes]
		for i := samples; i < rowBytes; i++ {
			row[i] += row[i-samples]
		}
		for i := 0; i < count; i++ {
			var bits uint64
			for b := 0; b < size; b++ {
				bits = bits<<8 | uint64(row[b*count+i])
			}
			if dt == Float32 {
				out[r*count+i] = float64(math.Float32frombits(uint32(bits)))
			} else {
				out[r*count+i] = math.Float64frombits(bits)
			}
		}
	}
}
