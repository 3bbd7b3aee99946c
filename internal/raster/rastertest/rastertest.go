// Package rastertest writes small GeoTIFF fixtures for tests.
package rastertest

import (
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	tifflzw "golang.org/x/image/tiff/lzw"
)

// SampleType is the on-disk sample encoding.
type SampleType int

const (
	Uint8 SampleType = iota
	Int16
	Uint16
	Float32
	Float64
)

func (t SampleType) bits() int {
	switch t {
	case Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Float32:
		return 32
	default:
		return 64
	}
}

func (t SampleType) format() int {
	switch t {
	case Int16:
		return 2
	case Float32, Float64:
		return 3
	default:
		return 1
	}
}

// Compression schemes the writer can produce.
type Compression int

const (
	None    Compression = 1
	LZW     Compression = 5
	JPEG    Compression = 7
	Deflate Compression = 8
	ZSTD    Compression = 50000
)

// PixelFunc returns the value of one sample.
type PixelFunc func(band, col, row int) float64

// Image describes a fixture. Zero values give an 8-bit, uncompressed,
// stripped, little-endian classic TIFF without georeferencing.
type Image struct {
	Width, Height, Bands int
	Type                 SampleType
	Pixel                PixelFunc

	// TileSize > 0 writes square tiles; otherwise strips of RowsPerStrip
	// rows (default: the full height).
	TileSize     int
	RowsPerStrip int
	Planar       bool
	Compression  Compression
	// Predictor 2 supports 8 and 16-bit samples, predictor 3 floats.
	Predictor int
	// JPEGTables moves the quantization and Huffman tables of JPEG blocks
	// into a shared JPEGTables tag. JPEG needs 8-bit chunky data with 1 or
	// 3 bands.
	JPEGTables bool
	BigEndian    bool
	BigTIFF      bool

	// Origin and PixelSize write ModelTiepoint and ModelPixelScale when
	// PixelSize is non-zero. Transformation, when set, writes the 4x4
	// ModelTransformation matrix instead.
	Origin         [2]float64
	PixelSize      [2]float64
	Transformation []float64
	PixelIsPoint   bool
	EPSG           int

	NoData string

	// Overviews lists decimation factors written as reduced-resolution IFDs.
	Overviews []int

	// Sparse lists block indices of IFD 0 written with a zero byte count.
	Sparse []int
}

// Write encodes img into dir and returns the file path.
func Write(tb testing.TB, dir, name string, img Image) string {
	tb.Helper()
	data, err := Encode(img)
	if err != nil {
		tb.Fatalf("encoding fixture %s: %v", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

// WriteWorldFile writes a six-line world file next to a fixture.
func WriteWorldFile(tb testing.TB, path string, a, d, b, e, c, f float64) {
	tb.Helper()
	content := fmt.Sprintf("%f\n%f\n%f\n%f\n%f\n%f\n", a, d, b, e, c, f)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("writing world file %s: %v", path, err)
	}
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	value []byte
}

type encoder struct {
	img    Image
	order  binary.ByteOrder
	buf    bytes.Buffer
	tables []byte
}

// Encode returns the bytes of the GeoTIFF described by img.
func Encode(img Image) ([]byte, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", img.Width, img.Height)
	}
	if img.Bands == 0 {
		img.Bands = 1
	}
	if img.Compression == 0 {
		img.Compression = None
	}
	if img.Predictor == 0 {
		img.Predictor = 1
	}
	if img.Pixel == nil {
		img.Pixel = func(int, int, int) float64 { return 0 }
	}

	e := &encoder{img: img, order: binary.LittleEndian}
	if img.BigEndian {
		e.order = binary.BigEndian
		e.buf.WriteString("MM")
	} else {
		e.buf.WriteString("II")
	}

	var nextPtr int
	if img.BigTIFF {
		e.put16(43)
		e.put16(8)
		e.put16(0)
		nextPtr = e.buf.Len()
		e.put64(0)
	} else {
		e.put16(42)
		nextPtr = e.buf.Len()
		e.put32(0)
	}

	levels := append([]int{1}, img.Overviews...)
	for i, factor := range levels {
		w := (img.Width + factor - 1) / factor
		h := (img.Height + factor - 1) / factor
		pixel := func(band, col, row int) float64 {
			return img.Pixel(band, min(col*factor, img.Width-1), min(row*factor, img.Height-1))
		}
		ptr, err := e.writeLevel(w, h, pixel, i, nextPtr)
		if err != nil {
			return nil, err
		}
		nextPtr = ptr
	}
	return e.buf.Bytes(), nil
}

func (e *encoder) put16(v uint16) {
	var b [2]byte
	e.order.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) put32(v uint32) {
	var b [4]byte
	e.order.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) put64(v uint64) {
	var b [8]byte
	e.order.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// patch writes an offset at a previously reserved position.
func (e *encoder) patch(at int, v uint64) {
	b := e.buf.Bytes()
	if e.img.BigTIFF {
		e.order.PutUint64(b[at:], v)
	} else {
		e.order.PutUint32(b[at:], uint32(v))
	}
}

// writeLevel writes the blocks and IFD of one resolution level and returns
// the position of its next-IFD pointer.
func (e *encoder) writeLevel(w, h int, pixel PixelFunc, index, prevPtr int) (int, error) {
	img := e.img
	bw, bh := w, img.RowsPerStrip
	if img.TileSize > 0 {
		bw, bh = img.TileSize, img.TileSize
	}
	if bh <= 0 || bh > h && img.TileSize == 0 {
		bh = h
	}
	across := (w + bw - 1) / bw
	down := (h + bh - 1) / bh
	planes, planarConfig := 1, uint64(1)
	if img.Planar {
		planes, planarConfig = img.Bands, 2
	}

	sparse := map[int]bool{}
	if index == 0 {
		for _, s := range img.Sparse {
			sparse[s] = true
		}
	}

	var offsets, counts []uint64
	for p := 0; p < planes; p++ {
		for by := 0; by < down; by++ {
			for bx := 0; bx < across; bx++ {
				idx := len(offsets)
				if sparse[idx] {
					offsets = append(offsets, 0)
					counts = append(counts, 0)
					continue
				}
				rows := bh
				if img.TileSize == 0 && (by+1)*bh > h {
					rows = h - by*bh
				}
				raw := e.encodeBlock(pixel, w, h, p, bx*bw, by*bh, bw, rows)
				data, err := e.compress(raw, bw, rows)
				if err != nil {
					return 0, err
				}
				offsets = append(offsets, uint64(e.buf.Len()))
				counts = append(counts, uint64(len(data)))
				e.buf.Write(data)
			}
		}
	}
	if e.buf.Len()%2 == 1 {
		e.buf.WriteByte(0)
	}

	spp := img.Bands
	bits := make([]uint64, spp)
	formats := make([]uint64, spp)
	for i := range bits {
		bits[i] = uint64(img.Type.bits())
		formats[i] = uint64(img.Type.format())
	}

	entries := []entry{
		e.shorts(256, uint64(w)),
		e.shorts(257, uint64(h)),
		e.shorts(258, bits...),
		e.shorts(259, uint64(img.Compression)),
		e.shorts(262, photometric(spp)),
		e.shorts(277, uint64(spp)),
		e.shorts(284, planarConfig),
		e.shorts(339, formats...),
	}
	if img.Predictor != 1 {
		entries = append(entries, e.shorts(317, uint64(img.Predictor)))
	}
	if index > 0 {
		entries = append(entries, e.longs(254, 1))
	}
	if len(e.tables) > 0 {
		entries = append(entries, entry{tag: 347, typ: 7, count: uint64(len(e.tables)), value: e.tables})
	}
	if img.TileSize > 0 {
		entries = append(entries,
			e.shorts(322, uint64(bw)),
			e.shorts(323, uint64(bh)),
			e.offsets(324, offsets),
			e.offsets(325, counts),
		)
	} else {
		entries = append(entries,
			e.offsets(273, offsets),
			e.longs(278, uint64(bh)),
			e.offsets(279, counts),
		)
	}
	if index == 0 {
		entries = append(entries, e.geoEntries()...)
		if img.NoData != "" {
			entries = append(entries, ascii(42113, img.NoData))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	return e.writeIFD(entries, prevPtr), nil
}

func photometric(spp int) uint64 {
	if spp >= 3 {
		return 2
	}
	return 1
}

func (e *encoder) geoEntries() []entry {
	img := e.img
	var out []entry
	switch {
	case len(img.Transformation) == 16:
		out = append(out, e.doubles(34264, img.Transformation...))
	case img.PixelSize != [2]float64{}:
		out = append(out,
			e.doubles(33550, img.PixelSize[0], img.PixelSize[1], 0),
			e.doubles(33922, 0, 0, 0, img.Origin[0], img.Origin[1], 0),
		)
	default:
		return nil
	}

	keys := [][4]uint64{{1024, 0, 1, 1}}
	if img.PixelIsPoint {
		keys = append(keys, [4]uint64{1025, 0, 1, 2})
	} else {
		keys = append(keys, [4]uint64{1025, 0, 1, 1})
	}
	if img.EPSG != 0 {
		keys = append(keys, [4]uint64{3072, 0, 1, uint64(img.EPSG)})
	}
	dir := []uint64{1, 1, 0, uint64(len(keys))}
	for _, k := range keys {
		dir = append(dir, k[:]...)
	}
	out = append(out, e.shorts(34735, dir...))
	return out
}

func (e *encoder) shorts(tag uint16, vals ...uint64) entry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		e.order.PutUint16(b[i*2:], uint16(v))
	}
	return entry{tag: tag, typ: 3, count: uint64(len(vals)), value: b}
}

func (e *encoder) longs(tag uint16, vals ...uint64) entry {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		e.order.PutUint32(b[i*4:], uint32(v))
	}
	return entry{tag: tag, typ: 4, count: uint64(len(vals)), value: b}
}

func (e *encoder) offsets(tag uint16, vals []uint64) entry {
	if !e.img.BigTIFF {
		return e.longs(tag, vals...)
	}
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		e.order.PutUint64(b[i*8:], v)
	}
	return entry{tag: tag, typ: 16, count: uint64(len(vals)), value: b}
}

func (e *encoder) doubles(tag uint16, vals ...float64) entry {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		e.order.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: 12, count: uint64(len(vals)), value: b}
}

func ascii(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: 2, count: uint64(len(b)), value: b}
}

// writeIFD appends the directory and its out-of-line values, links it from
// prevPtr and returns the position of its own next pointer.
func (e *encoder) writeIFD(entries []entry, prevPtr int) int {
	countSize, entrySize, inline := 2, 12, 4
	if e.img.BigTIFF {
		countSize, entrySize, inline = 8, 20, 8
	}

	start := e.buf.Len()
	e.patch(prevPtr, uint64(start))

	extra := start + countSize + len(entries)*entrySize + inline
	var blobs [][]byte
	if e.img.BigTIFF {
		e.put64(uint64(len(entries)))
	} else {
		e.put16(uint16(len(entries)))
	}
	for _, en := range entries {
		e.put16(en.tag)
		e.put16(en.typ)
		if e.img.BigTIFF {
			e.put64(en.count)
		} else {
			e.put32(uint32(en.count))
		}
		if len(en.value) <= inline {
			pad := make([]byte, inline)
			copy(pad, en.value)
			e.buf.Write(pad)
			continue
		}
		if e.img.BigTIFF {
			e.put64(uint64(extra))
		} else {
			e.put32(uint32(extra))
		}
		blob := en.value
		if len(blob)%2 == 1 {
			blob = append(blob, 0)
		}
		blobs = append(blobs, blob)
		extra += len(blob)
	}

	next := e.buf.Len()
	if e.img.BigTIFF {
		e.put64(0)
	} else {
		e.put32(0)
	}
	for _, b := range blobs {
		e.buf.Write(b)
	}
	return next
}

// encodeBlock serializes one block; pixels beyond the image are zero.
func (e *encoder) encodeBlock(pixel PixelFunc, w, h, plane, x0, y0, bw, bh int) []byte {
	img := e.img
	spp := img.Bands
	bands := []int{}
	if img.Planar {
		spp = 1
		bands = append(bands, plane)
	} else {
		for b := 0; b < img.Bands; b++ {
			bands = append(bands, b)
		}
	}

	size := img.Type.bits() / 8
	rowBytes := bw * spp * size
	out := make([]byte, rowBytes*bh)
	for r := 0; r < bh; r++ {
		for c := 0; c < bw; c++ {
			col, row := x0+c, y0+r
			if col >= w || row >= h {
				continue
			}
			for s, band := range bands {
				at := r*rowBytes + (c*spp+s)*size
				e.putSample(out[at:], pixel(band, col, row))
			}
		}
	}

	switch img.Predictor {
	case 3:
		floatPredict(out, e.order, rowBytes, spp, size)
	case 2:
		for r := 0; r < bh; r++ {
			row := out[r*rowBytes : (r+1)*rowBytes]
			n := rowBytes / size
			for i := n - 1; i >= spp; i-- {
				p, c := (i-spp)*size, i*size
				switch size {
				case 1:
					row[c] -= row[p]
				case 2:
					e.order.PutUint16(row[c:], e.order.Uint16(row[c:])-e.order.Uint16(row[p:]))
				}
			}
		}
	}
	return out
}

// floatPredict applies predictor 3 in place: each row is split into byte
// planes, most significant first, then byte-differenced with a stride of
// spp.
func floatPredict(buf []byte, order binary.ByteOrder, rowBytes, spp, size int) {
	count := rowBytes / size
	planes := make([]byte, rowBytes)
	for r := 0; (r+1)*rowBytes <= len(buf); r++ {
		row := buf[r*rowBytes : (r+1)*rowBytes]
		for i := 0; i < count; i++ {
			var bits uint64
			if size == 4 {
				bits = uint64(order.Uint32(row[i*4:]))
			} else {
				bits = order.Uint64(row[i*8:])
			}
			for b := 0; b < size; b++ {
				planes[b*count+i] = byte(bits >> (8 * (size - 1 - b)))
			}
		}
		copy(row, planes)
		for i := rowBytes - 1; i >= spp; i-- {
			row[i] -= row[i-spp]
		}
	}
}

func (e *encoder) putSample(b []byte, v float64) {
	switch e.img.Type {
	case Uint8:
		b[0] = uint8(v)
	case Int16:
		e.order.PutUint16(b, uint16(int16(v)))
	case Uint16:
		e.order.PutUint16(b, uint16(v))
	case Float32:
		e.order.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		e.order.PutUint64(b, math.Float64bits(v))
	}
}

func (e *encoder) compress(raw []byte, bw, bh int) ([]byte, error) {
	switch e.img.Compression {
	case None:
		return raw, nil
	case LZW:
		return encodeLZW(raw)
	case JPEG:
		return e.encodeJPEG(raw, bw, bh)
	case Deflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case ZSTD:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	default:
		return nil, fmt.Errorf("unsupported fixture compression %d", e.img.Compression)
	}
}

// encodeLZW compresses with compress/lzw, whose code width grows one code
// later than the TIFF variant. The streams agree until the table nears 512
// entries, so the result is checked against the TIFF decoder.
func encodeLZW(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lzw.NewWriter(&buf, lzw.MSB, 8)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	zr := tifflzw.NewReader(bytes.NewReader(buf.Bytes()), tifflzw.MSB, 8)
	defer zr.Close()
	back, err := io.ReadAll(zr)
	if err != nil || !bytes.Equal(back, raw) {
		return nil, fmt.Errorf("LZW block of %d bytes is too large for a fixture", len(raw))
	}
	return buf.Bytes(), nil
}

// encodeJPEG encodes one chunky 8-bit block at quality 100. With
// JPEGTables set, the DQT and DHT segments are kept once in e.tables and
// stripped from the block.
func (e *encoder) encodeJPEG(raw []byte, bw, bh int) ([]byte, error) {
	img := e.img
	if img.Type != Uint8 || img.Planar || (img.Bands != 1 && img.Bands != 3) {
		return nil, fmt.Errorf("JPEG fixtures need 8-bit chunky data with 1 or 3 bands")
	}

	var src image.Image
	if img.Bands == 1 {
		gray := image.NewGray(image.Rect(0, 0, bw, bh))
		copy(gray.Pix, raw)
		src = gray
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, bw, bh))
		for i := 0; i < bw*bh; i++ {
			copy(rgba.Pix[i*4:i*4+3], raw[i*3:i*3+3])
			rgba.Pix[i*4+3] = 0xFF
		}
		src = rgba
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(100)); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	if !img.JPEGTables {
		return data, nil
	}

	tables := []byte{0xFF, 0xD8}
	body := []byte{0xFF, 0xD8}
	pos := 2
	for pos+4 <= len(data) && data[pos] == 0xFF && data[pos+1] != 0xDA {
		n := 2 + int(binary.BigEndian.Uint16(data[pos+2:]))
		seg := data[pos : pos+n]
		if data[pos+1] == 0xDB || data[pos+1] == 0xC4 {
			tables = append(tables, seg...)
		} else {
			body = append(body, seg...)
		}
		pos += n
	}
	body = append(body, data[pos:]...)
	if e.tables == nil {
		e.tables = append(tables, 0xFF, 0xD9)
	}
	return body, nil
}
