package cog

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
)

// TIFF constants
const (
	tiffMagicLE = 0x4949 // "II" little-endian
	tiffMagicBE = 0x4D4D // "MM" big-endian
	tiffVersion = 42
	bigTIFF     = 43
)

// Compression types
const (
	CompressionNone         = 1
	CompressionLZW          = 5
	CompressionJPEG         = 6
	CompressionDeflate      = 8
	CompressionAdobeDeflate = 32946
)

// Tag IDs read by the reader.
const (
	TagNewSubfileType  = 254
	TagImageWidth      = 256
	TagImageLength     = 257
	TagBitsPerSample   = 258
	TagCompression     = 259
	TagPhotometric     = 262
	TagStripOffsets    = 273
	TagSamplesPerPixel = 277
	TagRowsPerStrip    = 278
	TagStripByteCounts = 279
	TagPlanarConfig    = 284
	TagPredictor       = 317
	TagColorMap        = 320
	TagTileWidth       = 322
	TagTileLength      = 323
	TagTileOffsets     = 324
	TagTileByteCounts  = 325
	TagSampleFormat    = 339
	TagJPEGTables      = 347
	TagGDALMetadata    = 42112
	TagGDALNoData      = 42113
)

// NewSubfileType bits
const (
	subfileReduced = 1
	subfileMask    = 4
)

// FieldType is the TIFF type of a tag's values.
type FieldType uint16

const (
	TypeByte      FieldType = 1
	TypeASCII     FieldType = 2
	TypeShort     FieldType = 3
	TypeLong      FieldType = 4
	TypeRational  FieldType = 5
	TypeSByte     FieldType = 6
	TypeUndefined FieldType = 7
	TypeSShort    FieldType = 8
	TypeSLong     FieldType = 9
	TypeSRational FieldType = 10
	TypeFloat     FieldType = 11
	TypeDouble    FieldType = 12
)

// Size returns the width of one value in bytes.
func (t FieldType) Size() int {
	switch t {
	case TypeShort, TypeSShort:
		return 2
	case TypeLong, TypeSLong, TypeFloat:
		return 4
	case TypeRational, TypeSRational, TypeDouble:
		return 8
	default:
		return 1
	}
}

// Tag is one IFD entry. Its raw value bytes are loaded either while the
// directory is parsed or on first use.
type Tag struct {
	ID     uint16
	Type   FieldType
	Count  uint32
	Offset uint32

	raw    []byte
	loaded bool
	order  binary.ByteOrder
}

func (t *Tag) byteLen() int {
	return t.Type.Size() * int(t.Count)
}

// Uints decodes integer tags. Float and rational tags are truncated.
func (t *Tag) Uints() []uint64 {
	f := t.Floats()
	out := make([]uint64, len(f))
	for i, v := range f {
		if v > 0 {
			out[i] = uint64(v)
		}
	}
	return out
}

// Uint returns the first value of an integer tag, or def when the tag is
// empty.
func (t *Tag) Uint(def uint64) uint64 {
	if t == nil {
		return def
	}
	v := t.Uints()
	if len(v) == 0 {
		return def
	}
	return v[0]
}

// Floats decodes any numeric tag into float64 values.
func (t *Tag) Floats() []float64 {
	if t == nil || !t.loaded {
		return nil
	}
	size := t.Type.Size()
	n := len(t.raw) / size
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		b := t.raw[i*size : (i+1)*size]
		switch t.Type {
		case TypeByte, TypeUndefined:
			out = append(out, float64(b[0]))
		case TypeSByte:
			out = append(out, float64(int8(b[0])))
		case TypeShort:
			out = append(out, float64(t.order.Uint16(b)))
		case TypeSShort:
			out = append(out, float64(int16(t.order.Uint16(b))))
		case TypeLong:
			out = append(out, float64(t.order.Uint32(b)))
		case TypeSLong:
			out = append(out, float64(int32(t.order.Uint32(b))))
		case TypeFloat:
			out = append(out, float64(math.Float32frombits(t.order.Uint32(b))))
		case TypeDouble:
			out = append(out, math.Float64frombits(t.order.Uint64(b)))
		case TypeRational:
			num, den := t.order.Uint32(b[:4]), t.order.Uint32(b[4:])
			if den == 0 {
				out = append(out, 0)
			} else {
				out = append(out, float64(num)/float64(den))
			}
		case TypeSRational:
			num, den := int32(t.order.Uint32(b[:4])), int32(t.order.Uint32(b[4:]))
			if den == 0 {
				out = append(out, 0)
			} else {
				out = append(out, float64(num)/float64(den))
			}
		default:
			return nil
		}
	}
	return out
}

// String decodes an ASCII tag, dropping the NUL terminator.
func (t *Tag) String() string {
	if t == nil || !t.loaded {
		return ""
	}
	b := t.raw
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// IFD represents an Image File Directory
type IFD struct {
	Tags    map[uint16]*Tag
	NextIFD uint32
	Offset  uint32
}

// Tag returns the entry with the given ID or nil.
func (ifd *IFD) Tag(id uint16) *Tag {
	return ifd.Tags[id]
}

// TIFFReader parses the directory chain of a classic TIFF. Reads through the
// underlying reader are serialized so that one reader can back concurrent
// band reads.
type TIFFReader struct {
	mu        sync.Mutex
	r         io.ReadSeeker
	byteOrder binary.ByteOrder
	ifds      []*IFD

	loadMu sync.Mutex // guards lazy tag values
}

// Large per-chunk arrays are loaded on demand; everything else is read from
// a single metadata buffer when possible.
var lazyTags = map[uint16]bool{
	TagStripOffsets:    true,
	TagStripByteCounts: true,
	TagTileOffsets:     true,
	TagTileByteCounts:  true,
}

const metadataBufferSize = 16 * 1024

// NewTIFFReader reads the header and every IFD of r.
func NewTIFFReader(r io.ReadSeeker) (*TIFFReader, error) {
	tr := &TIFFReader{r: r}

	header := make([]byte, 8)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to TIFF header: %w", err)
	}
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read TIFF header: %w", err)
	}

	switch binary.LittleEndian.Uint16(header[0:2]) {
	case tiffMagicLE:
		tr.byteOrder = binary.LittleEndian
	case tiffMagicBE:
		tr.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("invalid TIFF magic: 0x%04x", binary.LittleEndian.Uint16(header[0:2]))
	}

	switch version := tr.byteOrder.Uint16(header[2:4]); version {
	case tiffVersion:
	case bigTIFF:
		return nil, fmt.Errorf("BigTIFF files are not supported")
	default:
		return nil, fmt.Errorf("invalid TIFF version: %d", version)
	}

	seen := make(map[uint32]bool)
	for offset := tr.byteOrder.Uint32(header[4:8]); offset != 0; {
		if seen[offset] {
			return nil, fmt.Errorf("IFD chain loops at offset %d", offset)
		}
		seen[offset] = true
		ifd, err := tr.readIFD(offset)
		if err != nil {
			return nil, fmt.Errorf("failed to read IFD %d: %w", len(tr.ifds), err)
		}
		tr.ifds = append(tr.ifds, ifd)
		offset = ifd.NextIFD
	}
	if len(tr.ifds) == 0 {
		return nil, fmt.Errorf("TIFF has no image directories")
	}
	return tr, nil
}

// readIFD reads one directory, fetching a 16K block at its offset so that
// most out-of-line tag values arrive in the same read.
func (tr *TIFFReader) readIFD(offset uint32) (*IFD, error) {
	buf, err := tr.readAt(int64(offset), metadataBufferSize, true)
	if err != nil {
		return nil, err
	}
	if len(buf) < 2 {
		return nil, fmt.Errorf("truncated IFD at offset %d", offset)
	}
	count := int(tr.byteOrder.Uint16(buf[0:2]))
	size := 2 + count*12 + 4
	if len(buf) < size {
		if buf, err = tr.readAt(int64(offset), size, false); err != nil {
			return nil, err
		}
	}

	ifd := &IFD{Tags: make(map[uint16]*Tag, count), Offset: offset}
	for i := 0; i < count; i++ {
		e := buf[2+i*12 : 2+(i+1)*12]
		tag := &Tag{
			ID:     tr.byteOrder.Uint16(e[0:2]),
			Type:   FieldType(tr.byteOrder.Uint16(e[2:4])),
			Count:  tr.byteOrder.Uint32(e[4:8]),
			Offset: tr.byteOrder.Uint32(e[8:12]),
			order:  tr.byteOrder,
		}
		switch n := tag.byteLen(); {
		case n <= 4:
			tag.raw = append([]byte(nil), e[8:8+n]...)
			tag.loaded = true
		case lazyTags[tag.ID]:
		default:
			start := int64(tag.Offset) - int64(offset)
			if start >= 0 && start+int64(n) <= int64(len(buf)) {
				tag.raw = append([]byte(nil), buf[start:start+int64(n)]...)
				tag.loaded = true
			}
		}
		ifd.Tags[tag.ID] = tag
	}
	ifd.NextIFD = tr.byteOrder.Uint32(buf[size-4 : size])

	for _, tag := range ifd.Tags {
		if !tag.loaded && !lazyTags[tag.ID] {
			if err := tr.load(tag); err != nil {
				return nil, fmt.Errorf("failed to read tag %d: %w", tag.ID, err)
			}
		}
	}
	return ifd, nil
}

// Load makes sure the value of tag id in ifd is available.
func (tr *TIFFReader) Load(ifd *IFD, id uint16) (*Tag, error) {
	tag := ifd.Tags[id]
	if tag == nil {
		return nil, fmt.Errorf("tag %d not found", id)
	}
	tr.loadMu.Lock()
	defer tr.loadMu.Unlock()
	if !tag.loaded {
		if err := tr.load(tag); err != nil {
			return nil, err
		}
	}
	return tag, nil
}

func (tr *TIFFReader) load(tag *Tag) error {
	raw, err := tr.readAt(int64(tag.Offset), tag.byteLen(), false)
	if err != nil {
		return err
	}
	tag.raw = raw
	tag.loaded = true
	return nil
}

// readAt reads n bytes at off. With short set, a read cut off by the end of
// the file is not an error.
func (tr *TIFFReader) readAt(off int64, n int, short bool) ([]byte, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, err := tr.r.Seek(off, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to %d: %w", off, err)
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(tr.r, buf)
	if err != nil {
		if short && (err == io.ErrUnexpectedEOF || err == io.EOF) {
			return buf[:got], nil
		}
		return nil, fmt.Errorf("failed to read %d bytes at %d: %w", n, off, err)
	}
	return buf, nil
}

// readInto fills dst from off, serialized with other reads.
func (tr *TIFFReader) readInto(off int64, dst []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, err := tr.r.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to %d: %w", off, err)
	}
	if _, err := io.ReadFull(tr.r, dst); err != nil {
		return fmt.Errorf("failed to read %d bytes at %d: %w", len(dst), off, err)
	}
	return nil
}

// ByteOrder returns the file's byte order.
func (tr *TIFFReader) ByteOrder() binary.ByteOrder {
	return tr.byteOrder
}

// GetIFD returns the IFD at the specified index (0 = main image)
func (tr *TIFFReader) GetIFD(index int) *IFD {
	if index < 0 || index >= len(tr.ifds) {
		return nil
	}
	return tr.ifds[index]
}

// IFDCount returns the number of IFDs, masks included.
func (tr *TIFFReader) IFDCount() int {
	return len(tr.ifds)
}
