package cog

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

// tiffEntry is one IFD entry with its encoded value bytes.
type tiffEntry struct {
	id    uint16
	typ   FieldType
	count uint32
	data  []byte
}

// tiffImage is one directory and the chunks its offsets point at.
type tiffImage struct {
	entries []tiffEntry
	chunks  [][]byte
	tiled   bool
}

// tiffWriter assembles classic TIFF files for tests.
type tiffWriter struct {
	order binary.ByteOrder
}

var le = tiffWriter{order: binary.LittleEndian}

func (w tiffWriter) short(id uint16, v ...uint16) tiffEntry {
	data := make([]byte, 2*len(v))
	for i, x := range v {
		w.order.PutUint16(data[2*i:], x)
	}
	return tiffEntry{id: id, typ: TypeShort, count: uint32(len(v)), data: data}
}

func (w tiffWriter) long(id uint16, v ...uint32) tiffEntry {
	data := make([]byte, 4*len(v))
	for i, x := range v {
		w.order.PutUint32(data[4*i:], x)
	}
	return tiffEntry{id: id, typ: TypeLong, count: uint32(len(v)), data: data}
}

func (w tiffWriter) double(id uint16, v ...float64) tiffEntry {
	data := make([]byte, 8*len(v))
	for i, x := range v {
		w.order.PutUint64(data[8*i:], math.Float64bits(x))
	}
	return tiffEntry{id: id, typ: TypeDouble, count: uint32(len(v)), data: data}
}

func (w tiffWriter) ascii(id uint16, s string) tiffEntry {
	data := append([]byte(s), 0)
	return tiffEntry{id: id, typ: TypeASCII, count: uint32(len(data)), data: data}
}

// build lays out each directory followed by its out-of-line values and its
// chunks, chaining the directories in order.
func (w tiffWriter) build(images ...tiffImage) []byte {
	var buf bytes.Buffer
	if w.order == binary.LittleEndian {
		buf.WriteString("II")
	} else {
		buf.WriteString("MM")
	}
	binary.Write(&buf, w.order, uint16(42))
	binary.Write(&buf, w.order, uint32(8))

	for i, im := range images {
		start := buf.Len()
		nEntries := len(im.entries) + 2
		ifdSize := 2 + 12*nEntries + 4

		overflow := 0
		for _, e := range im.entries {
			if len(e.data) > 4 {
				overflow += len(e.data) + len(e.data)%2
			}
		}
		if n := 4 * len(im.chunks); n > 4 {
			overflow += 2 * n
		}

		pos := start + ifdSize + overflow
		offsets := make([]uint32, len(im.chunks))
		counts := make([]uint32, len(im.chunks))
		for j, c := range im.chunks {
			offsets[j] = uint32(pos)
			counts[j] = uint32(len(c))
			pos += len(c)
		}
		offID, countID := uint16(TagStripOffsets), uint16(TagStripByteCounts)
		if im.tiled {
			offID, countID = TagTileOffsets, TagTileByteCounts
		}
		entries := append(append([]tiffEntry(nil), im.entries...), w.long(offID, offsets...), w.long(countID, counts...))
		sort.Slice(entries, func(a, b int) bool { return entries[a].id < entries[b].id })

		next := uint32(0)
		if i < len(images)-1 {
			next = uint32(pos)
		}

		binary.Write(&buf, w.order, uint16(len(entries)))
		valuePos := start + ifdSize
		var values bytes.Buffer
		for _, e := range entries {
			binary.Write(&buf, w.order, e.id)
			binary.Write(&buf, w.order, uint16(e.typ))
			binary.Write(&buf, w.order, e.count)
			if len(e.data) <= 4 {
				field := make([]byte, 4)
				copy(field, e.data)
				buf.Write(field)
				continue
			}
			binary.Write(&buf, w.order, uint32(valuePos))
			values.Write(e.data)
			if len(e.data)%2 == 1 {
				values.WriteByte(0)
			}
			valuePos += len(e.data) + len(e.data)%2
		}
		binary.Write(&buf, w.order, next)
		buf.Write(values.Bytes())
		for _, c := range im.chunks {
			buf.Write(c)
		}
	}
	return buf.Bytes()
}

// baseEntries are the tags every test image carries.
func (w tiffWriter) baseEntries(width, height, samples, bits int) []tiffEntry {
	bps := make([]uint16, samples)
	for i := range bps {
		bps[i] = uint16(bits)
	}
	photometric := uint16(photometricBlackIsZero)
	if samples >= 3 {
		photometric = photometricRGB
	}
	return []tiffEntry{
		w.long(TagImageWidth, uint32(width)),
		w.long(TagImageLength, uint32(height)),
		w.short(TagBitsPerSample, bps...),
		w.short(TagPhotometric, photometric),
		w.short(TagSamplesPerPixel, uint16(samples)),
	}
}

// georef places the top-left corner at (x0, y0) with square pixels.
func (w tiffWriter) georef(x0, y0, pixel float64) []tiffEntry {
	return []tiffEntry{
		w.double(TagModelPixelScale, pixel, pixel, 0),
		w.double(TagModelTiepoint, 0, 0, 0, x0, y0, 0),
	}
}

// strippedGray is a single strip 8 bit image.
func (w tiffWriter) strippedGray(width, height int, pixels []byte, extra ...tiffEntry) tiffImage {
	entries := append(w.baseEntries(width, height, 1, 8), w.long(TagRowsPerStrip, uint32(height)))
	return tiffImage{entries: append(entries, extra...), chunks: [][]byte{pixels}}
}

// ramp returns width x height bytes holding y*width+x.
func ramp(width, height int) []byte {
	out := make([]byte, width*height)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

// tiles cuts a width x height 8 bit single band image into tile x tile
// chunks, padding edge tiles with zero.
func tiles(pixels []byte, width, height, tile int, compress func([]byte) []byte) [][]byte {
	var out [][]byte
	for ty := 0; ty < (height+tile-1)/tile; ty++ {
		for tx := 0; tx < (width+tile-1)/tile; tx++ {
			t := make([]byte, tile*tile)
			for y := 0; y < tile; y++ {
				for x := 0; x < tile; x++ {
					sx, sy := tx*tile+x, ty*tile+y
					if sx < width && sy < height {
						t[y*tile+x] = pixels[sy*width+sx]
					}
				}
			}
			if compress != nil {
				t = compress(t)
			}
			out = append(out, t)
		}
	}
	return out
}

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}

// writeFile stores data in a temporary .tif and returns its path.
func writeFile(t testing.TB, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tif")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
