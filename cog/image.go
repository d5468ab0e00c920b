package cog

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/tingold/cogview"
)

// Photometric interpretations
const (
	photometricWhiteIsZero = 0
	photometricBlackIsZero = 1
	photometricRGB         = 2
	photometricPalette     = 3
	photometricYCbCr       = 6
)

// Sample formats
const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// image is the layout of one full resolution or overview IFD.
type image struct {
	ifd         *IFD
	order       binary.ByteOrder
	width       int
	height      int
	samples     int
	bits        int
	format      int
	compression int
	predictor   int
	photometric int
	jpegTables  []byte

	// Chunks are tiles, or full width strips when the image is stripped.
	tiled       bool
	chunkWidth  int
	chunkHeight int
}

func newImage(ifd *IFD, tr *TIFFReader) (*image, error) {
	im := &image{
		ifd:         ifd,
		order:       tr.ByteOrder(),
		width:       int(ifd.Tag(TagImageWidth).Uint(0)),
		height:      int(ifd.Tag(TagImageLength).Uint(0)),
		samples:     int(ifd.Tag(TagSamplesPerPixel).Uint(1)),
		bits:        int(ifd.Tag(TagBitsPerSample).Uint(1)),
		format:      int(ifd.Tag(TagSampleFormat).Uint(sampleUint)),
		compression: int(ifd.Tag(TagCompression).Uint(CompressionNone)),
		predictor:   int(ifd.Tag(TagPredictor).Uint(1)),
	}
	if im.width <= 0 || im.height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", im.width, im.height)
	}
	if im.samples < 1 {
		return nil, fmt.Errorf("invalid samples per pixel %d", im.samples)
	}
	switch im.bits {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("unsupported bits per sample %d", im.bits)
	}
	if im.format == sampleFloat && im.bits < 32 {
		return nil, fmt.Errorf("unsupported %d bit floating point samples", im.bits)
	}
	if planar := ifd.Tag(TagPlanarConfig).Uint(1); planar != 1 && im.samples > 1 {
		return nil, fmt.Errorf("separate sample planes are not supported")
	}

	def := uint64(photometricBlackIsZero)
	if im.samples >= 3 {
		def = photometricRGB
	}
	im.photometric = int(ifd.Tag(TagPhotometric).Uint(def))
	if t := ifd.Tag(TagJPEGTables); t != nil && t.loaded {
		im.jpegTables = t.raw
	}

	if ifd.Tag(TagTileOffsets) != nil {
		im.tiled = true
		im.chunkWidth = int(ifd.Tag(TagTileWidth).Uint(256))
		im.chunkHeight = int(ifd.Tag(TagTileLength).Uint(256))
	} else if ifd.Tag(TagStripOffsets) != nil {
		im.chunkWidth = im.width
		im.chunkHeight = min(int(ifd.Tag(TagRowsPerStrip).Uint(uint64(im.height))), im.height)
	} else {
		return nil, fmt.Errorf("image is neither tiled nor stripped")
	}
	if im.chunkWidth <= 0 || im.chunkHeight <= 0 {
		return nil, fmt.Errorf("invalid chunk size %dx%d", im.chunkWidth, im.chunkHeight)
	}
	return im, nil
}

func (im *image) bytesPerSample() int { return im.bits / 8 }
func (im *image) bytesPerPixel() int  { return im.samples * im.bytesPerSample() }

func (im *image) chunksAcross() int {
	return (im.width + im.chunkWidth - 1) / im.chunkWidth
}

// chunkRows is the number of rows chunk row cy holds. Tiles are padded to
// full size; the last strip may be short.
func (im *image) chunkRows(cy int) int {
	if im.tiled {
		return im.chunkHeight
	}
	return min(im.chunkHeight, im.height-cy*im.chunkHeight)
}

// chunkWork is one tile or strip of a region read.
type chunkWork struct {
	cx, cy     int
	compressed []byte
}

// readRegion returns the pixels of r, pixel interleaved, in the file's byte
// order. Chunk bytes are fetched sequentially and decoded in parallel.
// Sparse chunks read as zero.
func (im *image) readRegion(tr *TIFFReader, r cogview.Rect) ([]byte, error) {
	offTag, countTag := uint16(TagStripOffsets), uint16(TagStripByteCounts)
	if im.tiled {
		offTag, countTag = TagTileOffsets, TagTileByteCounts
	}
	offsets, err := tr.Load(im.ifd, offTag)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk offsets: %w", err)
	}
	counts, err := tr.Load(im.ifd, countTag)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk byte counts: %w", err)
	}
	offs, sizes := offsets.Uints(), counts.Uints()

	bpp := im.bytesPerPixel()
	out := make([]byte, r.Width*r.Height*bpp)

	var work []*chunkWork
	defer func() {
		for _, w := range work {
			if w.compressed != nil {
				chunkPool.Put(w.compressed)
			}
		}
	}()

	across := im.chunksAcross()
	for cy := r.Y / im.chunkHeight; cy <= (r.Y+r.Height-1)/im.chunkHeight; cy++ {
		for cx := r.X / im.chunkWidth; cx <= (r.X+r.Width-1)/im.chunkWidth; cx++ {
			idx := cy*across + cx
			if idx >= len(offs) || idx >= len(sizes) || offs[idx] == 0 || sizes[idx] == 0 {
				continue
			}
			w := &chunkWork{cx: cx, cy: cy, compressed: chunkPool.Get(int(sizes[idx]))}
			work = append(work, w)
			if err := tr.readInto(int64(offs[idx]), w.compressed); err != nil {
				return nil, fmt.Errorf("failed to read chunk %d: %w", idx, err)
			}
		}
	}

	p := pool.New().WithErrors().WithMaxGoroutines(max(1, min(runtime.NumCPU(), len(work))))
	for _, w := range work {
		w := w
		p.Go(func() error {
			data, err := im.decompress(w.compressed, im.chunkWidth, im.chunkRows(w.cy))
			if err != nil {
				return fmt.Errorf("failed to decompress chunk %d,%d: %w", w.cx, w.cy, err)
			}
			im.copyChunk(w, data, out, r)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// copyChunk copies the part of a decoded chunk inside r into out.
func (im *image) copyChunk(w *chunkWork, data, out []byte, r cogview.Rect) {
	bpp := im.bytesPerPixel()
	x0, y0 := w.cx*im.chunkWidth, w.cy*im.chunkHeight
	left, right := max(x0, r.X), min(x0+im.chunkWidth, r.X+r.Width)
	top, bottom := max(y0, r.Y), min(y0+im.chunkRows(w.cy), r.Y+r.Height)
	if left >= right || top >= bottom {
		return
	}
	n := (right - left) * bpp
	for y := top; y < bottom; y++ {
		src := ((y-y0)*im.chunkWidth + (left - x0)) * bpp
		dst := ((y-r.Y)*r.Width + (left - r.X)) * bpp
		if src+n > len(data) {
			return
		}
		copy(out[dst:dst+n], data[src:src+n])
	}
}

// sample decodes the sample at index i of a region as a float64.
func (im *image) sample(region []byte, i int) float64 {
	size := im.bytesPerSample()
	b := region[i*size : (i+1)*size]
	var v float64
	switch im.bits {
	case 8:
		if im.format == sampleInt {
			v = float64(int8(b[0]))
		} else {
			v = float64(b[0])
		}
	case 16:
		u := im.order.Uint16(b)
		if im.format == sampleInt {
			v = float64(int16(u))
		} else {
			v = float64(u)
		}
	case 32:
		u := im.order.Uint32(b)
		switch im.format {
		case sampleFloat:
			return float64(math.Float32frombits(u))
		case sampleInt:
			v = float64(int32(u))
		default:
			v = float64(u)
		}
	case 64:
		u := im.order.Uint64(b)
		switch im.format {
		case sampleFloat:
			return math.Float64frombits(u)
		case sampleInt:
			v = float64(int64(u))
		default:
			v = float64(u)
		}
	}
	if im.photometric == photometricWhiteIsZero && im.format == sampleUint {
		v = math.Exp2(float64(im.bits)) - 1 - v
	}
	return v
}
