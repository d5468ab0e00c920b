package cog

import (
	"bytes"
	"fmt"
	goimage "image"
	"image/jpeg"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"
)

// decompress decodes one chunk of width x rows pixels and undoes the
// horizontal predictor. The result may alias data.
func (im *image) decompress(data []byte, width, rows int) ([]byte, error) {
	expected := width * rows * im.bytesPerPixel()

	var out []byte
	switch im.compression {
	case CompressionNone:
		if len(data) < expected {
			return nil, fmt.Errorf("chunk holds %d bytes, expected %d", len(data), expected)
		}
		out = data[:expected]

	case CompressionLZW:
		// TIFF LZW is MSB first; files from old writers use LSB order.
		var err error
		if out, err = readExactly(lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8), expected); err != nil {
			if out, err = readExactly(lzw.NewReader(bytes.NewReader(data), lzw.LSB, 8), expected); err != nil {
				return nil, fmt.Errorf("failed to decompress LZW chunk: %w", err)
			}
		}

	case CompressionDeflate, CompressionAdobeDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err == nil {
			out, err = readExactly(zr, expected)
		} else {
			// Some writers omit the zlib header.
			out, err = readExactly(flate.NewReader(bytes.NewReader(data)), expected)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decompress Deflate chunk: %w", err)
		}

	case CompressionJPEG:
		var err error
		if out, err = im.decodeJPEG(data, width, rows); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported compression type: %d", im.compression)
	}

	if im.predictor == 2 {
		im.undoPredictor(out, width, rows)
	} else if im.predictor != 1 {
		return nil, fmt.Errorf("unsupported predictor %d", im.predictor)
	}
	return out, nil
}

func readExactly(r io.ReadCloser, n int) ([]byte, error) {
	defer r.Close()
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeJPEG decodes an 8 bit JPEG chunk, prefixing the shared JPEGTables
// stream when the file carries one.
func (im *image) decodeJPEG(data []byte, width, rows int) ([]byte, error) {
	if im.bits != 8 {
		return nil, fmt.Errorf("unsupported %d bit JPEG", im.bits)
	}
	stream := data
	if len(im.jpegTables) > 4 && len(data) > 2 {
		// Tables end with EOI and the chunk starts with SOI; splice them.
		stream = make([]byte, 0, len(im.jpegTables)+len(data))
		stream = append(stream, im.jpegTables[:len(im.jpegTables)-2]...)
		stream = append(stream, data[2:]...)
	}
	img, err := jpeg.Decode(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JPEG chunk: %w", err)
	}

	bpp := im.bytesPerPixel()
	out := make([]byte, width*rows*bpp)
	b := img.Bounds()
	for y := 0; y < rows && y < b.Dy(); y++ {
		for x := 0; x < width && x < b.Dx(); x++ {
			o := (y*width + x) * bpp
			if g, ok := img.(*goimage.Gray); ok {
				v := g.GrayAt(b.Min.X+x, b.Min.Y+y).Y
				for s := 0; s < im.samples; s++ {
					out[o+s] = v
				}
				continue
			}
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := [3]byte{byte(r >> 8), byte(gr >> 8), byte(bl >> 8)}
			for s := 0; s < im.samples; s++ {
				if s < 3 {
					out[o+s] = px[s]
				} else {
					out[o+s] = 255
				}
			}
		}
	}
	return out, nil
}

// undoPredictor reverses horizontal differencing in place.
func (im *image) undoPredictor(data []byte, width, rows int) {
	spp, size := im.samples, im.bytesPerSample()
	rowLen := width * spp
	for y := 0; y < rows; y++ {
		base := y * rowLen
		for i := spp; i < rowLen; i++ {
			cur := (base + i) * size
			prev := (base + i - spp) * size
			switch size {
			case 1:
				data[cur] += data[prev]
			case 2:
				im.order.PutUint16(data[cur:], im.order.Uint16(data[cur:])+im.order.Uint16(data[prev:]))
			case 4:
				im.order.PutUint32(data[cur:], im.order.Uint32(data[cur:])+im.order.Uint32(data[prev:]))
			case 8:
				im.order.PutUint64(data[cur:], im.order.Uint64(data[cur:])+im.order.Uint64(data[prev:]))
			}
		}
	}
}
