package cog

import (
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/tingold/cogview"
)

// rangeServer serves files from memory, honouring single byte ranges unless
// ignoreRange is set.
type rangeServer struct {
	files       map[string][]byte
	ignoreRange bool
	requests    atomic.Int32
}

func (s *rangeServer) handle(ctx *fasthttp.RequestCtx) {
	s.requests.Add(1)
	data, ok := s.files[string(ctx.Path())]
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	rng := string(ctx.Request.Header.Peek("Range"))
	if s.ignoreRange || rng == "" || ctx.IsHead() {
		ctx.SetBody(data)
		return
	}
	spec := strings.TrimPrefix(rng, "bytes=")
	from, to, _ := strings.Cut(spec, "-")
	start, _ := strconv.Atoi(from)
	end, _ := strconv.Atoi(to)
	if start >= len(data) {
		ctx.SetStatusCode(fasthttp.StatusRequestedRangeNotSatisfiable)
		return
	}
	end = min(end, len(data)-1)
	ctx.SetStatusCode(fasthttp.StatusPartialContent)
	ctx.SetBody(data[start : end+1])
}

// serve starts s on an in-memory listener and returns a client dialling it.
func serve(t *testing.T, s *rangeServer) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go fasthttp.Serve(ln, s.handle)
	t.Cleanup(func() { ln.Close() })
	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
}

func TestRangeReader(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	srv := &rangeServer{files: map[string][]byte{"/f": data}}
	client := serve(t, srv)

	rr, err := NewRangeReader("http://example.test/f", client)
	require.NoError(t, err)
	defer rr.Close()
	rr.SetReadAheadSize(8)

	buf := make([]byte, 4)
	_, err = io.ReadFull(rr, buf)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(buf))

	before := srv.requests.Load()
	_, err = io.ReadFull(rr, buf)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(buf))
	assert.Equal(t, before, srv.requests.Load(), "served from the read-ahead window")

	_, err = rr.Seek(16, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(rr)
	require.NoError(t, err)
	assert.Equal(t, "ghij", string(rest))

	_, err = rr.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestRangeReaderIgnoredRange(t *testing.T) {
	data := []byte("0123456789")
	client := serve(t, &rangeServer{files: map[string][]byte{"/f": data}, ignoreRange: true})

	rr, err := NewRangeReader("http://example.test/f", client)
	require.NoError(t, err)
	rr.SetReadAheadSize(2)

	_, err = rr.Seek(5, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = io.ReadFull(rr, buf)
	require.NoError(t, err)
	assert.Equal(t, "567", string(buf))
}

func TestRangeReaderMissing(t *testing.T) {
	client := serve(t, &rangeServer{files: map[string][]byte{}})
	_, err := NewRangeReader("http://example.test/missing.tif", client)
	assert.ErrorContains(t, err, "404")
}

func TestOpenURL(t *testing.T) {
	data := le.build(le.strippedGray(4, 3, ramp(4, 3), le.georef(100, 200, 10)...))
	srv := &rangeServer{files: map[string][]byte{"/img.tif": data}}
	client := serve(t, srv)

	ds, err := Open("http://example.test/img.tif", client)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, cogview.Size{Width: 4, Height: 3}, ds.Size())
	gt, ok := ds.Geotransform()
	require.True(t, ok)
	assert.Equal(t, 100.0, gt[0])

	dst := make([]float64, 12)
	require.NoError(t, ds.Band(1).Read(cogview.FullResolution(), cogview.Rect{Width: 4, Height: 3}, dst, 4, 3, 4))
	assert.Equal(t, 11.0, dst[11])
}

func TestOpenURLWithSidecar(t *testing.T) {
	data := le.build(le.strippedGray(2, 1, []byte{1, 2}))
	sidecar := `<PAMDataset><PAMRasterBand band="1"><Metadata><MDI key="STATISTICS_MAXIMUM">2</MDI></Metadata></PAMRasterBand></PAMDataset>`
	client := serve(t, &rangeServer{files: map[string][]byte{
		"/img.tif":         data,
		"/img.tif.aux.xml": []byte(sidecar),
	}})

	ds, err := Open("http://example.test/img.tif", client)
	require.NoError(t, err)
	v, ok := ds.Band(1).Metadata(cogview.KeyMaximum)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}
