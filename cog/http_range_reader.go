package cog

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// Default read-ahead buffer size (64KB) for sequential access optimization
const defaultReadAheadSize = 64 * 1024

// DefaultClient is used when Open is given a nil client.
var DefaultClient = &fasthttp.Client{
	ReadTimeout:  30 * time.Second,
	WriteTimeout: 30 * time.Second,
}

func isURL(name string) bool {
	return strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")
}

// RangeReader is an io.ReadSeeker over HTTP range requests. Reads are
// served from a read-ahead window so that walking a directory or a run of
// adjacent tiles costs one request.
type RangeReader struct {
	url    string
	client *fasthttp.Client
	size   int64

	mu        sync.Mutex
	pos       int64
	buf       []byte
	bufStart  int64
	readAhead int
}

// NewRangeReader issues a HEAD request for the size of url.
func NewRangeReader(url string, client *fasthttp.Client) (*RangeReader, error) {
	if client == nil {
		client = DefaultClient
	}
	rr := &RangeReader{url: url, client: client, readAhead: defaultReadAheadSize, bufStart: -1}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodHead)
	if err := client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", url, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("failed to stat %s: status %d", url, resp.StatusCode())
	}
	rr.size = -1
	if n := resp.Header.ContentLength(); n >= 0 {
		rr.size = int64(n)
	}
	return rr, nil
}

// SetReadAheadSize sets the minimum number of bytes fetched per request.
func (rr *RangeReader) SetReadAheadSize(size int) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if size > 0 {
		rr.readAhead = size
	}
}

// Size returns the file size, or -1 if unknown
func (rr *RangeReader) Size() int64 {
	return rr.size
}

func (rr *RangeReader) Read(p []byte) (int, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.size >= 0 && rr.pos >= rr.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if !rr.buffered(rr.pos) {
		n := max(rr.readAhead, len(p))
		if rr.size >= 0 && rr.pos+int64(n) > rr.size {
			n = int(rr.size - rr.pos)
		}
		data, err := rr.fetch(rr.pos, rr.pos+int64(n)-1)
		if err != nil {
			return 0, err
		}
		if len(data) == 0 {
			return 0, io.EOF
		}
		rr.buf, rr.bufStart = data, rr.pos
	}

	n := copy(p, rr.buf[rr.pos-rr.bufStart:])
	rr.pos += int64(n)
	return n, nil
}

func (rr *RangeReader) buffered(off int64) bool {
	return rr.bufStart >= 0 && off >= rr.bufStart && off < rr.bufStart+int64(len(rr.buf))
}

// fetch returns bytes start through end inclusive. A server that ignores
// the Range header answers with the whole file, which is cut down here.
func (rr *RangeReader) fetch(start, end int64) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	if err := rr.client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("failed to fetch bytes %d-%d: %w", start, end, err)
	}

	body := resp.Body()
	switch resp.StatusCode() {
	case fasthttp.StatusPartialContent:
	case fasthttp.StatusOK:
		if start >= int64(len(body)) {
			return nil, nil
		}
		body = body[start:min(end+1, int64(len(body)))]
	case fasthttp.StatusRequestedRangeNotSatisfiable:
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to fetch bytes %d-%d: status %d", start, end, resp.StatusCode())
	}
	return append([]byte(nil), body...), nil
}

// Seek sets the offset for the next Read. The read-ahead window survives
// seeks that land inside it.
func (rr *RangeReader) Seek(offset int64, whence int) (int64, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = rr.pos + offset
	case io.SeekEnd:
		if rr.size < 0 {
			return 0, fmt.Errorf("cannot seek from end: file size unknown")
		}
		pos = rr.size + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative position: %d", pos)
	}
	rr.pos = pos
	return pos, nil
}

// Close drops the read-ahead buffer.
func (rr *RangeReader) Close() error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.buf, rr.bufStart = nil, -1
	return nil
}
