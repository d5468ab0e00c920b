package cog

import "sync"

// Buffer pools for reducing GC pressure while chunks are fetched and decoded.

// classPool hands out slices from a fixed set of size classes. Requests
// larger than the biggest class are allocated directly and never pooled.
type classPool[T any] struct {
	sizes []int
	pools []sync.Pool
}

func newClassPool[T any](sizes ...int) *classPool[T] {
	p := &classPool[T]{sizes: sizes, pools: make([]sync.Pool, len(sizes))}
	for i, size := range sizes {
		size := size
		p.pools[i].New = func() any {
			buf := make([]T, size)
			return &buf
		}
	}
	return p
}

// Get returns a slice of length n. Its contents are not cleared.
func (p *classPool[T]) Get(n int) []T {
	for i, size := range p.sizes {
		if n <= size {
			buf := p.pools[i].Get().(*[]T)
			return (*buf)[:n]
		}
	}
	return make([]T, n)
}

// Put returns buf to its class. Slices of other capacities are dropped.
func (p *classPool[T]) Put(buf []T) {
	c := cap(buf)
	for i, size := range p.sizes {
		if c == size {
			buf = buf[:c]
			p.pools[i].Put(&buf)
			return
		}
	}
}

// chunkPool holds compressed tile and strip bytes: 64KB covers small tiles,
// 256KB a 256x256 RGB tile, 1MB a 512x512 tile, 4MB large strips.
var chunkPool = newClassPool[byte](64*1024, 256*1024, 1024*1024, 4*1024*1024)
