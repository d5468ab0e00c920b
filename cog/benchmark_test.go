package cog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tingold/cogview"
)

// benchmarkFile writes a size x size deflated tiled raster with a 2x
// overview and returns its path.
func benchmarkFile(b *testing.B, size int) string {
	b.Helper()
	full := tiffImage{
		entries: append(append(le.baseEntries(size, size, 1, 8),
			le.short(TagCompression, CompressionDeflate),
			le.long(TagTileWidth, 256),
			le.long(TagTileLength, 256)),
			le.georef(0, float64(size), 1)...),
		chunks: tiles(ramp(size, size), size, size, 256, deflate),
		tiled:  true,
	}
	half := size / 2
	overview := tiffImage{
		entries: append(le.baseEntries(half, half, 1, 8),
			le.long(TagNewSubfileType, subfileReduced),
			le.short(TagCompression, CompressionDeflate),
			le.long(TagTileWidth, 256),
			le.long(TagTileLength, 256)),
		chunks: tiles(ramp(half, half), half, half, 256, deflate),
		tiled:  true,
	}
	return writeFile(b, le.build(full, overview))
}

func benchmarkDataset(b *testing.B, size int) *Dataset {
	b.Helper()
	ds, err := Open(benchmarkFile(b, size), nil)
	require.NoError(b, err)
	b.Cleanup(func() { ds.Close() })
	return ds
}

func BenchmarkBandRead(b *testing.B) {
	ds := benchmarkDataset(b, 2048)
	band := ds.Band(1)
	dst := make([]float64, 200*100)

	cases := []struct {
		name  string
		level cogview.ResolutionLevel
		src   cogview.Rect
	}{
		{"Full", cogview.FullResolution(), cogview.Rect{Width: 2048, Height: 2048}},
		{"Overview", cogview.Overview(0), cogview.Rect{Width: 1024, Height: 1024}},
		{"Window", cogview.FullResolution(), cogview.Rect{X: 700, Y: 900, Width: 200, Height: 100}},
	}
	for _, c := range cases {
		b.Run(c.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if err := band.Read(c.level, c.src, dst, 200, 100, 200); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkBandReadParallel(b *testing.B) {
	ds := benchmarkDataset(b, 2048)
	band := ds.Band(1)
	src := cogview.Rect{X: 300, Y: 300, Width: 400, Height: 200}

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		dst := make([]float64, 200*100)
		for pb.Next() {
			if err := band.Read(cogview.FullResolution(), src, dst, 200, 100, 200); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkSessionRender(b *testing.B) {
	name := benchmarkFile(b, 2048)
	s := cogview.NewSession(Opener(nil), 200, 100)
	require.NoError(b, s.Open(name))
	b.Cleanup(func() { s.Close() })

	views := []func(){s.Reset, s.ZoomIn, s.ZoomIn, func() { s.Pan(cogview.PanStep, 0) }, s.ZoomOut}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		views[i%len(views)]()
		if _, err := s.Render(); err != nil {
			b.Fatal(err)
		}
	}
}
