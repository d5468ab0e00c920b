package main

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"

	"github.com/tingold/cogview"
	"github.com/tingold/cogview/cog"
)

var statsCmd = &cobra.Command{
	Use:   "stats FILE...",
	Short: "Compute band statistics and store them next to each file",
	Long: `Compute the minimum, maximum, mean, standard deviation and histogram of
every band and write them to the file's .aux.xml sidecar, where the linear,
stddev and histogram stretches find them.

Examples:
  # Exact statistics from the full resolution image
  cogview stats scene.tif

  # Quick statistics from the coarsest overview, printed only
  cogview stats --approx --dry-run scene.tif`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("approx", false, "read the coarsest overview instead of full resolution")
	statsCmd.Flags().Int("bins", 256, "number of histogram bins")
	statsCmd.Flags().Bool("dry-run", false, "print the statistics without writing the sidecar")

	viper.BindPFlag("stats.approx", statsCmd.Flags().Lookup("approx"))
	viper.BindPFlag("stats.bins", statsCmd.Flags().Lookup("bins"))
}

func runStats(cmd *cobra.Command, args []string) error {
	approx := viper.GetBool("stats.approx")
	bins := viper.GetInt("stats.bins")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	client := httpClient()

	for _, name := range args {
		stats, err := computeStatistics(name, client, approx, bins)
		if err != nil {
			return err
		}
		printStatistics(cmd.OutOrStdout(), name, stats)
		if dryRun {
			continue
		}
		if err := cog.SaveStatistics(name, stats); err != nil {
			return err
		}
	}
	return nil
}

// blockSamples bounds the samples one band holds in memory at a time.
const blockSamples = 1 << 20

// computeStatistics reads every band of name, in parallel, and summarises
// it. Bands are read in blocks of rows, twice when a histogram is wanted.
// Nodata samples are left out.
func computeStatistics(name string, client *fasthttp.Client, approx bool, bins int) (map[int]cogview.Statistics, error) {
	ds, err := cog.Open(name, client)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	level, size := cogview.FullResolution(), ds.Size()
	if ovs := ds.Overviews(); approx && len(ovs) > 0 {
		level, size = cogview.Overview(len(ovs)-1), ovs[len(ovs)-1]
	}

	var mu sync.Mutex
	out := make(map[int]cogview.Statistics, ds.BandCount())
	p := pool.New().WithErrors().WithMaxGoroutines(runtime.NumCPU())
	for i := 1; i <= ds.BandCount(); i++ {
		i := i
		p.Go(func() error {
			band := ds.RasterBand(i)
			var noData *float64
			if v, ok := band.NoData(); ok {
				noData = &v
			}
			b := cogview.NewStatisticsBuilder(noData, bins)
			if err := readBlocks(band, level, size, blockSamples, b.Add); err != nil {
				return fmt.Errorf("%s band %d: %w", name, i, err)
			}
			if b.Binned() {
				if err := readBlocks(band, level, size, blockSamples, b.Bin); err != nil {
					return fmt.Errorf("%s band %d: %w", name, i, err)
				}
			}
			st, err := b.Statistics()
			if err != nil {
				return fmt.Errorf("%s band %d: %w", name, i, err)
			}
			mu.Lock()
			out[i] = st
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// readBlocks reads level of band in blocks of whole rows holding at most
// limit samples, or one row when a row is larger, and passes each to fn.
// The buffer is reused.
func readBlocks(band cogview.Band, level cogview.ResolutionLevel, size cogview.Size, limit int, fn func([]float64)) error {
	rows := max(1, limit/max(size.Width, 1))
	buf := make([]float64, size.Width*min(rows, size.Height))
	for y := 0; y < size.Height; y += rows {
		h := min(rows, size.Height-y)
		block := buf[:size.Width*h]
		src := cogview.Rect{Y: y, Width: size.Width, Height: h}
		if err := band.Read(level, src, block, size.Width, h, size.Width); err != nil {
			return err
		}
		fn(block)
	}
	return nil
}

func printStatistics(w io.Writer, name string, stats map[int]cogview.Statistics) {
	fmt.Fprintln(w, name)
	for i := 1; i <= len(stats); i++ {
		st, ok := stats[i]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  band %d: min=%g max=%g mean=%g stddev=%g\n", i, st.Min, st.Max, st.Mean, st.StdDev)
	}
}
