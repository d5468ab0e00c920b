package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"

	"github.com/tingold/cogview"
	"github.com/tingold/cogview/cog"
	"github.com/tingold/cogview/internal/display"
)

var cfgFile string

// rootCmd views rasters when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "cogview [flags] FILE...",
	Short: "View georeferenced rasters in the terminal",
	Long: `cogview shows Cloud Optimized GeoTIFFs and other tiled or stripped
GeoTIFFs in a terminal, reading only the overview and window that the
screen needs. Files may be local paths or http(s) URLs.

How a file is shown is decided by the first stretch rule that matches its
band count, from the "rules" list in the config file or the built-in list:

  comparator,threshold,classBand:mode,stretch,param1|param2,band1|band2|band3

Keys:
  q Esc        quit
  + -          zoom in, zoom out
  g G          gamma down, up
  arrows hjkl  pan
  n p          next, previous file
  x Home       show the whole raster at neutral gamma
  ?            toggle help

Examples:
  # View a local file with the default rules
  cogview scene.tif

  # Show bands 4, 3 and 2 with a 2 standard deviation stretch
  cogview --stretch 'greater,0,-1:rgb,stddev,2,4|3|2' scene.tif

  # Follow the view of other linked viewers
  cogview --geolink /tmp/cogview.link a.tif b.tif`,
	RunE: runView,
}

// Execute runs the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gcv.yaml)")
	rootCmd.PersistentFlags().String("stretch", "", "rule used for every file instead of the rule list")
	rootCmd.PersistentFlags().Float64("density", cogview.DefaultDensity, "source pixels wanted per display pixel")
	rootCmd.PersistentFlags().Duration("http-timeout", 30*time.Second, "timeout of each HTTP range request")

	rootCmd.Flags().String("geolink", "", "file shared with other viewers to follow each other's view")
	rootCmd.Flags().Duration("geolink-interval", cogview.DefaultFollowInterval, "how often the geolink file is checked")

	viper.BindPFlag("stretch", rootCmd.PersistentFlags().Lookup("stretch"))
	viper.BindPFlag("density", rootCmd.PersistentFlags().Lookup("density"))
	viper.BindPFlag("http.timeout", rootCmd.PersistentFlags().Lookup("http-timeout"))
	viper.BindPFlag("geolink", rootCmd.Flags().Lookup("geolink"))
	viper.BindPFlag("geolink-interval", rootCmd.Flags().Lookup("geolink-interval"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gcv")
	}

	viper.SetEnvPrefix("cogview")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("failed to read config: %w", err))
		}
	}
}

// sessionOptions builds the session settings from the config. A rule that
// does not parse is an error; viewing with guessed rules is worse.
func sessionOptions() ([]cogview.Option, error) {
	var opts []cogview.Option
	if lines := viper.GetStringSlice("rules"); len(lines) > 0 {
		rules, err := cogview.ParseRules(lines)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", viper.ConfigFileUsed(), err)
		}
		opts = append(opts, cogview.WithRules(rules))
	}
	if s := viper.GetString("stretch"); s != "" {
		r, err := cogview.ParseRule(s)
		if err != nil {
			return nil, fmt.Errorf("--stretch: %w", err)
		}
		opts = append(opts, cogview.WithOverrideRule(r))
	}
	opts = append(opts, cogview.WithDensity(viper.GetFloat64("density")))
	return opts, nil
}

// httpClient returns the client for remote datasets.
func httpClient() *fasthttp.Client {
	timeout := viper.GetDuration("http.timeout")
	return &fasthttp.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
}

func runView(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	opts, err := sessionOptions()
	if err != nil {
		return err
	}

	session := cogview.NewSession(cog.Opener(httpClient()), 1, 1, append(opts, cogview.WithFiles(args))...)
	defer session.Close()
	// A failure stays on screen as the session message.
	session.Open(args[0])

	scr, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to create screen: %w", err)
	}
	if err := scr.Init(); err != nil {
		return fmt.Errorf("failed to initialise screen: %w", err)
	}
	defer scr.Fini()

	var vopts []display.ViewerOption
	if path := viper.GetString("geolink"); path != "" {
		vopts = append(vopts, display.WithGeolink(path, viper.GetDuration("geolink-interval")))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = display.NewViewer(scr, session, vopts...).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
