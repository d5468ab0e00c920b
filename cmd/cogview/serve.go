package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tingold/cogview/cog"
	"github.com/tingold/cogview/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve rendered views as PNG images over HTTP",
	Long: `Start an HTTP server that renders views of rasters with the same rules
and stretches as the terminal viewer.

  GET /render?file=F&w=W&h=H&cx=X&cy=Y&gupp=G
  GET /info?file=F     footprint and layout as GeoJSON

file is relative to --root. cx, cy and gupp (ground units per pixel) are
optional together; without them the whole raster is shown.

Examples:
  # Serve the rasters under /data on port 8080
  cogview serve --root /data

  # Also allow http(s) datasets
  cogview serve --root /data --allow-remote`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	serveCmd.Flags().String("root", ".", "directory datasets are served from")
	serveCmd.Flags().Bool("allow-remote", false, "allow http(s) dataset names")

	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.root", serveCmd.Flags().Lookup("root"))
	viper.BindPFlag("server.allow-remote", serveCmd.Flags().Lookup("allow-remote"))
}

func runServe(cmd *cobra.Command, args []string) error {
	opts, err := sessionOptions()
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", viper.GetString("server.bind"), viper.GetInt("server.port"))
	timeout := viper.GetDuration("server.timeout")

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(timeout))

	srv := server.New(cog.Opener(httpClient()),
		server.WithRoot(viper.GetString("server.root")),
		server.WithRemote(viper.GetBool("server.allow-remote")),
		server.WithSessionOptions(opts...))
	r.Mount("/", srv.Routes())

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		fmt.Fprintf(cmd.ErrOrStderr(), "\nShutting down server...\n")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Serving %s on http://%s", viper.GetString("server.root"), addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
