// Package server renders views of rasters over HTTP as PNG images and
// describes them as GeoJSON.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/tingold/cogview"
)

// Limits on the requested image size.
const (
	DefaultSize = 256
	MaxSize     = 4096
)

// Server answers render requests. Every request gets its own session, so a
// Server may be used concurrently.
type Server struct {
	open        cogview.Opener
	root        string
	allowRemote bool
	options     []cogview.Option
}

// Option configures a Server.
type Option func(*Server)

// WithRoot serves only files below dir.
func WithRoot(dir string) Option {
	return func(s *Server) { s.root = dir }
}

// WithRemote allows http and https dataset names.
func WithRemote(allow bool) Option {
	return func(s *Server) { s.allowRemote = allow }
}

// WithSessionOptions applies opts to every request's session.
func WithSessionOptions(opts ...cogview.Option) Option {
	return func(s *Server) { s.options = append(s.options, opts...) }
}

// New returns a server opening datasets with open.
func New(open cogview.Opener, opts ...Option) *Server {
	s := &Server{open: open, root: "."}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the server's router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/render", s.Render)
	r.Get("/info", s.Info)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return r
}

// Render handles GET /render?file=F&w=W&h=H[&cx=X&cy=Y&gupp=G]. Without a
// centre and scale the whole raster is shown.
func (s *Server) Render(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, err := s.resolve(q.Get("file"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	width, err := sizeParam(q.Get("w"))
	if err != nil {
		http.Error(w, fmt.Sprintf("w: %v", err), http.StatusBadRequest)
		return
	}
	height, err := sizeParam(q.Get("h"))
	if err != nil {
		http.Error(w, fmt.Sprintf("h: %v", err), http.StatusBadRequest)
		return
	}

	var ext *cogview.Extent
	if q.Has("cx") || q.Has("cy") || q.Has("gupp") {
		e, err := extentParams(q.Get("cx"), q.Get("cy"), q.Get("gupp"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ext = &e
	}

	session := cogview.NewSession(s.open, width, height, s.options...)
	defer session.Close()
	if err := session.Open(name); err != nil {
		http.Error(w, session.Message(), http.StatusNotFound)
		return
	}
	if ext != nil {
		session.SetExtent(*ext)
	}
	im, err := session.Render()
	if err != nil {
		status := http.StatusInternalServerError
		var se *cogview.StretchError
		if errors.As(err, &se) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, session.Message(), status)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Cogview-Status", session.Status())
	if err := png.Encode(w, im.Image()); err != nil {
		log.Printf("Error encoding %s: %v", name, err)
	}
}

// Info handles GET /info?file=F with a GeoJSON feature whose geometry is the
// dataset's footprint and whose properties describe its layout and the rule
// it is shown with.
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	name, err := s.resolve(r.URL.Query().Get("file"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	session := cogview.NewSession(s.open, 1, 1, s.options...)
	defer session.Close()
	if err := session.Open(name); err != nil {
		http.Error(w, session.Message(), http.StatusNotFound)
		return
	}

	ds := session.Dataset()
	size := ds.Size()
	gt, _ := ds.Geotransform()
	overviews := make([][2]int, 0, len(ds.Overviews()))
	for _, o := range ds.Overviews() {
		overviews = append(overviews, [2]int{o.Width, o.Height})
	}

	f := geojson.NewFeature(gt.Footprint(size.Width, size.Height))
	f.Properties["width"] = size.Width
	f.Properties["height"] = size.Height
	f.Properties["bands"] = ds.BandCount()
	f.Properties["overviews"] = overviews
	f.Properties["rule"] = session.Rule().String()
	f.Properties["display"] = session.Rule().Describe()

	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(f); err != nil {
		log.Printf("Error encoding info for %s: %v", name, err)
	}
}

// resolve maps a requested name onto a dataset name the server may open.
func (s *Server) resolve(name string) (string, error) {
	if name == "" {
		return "", errors.New("file is required")
	}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		if !s.allowRemote {
			return "", errors.New("remote datasets are not enabled")
		}
		return name, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%s is outside the served directory", name)
	}
	return filepath.Join(s.root, name), nil
}

func sizeParam(v string) (int, error) {
	if v == "" {
		return DefaultSize, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > MaxSize {
		return 0, fmt.Errorf("must be between 1 and %d", MaxSize)
	}
	return n, nil
}

func extentParams(cx, cy, gupp string) (cogview.Extent, error) {
	var e cogview.Extent
	var err error
	if e.CenterX, err = strconv.ParseFloat(cx, 64); err != nil {
		return e, fmt.Errorf("cx: %w", err)
	}
	if e.CenterY, err = strconv.ParseFloat(cy, 64); err != nil {
		return e, fmt.Errorf("cy: %w", err)
	}
	if e.GroundPerPixel, err = strconv.ParseFloat(gupp, 64); err != nil {
		return e, fmt.Errorf("gupp: %w", err)
	}
	if !(e.GroundPerPixel > 0) {
		return e, errors.New("gupp must be positive")
	}
	return e, nil
}
