package cogview

import (
	"errors"
	"fmt"
	"math"
)

// View navigation constants.
const (
	ZoomFactor = 1.08 // scale change of one zoom step
	ZoomMax    = 70   // zoom steps allowed either side of the full view
	PanStep    = 0.15 // fraction of the view moved by one pan step
)

// Session is one viewer's state: the open dataset, its rule, the view and
// the most recent result. A Session is not safe for concurrent use.
type Session struct {
	open     Opener
	rules    []Rule
	override *Rule
	density  float64

	files   []string
	current int

	ds      Dataset
	name    string
	rule    Rule
	gt      Geotransform
	fullGPP float64

	ext           Extent
	gamma         int
	width, height int

	image *DisplayImage
	level ResolutionLevel
	msg   string
}

// Option configures a Session.
type Option func(*Session)

// WithRules replaces the default rule list.
func WithRules(rules []Rule) Option {
	return func(s *Session) { s.rules = rules }
}

// WithOverrideRule makes every dataset use r without rule matching.
func WithOverrideRule(r Rule) Option {
	return func(s *Session) { s.override = &r }
}

// WithDensity sets the wanted source pixels per display pixel.
func WithDensity(d float64) Option {
	return func(s *Session) {
		if d > 0 {
			s.density = d
		}
	}
}

// WithFiles sets the list Next and Prev move through.
func WithFiles(files []string) Option {
	return func(s *Session) { s.files = files }
}

// NewSession returns a session that opens datasets with open.
func NewSession(open Opener, width, height int, opts ...Option) *Session {
	s := &Session{
		open:    open,
		rules:   DefaultRules(),
		density: DefaultDensity,
		current: -1,
		width:   max(width, 1),
		height:  max(height, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fail records err as the current message and returns it.
func (s *Session) fail(err error) error {
	s.msg = err.Error()
	s.image = nil
	return err
}

// Open closes the current dataset and opens name. On failure the session
// has no dataset and Message describes the problem.
func (s *Session) Open(name string) error {
	if err := s.closeDataset(); err != nil {
		return s.fail(fmt.Errorf("failed to close %s: %w", s.name, err))
	}
	if s.open == nil {
		return s.fail(ErrNoDataset)
	}
	ds, err := s.open(name)
	if err != nil {
		return s.fail(fmt.Errorf("failed to open %s: %w", name, err))
	}

	gt, ok := ds.Geotransform()
	if !ok || !gt.Valid() {
		ds.Close()
		return s.fail(fmt.Errorf("%s: %w", name, ErrNoGeotransform))
	}

	var rule Rule
	if s.override != nil {
		rule = *s.override
	} else {
		rule, err = SelectRule(s.rules, ds)
		if err != nil {
			var nr *NoRuleError
			if errors.As(err, &nr) {
				nr.Name = name
			}
			ds.Close()
			return s.fail(err)
		}
	}

	s.ds, s.name, s.rule, s.gt = ds, name, rule, gt
	for i, f := range s.files {
		if f == name {
			s.current = i
		}
	}
	s.Reset()
	s.msg = ""
	return nil
}

// Next opens the file after the current one in the file list.
func (s *Session) Next() error { return s.step(1) }

// Prev opens the file before the current one in the file list.
func (s *Session) Prev() error { return s.step(-1) }

func (s *Session) step(d int) error {
	if len(s.files) == 0 {
		return s.fail(errors.New("no file list"))
	}
	i := s.current + d
	if s.current < 0 && d < 0 {
		i = len(s.files) - 1
	}
	i = ((i % len(s.files)) + len(s.files)) % len(s.files)
	s.current = i
	return s.Open(s.files[i])
}

// Render reads the current view and composes it into a new image. The image
// replaces the previous one. Without a dataset the message of the failure
// that closed it is kept.
func (s *Session) Render() (*DisplayImage, error) {
	if s.ds == nil {
		if s.msg == "" {
			s.msg = ErrNoDataset.Error()
		}
		return nil, ErrNoDataset
	}
	im, err := s.render()
	if err != nil {
		return nil, s.fail(err)
	}
	s.image = im
	s.msg = ""
	return im, nil
}

func (s *Session) render() (*DisplayImage, error) {
	w, h := s.width, s.height
	level, err := SelectLevel(s.ds.Size(), s.ds.Overviews(), s.gt, s.ext.GroundPerPixel, s.density)
	if err != nil {
		return nil, err
	}
	geom, err := Geometry(s.ds.Size(), s.ds.Overviews(), level)
	if err != nil {
		return nil, err
	}
	win, err := ComputeWindow(s.gt, geom, s.ext, w, h)
	if err != nil {
		return nil, err
	}
	s.level = level

	read := func(i int) ([]float64, Band, error) {
		b := s.ds.Band(i)
		if b == nil {
			return nil, nil, fmt.Errorf("band %d does not exist (%d bands)", i, s.ds.BandCount())
		}
		buf := make([]float64, w*h)
		if err := ReadWindow(b, level, win, buf, w); err != nil {
			return nil, nil, fmt.Errorf("failed to read band %d: %w", i, err)
		}
		return buf, b, nil
	}

	switch s.rule.Mode {
	case ModeColorTable:
		classes, b, err := read(s.rule.Bands[0])
		if err != nil {
			return nil, err
		}
		table, err := NewColorTable(b.AttributeTable(), s.rule.Bands[0])
		if err != nil {
			return nil, err
		}
		im, err := Compose(ModeColorTable, nil, classes, table, w, h, win)
		if err != nil {
			return nil, err
		}
		return s.adjust(im, win), nil

	case ModeGreyscale, ModeRGB:
		bands := make([][]byte, 0, len(s.rule.Bands))
		for _, i := range s.rule.Bands {
			raw, b, err := read(i)
			if err != nil {
				return nil, err
			}
			st, err := NewStretcher(s.rule.Stretch, s.rule.Params, StatisticsFromMetadata(b))
			if err != nil {
				var se *StretchError
				if errors.As(err, &se) {
					se.Band = i
				}
				return nil, err
			}
			out := make([]byte, w*h)
			st.Apply(out, raw)
			bands = append(bands, out)
		}
		im, err := Compose(s.rule.Mode, bands, nil, nil, w, h, win)
		if err != nil {
			return nil, err
		}
		return s.adjust(im, win), nil
	}
	return nil, fmt.Errorf("%s: %w", s.rule.Mode, ErrUnsupportedMode)
}

// adjust applies the gamma step to a composed image.
func (s *Session) adjust(im *DisplayImage, win RasterWindow) *DisplayImage {
	if s.gamma != 0 {
		lut := GammaTable(s.gamma)
		im.applyGamma(&lut, win)
	}
	return im
}

// fullView returns the extent showing the whole raster centred.
func (s *Session) fullView() Extent {
	size := s.ds.Size()
	b := s.gt.Bounds(size.Width, size.Height)
	c := b.Center()
	gpp := math.Max(
		(b.Max[0]-b.Min[0])/float64(s.width),
		(b.Max[1]-b.Min[1])/float64(s.height),
	)
	return Extent{CenterX: c[0], CenterY: c[1], GroundPerPixel: gpp}
}

// Reset shows the whole raster at neutral gamma.
func (s *Session) Reset() {
	if s.ds == nil {
		return
	}
	s.gamma = 0
	s.ext = s.fullView()
	s.fullGPP = s.ext.GroundPerPixel
}

// Pan moves the view by fx of its width and fy of its height. Positive fy
// moves down.
func (s *Session) Pan(fx, fy float64) {
	s.ext.CenterX += fx * float64(s.width) * s.ext.GroundPerPixel
	s.ext.CenterY -= fy * float64(s.height) * s.ext.GroundPerPixel
}

// Zoom magnifies the view by factor, limited to ZoomMax steps either side of
// the full view.
func (s *Session) Zoom(factor float64) {
	if !(factor > 0) {
		return
	}
	gpp := s.ext.GroundPerPixel / factor
	if s.fullGPP > 0 {
		limit := math.Pow(ZoomFactor, ZoomMax)
		gpp = math.Max(s.fullGPP/limit, math.Min(s.fullGPP*limit, gpp))
	}
	s.ext.GroundPerPixel = gpp
}

// ZoomIn zooms in one step.
func (s *Session) ZoomIn() { s.Zoom(ZoomFactor) }

// ZoomOut zooms out one step.
func (s *Session) ZoomOut() { s.Zoom(1 / ZoomFactor) }

// SetGamma sets the gamma step, limited to GammaMax either side of 0.
func (s *Session) SetGamma(step int) {
	s.gamma = max(-GammaMax, min(GammaMax, step))
}

// GammaIn brightens the view one step.
func (s *Session) GammaIn() { s.SetGamma(s.gamma + 1) }

// GammaOut darkens the view one step.
func (s *Session) GammaOut() { s.SetGamma(s.gamma - 1) }

// Gamma returns the gamma step and its value.
func (s *Session) Gamma() (int, float64) { return s.gamma, GammaValue(s.gamma) }

// Resize changes the display size, keeping the view centre and scale.
func (s *Session) Resize(width, height int) {
	s.width, s.height = max(width, 1), max(height, 1)
}

// Size returns the display size.
func (s *Session) Size() (int, int) { return s.width, s.height }

// SetExtent replaces the view.
func (s *Session) SetExtent(e Extent) {
	if e.GroundPerPixel > 0 {
		s.ext = e
	}
}

// Extent returns the view.
func (s *Session) Extent() Extent { return s.ext }

// Rule returns the rule of the open dataset.
func (s *Session) Rule() Rule { return s.rule }

// Dataset returns the open dataset, or nil.
func (s *Session) Dataset() Dataset { return s.ds }

// Name returns the name of the open dataset.
func (s *Session) Name() string { return s.name }

// Image returns the last rendered image, nil after a failure.
func (s *Session) Image() *DisplayImage { return s.image }

// Message returns the last error message, empty after a success.
func (s *Session) Message() string { return s.msg }

// Status describes the open dataset and how it is shown.
func (s *Session) Status() string {
	if s.ds == nil {
		return "no dataset"
	}
	status := fmt.Sprintf("%s: %s (%s)", s.name, s.rule.Describe(), s.level)
	if s.gamma != 0 {
		status += fmt.Sprintf(" (gamma: %.3g)", GammaValue(s.gamma))
	}
	return status
}

// Close closes the open dataset.
func (s *Session) Close() error {
	return s.closeDataset()
}

func (s *Session) closeDataset() error {
	if s.ds == nil {
		return nil
	}
	err := s.ds.Close()
	s.ds = nil
	s.image = nil
	return err
}
