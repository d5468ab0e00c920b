package display

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/tingold/cogview"
)

// stop is posted to wake the event loop when its context ends.
type stop struct{}

// Viewer is the interactive loop around a session: keys change the view and
// every change is rendered and drawn. With a geolink file set, view changes
// are published there and views published by other viewers are followed.
type Viewer struct {
	scr      tcell.Screen
	term     *Terminal
	session  *cogview.Session
	geolink  string
	interval time.Duration
	note     string
	help     bool
}

// helpLines are drawn over the image while help is shown.
var helpLines = []string{
	" +  -          zoom in, zoom out  ",
	" g  G          darker, brighter   ",
	" x  Home       reset zoom, gamma  ",
	" arrows hjkl   move view          ",
	" n  p          next, previous file",
	" Ctrl-L        redraw             ",
	" ?             toggle this help   ",
	" q  Esc        quit               ",
}

// ViewerOption configures a Viewer.
type ViewerOption func(*Viewer)

// WithGeolink links the viewer to other viewers through the hint file path,
// polled every interval.
func WithGeolink(path string, interval time.Duration) ViewerOption {
	return func(v *Viewer) {
		v.geolink = path
		v.interval = interval
	}
}

// NewViewer returns a viewer drawing s on scr. The session is resized to
// the screen and shows the whole raster.
func NewViewer(scr tcell.Screen, s *cogview.Session, opts ...ViewerOption) *Viewer {
	v := &Viewer{scr: scr, term: NewTerminal(scr), session: s}
	for _, opt := range opts {
		opt(v)
	}
	v.session.Resize(v.term.ImageSize())
	v.session.Reset()
	return v
}

// Run draws the view and handles events until a quit key, the end of ctx or
// the screen being finalised.
func (v *Viewer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if v.geolink != "" {
		f := cogview.NewViewFollower(v.geolink, v.interval)
		go f.Run(ctx, func(h cogview.ViewHint) {
			v.scr.PostEvent(tcell.NewEventInterrupt(h))
		})
	}
	go func() {
		<-ctx.Done()
		v.scr.PostEvent(tcell.NewEventInterrupt(stop{}))
	}()

	v.Refresh()
	for {
		switch ev := v.scr.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			v.scr.Sync()
			v.session.Resize(v.term.ImageSize())
			v.Refresh()
		case *tcell.EventKey:
			if v.HandleKey(ev) {
				return nil
			}
		case *tcell.EventInterrupt:
			switch data := ev.Data().(type) {
			case cogview.ViewHint:
				v.session.SetExtent(data.Extent())
				v.Refresh()
			case stop:
				return ctx.Err()
			}
		}
	}
}

// HandleKey applies one key press and reports whether it asks to quit.
//
//	q Esc        quit
//	+ =  - _     zoom in, zoom out
//	g G          gamma down, up
//	arrows hjkl  pan
//	n p          next, previous file
//	x Home       show the whole raster at neutral gamma
//	?            toggle help
//	Ctrl-L       redraw
func (v *Viewer) HandleKey(ev *tcell.EventKey) bool {
	s := v.session
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyLeft:
		s.Pan(-cogview.PanStep, 0)
	case tcell.KeyRight:
		s.Pan(cogview.PanStep, 0)
	case tcell.KeyUp:
		s.Pan(0, -cogview.PanStep)
	case tcell.KeyDown:
		s.Pan(0, cogview.PanStep)
	case tcell.KeyHome:
		s.Reset()
	case tcell.KeyCtrlL:
		v.scr.Sync()
		v.Refresh()
		return false
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case '+', '=':
			s.ZoomIn()
		case '-', '_':
			s.ZoomOut()
		case 'g':
			s.GammaOut()
		case 'G':
			s.GammaIn()
		case '?':
			v.help = !v.help
			v.Refresh()
			return false
		case 'h':
			s.Pan(-cogview.PanStep, 0)
		case 'l':
			s.Pan(cogview.PanStep, 0)
		case 'k':
			s.Pan(0, -cogview.PanStep)
		case 'j':
			s.Pan(0, cogview.PanStep)
		case 'n':
			s.Next()
		case 'p':
			s.Prev()
		case 'x':
			s.Reset()
		default:
			return false
		}
	default:
		return false
	}
	v.publish()
	v.Refresh()
	return false
}

// publish writes the current view to the geolink file.
func (v *Viewer) publish() {
	if v.geolink == "" || v.session.Dataset() == nil {
		return
	}
	v.note = ""
	if err := cogview.WriteViewHint(v.geolink, cogview.HintFor(v.session.Extent())); err != nil {
		v.note = err.Error()
	}
}

// Refresh renders the session and draws the result. A render failure is
// shown in place of the image.
func (v *Viewer) Refresh() {
	im, _ := v.session.Render()
	msg := v.session.Message()
	if msg == "" {
		msg = v.note
	}
	v.term.Draw(im, v.session.Status(), msg)
	if v.help {
		v.term.Overlay(helpLines)
	}
}
