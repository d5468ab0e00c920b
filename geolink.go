package cogview

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultFollowInterval is how often a ViewFollower looks at the hint file.
const DefaultFollowInterval = 500 * time.Millisecond

// ViewHint is the view one viewer publishes for others to follow.
type ViewHint struct {
	PID            int
	CenterX        float64
	CenterY        float64
	GroundPerPixel float64
}

// Extent returns the hinted view.
func (h ViewHint) Extent() Extent {
	return Extent{CenterX: h.CenterX, CenterY: h.CenterY, GroundPerPixel: h.GroundPerPixel}
}

// HintFor returns the hint this process would publish for e.
func HintFor(e Extent) ViewHint {
	return ViewHint{PID: os.Getpid(), CenterX: e.CenterX, CenterY: e.CenterY, GroundPerPixel: e.GroundPerPixel}
}

// WriteViewHint replaces the hint file at path. The file is written next to
// path and renamed so readers never see a partial record.
func WriteViewHint(path string, h ViewHint) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".geolink-*")
	if err != nil {
		return fmt.Errorf("failed to create view hint: %w", err)
	}
	_, err = fmt.Fprintf(tmp, "%d\n%s\n%s\n%s\n", h.PID,
		strconv.FormatFloat(h.CenterX, 'f', -1, 64),
		strconv.FormatFloat(h.CenterY, 'f', -1, 64),
		strconv.FormatFloat(h.GroundPerPixel, 'f', -1, 64))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write view hint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write view hint: %w", err)
	}
	return nil
}

// ReadViewHint reads the hint file at path.
func ReadViewHint(path string) (ViewHint, error) {
	var h ViewHint
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(lines) < 4 {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return h, fmt.Errorf("failed to read view hint: %w", err)
	}
	if len(lines) < 4 {
		return h, fmt.Errorf("view hint %s: want 4 lines, got %d", path, len(lines))
	}
	if h.PID, err = strconv.Atoi(lines[0]); err != nil {
		return h, fmt.Errorf("view hint %s: bad pid: %w", path, err)
	}
	vals := []*float64{&h.CenterX, &h.CenterY, &h.GroundPerPixel}
	for i, p := range vals {
		if *p, err = strconv.ParseFloat(lines[i+1], 64); err != nil {
			return h, fmt.Errorf("view hint %s: bad line %d: %w", path, i+2, err)
		}
	}
	if !(h.GroundPerPixel > 0) {
		return h, fmt.Errorf("view hint %s: ground resolution must be positive", path)
	}
	return h, nil
}

// ViewFollower watches a hint file written by other viewers.
type ViewFollower struct {
	Path     string
	Interval time.Duration

	pid     int
	modTime time.Time
}

// NewViewFollower returns a follower of path that ignores this process's own
// hints.
func NewViewFollower(path string, interval time.Duration) *ViewFollower {
	if interval <= 0 {
		interval = DefaultFollowInterval
	}
	return &ViewFollower{Path: path, Interval: interval, pid: os.Getpid()}
}

// Poll checks the file once. It reports a hint only when the file changed
// since the last poll and was written by another process. A missing or
// unreadable file is not an error.
func (f *ViewFollower) Poll() (ViewHint, bool) {
	fi, err := os.Stat(f.Path)
	if err != nil || fi.ModTime().Equal(f.modTime) {
		return ViewHint{}, false
	}
	h, err := ReadViewHint(f.Path)
	if err != nil {
		return ViewHint{}, false
	}
	f.modTime = fi.ModTime()
	if h.PID == f.pid {
		return ViewHint{}, false
	}
	return h, true
}

// Run polls until ctx is done, calling fn with every new hint.
func (f *ViewFollower) Run(ctx context.Context, fn func(ViewHint)) error {
	t := time.NewTicker(f.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if h, ok := f.Poll(); ok {
				fn(h)
			}
		}
	}
}

// IsMissingHint reports whether err means no hint file exists yet.
func IsMissingHint(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
