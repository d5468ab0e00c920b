// Package display shows rendered views on a terminal through tcell. Each
// character cell carries two image rows: the upper half block is drawn in
// the top pixel's colour over the bottom pixel's colour.
package display

import (
	"image/color"

	"github.com/gdamore/tcell/v2"

	"github.com/tingold/cogview"
)

// upperHalf is the glyph whose foreground fills the top of the cell.
const upperHalf = '▀'

// textLines is the number of rows below the image: status then message.
const textLines = 2

var (
	statusStyle  = tcell.StyleDefault.Reverse(true)
	messageStyle = tcell.StyleDefault.Foreground(tcell.ColorRed)
	overlayStyle = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
)

// Terminal draws views on a tcell screen.
type Terminal struct {
	scr tcell.Screen
}

// NewTerminal wraps an initialised screen.
func NewTerminal(scr tcell.Screen) *Terminal {
	return &Terminal{scr: scr}
}

// ImageSize returns the display size in image pixels: one column per cell
// and two rows per cell above the text lines.
func (t *Terminal) ImageSize() (int, int) {
	w, h := t.scr.Size()
	return max(w, 1), max(2*(h-textLines), 1)
}

// Draw paints im, or message in its place when there is no image, and the
// status and message lines, then shows the screen.
func (t *Terminal) Draw(im *cogview.DisplayImage, status, message string) {
	t.scr.Clear()
	w, h := t.scr.Size()
	rows := h - textLines

	if im != nil {
		for cy := 0; cy < rows && 2*cy < im.Height; cy++ {
			for cx := 0; cx < w && cx < im.Width; cx++ {
				top := im.At(cx, 2*cy)
				bottom := top
				if 2*cy+1 < im.Height {
					bottom = im.At(cx, 2*cy+1)
				}
				style := tcell.StyleDefault.Foreground(rgb(top)).Background(rgb(bottom))
				t.scr.SetContent(cx, cy, upperHalf, nil, style)
			}
		}
	} else if message != "" && rows > 0 {
		t.text(0, rows/2, w, message, tcell.StyleDefault)
	}

	if h >= textLines {
		t.text(0, h-2, w, pad(status, w), statusStyle)
	}
	if h >= 1 {
		t.text(0, h-1, w, message, messageStyle)
	}
	t.scr.Show()
}

// Overlay draws lines in a box at the top left of the image area and shows
// the screen. Lines that do not fit are dropped.
func (t *Terminal) Overlay(lines []string) {
	w, h := t.scr.Size()
	for i, line := range lines {
		y := 1 + i
		if y >= h-textLines {
			break
		}
		t.text(1, y, w, line, overlayStyle)
	}
	t.scr.Show()
}

// text writes s from column x of row y, cut at width columns.
func (t *Terminal) text(x, y, width int, s string, style tcell.Style) {
	for _, r := range s {
		if x >= width {
			return
		}
		t.scr.SetContent(x, y, r, nil, style)
		x++
	}
}

func pad(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	b := []rune(s)
	for ; n < width; n++ {
		b = append(b, ' ')
	}
	return string(b)
}

func rgb(c color.RGBA) tcell.Color {
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}
