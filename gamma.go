package cogview

import "math"

// Gamma steps.
const (
	GammaFactor = 1.04 // gamma change of one step
	GammaMax    = 100  // steps allowed either side of 1
)

// GammaValue returns the gamma of step, clamped to GammaMax steps.
func GammaValue(step int) float64 {
	step = max(-GammaMax, min(GammaMax, step))
	return math.Pow(GammaFactor, float64(step))
}

// GammaTable returns the lookup table raising intensities to 1/gamma, so
// positive steps brighten. Step 0 is the identity.
func GammaTable(step int) [256]byte {
	var lut [256]byte
	inv := 1 / GammaValue(step)
	for i := range lut {
		lut[i] = byte(math.Round(255 * math.Pow(float64(i)/255, inv)))
	}
	return lut
}

// applyGamma maps the pixels inside win through lut. The checkerboard
// around them is left alone.
func (im *DisplayImage) applyGamma(lut *[256]byte, win RasterWindow) {
	for y := win.DestY; y < win.DestY+win.DestHeight; y++ {
		row := im.Pixels[(y*im.Width+win.DestX)*im.Depth : (y*im.Width+win.DestX+win.DestWidth)*im.Depth]
		for i, v := range row {
			row[i] = lut[v]
		}
	}
}
