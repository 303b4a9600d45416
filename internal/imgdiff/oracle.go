// Package imgdiff is a pure Go pixel-diff oracle compatible with pixelmatch
// thresholds: a YIQ colour distance per pixel with optional anti-alias detection.
package imgdiff

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"

	_ "image/png"

	"github.com/ternarybob/vizard/internal/interfaces"
)

// maxYIQDelta is the largest possible YIQ distance between two colours
const maxYIQDelta = 35215

var (
	diffColor      = color.RGBA{R: 255, A: 255}
	antiAliasColor = color.RGBA{R: 255, G: 255, A: 255}
)

// Oracle compares JPEG screenshots
type Oracle struct {
	// Quality of the written diff image
	Quality int
}

var _ interfaces.DiffOracle = (*Oracle)(nil)

// NewOracle creates an oracle writing diff images at jpeg quality 90
func NewOracle() *Oracle {
	return &Oracle{Quality: 90}
}

// Compare diffs tested against golden. The diff image is written to diffPath
// only when the images differ. Images of different sizes are compared on the larger canvas; pixels
// outside either image count as different.
func (o *Oracle) Compare(testedPath, goldenPath, diffPath string, opts interfaces.DiffOptions) (interfaces.DiffResult, error) {
	tested, err := load(testedPath)
	if err != nil {
		return interfaces.DiffResult{}, err
	}
	golden, err := load(goldenPath)
	if err != nil {
		return interfaces.DiffResult{}, err
	}

	diff, count := Diff(tested, golden, opts)
	bounds := diff.Bounds()

	if count > 0 && diffPath != "" {
		if err := o.write(diffPath, diff); err != nil {
			return interfaces.DiffResult{}, err
		}
	}

	return interfaces.DiffResult{
		Same:      count == 0,
		DiffCount: count,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

func load(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

func (o *Oracle) write(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create diff directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create diff image: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: o.Quality}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode diff image: %w", err)
	}
	return f.Close()
}

// Diff compares two images and returns the diff image and the number of
// differing pixels. Both images must have a zero origin.
func Diff(a, b *image.RGBA, opts interfaces.DiffOptions) (*image.RGBA, int) {
	ab, bb := a.Bounds(), b.Bounds()
	width := max(ab.Dx(), bb.Dx())
	height := max(ab.Dy(), bb.Dy())
	out := image.NewRGBA(image.Rect(0, 0, width, height))

	maxDelta := maxYIQDelta * opts.Threshold * opts.Threshold
	count := 0

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := image.Point{X: x, Y: y}
			if !p.In(ab) || !p.In(bb) {
				out.SetRGBA(x, y, diffColor)
				count++
				continue
			}

			ca, cb := a.RGBAAt(x, y), b.RGBAAt(x, y)
			if ca == cb {
				out.SetRGBA(x, y, faded(ca))
				continue
			}

			delta := colorDelta(ca, cb, false)
			if abs(delta) <= maxDelta {
				out.SetRGBA(x, y, faded(ca))
				continue
			}

			if !opts.IncludeAA && (antialiased(a, x, y, b) || antialiased(b, x, y, a)) {
				out.SetRGBA(x, y, antiAliasColor)
				continue
			}

			out.SetRGBA(x, y, diffColor)
			count++
		}
	}
	return out, count
}

// colorDelta returns the YIQ distance between two colours, blended over white.
// With yOnly only the brightness difference is returned. The sign tells
// whether the second colour is lighter.
func colorDelta(c1, c2 color.RGBA, yOnly bool) float64 {
	r1, g1, b1 := blend(c1)
	r2, g2, b2 := blend(c2)

	y1, y2 := rgb2y(r1, g1, b1), rgb2y(r2, g2, b2)
	y := y1 - y2
	if yOnly {
		return y
	}

	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)
	delta := 0.5053*y*y + 0.299*i*i + 0.1957*q*q

	if y1 > y2 {
		return -delta
	}
	return delta
}

func blend(c color.RGBA) (float64, float64, float64) {
	if c.A == 255 {
		return float64(c.R), float64(c.G), float64(c.B)
	}
	// RGBA is alpha-premultiplied; add the white background
	white := 255 - float64(c.A)
	return float64(c.R) + white, float64(c.G) + white, float64(c.B) + white
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

func faded(c color.RGBA) color.RGBA {
	r, g, b := blend(c)
	y := rgb2y(r, g, b)
	v := uint8(255 + (y-255)*0.1)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// antialiased reports whether the pixel at (x, y) of img looks like an
// anti-aliased edge that other renders at the same spot.
func antialiased(img *image.RGBA, x, y int, other *image.RGBA) bool {
	b := img.Bounds()
	x0, y0 := max(x-1, 0), max(y-1, 0)
	x2, y2 := min(x+1, b.Dx()-1), min(y+1, b.Dy()-1)

	zeroes := 0
	if x == x0 || x == x2 || y == y0 || y == y2 {
		zeroes = 1
	}

	var minDelta, maxDelta float64
	var minX, minY, maxX, maxY int
	center := img.RGBAAt(x, y)

	for nx := x0; nx <= x2; nx++ {
		for ny := y0; ny <= y2; ny++ {
			if nx == x && ny == y {
				continue
			}
			delta := colorDelta(center, img.RGBAAt(nx, ny), true)
			switch {
			case delta == 0:
				zeroes++
				if zeroes > 2 {
					return false
				}
			case delta < minDelta:
				minDelta, minX, minY = delta, nx, ny
			case delta > maxDelta:
				maxDelta, maxX, maxY = delta, nx, ny
			}
		}
	}

	// An edge pixel has both a darker and a lighter neighbour
	if minDelta == 0 || maxDelta == 0 {
		return false
	}

	return (hasManySiblings(img, minX, minY) && hasManySiblings(other, minX, minY)) ||
		(hasManySiblings(img, maxX, maxY) && hasManySiblings(other, maxX, maxY))
}

// hasManySiblings reports whether at least three neighbours share the pixel's exact colour
func hasManySiblings(img *image.RGBA, x, y int) bool {
	b := img.Bounds()
	if x >= b.Dx() || y >= b.Dy() {
		return false
	}
	x0, y0 := max(x-1, 0), max(y-1, 0)
	x2, y2 := min(x+1, b.Dx()-1), min(y+1, b.Dy()-1)

	zeroes := 0
	if x == x0 || x == x2 || y == y0 || y == y2 {
		zeroes = 1
	}

	center := img.RGBAAt(x, y)
	for nx := x0; nx <= x2; nx++ {
		for ny := y0; ny <= y2; ny++ {
			if nx == x && ny == y {
				continue
			}
			if img.RGBAAt(nx, ny) == center {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}
	return false
}
