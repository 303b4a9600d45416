package imgdiff

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vizard/internal/interfaces"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 100}))
}

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
)

func TestDiff_Identical(t *testing.T) {
	_, count := Diff(solid(20, 20, white), solid(20, 20, white), interfaces.DiffOptions{})
	assert.Zero(t, count)
}

func TestDiff_SinglePixel(t *testing.T) {
	a := solid(20, 20, white)
	b := solid(20, 20, white)
	b.SetRGBA(10, 10, black)

	out, count := Diff(a, b, interfaces.DiffOptions{})
	assert.Equal(t, 1, count)
	assert.Equal(t, diffColor, out.RGBAAt(10, 10))
}

func TestDiff_ThresholdTolerance(t *testing.T) {
	a := solid(10, 10, white)
	b := solid(10, 10, color.RGBA{R: 250, G: 250, B: 250, A: 255})

	_, strict := Diff(a, b, interfaces.DiffOptions{Threshold: 0})
	assert.Equal(t, 100, strict)

	_, lenient := Diff(a, b, interfaces.DiffOptions{Threshold: 0.1})
	assert.Zero(t, lenient)
}

func TestDiff_SizeMismatch(t *testing.T) {
	out, count := Diff(solid(10, 10, white), solid(12, 10, white), interfaces.DiffOptions{})

	assert.Equal(t, 20, count)
	assert.Equal(t, image.Rect(0, 0, 12, 10), out.Bounds())
}

func TestDiff_AntiAliasedEdge(t *testing.T) {
	// A vertical black/white edge whose boundary column is grey in one render
	edge := func(boundary color.RGBA) *image.RGBA {
		img := solid(9, 9, white)
		for y := 0; y < 9; y++ {
			for x := 0; x < 4; x++ {
				img.SetRGBA(x, y, black)
			}
			img.SetRGBA(4, y, boundary)
		}
		return img
	}
	a := edge(white)
	b := edge(color.RGBA{R: 128, G: 128, B: 128, A: 255})

	_, ignored := Diff(a, b, interfaces.DiffOptions{})
	_, counted := Diff(a, b, interfaces.DiffOptions{IncludeAA: true})

	assert.Less(t, ignored, counted)
	assert.Equal(t, 9, counted)
}

func TestColorDelta(t *testing.T) {
	assert.Zero(t, colorDelta(white, white, false))
	assert.Less(t, colorDelta(white, black, false), -32000.0)
	assert.Greater(t, colorDelta(black, white, false), 32000.0)
	assert.InDelta(t, 255, colorDelta(white, black, true), 0.01)
}

func TestOracle_Compare(t *testing.T) {
	dir := t.TempDir()
	tested := filepath.Join(dir, "tested.jpeg")
	golden := filepath.Join(dir, "golden.jpeg")
	diffPath := filepath.Join(dir, "diff", "Suite", "test", "20x20.jpeg")

	writeJPEG(t, tested, solid(20, 20, white))
	writeJPEG(t, golden, solid(20, 20, white))

	result, err := NewOracle().Compare(tested, golden, diffPath, interfaces.DiffOptions{})
	require.NoError(t, err)
	assert.True(t, result.Same)
	assert.Equal(t, 20, result.Width)
	assert.NoFileExists(t, diffPath)

	writeJPEG(t, golden, solid(20, 20, black))
	result, err = NewOracle().Compare(tested, golden, diffPath, interfaces.DiffOptions{Threshold: 0.1})
	require.NoError(t, err)
	assert.False(t, result.Same)
	assert.Equal(t, 400, result.DiffCount)
	assert.FileExists(t, diffPath)
}

func TestOracle_CompareMissingFile(t *testing.T) {
	dir := t.TempDir()
	tested := filepath.Join(dir, "tested.jpeg")
	writeJPEG(t, tested, solid(4, 4, white))

	_, err := NewOracle().Compare(tested, filepath.Join(dir, "missing.jpeg"), "", interfaces.DiffOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.jpeg")
}
