package extract

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// flatImage is a uniform mid-gray frame: no edges, no contrast.
func flatImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.Gray{Y: 127})
		}
	}
	return img
}

// busyImage is a checkerboard: sharp edges and high contrast everywhere.
func busyImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.Gray{Y: 235})
			} else {
				img.Set(x, y, color.Gray{Y: 20})
			}
		}
	}
	return img
}

func writeJPEG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
	require.NoError(t, f.Close())
	return path
}

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseRate("30000/1001"), 0.01)
	assert.Equal(t, 25.0, parseRate("25/1"))
	assert.Equal(t, 30.0, parseRate("30"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 0.0, parseRate(""))
}

func TestScorerPrefersDetailOverFlat(t *testing.T) {
	s := &Scorer{Mode: tier.ModeProfile, Quality: tier.QualityBalanced}
	flat := s.Score(flatImage(64, 64))
	busy := s.Score(busyImage(64, 64))
	assert.Greater(t, busy, flat)
}

func TestScoresStayInRange(t *testing.T) {
	for _, mode := range []tier.Mode{tier.ModeProfile, tier.ModeAction} {
		for _, q := range []tier.Quality{tier.QualityFast, tier.QualityBalanced, tier.QualityBest} {
			s := &Scorer{Mode: mode, Quality: q}
			for _, img := range []image.Image{flatImage(48, 48), busyImage(48, 48)} {
				score := s.Score(img)
				assert.GreaterOrEqual(t, score, 0.0)
				assert.LessOrEqual(t, score, 1.0)
			}
		}
	}
}

func TestActionModeRewardsEdgeActivity(t *testing.T) {
	profile := &Scorer{Mode: tier.ModeProfile, Quality: tier.QualityBalanced}
	action := &Scorer{Mode: tier.ModeAction, Quality: tier.QualityBalanced}
	busy := busyImage(64, 64)
	assert.Greater(t, action.Score(busy), profile.Score(busy))
}

func TestSelectSingleReturnsBest(t *testing.T) {
	dir := t.TempDir()
	frames := []Frame{
		{Number: 0, Timestamp: 0, Path: writeJPEG(t, dir, "a.jpg", flatImage(32, 32))},
		{Number: 30, Timestamp: 1, Path: writeJPEG(t, dir, "b.jpg", busyImage(32, 32))},
		{Number: 60, Timestamp: 2, Path: writeJPEG(t, dir, "c.jpg", flatImage(32, 32))},
	}
	sel := &Selector{Scorer: Scorer{Mode: tier.ModeProfile, Quality: tier.QualityBalanced}}

	selected, err := sel.Select(frames, 1, 2.0)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, 1.0, selected[0].Timestamp)
	assert.Equal(t, 32, selected[0].Width)
}

func TestSelectRespectsMinInterval(t *testing.T) {
	dir := t.TempDir()
	// Two high-score frames 1s apart plus a distant low-score frame. With
	// a 2s minimum spacing only one of the close pair may win.
	frames := []Frame{
		{Number: 0, Timestamp: 10.0, Path: writeJPEG(t, dir, "a.jpg", busyImage(32, 32))},
		{Number: 30, Timestamp: 11.0, Path: writeJPEG(t, dir, "b.jpg", busyImage(32, 32))},
		{Number: 60, Timestamp: 20.0, Path: writeJPEG(t, dir, "c.jpg", flatImage(32, 32))},
	}
	sel := &Selector{Scorer: Scorer{Mode: tier.ModeProfile, Quality: tier.QualityBalanced}}

	selected, err := sel.Select(frames, 2, 2.0)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, 10.0, selected[0].Timestamp)
	assert.Equal(t, 20.0, selected[1].Timestamp)
}

func TestSelectReturnsWinnersInTimestampOrder(t *testing.T) {
	dir := t.TempDir()
	frames := []Frame{
		{Number: 0, Timestamp: 0, Path: writeJPEG(t, dir, "a.jpg", flatImage(32, 32))},
		{Number: 90, Timestamp: 3, Path: writeJPEG(t, dir, "b.jpg", busyImage(32, 32))},
		{Number: 180, Timestamp: 6, Path: writeJPEG(t, dir, "c.jpg", flatImage(32, 32))},
	}
	sel := &Selector{Scorer: Scorer{Mode: tier.ModeProfile, Quality: tier.QualityBalanced}}

	selected, err := sel.Select(frames, 3, 2.0)
	require.NoError(t, err)
	require.Len(t, selected, 3)
	assert.True(t, selected[0].Timestamp < selected[1].Timestamp)
	assert.True(t, selected[1].Timestamp < selected[2].Timestamp)
}

func TestSelectEmptyInput(t *testing.T) {
	sel := &Selector{}
	selected, err := sel.Select(nil, 3, 2.0)
	require.NoError(t, err)
	assert.Nil(t, selected)
}

func TestSaveJPEGWatermarkLowersQuality(t *testing.T) {
	dir := t.TempDir()
	img := busyImage(200, 120)

	cleanSize, err := SaveJPEG(img, filepath.Join(dir, "clean.jpg"), false)
	require.NoError(t, err)
	markedSize, err := SaveJPEG(img, filepath.Join(dir, "marked.jpg"), true)
	require.NoError(t, err)

	assert.Positive(t, cleanSize)
	assert.Positive(t, markedSize)
	assert.Less(t, markedSize, cleanSize)
}

func TestWatermarkPreservesDimensions(t *testing.T) {
	img := flatImage(320, 180)
	marked := Watermark(img)
	assert.Equal(t, img.Bounds(), marked.Bounds())

	// The bottom-right corner must differ from the untouched original.
	corner := marked.At(310, 170)
	r, g, b, _ := corner.RGBA()
	orig, og, ob, _ := img.At(310, 170).RGBA()
	assert.NotEqual(t, [3]uint32{orig, og, ob}, [3]uint32{r, g, b})
}

func TestWatermarkedFor(t *testing.T) {
	assert.True(t, WatermarkedFor(tier.Anonymous))
	assert.True(t, WatermarkedFor(tier.Free))
	assert.False(t, WatermarkedFor(tier.Pro))
}
