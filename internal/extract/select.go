package extract

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"sort"

	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// Scored pairs a candidate frame with its quality score.
type Scored struct {
	Frame
	Score  float64
	Width  int
	Height int
}

// Selector scores candidates and picks the best ones subject to the
// minimum spacing constraint.
type Selector struct {
	Scorer Scorer
}

// Select scores every frame and returns up to count winners. For a
// single frame the global best wins outright. For more, candidates are
// taken greedily in score order, skipping any closer than minInterval
// seconds to an already selected frame, and the winners are returned in
// timestamp order.
func (s *Selector) Select(frames []Frame, count int, minInterval float64) ([]Scored, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	if count < 1 {
		count = 1
	}

	scored := make([]Scored, 0, len(frames))
	for _, f := range frames {
		img, err := loadImage(f.Path)
		if err != nil {
			return nil, fmt.Errorf("extract: decode %s: %w", f.Path, err)
		}
		bounds := img.Bounds()
		scored = append(scored, Scored{
			Frame:  f,
			Score:  s.Scorer.Score(img),
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if count == 1 {
		return scored[:1], nil
	}

	var selected []Scored
	for _, candidate := range scored {
		tooClose := false
		for _, s := range selected {
			if abs(candidate.Timestamp-s.Timestamp) < minInterval {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		selected = append(selected, candidate)
		if len(selected) >= count {
			break
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Timestamp < selected[j].Timestamp
	})
	return selected, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// SaveJPEG writes the frame to path, optionally watermarked. Watermarked
// output is encoded at a lower quality than clean output.
func SaveJPEG(img image.Image, path string, watermarked bool) (int64, error) {
	quality := 95
	if watermarked {
		img = Watermark(img)
		quality = 85
	}
	f, err := os.Create(path) // #nosec G304
	if err != nil {
		return 0, fmt.Errorf("extract: create %s: %w", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		return 0, fmt.Errorf("extract: encode %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// WatermarkedFor reports whether output for the tier carries a watermark.
func WatermarkedFor(t tier.Tier) bool {
	return tier.LimitsFor(t).Watermarked
}
