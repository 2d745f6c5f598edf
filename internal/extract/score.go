package extract

import (
	"image"
	"math"

	"github.com/GrzywN/frame-picker-sub000/internal/tier"
)

// blurThreshold returns the Laplacian-variance normalizer for a quality
// level. Higher quality demands sharper frames before the score caps.
func blurThreshold(q tier.Quality) float64 {
	switch q {
	case tier.QualityFast:
		return 100
	case tier.QualityBest:
		return 200
	default:
		return 150
	}
}

// gray is an 8-bit luminance plane stored as float64 for the metric math.
type gray struct {
	w, h int
	pix  []float64
}

func (g *gray) at(x, y int) float64 {
	return g.pix[y*g.w+x]
}

// toGray converts an image using the BT.601 luma weights.
func toGray(img image.Image) *gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	g := &gray{w: w, h: h, pix: make([]float64, w*h)}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, gr, b, _ := img.At(x, y).RGBA()
			g.pix[i] = (0.299*float64(r) + 0.587*float64(gr) + 0.114*float64(b)) / 257.0
			i++
		}
	}
	return g
}

// region returns the sub-plane [x0,x1) x [y0,y1).
func (g *gray) region(x0, y0, x1, y1 int) *gray {
	w, h := x1-x0, y1-y0
	sub := &gray{w: w, h: h, pix: make([]float64, 0, w*h)}
	for y := y0; y < y1; y++ {
		sub.pix = append(sub.pix, g.pix[y*g.w+x0:y*g.w+x1]...)
	}
	return sub
}

func (g *gray) mean() float64 {
	var sum float64
	for _, v := range g.pix {
		sum += v
	}
	return sum / float64(len(g.pix))
}

func (g *gray) stddev() float64 {
	mean := g.mean()
	var sum float64
	for _, v := range g.pix {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(g.pix)))
}

// laplacianVariance measures focus with the 4-neighbor Laplacian kernel.
func (g *gray) laplacianVariance() float64 {
	if g.w < 3 || g.h < 3 {
		return 0
	}
	n := (g.w - 2) * (g.h - 2)
	responses := make([]float64, 0, n)
	var sum float64
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			v := g.at(x-1, y) + g.at(x+1, y) + g.at(x, y-1) + g.at(x, y+1) - 4*g.at(x, y)
			responses = append(responses, v)
			sum += v
		}
	}
	mean := sum / float64(n)
	var variance float64
	for _, v := range responses {
		d := v - mean
		variance += d * d
	}
	return variance / float64(n)
}

// edgeDensity is the fraction of pixels whose Sobel gradient magnitude
// exceeds the strong-edge threshold.
func (g *gray) edgeDensity() float64 {
	if g.w < 3 || g.h < 3 {
		return 0
	}
	const threshold = 150.0
	edges := 0
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			gx := g.at(x+1, y-1) + 2*g.at(x+1, y) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x-1, y) - g.at(x-1, y+1)
			gy := g.at(x-1, y+1) + 2*g.at(x, y+1) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x, y-1) - g.at(x+1, y-1)
			if math.Hypot(gx, gy) > threshold {
				edges++
			}
		}
	}
	return float64(edges) / float64(g.w*g.h)
}

// Scorer rates frames for one mode and quality combination.
type Scorer struct {
	Mode    tier.Mode
	Quality tier.Quality
}

// Score rates a frame in [0,1]. Profile mode favors sharp, well-lit,
// center-weighted frames; action mode trades some of that for edge
// activity spread across the image. There is no face detector in this
// pipeline, so the face term sits at its neutral value.
func (s *Scorer) Score(img image.Image) float64 {
	g := toGray(img)

	sharpness := math.Min(g.laplacianVariance()/blurThreshold(s.Quality), 1.0)
	brightness := 1.0 - math.Abs(g.mean()-127)/127
	contrast := math.Min(g.stddev()/80.0, 1.0)

	if s.Mode == tier.ModeAction {
		motion := math.Min(g.edgeDensity()*5, 1.0)
		composition := s.dynamicComposition(g)
		return sharpness*0.25 + brightness*0.15 + contrast*0.2 + motion*0.25 + composition*0.15
	}

	const face = 0.5
	composition := s.centerComposition(g)
	return sharpness*0.3 + brightness*0.2 + contrast*0.2 + face*0.2 + composition*0.1
}

// centerComposition rewards activity in the middle third of the frame.
func (s *Scorer) centerComposition(g *gray) float64 {
	center := g.region(g.w/3, g.h/3, 2*g.w/3, 2*g.h/3)
	if len(center.pix) == 0 {
		return 0
	}
	return math.Min(center.stddev()/50.0, 1.0)
}

// dynamicComposition rewards activity spread over all four quadrants.
func (s *Scorer) dynamicComposition(g *gray) float64 {
	quadrants := []*gray{
		g.region(0, 0, g.w/2, g.h/2),
		g.region(g.w/2, 0, g.w, g.h/2),
		g.region(0, g.h/2, g.w/2, g.h),
		g.region(g.w/2, g.h/2, g.w, g.h),
	}
	active := 0
	for _, q := range quadrants {
		if len(q.pix) > 0 && q.stddev() > 20 {
			active++
		}
	}
	return float64(active) / 4.0
}
