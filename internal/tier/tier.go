// Package tier defines subscription tiers and the policy gating what each
// tier may process.
package tier

import (
	"fmt"
	"strings"
)

// Tier is a subscription level gating usage limits and output quality.
type Tier string

const (
	Anonymous Tier = "anonymous"
	Free      Tier = "free"
	Pro       Tier = "pro"
)

// Parse maps a tier name to a Tier, defaulting to Anonymous for unknown
// or empty input. Unknown tiers must never widen limits.
func Parse(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case Free:
		return Free
	case Pro:
		return Pro
	default:
		return Anonymous
	}
}

// Quality selects the analysis depth of the remote scorer.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityBest     Quality = "best"
)

// rank orders qualities fast < balanced < best.
func (q Quality) rank() int {
	switch q {
	case QualityFast:
		return 0
	case QualityBalanced:
		return 1
	case QualityBest:
		return 2
	default:
		return -1
	}
}

// AtMost returns q capped to the given ceiling. Unknown qualities collapse
// to the ceiling rather than passing through.
func (q Quality) AtMost(ceiling Quality) Quality {
	if q.rank() < 0 || q.rank() > ceiling.rank() {
		return ceiling
	}
	return q
}

// Valid reports whether q is one of the known qualities.
func (q Quality) Valid() bool {
	return q.rank() >= 0
}

// Mode selects the remote scoring heuristic.
type Mode string

const (
	ModeProfile Mode = "profile"
	ModeAction  Mode = "action"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeProfile || m == ModeAction
}

// Options are the processing parameters for one session. Immutable once
// processing starts.
type Options struct {
	Mode        Mode
	Quality     Quality
	Count       int
	SampleRate  int     // analyze every Nth frame
	MinInterval float64 // seconds between selected frames; meaningful only when Count > 1
}

// DefaultOptions mirrors the product defaults.
func DefaultOptions() Options {
	return Options{
		Mode:        ModeProfile,
		Quality:     QualityBalanced,
		Count:       1,
		SampleRate:  30,
		MinInterval: 2.0,
	}
}

// Normalize enforces numeric floors without consulting any tier.
func (o Options) Normalize() Options {
	if !o.Mode.Valid() {
		o.Mode = ModeProfile
	}
	if !o.Quality.Valid() {
		o.Quality = QualityBalanced
	}
	if o.Count < 1 {
		o.Count = 1
	}
	if o.SampleRate < 1 {
		o.SampleRate = 1
	}
	if o.MinInterval < 0.5 {
		o.MinInterval = 0.5
	}
	return o
}

// Limits is the derived policy table for one tier. Static configuration,
// not user-mutable.
type Limits struct {
	MaxFileSize    int64
	MaxFrameCount  int
	MaxQuality     Quality
	Watermarked    bool
	MaxResolution  string
	VideosPerMonth int // 0 means the tier is day-limited instead
	VideosPerDay   int // 0 means the tier is month-limited instead
}

const mb = int64(1024 * 1024)

var limitsTable = map[Tier]Limits{
	Anonymous: {
		MaxFileSize:   100 * mb,
		MaxFrameCount: 3,
		MaxQuality:    QualityBalanced,
		Watermarked:   true,
		MaxResolution: "720p",
		VideosPerDay:  1,
	},
	Free: {
		MaxFileSize:    50 * mb,
		MaxFrameCount:  3,
		MaxQuality:     QualityBalanced,
		Watermarked:    true,
		MaxResolution:  "720p",
		VideosPerMonth: 3,
	},
	Pro: {
		MaxFileSize:    500 * mb,
		MaxFrameCount:  10,
		MaxQuality:     QualityBest,
		Watermarked:    false,
		MaxResolution:  "1080p",
		VideosPerMonth: 100,
	},
}

// LimitsFor returns the policy table entry for the tier. Unknown tiers get
// the anonymous limits.
func LimitsFor(t Tier) Limits {
	if l, ok := limitsTable[t]; ok {
		return l
	}
	return limitsTable[Anonymous]
}

// ClampOptions silently caps options to what the tier allows. It never
// fails; the remote service remains the final authority.
func ClampOptions(o Options, t Tier) Options {
	o = o.Normalize()
	limits := LimitsFor(t)
	if o.Count > limits.MaxFrameCount {
		o.Count = limits.MaxFrameCount
	}
	o.Quality = o.Quality.AtMost(limits.MaxQuality)
	return o
}

// FormatSize renders a byte count the way the UI shows limits, e.g. "50MB".
func FormatSize(bytes int64) string {
	if bytes%mb == 0 {
		return fmt.Sprintf("%dMB", bytes/mb)
	}
	return fmt.Sprintf("%.1fMB", float64(bytes)/float64(mb))
}
