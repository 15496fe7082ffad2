package scoring

import (
	"fmt"

	"github.com/yegors/glidepath/internal/approach"
)

// Category is one of the fixed scoring categories
type Category int

const (
	Descent Category = iota
	Stabilized
	Centerline
	TurnToFinal
	SpeedControl
	ThresholdCrossing
)

// Categories lists every category in report order
var Categories = []Category{Descent, Stabilized, Centerline, TurnToFinal, SpeedControl, ThresholdCrossing}

var categoryNames = [...]string{
	Descent:           "descent",
	Stabilized:        "stabilized",
	Centerline:        "centerline",
	TurnToFinal:       "turnToFinal",
	SpeedControl:      "speedControl",
	ThresholdCrossing: "thresholdCrossing",
}

var categoryDescriptions = [...]string{
	Descent:           "Glideslope tracking quality",
	Stabilized:        "Stabilized approach distance",
	Centerline:        "Runway centerline tracking",
	TurnToFinal:       "Turn to final quality",
	SpeedControl:      "Approach speed discipline",
	ThresholdCrossing: "Threshold crossing height",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// Description is the human readable purpose of the category
func (c Category) Description() string {
	if c < 0 || int(c) >= len(categoryDescriptions) {
		return ""
	}
	return categoryDescriptions[c]
}

// MarshalText encodes the category by name
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name
func (c *Category) UnmarshalText(b []byte) error {
	for i, name := range categoryNames {
		if name == string(b) {
			*c = Category(i)
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", string(b))
}

// Max returns the category's maximum score under cfg
func (c Category) Max(cfg Config) int {
	switch c {
	case Descent:
		return pts(cfg.DescentMax)
	case Stabilized:
		return pts(cfg.StabilizedMax)
	case Centerline:
		return pts(cfg.CenterlineMax)
	case TurnToFinal:
		return pts(cfg.TurnToFinalMax)
	case SpeedControl:
		return pts(cfg.SpeedControlMax)
	case ThresholdCrossing:
		return pts(cfg.ThresholdCrossingMax)
	}
	return 0
}

// Input is everything a category evaluator sees. Points are sorted far to
// near.
type Input struct {
	Points      []approach.Point
	Config      Config
	TargetSpeed float64
	DirtyStall  float64
	Crosswind   float64
	Gust        float64
}

// CategoryResult is one category's outcome. Score never drops below 0.
type CategoryResult struct {
	Category   Category       `json:"category"`
	Score      int            `json:"score"`
	Max        int            `json:"max"`
	NoData     bool           `json:"noData,omitempty"`
	Details    []string       `json:"details"`
	Deductions []string       `json:"deductions"`
	Metrics    map[string]any `json:"metrics,omitempty"`
}

func (r *CategoryResult) deduct(n int, format string, args ...any) {
	r.Score -= n
	r.Deductions = append(r.Deductions, fmt.Sprintf("-%d: ", n)+fmt.Sprintf(format, args...))
}

func (r *CategoryResult) detail(format string, args ...any) {
	r.Details = append(r.Details, fmt.Sprintf(format, args...))
}

func (r *CategoryResult) floor() {
	if r.Score < 0 {
		r.Score = 0
	}
}

// Evaluate scores the points for this category
func (c Category) Evaluate(in Input) CategoryResult {
	res := CategoryResult{
		Category:   c,
		Score:      c.Max(in.Config),
		Max:        c.Max(in.Config),
		Details:    []string{},
		Deductions: []string{},
	}
	switch c {
	case Descent:
		evalDescent(in, &res)
	case Stabilized:
		evalStabilized(in, &res)
	case Centerline:
		evalCenterline(in, &res)
	case TurnToFinal:
		evalTurnToFinal(in, &res)
	case SpeedControl:
		evalSpeedControl(in, &res)
	case ThresholdCrossing:
		evalThresholdCrossing(in, &res)
	}
	res.floor()
	return res
}

// pts converts a configured point value to whole points
func pts(v float64) int {
	if v < 0 {
		return -int(-v + 0.5)
	}
	return int(v + 0.5)
}
