// Package scoring grades a projected approach against a fixed set of
// categories and severe safety penalties.
package scoring

import (
	"errors"
	"math"
	"sort"

	"github.com/yegors/glidepath/internal/approach"
	"github.com/yegors/glidepath/internal/physics"
	"github.com/yegors/glidepath/internal/runway"
)

// Version identifies the scoring rules that produced a result
const Version = "1.0"

// ErrNoApproachPoints is returned when there is nothing to score
var ErrNoApproachPoints = errors.New("no approach points")

// Wind is the surface wind at the destination. A nil direction means the
// wind was calm or variable and produces no crosswind.
type Wind struct {
	Direction *float64
	Speed     float64
	Gust      float64
}

// ReferenceSpeeds are the aircraft type's approach and dirty stall speeds in
// knots. Zero values fall back to the configured defaults.
type ReferenceSpeeds struct {
	Approach   float64
	DirtyStall float64
}

// WindSummary echoes the wind used for scoring
type WindSummary struct {
	Dir       *int `json:"dir"`
	Speed     int  `json:"speed"`
	Gust      int  `json:"gust"`
	Crosswind int  `json:"crosswind"`
}

// AircraftData echoes the reference speeds used for scoring
type AircraftData struct {
	TargetSpeed float64 `json:"targetSpeed"`
	DirtyStall  float64 `json:"dirtyStall"`
}

// ApproachScore is the full result of one scoring run
type ApproachScore struct {
	Version         string           `json:"version"`
	Runway          string           `json:"runway"`
	Scores          []CategoryResult `json:"scores"`
	SeverePenalties []SeverePenalty  `json:"severePenalties"`
	Total           int              `json:"total"`
	MaxTotal        int              `json:"maxTotal"`
	Percentage      int              `json:"percentage"`
	Grade           string           `json:"grade"`
	Metrics         map[string]any   `json:"metrics"`
	Wind            WindSummary      `json:"wind"`
	AircraftData    AircraftData     `json:"aircraftData"`
}

// Category returns the result for c
func (s *ApproachScore) Category(c Category) (CategoryResult, bool) {
	for _, r := range s.Scores {
		if r.Category == c {
			return r, true
		}
	}
	return CategoryResult{}, false
}

// Engine scores approaches under one Config snapshot. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine bound to cfg
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the snapshot the engine scores with
func (e *Engine) Config() Config {
	return e.cfg
}

// Score grades the approach points for the selected runway end. wind and
// speeds are optional.
func (e *Engine) Score(points []approach.Point, rwy runway.Selection, wind *Wind, speeds *ReferenceSpeeds) (*ApproachScore, error) {
	if len(points) == 0 {
		return nil, ErrNoApproachPoints
	}
	cfg := e.cfg

	sorted := make([]approach.Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DistanceNM > sorted[j].DistanceNM
	})

	in := Input{
		Points:      sorted,
		Config:      cfg,
		TargetSpeed: cfg.DefaultApproach,
		DirtyStall:  cfg.DefaultStall,
	}
	if speeds != nil {
		if speeds.Approach > 0 {
			in.TargetSpeed = speeds.Approach
		}
		if speeds.DirtyStall > 0 {
			in.DirtyStall = speeds.DirtyStall
		}
	}

	summary := WindSummary{}
	if wind != nil {
		in.Gust = wind.Gust
		in.Crosswind = crosswind(wind, rwy.Heading)
		summary.Speed = int(math.Round(wind.Speed))
		summary.Gust = int(math.Round(wind.Gust))
		if wind.Direction != nil {
			dir := int(math.Round(*wind.Direction))
			summary.Dir = &dir
		}
	}
	summary.Crosswind = int(in.Crosswind)

	result := &ApproachScore{
		Version: Version,
		Runway:  rwy.End.ID,
		Scores:  make([]CategoryResult, 0, len(Categories)),
		Metrics: map[string]any{},
		Wind:    summary,
		AircraftData: AircraftData{
			TargetSpeed: in.TargetSpeed,
			DirtyStall:  in.DirtyStall,
		},
	}

	total := 0
	for _, c := range Categories {
		r := c.Evaluate(in)
		total += r.Score
		result.MaxTotal += r.Max
		for k, v := range r.Metrics {
			result.Metrics[k] = v
		}
		result.Scores = append(result.Scores, r)
	}

	result.SeverePenalties = checkSeverePenalties(in)
	for _, p := range result.SeverePenalties {
		total -= p.Penalty
	}
	result.Total = max(0, total)

	var ratio float64
	if result.MaxTotal > 0 {
		ratio = float64(result.Total) / float64(result.MaxTotal) * 100
	}
	result.Percentage = int(math.RoundToEven(ratio))
	result.Grade = cfg.Grade(ratio)

	return result, nil
}

// Grade maps a percentage to a letter
func (c Config) Grade(pct float64) string {
	switch {
	case pct >= c.GradeA:
		return "A"
	case pct >= c.GradeB:
		return "B"
	case pct >= c.GradeC:
		return "C"
	case pct >= c.GradeD:
		return "D"
	}
	return "F"
}

func crosswind(w *Wind, runwayHeading float64) float64 {
	if w == nil || w.Direction == nil {
		return 0
	}
	_, xw := physics.WindComponents(*w.Direction, w.Speed, runwayHeading)
	return xw
}
