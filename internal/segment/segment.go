// Package segment classifies a flight's track history as ghost or valid and
// splits valid flights into landing legs.
package segment

import (
	"fmt"
	"time"

	"github.com/yegors/glidepath/internal/track"
)

// LegType classifies how a leg ended
type LegType string

const (
	LegFullStop    LegType = "full_stop"
	LegTouchAndGo  LegType = "touch_and_go"
	LegLowApproach LegType = "low_approach"
	LegUnknown     LegType = "unknown"
)

// Thresholds drive ghost detection and leg splitting. They are configured in
// their own [segmenter] section and are not part of the scoring overrides.
type Thresholds struct {
	MinPoints         int     `toml:"min_points"`
	NeverBelowAGL     float64 `toml:"never_below_agl"`
	MinAltitudeRange  float64 `toml:"min_altitude_range"`
	LastPointCeiling  float64 `toml:"last_point_ceiling"`
	FinalWindow       int     `toml:"final_window"`
	FinalSpeedCeiling float64 `toml:"final_speed_ceiling"`
	LegMinPoints      int     `toml:"leg_min_points"`
	ValleyCeiling     float64 `toml:"valley_ceiling"`
	ValleyMergeWindow Seconds `toml:"valley_merge_window"`
	ClimbOut          float64 `toml:"climb_out"`
	TrailingMargin    int     `toml:"trailing_margin"`
}

// Seconds is a duration configured as a plain number of seconds
type Seconds int

// Duration converts to time.Duration
func (s Seconds) Duration() time.Duration {
	return time.Duration(s) * time.Second
}

// DefaultThresholds returns the production defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinPoints:         5,
		NeverBelowAGL:     3000,
		MinAltitudeRange:  500,
		LastPointCeiling:  2000,
		FinalWindow:       5,
		FinalSpeedCeiling: 200,
		LegMinPoints:      10,
		ValleyCeiling:     500,
		ValleyMergeWindow: 60,
		ClimbOut:          300,
		TrailingMargin:    5,
	}
}

// WithDefaults fills every zero field from DefaultThresholds
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MinPoints <= 0 {
		t.MinPoints = d.MinPoints
	}
	if t.NeverBelowAGL == 0 {
		t.NeverBelowAGL = d.NeverBelowAGL
	}
	if t.MinAltitudeRange == 0 {
		t.MinAltitudeRange = d.MinAltitudeRange
	}
	if t.LastPointCeiling == 0 {
		t.LastPointCeiling = d.LastPointCeiling
	}
	if t.FinalWindow <= 0 {
		t.FinalWindow = d.FinalWindow
	}
	if t.FinalSpeedCeiling == 0 {
		t.FinalSpeedCeiling = d.FinalSpeedCeiling
	}
	if t.LegMinPoints <= 0 {
		t.LegMinPoints = d.LegMinPoints
	}
	if t.ValleyCeiling == 0 {
		t.ValleyCeiling = d.ValleyCeiling
	}
	if t.ValleyMergeWindow <= 0 {
		t.ValleyMergeWindow = d.ValleyMergeWindow
	}
	if t.ClimbOut == 0 {
		t.ClimbOut = d.ClimbOut
	}
	if t.TrailingMargin <= 0 {
		t.TrailingMargin = d.TrailingMargin
	}
	return t
}

// Leg is an inclusive index range [Start, End] into a flight's points
type Leg struct {
	Start       int       `json:"start_idx"`
	End         int       `json:"end_idx"`
	Type        LegType   `json:"leg_type"`
	MinAltitude float64   `json:"min_alt"`
	MaxAltitude float64   `json:"max_alt"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// PointCount returns the number of points in the leg
func (l Leg) PointCount() int {
	return l.End - l.Start + 1
}

// Points returns the leg's slice of the flight's points
func (l Leg) Points(points []track.DerivedPoint) []track.DerivedPoint {
	return points[l.Start : l.End+1]
}

// Result is the outcome of preprocessing one flight
type Result struct {
	Ghost       bool     `json:"is_ghost"`
	GhostReason string   `json:"ghost_reason,omitempty"`
	Legs        []Leg    `json:"legs"`
	Flags       []string `json:"flags"`
	PointCount  int      `json:"original_point_count"`
}

// Preprocess runs ghost detection and, for valid flights, leg splitting.
// elevation is the destination field elevation in feet, 0 when unknown.
func Preprocess(points []track.DerivedPoint, elevation float64, th Thresholds) Result {
	res := Result{PointCount: len(points)}
	if len(points) == 0 {
		res.Ghost = true
		res.GhostReason = "No track data"
		return res
	}

	if ghost, reason := DetectGhost(points, elevation, th); ghost {
		res.Ghost = true
		res.GhostReason = reason
		res.Flags = append(res.Flags, "GHOST: "+reason)
		return res
	}

	res.Legs = SplitLegs(points, elevation, th)
	if len(res.Legs) > 1 {
		res.Flags = append(res.Flags, fmt.Sprintf("PATTERN: %d legs detected", len(res.Legs)))
	}
	return res
}

// newLeg fills in the altitude envelope and time range of [start, end]
func newLeg(points []track.DerivedPoint, start, end int, typ LegType) Leg {
	leg := Leg{Start: start, End: end, Type: typ}
	if start > end || end >= len(points) {
		return leg
	}
	for i := start; i <= end; i++ {
		alt := altitudeOr(points[i], 0)
		if i == start || alt < leg.MinAltitude {
			leg.MinAltitude = alt
		}
		if i == start || alt > leg.MaxAltitude {
			leg.MaxAltitude = alt
		}
	}
	leg.StartTime = points[start].Time
	leg.EndTime = points[end].Time
	return leg
}

func altitudeOr(p track.DerivedPoint, fallback float64) float64 {
	if p.Altitude == nil {
		return fallback
	}
	return *p.Altitude
}
