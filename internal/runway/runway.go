// Package runway models runway thresholds and picks the runway a flight was
// most likely landing on.
package runway

import (
	"errors"
	"math"
	"time"

	"github.com/yegors/glidepath/internal/physics"
	"github.com/yegors/glidepath/internal/track"
)

// ErrNoRunways is returned when an airport has no runway ends at all
var ErrNoRunways = errors.New("no runway ends available")

// RunwayEnd is one physical threshold. The reciprocal coordinates are those of
// the opposite end of the same runway.
type RunwayEnd struct {
	ID      string `json:"runway_id"`
	Airport string `json:"airport"`

	Lat          *float64 `json:"threshold_lat,omitempty"`
	Lon          *float64 `json:"threshold_lon,omitempty"`
	DisplacedLat *float64 `json:"displaced_lat,omitempty"`
	DisplacedLon *float64 `json:"displaced_lon,omitempty"`

	TrueHeading      *float64 `json:"true_heading,omitempty"` // published
	TDZE             *float64 `json:"tdze,omitempty"`
	AirportElevation *float64 `json:"airport_elevation,omitempty"`

	ReciprocalID  string   `json:"reciprocal_id,omitempty"`
	ReciprocalLat *float64 `json:"reciprocal_lat,omitempty"`
	ReciprocalLon *float64 `json:"reciprocal_lon,omitempty"`

	Surface  string `json:"surface,omitempty"`
	LengthFt int    `json:"length_ft,omitempty"`
	WidthFt  int    `json:"width_ft,omitempty"`
}

// HasPosition reports whether the threshold coordinates are known
func (r RunwayEnd) HasPosition() bool {
	return r.Lat != nil && r.Lon != nil
}

// Threshold returns the landing threshold, preferring a displaced threshold
func (r RunwayEnd) Threshold() (lat, lon float64, ok bool) {
	if r.DisplacedLat != nil && r.DisplacedLon != nil {
		return *r.DisplacedLat, *r.DisplacedLon, true
	}
	if r.HasPosition() {
		return *r.Lat, *r.Lon, true
	}
	return 0, 0, false
}

// Elevation returns the touchdown zone elevation, else the field elevation,
// else 0
func (r RunwayEnd) Elevation() float64 {
	if r.TDZE != nil && *r.TDZE != 0 {
		return *r.TDZE
	}
	if r.AirportElevation != nil {
		return *r.AirportElevation
	}
	return 0
}

// ComputedHeading is the true course along the runway. The bearing towards the
// reciprocal threshold wins over the published heading when both ends are
// surveyed.
func (r RunwayEnd) ComputedHeading() float64 {
	if r.HasPosition() && r.ReciprocalLat != nil && r.ReciprocalLon != nil {
		return physics.InitialBearing(*r.Lat, *r.Lon, *r.ReciprocalLat, *r.ReciprocalLon)
	}
	if r.TrueHeading != nil {
		return *r.TrueHeading
	}
	return 0
}

// Method records how a selection was made
type Method string

const (
	MethodHeadingMatch Method = "heading_match"
	MethodFallback     Method = "fallback"
)

// Selection is the runway end chosen for one leg together with the values the
// projector needs
type Selection struct {
	End RunwayEnd `json:"runway"`

	ThresholdLat float64 `json:"threshold_lat"`
	ThresholdLon float64 `json:"threshold_lon"`

	Heading   float64 `json:"heading"` // true, rounded to 0.01
	Elevation float64 `json:"elevation"`

	Method      Method   `json:"method"`
	HeadingDiff *float64 `json:"heading_diff,omitempty"`
}

// Select picks the end whose runway course best matches the final track
// heading. Ties go to the first candidate. When no heading is known or no end
// has coordinates the first candidate is used with its published heading.
func Select(ends []RunwayEnd, finalHeading *float64) (Selection, error) {
	if len(ends) == 0 {
		return Selection{}, ErrNoRunways
	}

	if finalHeading != nil {
		best, bestDiff := -1, 360.0
		var bestHeading float64
		for i, end := range ends {
			if !end.HasPosition() {
				continue
			}
			hdg := end.ComputedHeading()
			if diff := physics.AngleDiff(hdg, *finalHeading); diff < bestDiff {
				best, bestDiff, bestHeading = i, diff, hdg
			}
		}
		if best >= 0 {
			sel := newSelection(ends[best], math.Round(bestHeading*100)/100, MethodHeadingMatch)
			sel.HeadingDiff = track.Ptr(bestDiff)
			return sel, nil
		}
	}

	first := ends[0]
	var hdg float64
	if first.TrueHeading != nil {
		hdg = *first.TrueHeading
	}
	return newSelection(first, hdg, MethodFallback), nil
}

func newSelection(end RunwayEnd, heading float64, method Method) Selection {
	sel := Selection{
		End:       end,
		Heading:   heading,
		Elevation: end.Elevation(),
		Method:    method,
	}
	if lat, lon, ok := end.Threshold(); ok {
		sel.ThresholdLat, sel.ThresholdLon = lat, lon
	}
	return sel
}

// MagneticHeading converts the selected course to magnetic using the
// declination at the threshold on the given date
func (s Selection) MagneticHeading(at time.Time) float64 {
	if _, _, ok := s.End.Threshold(); !ok {
		return s.Heading
	}
	return math.Round(physics.TrueToMagnetic(s.Heading, s.ThresholdLat, s.ThresholdLon, s.Elevation, at)*10) / 10
}

// FinalHeading returns the most recent track heading, scanning backwards
func FinalHeading(points []track.DerivedPoint) *float64 {
	for i := len(points) - 1; i >= 0; i-- {
		if h := points[i].Heading; h != nil {
			v := *h
			return &v
		}
	}
	return nil
}
