// Package approach re-expresses track points in a runway-relative frame.
package approach

import (
	"fmt"
	"math"
	"time"

	"github.com/yegors/glidepath/internal/physics"
	"github.com/yegors/glidepath/internal/runway"
	"github.com/yegors/glidepath/internal/track"
)

// Approach geometry
const (
	GlideslopeAngle         = 3.0  // degrees
	ThresholdCrossingHeight = 50.0 // feet above threshold
	MaxAlongTrackNM         = 10.0 // corridor length
	DefaultHeadingFilter    = 30.0 // degrees either side of the inbound course

	DefaultTruncateNM  = 15.0
	TruncateCeilingAGL = 5000.0

	noPositionNM = 9999.0
)

// Point is a track point relative to the selected threshold. Distance is
// positive before the threshold, cross-track is positive right of the
// extended centerline as seen from the threshold looking out.
type Point struct {
	Index int       `json:"idx"`
	Time  time.Time `json:"time"`

	DistanceNM   float64 `json:"distNm"`
	CrossTrackFt float64 `json:"crossTrackFt"`

	Altitude        *float64 `json:"altitude"`
	AGL             *float64 `json:"agl"`
	GlideslopeDevFt *float64 `json:"gsDevFt"`

	Speed         *float64 `json:"speed"`
	VerticalSpeed *int     `json:"vs"`
	Heading       *float64 `json:"track"`
	TurnRate      *float64 `json:"turn_rate"`
	Acceleration  *float64 `json:"accel"`
}

// Project keeps the points inside the approach corridor of the selected runway
// end. Points without coordinates, points whose track is more than
// headingFilter degrees off the runway course and points outside (0, 10] nm
// along-track are dropped. The input is not modified.
func Project(points []track.DerivedPoint, rwy runway.Selection, headingFilter float64) []Point {
	if headingFilter <= 0 {
		headingFilter = DefaultHeadingFilter
	}
	outbound := physics.NormalizeHeading(rwy.Heading + 180)

	var out []Point
	for idx, p := range points {
		if !p.HasPosition() {
			continue
		}
		lat, lon := *p.Latitude, *p.Longitude

		if p.Heading != nil && physics.AngleDiff(*p.Heading, rwy.Heading) > headingFilter {
			continue
		}

		dist := physics.HaversineNM(rwy.ThresholdLat, rwy.ThresholdLon, lat, lon)
		bearing := physics.InitialBearing(rwy.ThresholdLat, rwy.ThresholdLon, lat, lon)
		angle := physics.SignedAngle(bearing-outbound) * math.Pi / 180

		along := dist * math.Cos(angle)
		if along <= 0 || along > MaxAlongTrackNM {
			continue
		}

		ap := Point{
			Index:         idx,
			Time:          p.Time,
			DistanceNM:    along,
			CrossTrackFt:  dist * math.Sin(angle) * physics.FeetPerNM,
			Speed:         p.Speed,
			VerticalSpeed: verticalSpeed(p),
			Heading:       p.Heading,
			TurnRate:      p.TurnRate,
			Acceleration:  p.Acceleration,
		}
		if p.Altitude != nil {
			alt := *p.Altitude
			ideal := rwy.Elevation + physics.GlidepathHeight(along, GlideslopeAngle, ThresholdCrossingHeight)
			ap.Altitude = track.Ptr(alt)
			ap.AGL = track.Ptr(alt - rwy.Elevation)
			ap.GlideslopeDevFt = track.Ptr(alt - ideal)
		}
		out = append(out, ap)
	}
	return out
}

// verticalSpeed prefers the derived rate and falls back to the feed's own
func verticalSpeed(p track.DerivedPoint) *int {
	if p.VerticalSpeed != nil {
		return p.VerticalSpeed
	}
	return p.ReportedVerticalSpeed
}

// Truncate cuts the cruise portion off a leg: everything before the first
// point within maxDistanceNM of the threshold, then any leading points still
// above 5000 ft AGL. It returns the remaining points and a flag per cut.
func Truncate(points []track.DerivedPoint, rwy runway.Selection, maxDistanceNM, elevation float64) ([]track.DerivedPoint, []string) {
	if len(points) == 0 {
		return points, nil
	}
	if maxDistanceNM <= 0 {
		maxDistanceNM = DefaultTruncateNM
	}

	var flags []string
	start := 0
	for i, p := range points {
		d := noPositionNM
		if p.HasPosition() {
			d = physics.HaversineNM(rwy.ThresholdLat, rwy.ThresholdLon, *p.Latitude, *p.Longitude)
		}
		if d <= maxDistanceNM {
			start = i
			break
		}
	}
	if start > 0 {
		flags = append(flags, fmt.Sprintf("TRUNCATED: Removed %d cruise points (>%snm)", start, formatNM(maxDistanceNM)))
	}

	for i := start; i < len(points); i++ {
		var alt float64
		if points[i].Altitude != nil {
			alt = *points[i].Altitude
		}
		if alt-elevation <= TruncateCeilingAGL {
			if i > start {
				flags = append(flags, fmt.Sprintf("TRUNCATED: Removed %d high-altitude points (>5000ft AGL)", i-start))
			}
			start = i
			break
		}
	}

	return points[start:], flags
}

// formatNM prints whole distances without a decimal point
func formatNM(nm float64) string {
	if nm == math.Trunc(nm) {
		return fmt.Sprintf("%.0f", nm)
	}
	return fmt.Sprintf("%g", nm)
}
