package segment

import (
	"fmt"

	"github.com/yegors/glidepath/internal/track"
)

// Stand-ins for missing altitudes so they never win a min or max comparison
const (
	missingLow  = 99999.0
	missingHigh = 0.0
)

// DetectGhost reports whether a flight has no genuine approach in its data.
// Rules are evaluated in order and the first match supplies the reason.
func DetectGhost(points []track.DerivedPoint, elevation float64, th Thresholds) (bool, string) {
	th = th.WithDefaults()

	if len(points) < th.MinPoints {
		return true, "Too few track points"
	}

	minAlt, maxAlt := missingLow, missingHigh
	for i, p := range points {
		lo, hi := altitudeOr(p, missingLow), altitudeOr(p, missingHigh)
		if i == 0 || lo < minAlt {
			minAlt = lo
		}
		if i == 0 || hi > maxAlt {
			maxAlt = hi
		}
	}

	if minAGL := minAlt - elevation; minAGL > th.NeverBelowAGL {
		return true, fmt.Sprintf("Never below %.0fft AGL (min: %.0fft AGL)", th.NeverBelowAGL, minAGL)
	}

	if altRange := maxAlt - minAlt; altRange < th.MinAltitudeRange {
		return true, fmt.Sprintf("No descent (alt range only %.0fft)", altRange)
	}

	if lastAGL := altitudeOr(points[len(points)-1], missingLow) - elevation; lastAGL > th.LastPointCeiling {
		return true, fmt.Sprintf("Last point too high (%.0fft AGL)", lastAGL)
	}

	window := points
	if len(window) > th.FinalWindow {
		window = window[len(window)-th.FinalWindow:]
	}
	minSpeed, seen := 0.0, false
	for _, p := range window {
		// A zero speed is a placeholder from the feed, not a measurement
		if p.Speed == nil || *p.Speed == 0 {
			continue
		}
		if !seen || *p.Speed < minSpeed {
			minSpeed, seen = *p.Speed, true
		}
	}
	if seen && minSpeed > th.FinalSpeedCeiling {
		return true, fmt.Sprintf("Final speeds too high (%.0fkts) - jet not slowing", minSpeed)
	}

	return false, ""
}
