package segment

import (
	"github.com/yegors/glidepath/internal/track"
)

// SplitLegs finds touchdowns as valleys in the smoothed AGL profile and cuts
// the flight into one leg per landing attempt. Each leg ends at its
// touchdown valley except the last, which runs to the end of the flight.
// Legs cover the whole flight; consecutive legs share their boundary valley.
func SplitLegs(points []track.DerivedPoint, elevation float64, th Thresholds) []Leg {
	th = th.WithDefaults()
	n := len(points)
	last := n - 1

	if n < th.LegMinPoints {
		return []Leg{newLeg(points, 0, last, LegUnknown)}
	}

	smoothed := smoothAGL(points, elevation)
	valleys := mergeValleys(points, smoothed, findValleys(smoothed, th.ValleyCeiling), th)

	if len(valleys) <= 1 {
		typ := LegUnknown
		if len(valleys) == 1 {
			typ = LegFullStop
		}
		return []Leg{newLeg(points, 0, last, typ)}
	}

	var legs []Leg
	start := 0
	for i, v := range valleys[:len(valleys)-1] {
		next := valleys[i+1]
		// Without a climb-out before the next valley it is the same attempt
		if climbsOut(smoothed[v:next+1], th.ClimbOut) {
			legs = append(legs, newLeg(points, start, v, LegTouchAndGo))
			start = v
		}
	}

	lastValley := valleys[len(valleys)-1]
	trailing := LegFullStop
	if lastValley < n-th.TrailingMargin && climbsOut(smoothed[lastValley:], th.ClimbOut) {
		trailing = LegTouchAndGo
	}
	return append(legs, newLeg(points, start, last, trailing))
}

// climbsOut reports whether the profile rises at least climb feet above its
// first sample
func climbsOut(smoothed []float64, climb float64) bool {
	return maxOf(smoothed) >= smoothed[0]+climb
}

// smoothAGL is a centred 3-point moving average of AGL. Edge points average
// over the two points available.
func smoothAGL(points []track.DerivedPoint, elevation float64) []float64 {
	agl := make([]float64, len(points))
	for i, p := range points {
		agl[i] = altitudeOr(p, 0) - elevation
	}

	smoothed := make([]float64, len(agl))
	for i := range agl {
		lo, hi := max(0, i-1), min(len(agl), i+2)
		var sum float64
		for _, v := range agl[lo:hi] {
			sum += v
		}
		smoothed[i] = sum / float64(hi-lo)
	}
	return smoothed
}

// findValleys returns local minima below ceiling that are no higher than
// both neighbours on each side
func findValleys(smoothed []float64, ceiling float64) []int {
	var valleys []int
	for i := 2; i < len(smoothed)-2; i++ {
		v := smoothed[i]
		if v >= ceiling {
			continue
		}
		if v <= smoothed[i-1] && v <= smoothed[i+1] && v <= smoothed[i-2] && v <= smoothed[i+2] {
			valleys = append(valleys, i)
		}
	}
	return valleys
}

// mergeValleys collapses valleys closer in time than the merge window into the
// lower of the two
func mergeValleys(points []track.DerivedPoint, smoothed []float64, valleys []int, th Thresholds) []int {
	var merged []int
	window := th.ValleyMergeWindow.Duration()
	for _, v := range valleys {
		if len(merged) == 0 {
			merged = append(merged, v)
			continue
		}
		prev := merged[len(merged)-1]
		if points[v].Time.Sub(points[prev].Time) > window {
			merged = append(merged, v)
		} else if smoothed[v] < smoothed[prev] {
			merged[len(merged)-1] = v
		}
	}
	return merged
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
