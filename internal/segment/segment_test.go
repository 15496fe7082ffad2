package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/glidepath/internal/track"
)

var t0 = time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

// profile builds a flight sampled every step with the given altitudes and a
// constant 80 kt ground speed
func profile(step time.Duration, alts ...float64) []track.DerivedPoint {
	points := make([]track.DerivedPoint, len(alts))
	for i, a := range alts {
		points[i].FlightID = "F1"
		points[i].Time = t0.Add(time.Duration(i) * step)
		points[i].Altitude = track.Ptr(a)
		points[i].Speed = track.Ptr(80.0)
	}
	return points
}

func TestDetectGhost(t *testing.T) {
	fast := profile(10*time.Second, 3000, 2000, 1500, 1000, 500)
	for i := range fast {
		fast[i].Speed = track.Ptr(250.0)
	}
	fast[4].Speed = track.Ptr(0.0)

	noAlt := profile(10*time.Second, 0, 0, 0, 0, 0)
	for i := range noAlt {
		noAlt[i].Altitude = nil
	}

	for _, tc := range []struct {
		name      string
		points    []track.DerivedPoint
		elevation float64
		ghost     bool
		reason    string
	}{
		{"too few", profile(10*time.Second, 3000, 2000, 1000, 0), 0, true, "Too few track points"},
		{"never low", profile(10*time.Second, 6000, 5000, 4000, 3600, 3500), 0, true, "Never below 3000ft AGL (min: 3500ft AGL)"},
		{"never low uses elevation", profile(10*time.Second, 6000, 5000, 4500, 4000, 3900), 1000, true, "Last point too high (2900ft AGL)"},
		{"no descent", profile(10*time.Second, 1400, 1300, 1200, 1100, 1000), 0, true, "No descent (alt range only 400ft)"},
		{"last point high", profile(10*time.Second, 5000, 4000, 1000, 2000, 2500), 0, true, "Last point too high (2500ft AGL)"},
		{"fast final", fast, 0, true, "Final speeds too high (250kts) - jet not slowing"},
		{"no altitudes", noAlt, 0, true, "Never below 3000ft AGL (min: 99999ft AGL)"},
		{"valid", profile(10*time.Second, 3000, 2000, 1500, 1000, 500), 0, false, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ghost, reason := DetectGhost(tc.points, tc.elevation, DefaultThresholds())
			assert.Equal(t, tc.ghost, ghost)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestDetectGhostTooFewAlwaysGhost(t *testing.T) {
	for n := 0; n < 5; n++ {
		ghost, reason := DetectGhost(profile(time.Second, make([]float64, n)...), 0, Thresholds{})
		assert.True(t, ghost)
		assert.Equal(t, "Too few track points", reason)
	}
}

// Two touchdowns 100 s apart with a climb to 1000 ft between them, then a
// roll-out with no further climb.
var patternAlts = []float64{
	2000, 1500, 1000, 500, 200, 0, 0, 200, 600, 1000,
	1000, 800, 400, 100, 0, 0, 0, 0, 0, 0,
}

func TestSplitLegsTouchAndGo(t *testing.T) {
	points := profile(10*time.Second, patternAlts...)
	legs := SplitLegs(points, 0, DefaultThresholds())

	require.Len(t, legs, 2)
	assert.Equal(t, Leg{Start: 0, End: 5, Type: LegTouchAndGo, MinAltitude: 0, MaxAltitude: 2000,
		StartTime: t0, EndTime: t0.Add(50 * time.Second)}, legs[0])
	assert.Equal(t, 5, legs[1].Start)
	assert.Equal(t, 19, legs[1].End)
	assert.Equal(t, LegFullStop, legs[1].Type)
	assert.Equal(t, 1000.0, legs[1].MaxAltitude)
}

func TestSplitLegsTrailingClimb(t *testing.T) {
	alts := append(append([]float64{}, patternAlts[:16]...), 100, 300, 600, 900, 1200, 1500)
	legs := SplitLegs(profile(10*time.Second, alts...), 0, DefaultThresholds())

	require.Len(t, legs, 2)
	assert.Equal(t, LegTouchAndGo, legs[0].Type)
	assert.Equal(t, LegTouchAndGo, legs[1].Type)
	assert.Equal(t, 5, legs[1].Start)
	assert.Equal(t, len(alts)-1, legs[1].End)
}

func TestSplitLegsClimbOutBoundary(t *testing.T) {
	// Valleys at 5 and 13, 80 s apart, with a flat climb of the given height
	// between them
	between := func(climb float64) []float64 {
		return []float64{
			2000, 1500, 1000, 500, 0, 0, 0, climb, climb, climb,
			climb, climb, 0, 0, 0, 0, 0, 0, 0, 0,
		}
	}

	legs := SplitLegs(profile(10*time.Second, between(300)...), 0, DefaultThresholds())
	require.Len(t, legs, 2)
	assert.Equal(t, LegTouchAndGo, legs[0].Type)
	assert.Equal(t, 0, legs[0].Start)
	assert.Equal(t, 5, legs[0].End)
	assert.Equal(t, LegFullStop, legs[1].Type)
	assert.Equal(t, 5, legs[1].Start)
	assert.Equal(t, 19, legs[1].End)

	legs = SplitLegs(profile(10*time.Second, between(299)...), 0, DefaultThresholds())
	require.Len(t, legs, 1)
	assert.Equal(t, LegFullStop, legs[0].Type)
	assert.Equal(t, 0, legs[0].Start)
	assert.Equal(t, 19, legs[0].End)
}

func TestSplitLegsMergesCloseValleys(t *testing.T) {
	// Same shape compressed to 2 s sampling puts both valleys inside 60 s
	legs := SplitLegs(profile(2*time.Second, patternAlts...), 0, DefaultThresholds())
	require.Len(t, legs, 1)
	assert.Equal(t, LegFullStop, legs[0].Type)
	assert.Equal(t, 0, legs[0].Start)
	assert.Equal(t, 19, legs[0].End)
}

func TestSplitLegsNoClimbBetweenValleys(t *testing.T) {
	alts := []float64{
		2000, 1500, 1000, 500, 200, 0, 0, 100, 200, 250,
		200, 100, 50, 0, 0, 0, 0, 0, 0, 0,
	}
	legs := SplitLegs(profile(10*time.Second, alts...), 0, DefaultThresholds())

	require.Len(t, legs, 1)
	assert.Equal(t, LegFullStop, legs[0].Type)
	assert.Equal(t, 0, legs[0].Start)
	assert.Equal(t, 19, legs[0].End)
}

func TestSplitLegsSingleAttempt(t *testing.T) {
	t.Run("one valley", func(t *testing.T) {
		legs := SplitLegs(profile(10*time.Second, 3000, 2500, 2000, 1500, 1000, 600, 300, 100, 0, 0, 0, 0), 0, DefaultThresholds())
		require.Len(t, legs, 1)
		assert.Equal(t, LegFullStop, legs[0].Type)
	})
	t.Run("no valley", func(t *testing.T) {
		legs := SplitLegs(profile(10*time.Second, 3000, 2800, 2600, 2400, 2200, 2000, 1800, 1600, 1400, 1200, 1000), 0, DefaultThresholds())
		require.Len(t, legs, 1)
		assert.Equal(t, LegUnknown, legs[0].Type)
		assert.Equal(t, 10, legs[0].End)
	})
	t.Run("short flight", func(t *testing.T) {
		legs := SplitLegs(profile(10*time.Second, 2000, 1000, 500, 0, 0, 0), 0, DefaultThresholds())
		require.Len(t, legs, 1)
		assert.Equal(t, LegUnknown, legs[0].Type)
		assert.Equal(t, 6, legs[0].PointCount())
	})
	t.Run("elevation lifts the valley ceiling", func(t *testing.T) {
		alts := []float64{4000, 3500, 3000, 2500, 2000, 1600, 1300, 1100, 1000, 1000, 1000, 1000}
		legs := SplitLegs(profile(10*time.Second, alts...), 0, DefaultThresholds())
		assert.Equal(t, LegUnknown, legs[0].Type)
		legs = SplitLegs(profile(10*time.Second, alts...), 1000, DefaultThresholds())
		assert.Equal(t, LegFullStop, legs[0].Type)
	})
}

func TestPreprocess(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		res := Preprocess(nil, 0, DefaultThresholds())
		assert.True(t, res.Ghost)
		assert.Equal(t, "No track data", res.GhostReason)
		assert.Empty(t, res.Flags)
		assert.Empty(t, res.Legs)
	})
	t.Run("ghost", func(t *testing.T) {
		res := Preprocess(profile(time.Second, 1000, 900), 0, DefaultThresholds())
		assert.True(t, res.Ghost)
		assert.Equal(t, []string{"GHOST: Too few track points"}, res.Flags)
		assert.Empty(t, res.Legs)
		assert.Equal(t, 2, res.PointCount)
	})
	t.Run("pattern", func(t *testing.T) {
		points := profile(10*time.Second, patternAlts...)
		res := Preprocess(points, 0, DefaultThresholds())
		assert.False(t, res.Ghost)
		assert.Len(t, res.Legs, 2)
		assert.Equal(t, []string{"PATTERN: 2 legs detected"}, res.Flags)
		assert.Len(t, res.Legs[1].Points(points), 15)
	})
}
