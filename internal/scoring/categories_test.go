package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/glidepath/internal/approach"
)

func input(points ...approach.Point) Input {
	cfg := DefaultConfig()
	return Input{
		Points:      points,
		Config:      cfg,
		TargetSpeed: cfg.DefaultApproach,
		DirtyStall:  cfg.DefaultStall,
	}
}

// farToNear spaces n points half a mile apart starting at 8nm
func farToNear(n int, build func(i int, dist float64) approach.Point) []approach.Point {
	out := make([]approach.Point, n)
	for i := range out {
		out[i] = build(i, 8-float64(i)*0.5)
	}
	return out
}

func TestEvalDescent(t *testing.T) {
	devs := []float64{-250, -250, -150, -150, -150, 0, 0, 0, 0, 0, 0, 0}
	points := farToNear(len(devs), func(i int, d float64) approach.Point {
		return pt(i, d, 1000, devs[i], 70)
	})
	points[6].VerticalSpeed = ip(300)
	points[7].VerticalSpeed = ip(250)

	r := Descent.Evaluate(input(points...))
	assert.Equal(t, []string{
		"-4: 2 pts >200ft below GS (dangerous)",
		"-3: 3 pts 100-200ft below GS",
		"-2: 2 pts climbing on approach",
	}, r.Deductions)
	assert.Equal(t, 11, r.Score)
	assert.Equal(t, 20, r.Max)
}

func TestEvalDescentAboveAllowance(t *testing.T) {
	points := farToNear(10, func(i int, d float64) approach.Point {
		dev := 0.0
		if i < 7 {
			dev = 200
		}
		return pt(i, d, 1000, dev, 70)
	})
	r := Descent.Evaluate(input(points...))
	assert.Equal(t, []string{"-2: 7 pts >150ft above GS"}, r.Deductions)
}

func TestEvalDescentCapsAndFloors(t *testing.T) {
	points := farToNear(12, func(i int, d float64) approach.Point {
		p := pt(i, d, 1000, -300, 70)
		p.VerticalSpeed = ip(500)
		return p
	})
	r := Descent.Evaluate(input(points...))
	// 10 way below + 5 climbing, capped
	assert.Equal(t, 5, r.Score)
}

func TestEvalStabilized(t *testing.T) {
	tests := []struct {
		name      string
		stableAt  float64
		score     int
		deduction string
	}{
		{"early", 5, 20, ""},
		{"ideal boundary", 3, 20, ""},
		{"slightly late", 2.5, 15, "-5: Stabilized at 2.5nm (ideal >3nm)"},
		{"late", 1.5, 10, "-10: Stabilized late (1.5nm)"},
		{"never", 0, 5, "-15: Not stabilized until <1nm (go-around criteria)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var points []approach.Point
			for i, d := range []float64{6, 5, 4, 3, 2.5, 2, 1.5, 1, 0.5} {
				speed := 90.0
				if tt.stableAt > 0 && d <= tt.stableAt {
					speed = 70
				}
				points = append(points, pt(i, d, 1000, 0, speed))
			}
			r := Stabilized.Evaluate(input(points...))
			assert.Equal(t, tt.score, r.Score)
			if tt.deduction == "" {
				assert.Empty(t, r.Deductions)
			} else {
				assert.Equal(t, []string{tt.deduction}, r.Deductions)
			}
		})
	}
}

func TestEvalStabilizedIgnoresMissingSpeed(t *testing.T) {
	p := pt(0, 4, 1000, 0, 0)
	p.Speed = nil
	assert.Equal(t, 0.0, stabilizedDistance(input(p, pt(1, 3.5, 900, 0, 0))))
	assert.Equal(t, 3.5, stabilizedDistance(input(p, pt(1, 3.5, 900, 0, 70))))
}

func TestEvalCenterline(t *testing.T) {
	offsets := []float64{0, 120, 350, 150, 0}
	points := farToNear(len(offsets), func(i int, d float64) approach.Point {
		p := pt(i, d, 1000, 0, 70)
		p.CrossTrackFt = offsets[i]
		return p
	})

	r := Centerline.Evaluate(input(points...))
	assert.Equal(t, []string{
		"-5: Max deviation 350ft",
		"-2: Avg deviation 124ft",
	}, r.Deductions)
	assert.Equal(t, 13, r.Score)
	assert.Equal(t, 124, r.Metrics["avgCrosstrack"])
	assert.Equal(t, 350, r.Metrics["maxCrosstrack"])

	// 5kt of crosswind buys 100ft on the max deviation
	in := input(points...)
	in.Crosswind = 5
	r = Centerline.Evaluate(in)
	assert.Equal(t, []string{"-2: Avg deviation 124ft"}, r.Deductions)
}

func TestEvalTurnToFinal(t *testing.T) {
	offsets := []float64{100, -100, 100, 20, -100}
	points := farToNear(len(offsets), func(i int, d float64) approach.Point {
		p := pt(i, d, 1000, 0, 70)
		p.CrossTrackFt = offsets[i]
		return p
	})
	points[1].TurnRate = fp(15)
	points[2].TurnRate = fp(-15)

	r := TurnToFinal.Evaluate(input(points...))
	require.Len(t, r.Deductions, 2)
	assert.Contains(t, r.Deductions[0], "-4: 2 pts with bank >30°")
	assert.Equal(t, "-4: 3 centerline crossings (S-turns)", r.Deductions[1])
	assert.Equal(t, 7, r.Score)
	assert.Equal(t, 3, r.Metrics["clCrossings"])
}

func TestCenterlineCrossings(t *testing.T) {
	tests := []struct {
		offsets []float64
		want    int
	}{
		{nil, 0},
		{[]float64{10, -10, 40, -40}, 0},
		{[]float64{100, 200, 300}, 0},
		{[]float64{100, -100}, 1},
		{[]float64{100, 20, -100, 0, 100}, 2},
		{[]float64{-60, 60, -60, 60}, 3},
	}
	for _, tt := range tests {
		var points []approach.Point
		for _, o := range tt.offsets {
			points = append(points, approach.Point{CrossTrackFt: o})
		}
		assert.Equal(t, tt.want, centerlineCrossings(points, 50), "%v", tt.offsets)
	}
}

func TestEvalSpeedControl(t *testing.T) {
	speeds := []float64{70, 70, 70, 70, 70, 70, 90, 90, 90, 90}
	points := farToNear(len(speeds), func(i int, d float64) approach.Point {
		return pt(i, d, 1000, 0, speeds[i])
	})

	r := SpeedControl.Evaluate(input(points...))
	assert.Equal(t, []string{
		"-8: Speed varied 20kt from target",
		"-4: 4/10 pts outside ±5kt",
	}, r.Deductions)
	assert.Equal(t, 3, r.Score)
	assert.Equal(t, []string{"Target: 70kt ±5.0kt, Avg: 78kt"}, r.Details)

	// Gusts widen the tolerance band
	in := input(points...)
	in.Gust = 10
	r = SpeedControl.Evaluate(in)
	assert.Equal(t, []string{"Target: 70kt ±10.0kt, Avg: 78kt"}, r.Details)
}

func TestEvalNoData(t *testing.T) {
	p := approach.Point{DistanceNM: 3}
	in := input(p)

	for _, c := range []Category{Descent, SpeedControl} {
		r := c.Evaluate(in)
		assert.True(t, r.NoData, c.String())
		assert.Equal(t, r.Max, r.Score, c.String())
	}

	r := Centerline.Evaluate(input())
	assert.True(t, r.NoData)
	assert.Equal(t, 20, r.Score)

	r = ThresholdCrossing.Evaluate(in)
	assert.True(t, r.NoData)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, []string{"No data near threshold"}, r.Details)
	assert.Equal(t, []string{"-10: No threshold crossing data"}, r.Deductions)
	assert.Nil(t, r.Metrics["thresholdAgl"])

	// A point inside the window without altitude is still no data
	r = ThresholdCrossing.Evaluate(input(approach.Point{DistanceNM: 0.05}))
	assert.True(t, r.NoData)
	assert.Equal(t, 0, r.Score)
}

func TestCategoryNames(t *testing.T) {
	for _, c := range Categories {
		text, err := c.MarshalText()
		require.NoError(t, err)

		var back Category
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, c, back)
		assert.NotEmpty(t, c.Description())
	}

	var c Category
	assert.Error(t, c.UnmarshalText([]byte("landing")))
	assert.Equal(t, "Category(9)", Category(9).String())
	assert.Equal(t, "turnToFinal", TurnToFinal.String())
}
