package scoring

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/glidepath/internal/approach"
	"github.com/yegors/glidepath/internal/runway"
)

var (
	t0       = time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	runway36 = runway.Selection{
		End:          runway.RunwayEnd{ID: "36"},
		ThresholdLat: 42,
		ThresholdLon: -71,
		Heading:      0,
		Elevation:    100,
	}
)

func fp(v float64) *float64 { return &v }

func ip(v int) *int { return &v }

// pt builds an approach point on the centerline
func pt(i int, dist, agl, gsDev, speed float64) approach.Point {
	return approach.Point{
		Index:           i,
		Time:            t0.Add(time.Duration(i) * 10 * time.Second),
		DistanceNM:      dist,
		Altitude:        fp(agl + 100),
		AGL:             fp(agl),
		GlideslopeDevFt: fp(gsDev),
		Speed:           fp(speed),
		VerticalSpeed:   ip(-400),
		Heading:         fp(0),
		TurnRate:        fp(0),
		Acceleration:    fp(0),
	}
}

// perfectApproach is a stable 70kt approach on the glidepath and centerline,
// listed near to far
func perfectApproach() []approach.Point {
	dists := []float64{0.1, 0.5, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	points := make([]approach.Point, 0, len(dists))
	for i, d := range dists {
		agl := approach.ThresholdCrossingHeight + d*318.4
		if d == 0.1 {
			agl = 50
		}
		points = append(points, pt(i, d, agl, 0, 70))
	}
	return points
}

func TestScorePerfectApproach(t *testing.T) {
	res, err := NewEngine(DefaultConfig()).Score(perfectApproach(), runway36, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, Version, res.Version)
	assert.Equal(t, "36", res.Runway)
	assert.Equal(t, 100, res.Total)
	assert.Equal(t, 100, res.MaxTotal)
	assert.Equal(t, 100, res.Percentage)
	assert.Equal(t, "A", res.Grade)
	assert.Empty(t, res.SeverePenalties)

	require.Len(t, res.Scores, len(Categories))
	for i, r := range res.Scores {
		assert.Equal(t, Categories[i], r.Category)
		assert.Equal(t, r.Max, r.Score, r.Category.String())
		assert.Empty(t, r.Deductions, r.Category.String())
		assert.False(t, r.NoData, r.Category.String())
	}

	assert.Equal(t, 9.0, res.Metrics["stabilizedDist"])
	assert.Equal(t, 50, res.Metrics["thresholdAgl"])
	assert.Equal(t, 70.0, res.AircraftData.TargetSpeed)
	assert.Equal(t, 45.0, res.AircraftData.DirtyStall)
}

func TestScoreCFITFiresOnce(t *testing.T) {
	points := perfectApproach()
	// Three low points well below the glidepath
	for _, i := range []int{0, 1, 2} {
		points[i].GlideslopeDevFt = fp(-80)
	}

	res, err := NewEngine(DefaultConfig()).Score(points, runway36, nil, nil)
	require.NoError(t, err)

	require.Len(t, res.SeverePenalties, 1)
	p := res.SeverePenalties[0]
	assert.Equal(t, CFITRisk, p.Type)
	assert.Equal(t, 20, p.Penalty)
	assert.Equal(t, "Below glideslope when low", p.Description)
	assert.Equal(t, "3 pts below GS when <500ft AGL (worst: -80ft)", p.Detail)

	assert.Equal(t, 80, res.Total)
	assert.Equal(t, 80, res.Percentage)
	assert.Equal(t, "B", res.Grade)
}

func TestScoreCFITPenaltyFollowsConfig(t *testing.T) {
	points := perfectApproach()
	points[1].GlideslopeDevFt = fp(-80)

	cfg, err := DefaultConfig().With(map[string]float64{"cfit_penalty": 35})
	require.NoError(t, err)

	res, err := NewEngine(cfg).Score(points, runway36, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.SeverePenalties, 1)
	assert.Equal(t, 35, res.SeverePenalties[0].Penalty)
	assert.Equal(t, 65, res.Total)
	assert.Equal(t, "D", res.Grade)
}

func TestScoreTotalNeverNegative(t *testing.T) {
	cfg, err := DefaultConfig().With(map[string]float64{"cfit_penalty": 150})
	require.NoError(t, err)

	points := perfectApproach()
	points[1].GlideslopeDevFt = fp(-80)

	res, err := NewEngine(cfg).Score(points, runway36, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, 0, res.Percentage)
	assert.Equal(t, "F", res.Grade)
}

func TestScoreThresholdBoundary(t *testing.T) {
	tests := []struct {
		agl       float64
		score     int
		deduction string
	}{
		{19, 2, "-8: Too low! 19ft AGL (dangerous)"},
		{20, 6, "-4: Low crossing 20ft AGL"},
		{34, 6, "-4: Low crossing 34ft AGL"},
		{35, 10, ""},
		{75, 10, ""},
		{76, 8, "-2: Slightly high 76ft"},
		{101, 5, "-5: High crossing 101ft (long landing)"},
	}
	for _, tt := range tests {
		points := perfectApproach()
		points[0].AGL = fp(tt.agl)

		res, err := NewEngine(DefaultConfig()).Score(points, runway36, nil, nil)
		require.NoError(t, err)

		r, ok := res.Category(ThresholdCrossing)
		require.True(t, ok)
		assert.Equal(t, tt.score, r.Score, "agl %v", tt.agl)
		if tt.deduction == "" {
			assert.Empty(t, r.Deductions, "agl %v", tt.agl)
		} else {
			assert.Equal(t, []string{tt.deduction}, r.Deductions, "agl %v", tt.agl)
		}
	}
}

func TestScoreSortsFarToNear(t *testing.T) {
	near := perfectApproach()
	far := make([]approach.Point, len(near))
	for i := range near {
		far[i] = near[len(near)-1-i]
	}

	e := NewEngine(DefaultConfig())
	a, err := e.Score(near, runway36, nil, nil)
	require.NoError(t, err)
	b, err := e.Score(far, runway36, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Input order is untouched
	assert.Equal(t, 0.1, near[0].DistanceNM)
}

func TestScoreIsDeterministic(t *testing.T) {
	points := perfectApproach()
	points[2].GlideslopeDevFt = fp(-120)
	points[4].CrossTrackFt = 180
	points[5].Speed = fp(81)

	wind := &Wind{Direction: fp(250), Speed: 12, Gust: 18}
	speeds := &ReferenceSpeeds{Approach: 65, DirtyStall: 40}
	e := NewEngine(DefaultConfig())

	first, err := e.Score(points, runway36, wind, speeds)
	require.NoError(t, err)
	second, err := e.Score(points, runway36, wind, speeds)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestScoreWind(t *testing.T) {
	e := NewEngine(DefaultConfig())

	res, err := e.Score(perfectApproach(), runway36, &Wind{Direction: fp(90), Speed: 10, Gust: 15}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Wind.Dir)
	assert.Equal(t, 90, *res.Wind.Dir)
	assert.Equal(t, 10, res.Wind.Speed)
	assert.Equal(t, 15, res.Wind.Gust)
	assert.Equal(t, 10, res.Wind.Crosswind)

	// Variable wind has no crosswind component
	res, err = e.Score(perfectApproach(), runway36, &Wind{Speed: 10}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Wind.Dir)
	assert.Equal(t, 0, res.Wind.Crosswind)
}

func TestScoreReferenceSpeeds(t *testing.T) {
	e := NewEngine(DefaultConfig())

	res, err := e.Score(perfectApproach(), runway36, nil, &ReferenceSpeeds{Approach: 90})
	require.NoError(t, err)
	assert.Equal(t, 90.0, res.AircraftData.TargetSpeed)
	assert.Equal(t, 45.0, res.AircraftData.DirtyStall)

	r, _ := res.Category(SpeedControl)
	assert.Equal(t, []string{
		"-8: Speed varied 20kt from target",
		"-4: 11/11 pts outside ±5kt",
	}, r.Deductions)
}

func TestScoreStallRisk(t *testing.T) {
	points := perfectApproach()
	points[5].Speed = fp(52)
	points[6].Speed = fp(50)
	points[7].Speed = fp(0) // missing report

	res, err := NewEngine(DefaultConfig()).Score(points, runway36, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.SeverePenalties, 1)
	assert.Equal(t, StallRisk, res.SeverePenalties[0].Type)
	assert.Equal(t, "2 pts within 10kts of stall (50kt, Vs 45kt, margin 5kt)", res.SeverePenalties[0].Detail)
}

func TestScoreNoPoints(t *testing.T) {
	_, err := NewEngine(DefaultConfig()).Score(nil, runway36, nil, nil)
	assert.ErrorIs(t, err, ErrNoApproachPoints)
}

func TestGrade(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		pct  float64
		want string
	}{
		{100, "A"},
		{90, "A"},
		{89.99, "B"},
		{80, "B"},
		{70, "C"},
		{60, "D"},
		{59.99, "F"},
		{0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Grade(tt.pct), "pct %v", tt.pct)
	}
}

func TestSchema(t *testing.T) {
	s := Schema(DefaultConfig())
	assert.Equal(t, Version, s.Version)
	assert.Equal(t, 100, s.MaxTotal)
	require.Len(t, s.Categories, 6)
	assert.Equal(t, "descent", s.Categories[0].Name)
	assert.Equal(t, 20, s.Categories[0].Max)
	assert.Equal(t, "thresholdCrossing", s.Categories[5].Name)
	require.Len(t, s.Penalties, 2)
	assert.Equal(t, StallRisk, s.Penalties[1].Type)
	assert.Equal(t, 90.0, s.Grades["A"])
}
