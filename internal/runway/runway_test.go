package runway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/glidepath/internal/physics"
	"github.com/yegors/glidepath/internal/track"
)

func f(v float64) *float64 { return &v }

// Runway 11/29 at a small field, roughly 1.5 nm long
func runway1129() (RunwayEnd, RunwayEnd) {
	r11 := RunwayEnd{
		ID: "11", Airport: "KBED",
		Lat: f(42.4745), Lon: f(-71.3035),
		TrueHeading: f(95), TDZE: f(132), AirportElevation: f(133),
		ReciprocalID: "29", ReciprocalLat: f(42.4722), ReciprocalLon: f(-71.2700),
	}
	r29 := RunwayEnd{
		ID: "29", Airport: "KBED",
		Lat: f(42.4722), Lon: f(-71.2700),
		TrueHeading: f(275), AirportElevation: f(133),
		ReciprocalID: "11", ReciprocalLat: f(42.4745), ReciprocalLon: f(-71.3035),
	}
	return r11, r29
}

func TestSelectMatchesComputedHeading(t *testing.T) {
	r11, r29 := runway1129()
	ends := []RunwayEnd{r11, r29}

	for _, end := range ends {
		hdg := end.ComputedHeading()
		sel, err := Select(ends, &hdg)
		require.NoError(t, err)
		assert.Equal(t, end.ID, sel.End.ID)
		require.NotNil(t, sel.HeadingDiff)
		assert.Zero(t, *sel.HeadingDiff)
		assert.Equal(t, MethodHeadingMatch, sel.Method)
		assert.InDelta(t, hdg, sel.Heading, 0.005)
	}
}

func TestSelectClosestHeading(t *testing.T) {
	r11, r29 := runway1129()
	sel, err := Select([]RunwayEnd{r11, r29}, f(260))
	require.NoError(t, err)
	assert.Equal(t, "29", sel.End.ID)

	// 350 is about 75 degrees off runway 29 and 105 off runway 11
	sel, err = Select([]RunwayEnd{r11, r29}, f(350))
	require.NoError(t, err)
	assert.Equal(t, "29", sel.End.ID)
}

func TestSelectTieGoesToFirst(t *testing.T) {
	r11, _ := runway1129()
	dup := r11
	dup.ID = "11L"
	hdg := r11.ComputedHeading()
	sel, err := Select([]RunwayEnd{r11, dup}, &hdg)
	require.NoError(t, err)
	assert.Equal(t, "11", sel.End.ID)
}

func TestSelectFallback(t *testing.T) {
	r11, r29 := runway1129()

	t.Run("no heading", func(t *testing.T) {
		sel, err := Select([]RunwayEnd{r29, r11}, nil)
		require.NoError(t, err)
		assert.Equal(t, "29", sel.End.ID)
		assert.Equal(t, 275.0, sel.Heading)
		assert.Equal(t, MethodFallback, sel.Method)
		assert.Nil(t, sel.HeadingDiff)
	})

	t.Run("no coordinates", func(t *testing.T) {
		a, b := r11, r29
		a.Lat, a.Lon, b.Lat, b.Lon = nil, nil, nil, nil
		sel, err := Select([]RunwayEnd{a, b}, f(275))
		require.NoError(t, err)
		assert.Equal(t, "11", sel.End.ID)
		assert.Equal(t, 95.0, sel.Heading)
		assert.Equal(t, MethodFallback, sel.Method)
	})

	t.Run("no ends", func(t *testing.T) {
		_, err := Select(nil, f(90))
		assert.ErrorIs(t, err, ErrNoRunways)
	})
}

func TestSelectionUsesDisplacedThreshold(t *testing.T) {
	r11, _ := runway1129()
	r11.DisplacedLat, r11.DisplacedLon = f(42.4740), f(-71.2990)
	hdg := r11.ComputedHeading()

	sel, err := Select([]RunwayEnd{r11}, &hdg)
	require.NoError(t, err)
	assert.Equal(t, 42.4740, sel.ThresholdLat)
	assert.Equal(t, -71.2990, sel.ThresholdLon)
	// Course is still measured between the physical thresholds
	assert.InDelta(t, physics.InitialBearing(42.4745, -71.3035, 42.4722, -71.2700), sel.Heading, 0.005)
}

func TestElevation(t *testing.T) {
	for _, tc := range []struct {
		name string
		end  RunwayEnd
		want float64
	}{
		{"tdze", RunwayEnd{TDZE: f(132), AirportElevation: f(133)}, 132},
		{"zero tdze", RunwayEnd{TDZE: f(0), AirportElevation: f(133)}, 133},
		{"airport only", RunwayEnd{AirportElevation: f(133)}, 133},
		{"unknown", RunwayEnd{}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.end.Elevation())
		})
	}
}

func TestComputedHeadingFallsBackToPublished(t *testing.T) {
	r11, _ := runway1129()
	r11.ReciprocalLat = nil
	assert.Equal(t, 95.0, r11.ComputedHeading())
	assert.Zero(t, RunwayEnd{}.ComputedHeading())
}

func TestMagneticHeading(t *testing.T) {
	r11, _ := runway1129()
	hdg := r11.ComputedHeading()
	sel, err := Select([]RunwayEnd{r11}, &hdg)
	require.NoError(t, err)

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mag := sel.MagneticHeading(at)
	assert.InDelta(t, physics.TrueToMagnetic(sel.Heading, sel.ThresholdLat, sel.ThresholdLon, sel.Elevation, at), mag, 0.05)

	assert.Equal(t, 90.0, Selection{Heading: 90}.MagneticHeading(at))
}

func TestFinalHeading(t *testing.T) {
	points := []track.DerivedPoint{
		{RawPoint: track.RawPoint{Heading: f(100)}},
		{RawPoint: track.RawPoint{Heading: f(0)}},
		{RawPoint: track.RawPoint{}},
	}
	h := FinalHeading(points)
	require.NotNil(t, h)
	assert.Equal(t, 0.0, *h)

	assert.Nil(t, FinalHeading(points[2:]))
	assert.Nil(t, FinalHeading(nil))
}

type fakeSource struct {
	calls int
	ends  map[string][]RunwayEnd
	err   error
}

func (s *fakeSource) RunwayEnds(_ context.Context, airport string) ([]RunwayEnd, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.ends[airport], nil
}

func TestCatalog(t *testing.T) {
	r11, r29 := runway1129()
	src := &fakeSource{ends: map[string][]RunwayEnd{"KBED": {r11, r29}}}
	cat := NewCatalog(src, 8, time.Minute)
	ctx := context.Background()

	ends, err := cat.Ends(ctx, "KBED")
	require.NoError(t, err)
	assert.Len(t, ends, 2)

	ends, err = cat.Ends(ctx, " kbed ")
	require.NoError(t, err)
	assert.Len(t, ends, 2)
	assert.Equal(t, 1, src.calls)

	ends, err = cat.Ends(ctx, "KXYZ")
	require.NoError(t, err)
	assert.Empty(t, ends)
	assert.Equal(t, 2, cat.Len())

	cat.Invalidate("kbed")
	_, err = cat.Ends(ctx, "KBED")
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestCatalogDoesNotCacheErrors(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	cat := NewCatalog(src, 0, 0)

	_, err := cat.Ends(context.Background(), "KBED")
	assert.Error(t, err)
	_, err = cat.Ends(context.Background(), "KBED")
	assert.Error(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Zero(t, cat.Len())
}
