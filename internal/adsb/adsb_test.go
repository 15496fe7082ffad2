package adsb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/glidepath/internal/track"
	"github.com/yegors/glidepath/pkg/logger"
)

const sample = `{
  "now": 1717250400.0,
  "messages": 1200,
  "aircraft": [
    {"hex": "a1b2c3", "flight": "N123AB  ", "t": "C172", "alt_baro": 1500, "gs": 85.2, "track": 358.1, "baro_rate": -640, "lat": 42.46, "lon": -71.29, "seen_pos": 1.4, "seen": 0.2},
    {"hex": "a4d5e6", "r": "N45XY", "alt_baro": "ground", "gs": 8, "lat": 42.47, "lon": -71.28, "seen_pos": 0.5},
    {"hex": "abc123", "flight": "DAL42", "alt_baro": 9000, "lat": 42.3, "lon": -71.0, "seen_pos": 1.0},
    {"hex": "a00001", "flight": "N9Z", "alt_baro": 2000},
    {"hex": "a00002", "flight": "N8Z", "alt_baro": 2000, "lat": 42.1, "lon": -71.1, "seen_pos": 95}
  ]
}`

type fakeFetcher struct {
	data RawAircraftData
	err  error
}

func (f *fakeFetcher) FetchData(context.Context) (*RawAircraftData, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := f.data
	return &d, nil
}

type fakeSink struct {
	points []track.RawPoint
	err    error
}

func (s *fakeSink) InsertPoints(_ context.Context, points []track.RawPoint) (int, int, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	s.points = append(s.points, points...)
	return len(points), 0, nil
}

func decode(t *testing.T) RawAircraftData {
	t.Helper()
	var data RawAircraftData
	require.NoError(t, json.Unmarshal([]byte(sample), &data))
	return data
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Airport = "kbed"
	return cfg
}

func TestDecodeGroundAltitude(t *testing.T) {
	data := decode(t)
	require.Len(t, data.Aircraft, 5)

	assert.Equal(t, 1500.0, data.Aircraft[0].AltBaro.Feet)
	assert.False(t, data.Aircraft[0].AltBaro.OnGround)
	assert.True(t, data.Aircraft[1].AltBaro.OnGround)

	out, err := json.Marshal(data.Aircraft[1].AltBaro)
	require.NoError(t, err)
	assert.Equal(t, `"ground"`, string(out))
}

func TestTargetCallsign(t *testing.T) {
	assert.Equal(t, "N123AB", Target{Flight: "n123ab  ", Hex: "a1"}.Callsign())
	assert.Equal(t, "CGABC", Target{Registration: "C-GABC", Hex: "c0"}.Callsign())
	assert.Equal(t, "A1B2C3", Target{Hex: "a1b2c3"}.Callsign())
}

func TestPollStoresGAPositions(t *testing.T) {
	sink := &fakeSink{}
	c := NewCollectorWithFetcher(testConfig(), &fakeFetcher{data: decode(t)}, sink, logger.NewNop())

	res, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Aircraft)
	assert.Equal(t, 2, res.Points)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, res.Flights)

	require.Len(t, sink.points, 2)
	p := sink.points[0]
	assert.Equal(t, "ADSB-A1B2C3-20240601T135958", p.FlightID)
	assert.Equal(t, "N123AB", p.Callsign)
	assert.Equal(t, track.SourceADSB, p.Source)
	assert.Equal(t, "KBED", p.Arrival)
	assert.Equal(t, time.Date(2024, 6, 1, 13, 59, 58, 0, time.UTC), p.Time)
	require.NotNil(t, p.Altitude)
	assert.Equal(t, 1500.0, *p.Altitude)
	require.NotNil(t, p.ReportedVerticalSpeed)
	assert.Equal(t, -640, *p.ReportedVerticalSpeed)

	assert.Equal(t, "N45XY", sink.points[1].Callsign)
	assert.Nil(t, sink.points[1].Altitude)
}

func TestPollSkipsUnchangedPositions(t *testing.T) {
	sink := &fakeSink{}
	fetcher := &fakeFetcher{data: decode(t)}
	c := NewCollectorWithFetcher(testConfig(), fetcher, sink, logger.NewNop())

	_, err := c.Poll(context.Background())
	require.NoError(t, err)

	res, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Points)

	// five seconds later the same airframe continues the same flight
	fetcher.data.Now += 5
	res, err = c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Points)
	require.Len(t, sink.points, 4)
	assert.Equal(t, sink.points[0].FlightID, sink.points[2].FlightID)

	// after a long silence it is a new flight
	fetcher.data.Now += 3600
	_, err = c.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.points, 6)
	assert.NotEqual(t, sink.points[0].FlightID, sink.points[4].FlightID)
}

func TestPollRetriesAfterSinkFailure(t *testing.T) {
	sink := &fakeSink{err: errors.New("database is locked")}
	c := NewCollectorWithFetcher(testConfig(), &fakeFetcher{data: decode(t)}, sink, logger.NewNop())

	_, err := c.Poll(context.Background())
	require.Error(t, err)

	sink.err = nil
	res, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
}

func TestClientFetchData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/aircraft.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sample))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/data/aircraft.json", time.Second, logger.NewNop())
	data, err := c.FetchData(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Aircraft, 5)

	_, err = NewClient(srv.URL+"/missing", time.Second, logger.NewNop()).FetchData(context.Background())
	assert.ErrorContains(t, err, "unexpected status code: 404")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := testConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Airport = ""
	assert.ErrorContains(t, cfg.Validate(), "airport is required")
}
