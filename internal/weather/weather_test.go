package weather

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/glidepath/pkg/logger"
)

const awcSample = `[
  {"icaoId":"KBED","obsTime":1717250100,"temp":18.3,"dewp":9.4,"wdir":240,"wspd":12,"wgst":20,
   "visib":"10+","altim":1016.2,"fltCat":"VFR","metarType":"METAR",
   "rawOb":"KBED 011355Z 24012G20KT 10SM FEW050 18/09 A3001"},
  {"icaoId":"KORH","obsTime":1717250160,"wdir":"VRB","wspd":3,"wgst":null,"visib":7,
   "rawOb":"KORH 011356Z VRB03KT 7SM CLR 16/08 A3000"},
  {"icaoId":"KFIT","obsTime":1717250220,"rawOb":"KFIT 011357Z 31008KT 10SM M02/M10 A3002"},
  {"icaoId":"","obsTime":1717250220,"rawOb":"garbage"}
]`

func TestMETARResponseObservation(t *testing.T) {
	var records []METARResponse
	require.NoError(t, json.Unmarshal([]byte(awcSample), &records))
	require.Len(t, records, 4)

	bed, ok := records[0].Observation()
	require.True(t, ok)
	assert.Equal(t, "KBED", bed.Airport)
	assert.Equal(t, time.Unix(1717250100, 0).UTC(), bed.ObservedAt)
	assert.Equal(t, 240, *bed.WindDirDegrees)
	assert.Equal(t, 12, *bed.WindSpeedKt)
	assert.Equal(t, 20, *bed.WindGustKt)
	assert.Equal(t, 10.0, *bed.VisibilityMiles)
	assert.Equal(t, 18.3, *bed.TempC)
	assert.Equal(t, "VFR", bed.FlightCategory)

	orh, ok := records[1].Observation()
	require.True(t, ok)
	assert.Nil(t, orh.WindDirDegrees)
	assert.Equal(t, 3, *orh.WindSpeedKt)
	assert.Nil(t, orh.WindGustKt)
	assert.Equal(t, 7.0, *orh.VisibilityMiles)

	// Wind and temperature recovered from the raw report
	fit, ok := records[2].Observation()
	require.True(t, ok)
	assert.Equal(t, 310, *fit.WindDirDegrees)
	assert.Equal(t, 8, *fit.WindSpeedKt)
	assert.Nil(t, fit.WindGustKt)
	assert.Equal(t, -2.0, *fit.TempC)

	_, ok = records[3].Observation()
	assert.False(t, ok)
}

func TestObservationTimeAsString(t *testing.T) {
	var m METARResponse
	require.NoError(t, json.Unmarshal([]byte(`{"icaoId":"kbed","obsTime":"2024-06-01T13:55:00Z"}`), &m))
	obs, ok := m.Observation()
	require.True(t, ok)
	assert.Equal(t, "KBED", obs.Airport)
	assert.Equal(t, time.Date(2024, 6, 1, 13, 55, 0, 0, time.UTC), obs.ObservedAt)
}

func TestObservationWind(t *testing.T) {
	dir, spd, gst := 240, 12, 20
	w := Observation{WindDirDegrees: &dir, WindSpeedKt: &spd, WindGustKt: &gst}.Wind()
	require.NotNil(t, w.Direction)
	assert.Equal(t, 240.0, *w.Direction)
	assert.Equal(t, 12.0, w.Speed)
	assert.Equal(t, 20.0, w.Gust)

	w = Observation{}.Wind()
	assert.Nil(t, w.Direction)
	assert.Zero(t, w.Speed)
}

func TestParseRawWind(t *testing.T) {
	tests := []struct {
		raw   string
		dir   *int
		speed int
		gust  *int
		ok    bool
	}{
		{"KBED 011355Z 24012G20KT 10SM", intp(240), 12, intp(20), true},
		{"KBED 011355Z 00000KT 10SM", intp(0), 0, nil, true},
		{"KORH 011356Z VRB03KT 7SM", nil, 3, nil, true},
		{"KXYZ 011356Z 270105G125KT", intp(270), 105, intp(125), true},
		{"KXYZ 011356Z AUTO 10SM", nil, 0, nil, false},
	}
	for _, tt := range tests {
		w, ok := ParseRawWind(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		if !ok {
			continue
		}
		assert.Equal(t, tt.dir, w.Direction, tt.raw)
		assert.Equal(t, tt.speed, w.Speed, tt.raw)
		assert.Equal(t, tt.gust, w.Gust, tt.raw)
	}
}

func TestParseTemperature(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"KBED 011355Z 24012KT 10SM 22/M05 A3001", 22, true},
		{"KBED 011355Z 24012KT 10SM M02/M10 A3001", -2, true},
		{"KBED 011355Z 24012KT 10SM 05/01 A3001 RMK AO2 T00561011", 5.6, true},
		{"KBED 011355Z 24012KT 10SM M01/M03 A3001 RMK AO2 T10111033", -1.1, true},
		{"KBED 011355Z 24012KT 10SM A3001", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseTemperature(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.InDelta(t, tt.want, got, 1e-9, tt.raw)
	}
}

func TestCacheKeepsNewest(t *testing.T) {
	c := NewCache()
	t0 := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, c.Update([]Observation{{Airport: "KBED", ObservedAt: t0.Add(time.Hour)}}))
	assert.Equal(t, 0, c.Update([]Observation{{Airport: "KBED", ObservedAt: t0}}))

	got, ok := c.Get("kbed")
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), got.ObservedAt)
	assert.Equal(t, 1, c.Len())
}

func TestClientRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/metar", r.URL.Path)
		assert.Equal(t, "KBED,KORH", r.URL.Query().Get("ids"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(awcSample))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = srv.URL
	cfg.MaxRetries = 1
	c := NewClient(cfg, logger.NewNop())

	obs, err := c.FetchMETARs(context.Background(), []string{"KBED", "KORH"})
	require.NoError(t, err)
	assert.Len(t, obs, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = srv.URL
	cfg.MaxRetries = 0
	_, err := NewClient(cfg, logger.NewNop()).FetchMETARs(context.Background(), []string{"KBED"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

type fakeFetcher struct {
	obs   []Observation
	err   error
	calls [][]string
}

func (f *fakeFetcher) FetchMETARs(_ context.Context, ids []string) ([]Observation, error) {
	f.calls = append(f.calls, append([]string(nil), ids...))
	return f.obs, f.err
}

type fakeStore struct {
	mu       sync.Mutex
	airports []string
	seen     map[string]bool
}

func (s *fakeStore) AirportCodes(context.Context) ([]string, error) {
	return s.airports, nil
}

func (s *fakeStore) InsertObservation(_ context.Context, obs Observation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := obs.Airport + obs.ObservedAt.String()
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func TestServiceRunCycle(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{obs: []Observation{
		{Airport: "KBED", ObservedAt: t0},
		{Airport: "KORH", ObservedAt: t0},
		{Airport: "KZZZ", ObservedAt: t0}, // not requested
	}}
	store := &fakeStore{airports: []string{"kbed", "KORH", "KFIT"}, seen: map[string]bool{}}

	cfg := DefaultConfig()
	cfg.BatchSize = 2
	svc := NewServiceWithFetcher(cfg, fetcher, store, logger.NewNop())

	svc.RunCycle(context.Background())
	stats := svc.Stats()
	assert.True(t, stats.LastFetchSuccess)
	assert.Equal(t, 3, stats.AirportsCount)
	// Both batches return the same records, the second round is all duplicates
	assert.Equal(t, 2, stats.LastInserted)
	assert.Equal(t, 2, stats.LastDuplicates)
	assert.Equal(t, [][]string{{"kbed", "KORH"}, {"KFIT"}}, fetcher.calls)

	_, ok := svc.Latest("KBED")
	assert.True(t, ok)

	fetcher.err = errors.New("boom")
	svc.RunCycle(context.Background())
	stats = svc.Stats()
	assert.False(t, stats.LastFetchSuccess)
	assert.Contains(t, stats.LastError, "boom")
	assert.Equal(t, 2, stats.TotalFetches)
	assert.Equal(t, 2, stats.TotalObservations)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.BatchSize = 0
	assert.Error(t, cfg.Validate())
}

func intp(v int) *int { return &v }
