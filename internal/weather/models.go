package weather

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/glidepath/internal/scoring"
)

// Config represents the weather collector configuration
type Config struct {
	Enabled                bool     `toml:"enabled"`
	RefreshIntervalMinutes int      `toml:"refresh_interval_minutes"`
	APIBaseURL             string   `toml:"api_base_url"`
	RequestTimeoutSeconds  int      `toml:"request_timeout_seconds"`
	MaxRetries             int      `toml:"max_retries"`
	BatchSize              int      `toml:"batch_size"` // airports per request
	Airports               []string `toml:"airports"`   // empty means every airport in storage
}

// DefaultConfig returns the default weather configuration
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		RefreshIntervalMinutes: 5,
		APIBaseURL:             "https://aviationweather.gov/api/data",
		RequestTimeoutSeconds:  30,
		MaxRetries:             2,
		BatchSize:              100,
	}
}

// Validate validates the weather configuration
func (c Config) Validate() error {
	if c.RefreshIntervalMinutes <= 0 {
		return fmt.Errorf("refresh_interval_minutes must be greater than 0")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be greater than 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be 0 or greater")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be greater than 0")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url cannot be empty")
	}
	return nil
}

// Observation is one surface weather report for an airport
type Observation struct {
	Airport         string    `json:"airport"`
	ObservedAt      time.Time `json:"observed_at"`
	WindDirDegrees  *int      `json:"wind_dir_degrees"` // nil when variable
	WindSpeedKt     *int      `json:"wind_speed_kt"`
	WindGustKt      *int      `json:"wind_gust_kt"`
	TempC           *float64  `json:"temp_c,omitempty"`
	DewpointC       *float64  `json:"dewpoint_c,omitempty"`
	AltimeterHPa    *float64  `json:"altimeter_hpa,omitempty"`
	VisibilityMiles *float64  `json:"visibility_miles,omitempty"`
	FlightCategory  string    `json:"flight_category,omitempty"`
	MetarType       string    `json:"metar_type,omitempty"`
	Raw             string    `json:"raw,omitempty"`
}

// Wind converts the observation to the scoring wind input
func (o Observation) Wind() *scoring.Wind {
	w := &scoring.Wind{}
	if o.WindDirDegrees != nil {
		dir := float64(*o.WindDirDegrees)
		w.Direction = &dir
	}
	if o.WindSpeedKt != nil {
		w.Speed = float64(*o.WindSpeedKt)
	}
	if o.WindGustKt != nil {
		w.Gust = float64(*o.WindGustKt)
	}
	return w
}

// METARResponse is one element of the aviationweather.gov METAR JSON array
type METARResponse struct {
	ICAO      string       `json:"icaoId"`
	ObsTime   flexTime     `json:"obsTime"`
	Temp      *float64     `json:"temp"`
	Dewp      *float64     `json:"dewp"`
	Wdir      flexInt      `json:"wdir"`
	Wspd      flexInt      `json:"wspd"`
	Wgst      flexInt      `json:"wgst"`
	Visib     flexFloat    `json:"visib"`
	Altim     *float64     `json:"altim"`
	FltCat    string       `json:"fltCat"`
	MetarType string       `json:"metarType"`
	RawOb     string       `json:"rawOb"`
	Clouds    []CloudLayer `json:"clouds,omitempty"`
}

// CloudLayer is one reported cloud layer
type CloudLayer struct {
	Cover string `json:"cover"`
	Base  *int   `json:"base"`
}

// Observation converts the API record. Wind missing from the JSON is
// recovered from the raw report when possible.
func (m METARResponse) Observation() (Observation, bool) {
	if m.ICAO == "" || m.ObsTime.IsZero() {
		return Observation{}, false
	}
	obs := Observation{
		Airport:         strings.ToUpper(m.ICAO),
		ObservedAt:      m.ObsTime.UTC(),
		WindDirDegrees:  m.Wdir.Ptr(),
		WindSpeedKt:     m.Wspd.Ptr(),
		WindGustKt:      m.Wgst.Ptr(),
		TempC:           m.Temp,
		DewpointC:       m.Dewp,
		AltimeterHPa:    m.Altim,
		VisibilityMiles: m.Visib.Ptr(),
		FlightCategory:  m.FltCat,
		MetarType:       m.MetarType,
		Raw:             m.RawOb,
	}
	if obs.WindSpeedKt == nil && m.RawOb != "" {
		if w, ok := ParseRawWind(m.RawOb); ok {
			obs.WindDirDegrees = w.Direction
			obs.WindSpeedKt = &w.Speed
			obs.WindGustKt = w.Gust
		}
	}
	if obs.TempC == nil && m.RawOb != "" {
		if t, ok := ParseTemperature(m.RawOb); ok {
			obs.TempC = &t
		}
	}
	return obs, true
}

// flexInt accepts a JSON number, a numeric string or a non-numeric marker
// such as "VRB", which decodes as absent
type flexInt struct {
	v     int
	valid bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	*f = flexInt{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		f.v, f.valid = int(n), true
	}
	return nil
}

func (f flexInt) Ptr() *int {
	if !f.valid {
		return nil
	}
	v := f.v
	return &v
}

// flexFloat accepts numbers and strings like "10+"
type flexFloat struct {
	v     float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	*f = flexFloat{}
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	s = strings.TrimSuffix(s, "+")
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		f.v, f.valid = n, true
	}
	return nil
}

func (f flexFloat) Ptr() *float64 {
	if !f.valid {
		return nil
	}
	v := f.v
	return &v
}

// flexTime accepts unix seconds or an RFC 3339 string
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	f.Time = time.Time{}
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return nil
		}
		f.Time = t
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	f.Time = time.Unix(n, 0).UTC()
	return nil
}
