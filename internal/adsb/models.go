package adsb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Config represents the local ADS-B receiver configuration
type Config struct {
	Enabled               bool   `toml:"enabled"`
	SourceURL             string `toml:"source_url"` // readsb / tar1090 aircraft.json
	PollIntervalSeconds   int    `toml:"poll_interval_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	Airport               string `toml:"airport"`              // ICAO code recorded as the arrival airport
	FlightGapMinutes      int    `toml:"flight_gap_minutes"`   // silence that starts a new flight
	MaxPositionAgeSeconds int    `toml:"max_position_age_sec"` // older positions are ignored
	GAOnly                bool   `toml:"ga_only"`
}

// DefaultConfig returns the default receiver configuration
func DefaultConfig() Config {
	return Config{
		SourceURL:             "http://localhost:8080/data/aircraft.json",
		PollIntervalSeconds:   5,
		RequestTimeoutSeconds: 10,
		FlightGapMinutes:      10,
		MaxPositionAgeSeconds: 30,
		GAOnly:                true,
	}
}

// Validate validates the receiver configuration
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SourceURL == "" {
		return fmt.Errorf("source_url cannot be empty")
	}
	if c.Airport == "" {
		return fmt.Errorf("airport is required")
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be greater than 0")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be greater than 0")
	}
	if c.FlightGapMinutes <= 0 {
		return fmt.Errorf("flight_gap_minutes must be greater than 0")
	}
	if c.MaxPositionAgeSeconds <= 0 {
		return fmt.Errorf("max_position_age_sec must be greater than 0")
	}
	return nil
}

// RawAircraftData represents the raw JSON data from the receiver
type RawAircraftData struct {
	Now      float64  `json:"now"`
	Messages int      `json:"messages"`
	Aircraft []Target `json:"aircraft"`
}

// Target represents a single aircraft in the receiver output. Fields the
// receiver omits decode as nil.
type Target struct {
	Hex          string    `json:"hex"`
	Flight       string    `json:"flight"`
	Registration string    `json:"r,omitempty"`
	AircraftType string    `json:"t,omitempty"`
	AltBaro      *Altitude `json:"alt_baro,omitempty"`
	GS           *float64  `json:"gs,omitempty"`
	Track        *float64  `json:"track,omitempty"`
	BaroRate     *int      `json:"baro_rate,omitempty"`
	Squawk       string    `json:"squawk"`
	Category     string    `json:"category"`
	Lat          *float64  `json:"lat,omitempty"`
	Lon          *float64  `json:"lon,omitempty"`
	SeenPos      *float64  `json:"seen_pos,omitempty"`
	Seen         float64   `json:"seen"`
	Messages     int       `json:"messages"`
	RSSI         float64   `json:"rssi"`
}

// Callsign returns the flight identifier, falling back to the registration
// and then the ICAO address
func (t Target) Callsign() string {
	if cs := strings.TrimSpace(t.Flight); cs != "" {
		return strings.ToUpper(cs)
	}
	if t.Registration != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Registration, "-", ""))
	}
	return strings.ToUpper(t.Hex)
}

// Altitude is a barometric altitude that may be reported as "ground"
type Altitude struct {
	Feet     float64
	OnGround bool
}

// UnmarshalJSON accepts a number or the string "ground"
func (a *Altitude) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte(`"ground"`)) {
		*a = Altitude{OnGround: true}
		return nil
	}
	var ft float64
	if err := json.Unmarshal(data, &ft); err != nil {
		return fmt.Errorf("invalid altitude %s: %w", data, err)
	}
	*a = Altitude{Feet: ft}
	return nil
}

// MarshalJSON writes "ground" or the altitude in feet
func (a Altitude) MarshalJSON() ([]byte, error) {
	if a.OnGround {
		return []byte(`"ground"`), nil
	}
	return json.Marshal(a.Feet)
}
