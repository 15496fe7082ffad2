package track

import "time"

// Source identifies the feed a report came from
type Source string

const (
	SourceFDPS  Source = "FDPS"
	SourceSTDDS Source = "STDDS"
	SourceADSB  Source = "ADSB" // local receiver
)

// AltitudeType is the kind of altitude assignment carried by a report
type AltitudeType string

const (
	AltitudeIFR     AltitudeType = "IFR"
	AltitudeVFR     AltitudeType = "VFR"
	AltitudeVFRPlus AltitudeType = "VFR+"
)

// RawPoint is one telemetry report for one flight.
// (FlightID, Time) is unique in storage.
type RawPoint struct {
	FlightID string    `json:"flight_id"`
	Callsign string    `json:"callsign"`
	Source   Source    `json:"source"`
	Time     time.Time `json:"position_time"`

	// Message timestamp as sent by the feed, may differ from the position time
	MessageTime *time.Time `json:"timestamp,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"` // feet, barometric
	Speed     *float64 `json:"speed,omitempty"`    // knots, ground speed
	Heading   *float64 `json:"track,omitempty"`    // degrees true

	// Vertical speed as reported by the feed (STDDS only)
	ReportedVerticalSpeed *int `json:"reported_vertical_speed,omitempty"`

	AssignedAltitude     *int         `json:"assigned_altitude,omitempty"`
	AssignedAltitudeType AltitudeType `json:"assigned_altitude_type,omitempty"`

	Status            string `json:"status,omitempty"`
	Operator          string `json:"operator,omitempty"`
	Center            string `json:"center,omitempty"`
	ControllingUnit   string `json:"controlling_unit,omitempty"`
	ControllingSector string `json:"controlling_sector,omitempty"`
	ComputerID        string `json:"computer_id,omitempty"`
	FlightPlanID      string `json:"flight_plan_id,omitempty"`
	ModeS             string `json:"mode_s,omitempty"`
	AircraftType      string `json:"ac_type,omitempty"`

	Departure            string     `json:"departure,omitempty"`
	Arrival              string     `json:"arrival,omitempty"`
	DepartureActualTime  *time.Time `json:"departure_actual_time,omitempty"`
	ArrivalEstimatedTime *time.Time `json:"arrival_estimated_time,omitempty"`
}

// HasPosition reports whether both coordinates are present
func (p RawPoint) HasPosition() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// DerivedPoint is a RawPoint plus kinematics computed against the previous
// report of the same flight. The derived fields are nil when the gap to the
// previous report is outside (0, 120] seconds.
type DerivedPoint struct {
	RawPoint

	Acceleration  *float64 `json:"accel,omitempty"`          // knots/second
	TurnRate      *float64 `json:"turn_rate,omitempty"`      // degrees/second, positive = right
	VerticalSpeed *int     `json:"vertical_speed,omitempty"` // feet/minute
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
