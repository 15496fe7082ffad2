package extractor

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/yegors/glidepath/internal/physics"
	"github.com/yegors/glidepath/internal/track"
)

// Record parse errors
var (
	ErrNoFlight         = errors.New("record has no flight element")
	ErrMissingCallsign  = errors.New("record has no aircraft identification")
	ErrMissingFlightID  = errors.New("record has no flight identifier")
	ErrMissingTimestamp = errors.New("record has no usable timestamp")
)

// modeSNameValue carries the ICAO 24-bit address in FDPS supplemental data
const modeSNameValue = "ADSB_02M_52B"

// parseFDPS extracts one report from a SWIM FDPS <message> block
func parseFDPS(block []byte) (track.RawPoint, error) {
	var p track.RawPoint

	root, err := parseTree(block)
	if err != nil {
		return p, err
	}
	flight := root.find("flight")
	if flight == nil {
		return p, ErrNoFlight
	}

	p.Source = track.SourceFDPS
	p.Center = flight.attr("centre")
	p.MessageTime = parseTimePtr(flight.attr("timestamp"))

	if id := flight.find("flightIdentification"); id != nil {
		p.Callsign = strings.TrimSpace(id.attr("aircraftIdentification"))
		p.ComputerID = id.attr("computerId")
	}
	if p.Callsign == "" {
		return p, ErrMissingCallsign
	}

	p.FlightID = flight.textOf("gufi")
	if p.FlightID == "" {
		return p, ErrMissingFlightID
	}

	if dep := flight.find("departure"); dep != nil {
		p.Departure = dep.attr("departurePoint")
		p.DepartureActualTime = parseTimePtr(dep.find("runwayTime/actual").attr("time"))
	}
	if arr := flight.find("arrival"); arr != nil {
		p.Arrival = arr.attr("arrivalPoint")
		p.ArrivalEstimatedTime = parseTimePtr(arr.find("runwayTime/estimated").attr("time"))
	}

	p.Status = flight.find("flightStatus").attr("fdpsFlightStatus")
	p.Operator = flight.find("operator/operatingOrganization/organization").attr("name")
	if cu := flight.find("controllingUnit"); cu != nil {
		p.ControllingUnit = cu.attr("unitIdentifier")
		p.ControllingSector = cu.attr("sectorIdentifier")
	}
	p.FlightPlanID = flight.find("flightPlan").attr("identifier")

	parseAssignedAltitude(flight, &p)

	if pos := flight.find("enRoute/position"); pos != nil {
		if t := parseTimePtr(pos.attr("positionTime")); t != nil {
			p.Time = *t
		}
		if inner := pos.child("position"); inner != nil {
			p.Latitude, p.Longitude = parsePos(inner.textOf("pos"))
		}
		if alt := parseFloatPtr(pos.childText("altitude")); alt != nil {
			p.Altitude = track.Ptr(math.Trunc(*alt))
		}
		if spd := parseFloatPtr(pos.textOf("actualSpeed/surveillance")); spd != nil {
			p.Speed = track.Ptr(math.Trunc(*spd))
		}
		if tv := pos.child("trackVelocity"); tv != nil {
			x := parseFloatPtr(tv.childText("x"))
			y := parseFloatPtr(tv.childText("y"))
			if x != nil && y != nil {
				p.Heading = track.Ptr(math.Round(physics.VectorToHeading(*x, *y)*10) / 10)
			}
		}
	}

	if p.Time.IsZero() {
		if p.MessageTime == nil {
			return p, ErrMissingTimestamp
		}
		p.Time = *p.MessageTime
	}

	p.ModeS = modeS(flight)
	return p, nil
}

// parseAssignedAltitude maps the three mutually exclusive assignment shapes
func parseAssignedAltitude(flight *node, p *track.RawPoint) {
	aa := flight.find("assignedAltitude")
	if aa == nil {
		return
	}
	if simple := aa.child("simple"); simple != nil && simple.text != "" {
		p.AssignedAltitude = parseIntPtr(simple.text)
		p.AssignedAltitudeType = track.AltitudeIFR
	} else if plus := aa.child("vfrPlus"); plus != nil && plus.text != "" {
		p.AssignedAltitude = parseIntPtr(plus.text)
		p.AssignedAltitudeType = track.AltitudeVFRPlus
	} else if aa.child("vfr") != nil {
		p.AssignedAltitude = nil
		p.AssignedAltitudeType = track.AltitudeVFR
	}
}

func modeS(flight *node) string {
	var value string
	flight.walk(func(n *node) bool {
		if n.name == "nameValue" && n.attr("name") == modeSNameValue {
			value = n.attr("value")
			return false
		}
		return true
	})
	if i := strings.LastIndexByte(value, '-'); i >= 0 {
		value = value[i+1:]
	}
	return value
}

// parsePos reads a GML "lat lon" pair. Both coordinates or neither.
func parsePos(s string) (*float64, *float64) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, nil
	}
	lat := parseFloatPtr(fields[0])
	lon := parseFloatPtr(fields[1])
	if lat == nil || lon == nil {
		return nil, nil
	}
	return lat, lon
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
