package extractor

import (
	"errors"
	"math"

	"github.com/yegors/glidepath/internal/physics"
	"github.com/yegors/glidepath/internal/track"
)

// ErrMissingSource is returned for STDDS messages without a <src> facility
var ErrMissingSource = errors.New("message has no source facility")

// unknownAddress is sent by terminal automation when no Mode S address is known
const unknownAddress = "000000"

// stddsResult is the outcome of one TATrackAndFlightPlan message
type stddsResult struct {
	points   []track.RawPoint
	facility string
	dropped  int // records without position, time or flight identifier
}

// parseSTDDS extracts every usable track record from a SWIM STDDS
// <TATrackAndFlightPlan> block
func parseSTDDS(block []byte) (stddsResult, error) {
	var res stddsResult

	root, err := parseTree(block)
	if err != nil {
		return res, err
	}
	res.facility = root.childText("src")
	if res.facility == "" {
		return res, ErrMissingSource
	}

	for _, rec := range root.childrenNamed("record") {
		p, ok := parseSTDDSRecord(rec, res.facility)
		if !ok {
			res.dropped++
			continue
		}
		res.points = append(res.points, p)
	}
	return res, nil
}

func parseSTDDSRecord(rec *node, facility string) (track.RawPoint, bool) {
	var p track.RawPoint

	trk := rec.child("track")
	if trk == nil {
		return p, false
	}

	mrt := parseTimePtr(trk.childText("mrtTime"))
	lat := parseFloatPtr(trk.childText("lat"))
	lon := parseFloatPtr(trk.childText("lon"))
	if mrt == nil || lat == nil || lon == nil {
		return p, false
	}

	p.Source = track.SourceSTDDS
	p.Time = *mrt
	p.MessageTime = mrt
	p.Latitude = lat
	p.Longitude = lon
	p.Center = facility
	p.Status = trk.childText("status")
	p.ReportedVerticalSpeed = parseIntPtr(trk.childText("vVert"))

	if alt := parseIntPtr(trk.childText("reportedAltitude")); alt != nil {
		p.Altitude = track.Ptr(float64(*alt))
	}

	if addr := trk.childText("acAddress"); addr != unknownAddress {
		p.ModeS = addr
	}

	vx := parseIntPtr(trk.childText("vx"))
	vy := parseIntPtr(trk.childText("vy"))
	if vx != nil && vy != nil {
		x, y := float64(*vx), float64(*vy)
		p.Speed = track.Ptr(math.Round(math.Hypot(x, y)))
		if x != 0 || y != 0 {
			p.Heading = track.Ptr(math.Round(physics.VectorToHeading(x, y)*10) / 10)
		}
	}

	if fp := rec.child("flightPlan"); fp != nil {
		p.Callsign = fp.childText("acid")
		p.AircraftType = fp.childText("acType")
		if aa := parseIntPtr(fp.childText("assignedAltitude")); aa != nil && *aa > 0 {
			p.AssignedAltitude = aa
			p.AssignedAltitudeType = track.AltitudeIFR
		}
	}

	if enh := rec.child("enhancedData"); enh != nil {
		p.FlightID = enh.childText("sfdpsGufi")
		p.Departure = enh.childText("departureAirport")
		p.Arrival = enh.childText("destinationAirport")
	}

	// Tracks without a flight identifier cannot be grouped into a flight
	if p.FlightID == "" {
		return p, false
	}
	return p, true
}
