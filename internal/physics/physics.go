package physics

import (
	"math"
	"sync"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	EarthRadiusNM   = 3440.065 // Mean Earth radius (nautical miles)
	FeetPerNM       = 6076.12  // Feet in one nautical mile
	KnotsToFtPerSec = 1.687    // Conversion factor from Knots to ft/s
	GravityFtPerSec = 32.2     // Gravity (ft/s^2)
	FeetToMeters    = 0.3048
)

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// ------------------------------------------------------------------------------------------------
// GREAT CIRCLE
// ------------------------------------------------------------------------------------------------

// HaversineNM returns the great-circle distance between two points in nautical miles
func HaversineNM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusNM * math.Asin(math.Sqrt(a))
}

// InitialBearing returns the true bearing (0-360) from point 1 to point 2
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dLon := toRad(lon2 - lon1)

	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)

	return NormalizeHeading(toDeg(math.Atan2(y, x)))
}

// ------------------------------------------------------------------------------------------------
// ANGLES
// ------------------------------------------------------------------------------------------------

// NormalizeHeading maps any angle into [0, 360)
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// SignedAngle normalizes an angle difference into (-180, 180]
func SignedAngle(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// AngleDiff returns the absolute shortest angle between two headings (0-180)
func AngleDiff(a, b float64) float64 {
	return math.Abs(SignedAngle(a - b))
}

// ------------------------------------------------------------------------------------------------
// NAVIGATION PHYSICS
// ------------------------------------------------------------------------------------------------

// Vector2D represents a 2D vector (magnitude, direction)
type Vector2D struct {
	X float64 // East component
	Y float64 // North component
}

// HeadingToVector converts a heading (degrees) and magnitude to X/Y components
func HeadingToVector(headingDeg float64, magnitude float64) Vector2D {
	rad := toRad(90 - headingDeg) // Convert compass heading to math angle
	return Vector2D{
		X: magnitude * math.Cos(rad),
		Y: magnitude * math.Sin(rad),
	}
}

// Dot returns the dot product of two vectors
func (v Vector2D) Dot(o Vector2D) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Cross returns the z component of the cross product
func (v Vector2D) Cross(o Vector2D) float64 {
	return v.X*o.Y - v.Y*o.X
}

// VectorToHeading converts an East/North velocity vector to a compass heading (0-360).
// Note the argument order: atan2(east, north) measures clockwise from north.
func VectorToHeading(east, north float64) float64 {
	return NormalizeHeading(toDeg(math.Atan2(east, north)))
}

// WindComponents splits a wind (direction it blows from, speed) into headwind and
// crosswind components relative to a runway heading.
// Headwind is positive on the nose, crosswind is always reported as a magnitude.
func WindComponents(windDirDeg, windSpeedKts, runwayHeadingDeg float64) (headwind, crosswind float64) {
	wind := HeadingToVector(windDirDeg, windSpeedKts)
	rwy := HeadingToVector(runwayHeadingDeg, 1)
	return wind.Dot(rwy), math.Abs(wind.Cross(rwy))
}

// BankAngle returns the bank angle (degrees, absolute) required for a coordinated
// turn at the given ground speed and turn rate
func BankAngle(speedKts, turnRateDegSec float64) float64 {
	if speedKts == 0 || turnRateDegSec == 0 {
		return 0
	}
	speedFts := speedKts * KnotsToFtPerSec
	omega := toRad(turnRateDegSec)
	return math.Abs(toDeg(math.Atan(speedFts * omega / GravityFtPerSec)))
}

// GlidepathHeight returns the height (ft) above threshold elevation of a glidepath
// at the given along-track distance
func GlidepathHeight(alongTrackNM, angleDeg, crossingHeightFt float64) float64 {
	return crossingHeightFt + alongTrackNM*FeetPerNM*math.Tan(toRad(angleDeg))
}

var wmmMu sync.Mutex

// CalculateMagneticVariation calculates the magnetic declination for a given position and time
// Returns declination in degrees (+East, -West)
func CalculateMagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lon, altFt*FeetToMeters)

	// wmm caches the last location's field in package state
	wmmMu.Lock()
	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	wmmMu.Unlock()
	if err != nil {
		// Outside the model's validity window
		return 0.0
	}

	return mag.D()
}

// TrueToMagnetic converts a true heading to magnetic using the declination at the position
func TrueToMagnetic(trueHeading, lat, lon, altFt float64, date time.Time) float64 {
	return NormalizeHeading(trueHeading - CalculateMagneticVariation(lat, lon, altFt, date))
}
