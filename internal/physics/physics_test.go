package physics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignedAngle(t *testing.T) {
	for _, tc := range []struct {
		in, out float64
	}{
		{20, 20},
		{-340, 20},
		{340, -20},
		{180, 180},
		{-180, 180},
		{540, 180},
		{-90, -90},
		{0, 0},
	} {
		assert.InDelta(t, tc.out, SignedAngle(tc.in), 1e-9, "in=%v", tc.in)
	}
}

func TestAngleDiff(t *testing.T) {
	assert.InDelta(t, 20.0, AngleDiff(350, 10), 1e-9)
	assert.InDelta(t, 20.0, AngleDiff(10, 350), 1e-9)
	assert.InDelta(t, 180.0, AngleDiff(90, 270), 1e-9)
	assert.InDelta(t, 0.0, AngleDiff(360, 0), 1e-9)
}

func TestHaversineNM(t *testing.T) {
	// One degree of latitude is 60nm on this sphere to within a fraction of a mile
	d := HaversineNM(42.0, -71.0, 43.0, -71.0)
	assert.InDelta(t, 60.04, d, 0.05)
	assert.Zero(t, HaversineNM(42.0, -71.0, 42.0, -71.0))
}

func TestInitialBearing(t *testing.T) {
	assert.InDelta(t, 0.0, InitialBearing(42.0, -71.0, 43.0, -71.0), 1e-6)
	assert.InDelta(t, 180.0, InitialBearing(43.0, -71.0, 42.0, -71.0), 1e-6)
	assert.InDelta(t, 90.0, InitialBearing(0, 0, 0, 1), 1e-6)
	assert.InDelta(t, 270.0, InitialBearing(0, 1, 0, 0), 1e-6)
}

func TestVectorToHeading(t *testing.T) {
	assert.InDelta(t, 0.0, VectorToHeading(0, 100), 1e-9)
	assert.InDelta(t, 90.0, VectorToHeading(100, 0), 1e-9)
	assert.InDelta(t, 225.0, VectorToHeading(-100, -100), 1e-9)

	v := HeadingToVector(135, 10)
	assert.InDelta(t, 135.0, VectorToHeading(v.X, v.Y), 1e-9)
}

func TestWindComponents(t *testing.T) {
	head, cross := WindComponents(270, 10, 270)
	assert.InDelta(t, 10.0, head, 1e-9)
	assert.InDelta(t, 0.0, cross, 1e-9)

	head, cross = WindComponents(360, 10, 270)
	assert.InDelta(t, 0.0, head, 1e-9)
	assert.InDelta(t, 10.0, cross, 1e-9)

	_, cross = WindComponents(300, 20, 270)
	assert.InDelta(t, 10.0, cross, 1e-9)

	for _, wind := range []float64{0, 45, 135, 200, 315} {
		head, cross := WindComponents(wind, 12, 30)
		angle := (wind - 30) * math.Pi / 180
		assert.InDelta(t, 12*math.Cos(angle), head, 1e-9, "wind %v", wind)
		assert.InDelta(t, math.Abs(12*math.Sin(angle)), cross, 1e-9, "wind %v", wind)
	}
}

func TestVectorProducts(t *testing.T) {
	north := HeadingToVector(0, 1)
	east := HeadingToVector(90, 1)
	assert.InDelta(t, 0.0, north.Dot(east), 1e-9)
	assert.InDelta(t, 1.0, north.Dot(north), 1e-9)
	assert.InDelta(t, 1.0, east.Cross(north), 1e-9)
	assert.InDelta(t, -1.0, north.Cross(east), 1e-9)
}

func TestBankAngle(t *testing.T) {
	assert.Zero(t, BankAngle(0, 3))
	assert.Zero(t, BankAngle(90, 0))

	// Standard rate turn at 90kt is roughly 14 degrees of bank
	b := BankAngle(90, 3)
	assert.InDelta(t, 13.9, b, 0.2)
	assert.Equal(t, b, BankAngle(90, -3))
}

func TestGlidepathHeight(t *testing.T) {
	assert.InDelta(t, 50.0, GlidepathHeight(0, 3, 50), 1e-9)
	assert.InDelta(t, 50+FeetPerNM*math.Tan(3*math.Pi/180), GlidepathHeight(1, 3, 50), 1e-9)
}

func TestTrueToMagnetic(t *testing.T) {
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	variation := CalculateMagneticVariation(42.36, -71.0, 20, date)
	assert.LessOrEqual(t, math.Abs(variation), 30.0)

	mag := TrueToMagnetic(40, 42.36, -71.0, 20, date)
	assert.InDelta(t, NormalizeHeading(40-variation), mag, 1e-9)
	assert.GreaterOrEqual(t, mag, 0.0)
	assert.Less(t, mag, 360.0)
}
