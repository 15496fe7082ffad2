package track

import (
	"math"
	"time"

	"github.com/yegors/glidepath/internal/physics"
)

// MaxDerivationGap is the longest gap between two reports that is still treated
// as continuous motion. Anything longer is a feed dropout.
const MaxDerivationGap = 120 * time.Second

// Derive computes acceleration, turn rate and vertical speed for a
// time-ordered sequence of one flight's reports. The input is not modified.
func Derive(points []RawPoint) []DerivedPoint {
	out := make([]DerivedPoint, len(points))
	for i := range points {
		out[i] = DerivedPoint{RawPoint: points[i]}
		if i == 0 {
			continue
		}

		prev, curr := points[i-1], points[i]
		dt := curr.Time.Sub(prev.Time)
		if dt <= 0 || dt > MaxDerivationGap {
			continue
		}
		secs := dt.Seconds()

		if prev.Speed != nil && curr.Speed != nil {
			out[i].Acceleration = Ptr(round2((*curr.Speed - *prev.Speed) / secs))
		}
		if prev.Heading != nil && curr.Heading != nil {
			delta := physics.SignedAngle(*curr.Heading - *prev.Heading)
			out[i].TurnRate = Ptr(round2(delta / secs))
		}
		if prev.Altitude != nil && curr.Altitude != nil {
			out[i].VerticalSpeed = Ptr(int(math.Round((*curr.Altitude - *prev.Altitude) / secs * 60)))
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
