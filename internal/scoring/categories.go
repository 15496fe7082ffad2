package scoring

import (
	"math"

	"github.com/yegors/glidepath/internal/approach"
	"github.com/yegors/glidepath/internal/physics"
)

func evalDescent(in Input, res *CategoryResult) {
	cfg := in.Config

	var devs []float64
	for _, p := range in.Points {
		if p.GlideslopeDevFt != nil {
			devs = append(devs, *p.GlideslopeDevFt)
		}
	}
	if len(devs) == 0 {
		res.NoData = true
		res.detail("No glideslope data")
		return
	}

	var sum float64
	var below, wayBelow, above int
	for _, d := range devs {
		sum += d
		if d < -cfg.DescentBelowFt {
			below++
		}
		if d < -cfg.DescentWayBelowFt {
			wayBelow++
		}
		if d > cfg.DescentAboveFt {
			above++
		}
	}
	avg := sum / float64(len(devs))

	// Below the path is worse than above it
	if wayBelow > 0 {
		n := min(pts(cfg.DescentWayBelowCap), wayBelow*pts(cfg.DescentWayBelowPerPt))
		res.deduct(n, "%d pts >%gft below GS (dangerous)", wayBelow, cfg.DescentWayBelowFt)
	}
	if below > wayBelow {
		n := min(pts(cfg.DescentBelowCap), (below-wayBelow)*pts(cfg.DescentBelowPerPt))
		res.deduct(n, "%d pts %g-%gft below GS", below-wayBelow, cfg.DescentBelowFt, cfg.DescentWayBelowFt)
	}
	if allowance := pts(cfg.DescentAboveAllowance); above > allowance {
		n := min(pts(cfg.DescentAboveCap), (above-allowance)/2)
		res.deduct(n, "%d pts >%gft above GS", above, cfg.DescentAboveFt)
	}

	climbing := 0
	for _, p := range in.Points {
		if p.VerticalSpeed != nil && float64(*p.VerticalSpeed) > cfg.DescentClimbFPM {
			climbing++
		}
	}
	if climbing > 0 {
		res.deduct(min(pts(cfg.DescentClimbCap), climbing), "%d pts climbing on approach", climbing)
	}

	res.floor()
	res.detail("Avg GS dev: %.0fft, Below: %d, Above: %d", avg, below, above)
}

// stabilizedDistance is the along-track distance of the first point, scanning
// far to near, that is on speed, on the glidepath and on the centerline. Zero
// when the approach never stabilized.
func stabilizedDistance(in Input) float64 {
	cfg := in.Config
	for _, p := range in.Points {
		onSpeed := p.Speed != nil && *p.Speed != 0 && math.Abs(*p.Speed-in.TargetSpeed) <= cfg.StabilizedSpeedTolerance
		onGS := p.GlideslopeDevFt != nil && math.Abs(*p.GlideslopeDevFt) < cfg.StabilizedGSToleranceFt
		onCL := math.Abs(p.CrossTrackFt) < cfg.StabilizedCTToleranceFt
		if onSpeed && onGS && onCL {
			return p.DistanceNM
		}
	}
	return 0
}

func evalStabilized(in Input, res *CategoryResult) {
	cfg := in.Config
	dist := stabilizedDistance(in)

	res.detail("Stabilized at %.2fnm", dist)
	res.Metrics = map[string]any{"stabilizedDist": dist}

	switch {
	case dist < cfg.StabilizedGoAroundNM:
		res.deduct(pts(cfg.StabilizedGoAroundPts), "Not stabilized until <%gnm (go-around criteria)", cfg.StabilizedGoAroundNM)
	case dist < cfg.StabilizedLateNM:
		res.deduct(pts(cfg.StabilizedLatePts), "Stabilized late (%.1fnm)", dist)
	case dist < cfg.StabilizedIdealNM:
		res.deduct(pts(cfg.StabilizedIdealPts), "Stabilized at %.1fnm (ideal >%gnm)", dist, cfg.StabilizedIdealNM)
	}
}

func evalCenterline(in Input, res *CategoryResult) {
	cfg := in.Config
	if len(in.Points) == 0 {
		res.NoData = true
		res.detail("No crosstrack data")
		return
	}

	margin := in.Crosswind * cfg.CenterlineXWAllowanceFt
	var sum, maxCT float64
	for _, p := range in.Points {
		ct := math.Abs(p.CrossTrackFt)
		sum += ct
		maxCT = math.Max(maxCT, ct)
	}
	avg := sum / float64(len(in.Points))
	adjusted := math.Max(0, maxCT-margin)

	switch {
	case adjusted > cfg.CenterlineMaxSevereFt:
		res.deduct(pts(cfg.CenterlineMaxSeverePts), "Max deviation %.0fft", maxCT)
	case adjusted > cfg.CenterlineMaxModerateFt:
		res.deduct(pts(cfg.CenterlineMaxModPts), "Max deviation %.0fft", maxCT)
	}

	switch {
	case avg > cfg.CenterlineAvgSevereFt:
		res.deduct(pts(cfg.CenterlineAvgSeverePts), "Avg deviation %.0fft", avg)
	case avg > cfg.CenterlineAvgModerateFt:
		res.deduct(pts(cfg.CenterlineAvgModPts), "Avg deviation %.0fft", avg)
	}

	res.floor()
	res.detail("Avg: %.0fft, Max: %.0fft, XW adj: %.0fft", avg, maxCT, margin)
	res.Metrics = map[string]any{"avgCrosstrack": int(avg), "maxCrosstrack": int(maxCT)}
}

func evalTurnToFinal(in Input, res *CategoryResult) {
	cfg := in.Config

	var maxBank float64
	steep := 0
	for _, p := range in.Points {
		var bank float64
		if p.Speed != nil && p.TurnRate != nil {
			bank = physics.BankAngle(*p.Speed, *p.TurnRate)
		}
		maxBank = math.Max(maxBank, bank)
		if bank > cfg.TurnBankLimitDeg {
			steep++
		}
	}
	if steep > 0 {
		n := min(pts(cfg.TurnBankCap), steep*pts(cfg.TurnBankPerPt))
		res.deduct(n, "%d pts with bank >%g° (max %.1f°)", steep, cfg.TurnBankLimitDeg, maxBank)
	}

	crossings := centerlineCrossings(in.Points, cfg.TurnCrossingDeadband)
	if allowance := pts(cfg.TurnCrossingAllowance); crossings > allowance {
		n := min(pts(cfg.TurnCrossingCap), (crossings-allowance)*pts(cfg.TurnCrossingPer))
		res.deduct(n, "%d centerline crossings (S-turns)", crossings)
	}

	res.floor()
	res.detail("Max bank: %.1f°, CL crossings: %d", maxBank, crossings)
	res.Metrics = map[string]any{"maxBank": math.Round(maxBank*10) / 10, "clCrossings": crossings}
}

func evalSpeedControl(in Input, res *CategoryResult) {
	cfg := in.Config

	var gustMargin float64
	if in.Gust > 0 {
		gustMargin = in.Gust * cfg.SpeedGustFactor
	}
	tolerance := cfg.SpeedBaseTolerance + gustMargin

	var speeds []float64
	for _, p := range in.Points {
		if p.Speed != nil {
			speeds = append(speeds, *p.Speed)
		}
	}
	if len(speeds) == 0 {
		res.NoData = true
		res.detail("No speed data")
		return
	}

	var sum, maxDev float64
	outside := 0
	for _, s := range speeds {
		sum += s
		dev := math.Abs(s - in.TargetSpeed)
		maxDev = math.Max(maxDev, dev)
		if dev > tolerance {
			outside++
		}
	}
	avg := sum / float64(len(speeds))

	switch {
	case maxDev > cfg.SpeedMaxDevSevere:
		res.deduct(pts(cfg.SpeedMaxDevSeverePts), "Speed varied %.0fkt from target", maxDev)
	case maxDev > cfg.SpeedMaxDevModerate:
		res.deduct(pts(cfg.SpeedMaxDevModPts), "Speed varied %.0fkt from target", maxDev)
	}

	if float64(outside) > float64(len(speeds))*cfg.SpeedOutOfTolFraction {
		res.deduct(pts(cfg.SpeedOutOfTolPts), "%d/%d pts outside ±%.0fkt", outside, len(speeds), tolerance)
	}

	res.floor()
	res.detail("Target: %gkt ±%.1fkt, Avg: %.0fkt", in.TargetSpeed, tolerance, avg)
	res.Metrics = map[string]any{"avgSpeed": int(avg), "maxSpeedDev": int(maxDev)}
}

func evalThresholdCrossing(in Input, res *CategoryResult) {
	cfg := in.Config

	// Last point inside the threshold window, in far to near order
	var agl *float64
	found := false
	for _, p := range in.Points {
		if p.DistanceNM < cfg.ThresholdWindowNM {
			agl, found = p.AGL, true
		}
	}

	if !found || agl == nil {
		res.NoData = true
		res.detail("No data near threshold")
		res.deduct(res.Score, "No threshold crossing data")
		res.Metrics = map[string]any{"thresholdAgl": nil}
		return
	}

	h := *agl
	res.detail("Crossed at %.0fft AGL (target %gft)", h, cfg.ThresholdTargetAGL)
	res.Metrics = map[string]any{"thresholdAgl": int(h)}

	switch {
	case h < cfg.ThresholdDangerousAGL:
		res.deduct(pts(cfg.ThresholdDangerousPts), "Too low! %.0fft AGL (dangerous)", h)
	case h < cfg.ThresholdLowAGL:
		res.deduct(pts(cfg.ThresholdLowPts), "Low crossing %.0fft AGL", h)
	case h > cfg.ThresholdHighAGL:
		res.deduct(pts(cfg.ThresholdHighPts), "High crossing %.0fft (long landing)", h)
	case h > cfg.ThresholdSlightlyHighAGL:
		res.deduct(pts(cfg.ThresholdSlightlyHighPts), "Slightly high %.0fft", h)
	}
}

// centerlineCrossings counts side changes of the cross-track offset. Points
// inside the deadband belong to neither side.
func centerlineCrossings(points []approach.Point, deadband float64) int {
	crossings := 0
	prev := 0
	for _, p := range points {
		side := 0
		switch {
		case p.CrossTrackFt > deadband:
			side = 1
		case p.CrossTrackFt < -deadband:
			side = -1
		}
		if side == 0 {
			continue
		}
		if prev != 0 && side != prev {
			crossings++
		}
		prev = side
	}
	return crossings
}
