package scoring

import (
	"fmt"
	"math"

	"github.com/yegors/glidepath/internal/approach"
)

// PenaltyType tags a severe safety penalty
type PenaltyType string

const (
	CFITRisk  PenaltyType = "CFIT_RISK"
	StallRisk PenaltyType = "STALL_RISK"
)

// PenaltyTypes lists every penalty type in report order
var PenaltyTypes = []PenaltyType{CFITRisk, StallRisk}

// Description is the short human readable summary of the penalty
func (t PenaltyType) Description() string {
	switch t {
	case CFITRisk:
		return "Below glideslope when low"
	case StallRisk:
		return "Near stall speed when high"
	}
	return ""
}

// Amount returns the configured deduction for the penalty
func (t PenaltyType) Amount(cfg Config) int {
	switch t {
	case CFITRisk:
		return pts(cfg.CFITPenalty)
	case StallRisk:
		return pts(cfg.StallPenalty)
	}
	return 0
}

// SeverePenalty is a flat deduction applied after the category totals
type SeverePenalty struct {
	Type        PenaltyType `json:"type"`
	Description string      `json:"description"`
	Detail      string      `json:"detail"`
	Penalty     int         `json:"penalty"`
}

// checkSeverePenalties returns at most one penalty of each type however many
// points qualify
func checkSeverePenalties(in Input) []SeverePenalty {
	cfg := in.Config
	penalties := []SeverePenalty{}

	lowCount, worst := 0, math.Inf(1)
	for _, p := range in.Points {
		if p.AGL == nil || p.GlideslopeDevFt == nil {
			continue
		}
		if *p.AGL < cfg.CFITAGL && *p.GlideslopeDevFt < -cfg.CFITGSDevFt {
			lowCount++
			worst = math.Min(worst, *p.GlideslopeDevFt)
		}
	}
	if lowCount > 0 {
		penalties = append(penalties, SeverePenalty{
			Type:        CFITRisk,
			Description: CFITRisk.Description(),
			Detail:      fmt.Sprintf("%d pts below GS when <%gft AGL (worst: %.0fft)", lowCount, cfg.CFITAGL, worst),
			Penalty:     CFITRisk.Amount(cfg),
		})
	}

	stallCount, lowest := 0, math.Inf(1)
	for _, p := range in.Points {
		if nearStall(p, in.DirtyStall, cfg) {
			stallCount++
			lowest = math.Min(lowest, *p.Speed)
		}
	}
	if stallCount > 0 {
		penalties = append(penalties, SeverePenalty{
			Type:        StallRisk,
			Description: StallRisk.Description(),
			Detail: fmt.Sprintf("%d pts within %gkts of stall (%gkt, Vs %gkt, margin %.0fkt)",
				stallCount, cfg.StallMargin, lowest, in.DirtyStall, lowest-in.DirtyStall),
			Penalty: StallRisk.Amount(cfg),
		})
	}

	return penalties
}

func nearStall(p approach.Point, dirtyStall float64, cfg Config) bool {
	if p.AGL == nil || *p.AGL <= cfg.StallMinAGL {
		return false
	}
	// Zero speed is a missing report, not a stalled aircraft
	if p.Speed == nil || *p.Speed == 0 {
		return false
	}
	return *p.Speed < dirtyStall+cfg.StallMargin
}
