package scoring

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownKey is returned when an override names a threshold that does not exist
var ErrUnknownKey = errors.New("unknown scoring config key")

// Config is an immutable snapshot of every scoring threshold. It is a plain
// value, so a run that holds one is unaffected by later overrides.
type Config struct {
	// Category maxima
	DescentMax           float64
	StabilizedMax        float64
	CenterlineMax        float64
	TurnToFinalMax       float64
	SpeedControlMax      float64
	ThresholdCrossingMax float64

	// Descent
	DescentWayBelowFt     float64
	DescentWayBelowPerPt  float64
	DescentWayBelowCap    float64
	DescentBelowFt        float64
	DescentBelowPerPt     float64
	DescentBelowCap       float64
	DescentAboveFt        float64
	DescentAboveAllowance float64
	DescentAboveCap       float64
	DescentClimbFPM       float64
	DescentClimbCap       float64

	// Stabilized approach
	StabilizedSpeedTolerance float64
	StabilizedGSToleranceFt  float64
	StabilizedCTToleranceFt  float64
	StabilizedGoAroundNM     float64
	StabilizedGoAroundPts    float64
	StabilizedLateNM         float64
	StabilizedLatePts        float64
	StabilizedIdealNM        float64
	StabilizedIdealPts       float64

	// Centerline
	CenterlineXWAllowanceFt float64 // feet of allowance per knot of crosswind
	CenterlineMaxSevereFt   float64
	CenterlineMaxSeverePts  float64
	CenterlineMaxModerateFt float64
	CenterlineMaxModPts     float64
	CenterlineAvgSevereFt   float64
	CenterlineAvgSeverePts  float64
	CenterlineAvgModerateFt float64
	CenterlineAvgModPts     float64

	// Turn to final
	TurnBankLimitDeg      float64
	TurnBankPerPt         float64
	TurnBankCap           float64
	TurnCrossingDeadband  float64
	TurnCrossingAllowance float64
	TurnCrossingPer       float64
	TurnCrossingCap       float64

	// Speed control
	SpeedBaseTolerance    float64
	SpeedGustFactor       float64
	SpeedMaxDevSevere     float64
	SpeedMaxDevSeverePts  float64
	SpeedMaxDevModerate   float64
	SpeedMaxDevModPts     float64
	SpeedOutOfTolFraction float64
	SpeedOutOfTolPts      float64

	// Threshold crossing
	ThresholdWindowNM        float64
	ThresholdTargetAGL       float64
	ThresholdDangerousAGL    float64
	ThresholdDangerousPts    float64
	ThresholdLowAGL          float64
	ThresholdLowPts          float64
	ThresholdHighAGL         float64
	ThresholdHighPts         float64
	ThresholdSlightlyHighAGL float64
	ThresholdSlightlyHighPts float64

	// Severe penalties
	CFITAGL         float64
	CFITGSDevFt     float64 // magnitude below the glidepath
	CFITPenalty     float64
	StallMinAGL     float64
	StallMargin     float64
	StallPenalty    float64
	DefaultApproach float64 // knots, when the type has no reference speed
	DefaultStall    float64 // knots, dirty configuration

	// Grade floors, percent
	GradeA float64
	GradeB float64
	GradeC float64
	GradeD float64
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		DescentMax:           20,
		StabilizedMax:        20,
		CenterlineMax:        20,
		TurnToFinalMax:       15,
		SpeedControlMax:      15,
		ThresholdCrossingMax: 10,

		DescentWayBelowFt:     200,
		DescentWayBelowPerPt:  2,
		DescentWayBelowCap:    10,
		DescentBelowFt:        100,
		DescentBelowPerPt:     1,
		DescentBelowCap:       5,
		DescentAboveFt:        150,
		DescentAboveAllowance: 3,
		DescentAboveCap:       3,
		DescentClimbFPM:       200,
		DescentClimbCap:       5,

		StabilizedSpeedTolerance: 10,
		StabilizedGSToleranceFt:  150,
		StabilizedCTToleranceFt:  300,
		StabilizedGoAroundNM:     1,
		StabilizedGoAroundPts:    15,
		StabilizedLateNM:         2,
		StabilizedLatePts:        10,
		StabilizedIdealNM:        3,
		StabilizedIdealPts:       5,

		CenterlineXWAllowanceFt: 20,
		CenterlineMaxSevereFt:   500,
		CenterlineMaxSeverePts:  10,
		CenterlineMaxModerateFt: 300,
		CenterlineMaxModPts:     5,
		CenterlineAvgSevereFt:   200,
		CenterlineAvgSeverePts:  5,
		CenterlineAvgModerateFt: 100,
		CenterlineAvgModPts:     2,

		TurnBankLimitDeg:      30,
		TurnBankPerPt:         2,
		TurnBankCap:           10,
		TurnCrossingDeadband:  50,
		TurnCrossingAllowance: 1,
		TurnCrossingPer:       2,
		TurnCrossingCap:       5,

		SpeedBaseTolerance:    5,
		SpeedGustFactor:       0.5,
		SpeedMaxDevSevere:     15,
		SpeedMaxDevSeverePts:  8,
		SpeedMaxDevModerate:   10,
		SpeedMaxDevModPts:     4,
		SpeedOutOfTolFraction: 0.3,
		SpeedOutOfTolPts:      4,

		ThresholdWindowNM:        0.15,
		ThresholdTargetAGL:       50,
		ThresholdDangerousAGL:    20,
		ThresholdDangerousPts:    8,
		ThresholdLowAGL:          35,
		ThresholdLowPts:          4,
		ThresholdHighAGL:         100,
		ThresholdHighPts:         5,
		ThresholdSlightlyHighAGL: 75,
		ThresholdSlightlyHighPts: 2,

		CFITAGL:         500,
		CFITGSDevFt:     50,
		CFITPenalty:     20,
		StallMinAGL:     50,
		StallMargin:     10,
		StallPenalty:    20,
		DefaultApproach: 70,
		DefaultStall:    45,

		GradeA: 90,
		GradeB: 80,
		GradeC: 70,
		GradeD: 60,
	}
}

// keys maps override names to the field they set
var keys = map[string]func(*Config) *float64{
	"descent_max":            func(c *Config) *float64 { return &c.DescentMax },
	"stabilized_max":         func(c *Config) *float64 { return &c.StabilizedMax },
	"centerline_max":         func(c *Config) *float64 { return &c.CenterlineMax },
	"turn_to_final_max":      func(c *Config) *float64 { return &c.TurnToFinalMax },
	"speed_control_max":      func(c *Config) *float64 { return &c.SpeedControlMax },
	"threshold_crossing_max": func(c *Config) *float64 { return &c.ThresholdCrossingMax },

	"descent_way_below_ft":     func(c *Config) *float64 { return &c.DescentWayBelowFt },
	"descent_way_below_per_pt": func(c *Config) *float64 { return &c.DescentWayBelowPerPt },
	"descent_way_below_cap":    func(c *Config) *float64 { return &c.DescentWayBelowCap },
	"descent_below_ft":         func(c *Config) *float64 { return &c.DescentBelowFt },
	"descent_below_per_pt":     func(c *Config) *float64 { return &c.DescentBelowPerPt },
	"descent_below_cap":        func(c *Config) *float64 { return &c.DescentBelowCap },
	"descent_above_ft":         func(c *Config) *float64 { return &c.DescentAboveFt },
	"descent_above_allowance":  func(c *Config) *float64 { return &c.DescentAboveAllowance },
	"descent_above_cap":        func(c *Config) *float64 { return &c.DescentAboveCap },
	"descent_climb_fpm":        func(c *Config) *float64 { return &c.DescentClimbFPM },
	"descent_climb_cap":        func(c *Config) *float64 { return &c.DescentClimbCap },

	"stabilized_speed_tolerance": func(c *Config) *float64 { return &c.StabilizedSpeedTolerance },
	"stabilized_gs_tolerance_ft": func(c *Config) *float64 { return &c.StabilizedGSToleranceFt },
	"stabilized_ct_tolerance_ft": func(c *Config) *float64 { return &c.StabilizedCTToleranceFt },
	"stabilized_go_around_nm":    func(c *Config) *float64 { return &c.StabilizedGoAroundNM },
	"stabilized_go_around_pts":   func(c *Config) *float64 { return &c.StabilizedGoAroundPts },
	"stabilized_late_nm":         func(c *Config) *float64 { return &c.StabilizedLateNM },
	"stabilized_late_pts":        func(c *Config) *float64 { return &c.StabilizedLatePts },
	"stabilized_ideal_nm":        func(c *Config) *float64 { return &c.StabilizedIdealNM },
	"stabilized_ideal_pts":       func(c *Config) *float64 { return &c.StabilizedIdealPts },

	"centerline_xw_allowance_ft":  func(c *Config) *float64 { return &c.CenterlineXWAllowanceFt },
	"centerline_max_severe_ft":    func(c *Config) *float64 { return &c.CenterlineMaxSevereFt },
	"centerline_max_severe_pts":   func(c *Config) *float64 { return &c.CenterlineMaxSeverePts },
	"centerline_max_moderate_ft":  func(c *Config) *float64 { return &c.CenterlineMaxModerateFt },
	"centerline_max_moderate_pts": func(c *Config) *float64 { return &c.CenterlineMaxModPts },
	"centerline_avg_severe_ft":    func(c *Config) *float64 { return &c.CenterlineAvgSevereFt },
	"centerline_avg_severe_pts":   func(c *Config) *float64 { return &c.CenterlineAvgSeverePts },
	"centerline_avg_moderate_ft":  func(c *Config) *float64 { return &c.CenterlineAvgModerateFt },
	"centerline_avg_moderate_pts": func(c *Config) *float64 { return &c.CenterlineAvgModPts },

	"turn_bank_limit_deg":     func(c *Config) *float64 { return &c.TurnBankLimitDeg },
	"turn_bank_per_pt":        func(c *Config) *float64 { return &c.TurnBankPerPt },
	"turn_bank_cap":           func(c *Config) *float64 { return &c.TurnBankCap },
	"turn_crossing_deadband":  func(c *Config) *float64 { return &c.TurnCrossingDeadband },
	"turn_crossing_allowance": func(c *Config) *float64 { return &c.TurnCrossingAllowance },
	"turn_crossing_per":       func(c *Config) *float64 { return &c.TurnCrossingPer },
	"turn_crossing_cap":       func(c *Config) *float64 { return &c.TurnCrossingCap },

	"speed_base_tolerance":       func(c *Config) *float64 { return &c.SpeedBaseTolerance },
	"speed_gust_factor":          func(c *Config) *float64 { return &c.SpeedGustFactor },
	"speed_max_dev_severe":       func(c *Config) *float64 { return &c.SpeedMaxDevSevere },
	"speed_max_dev_severe_pts":   func(c *Config) *float64 { return &c.SpeedMaxDevSeverePts },
	"speed_max_dev_moderate":     func(c *Config) *float64 { return &c.SpeedMaxDevModerate },
	"speed_max_dev_moderate_pts": func(c *Config) *float64 { return &c.SpeedMaxDevModPts },
	"speed_out_of_tol_fraction":  func(c *Config) *float64 { return &c.SpeedOutOfTolFraction },
	"speed_out_of_tol_pts":       func(c *Config) *float64 { return &c.SpeedOutOfTolPts },

	"threshold_window_nm":         func(c *Config) *float64 { return &c.ThresholdWindowNM },
	"threshold_target_agl":        func(c *Config) *float64 { return &c.ThresholdTargetAGL },
	"threshold_dangerous_agl":     func(c *Config) *float64 { return &c.ThresholdDangerousAGL },
	"threshold_dangerous_pts":     func(c *Config) *float64 { return &c.ThresholdDangerousPts },
	"threshold_low_agl":           func(c *Config) *float64 { return &c.ThresholdLowAGL },
	"threshold_low_pts":           func(c *Config) *float64 { return &c.ThresholdLowPts },
	"threshold_high_agl":          func(c *Config) *float64 { return &c.ThresholdHighAGL },
	"threshold_high_pts":          func(c *Config) *float64 { return &c.ThresholdHighPts },
	"threshold_slightly_high_agl": func(c *Config) *float64 { return &c.ThresholdSlightlyHighAGL },
	"threshold_slightly_high_pts": func(c *Config) *float64 { return &c.ThresholdSlightlyHighPts },

	"cfit_agl":               func(c *Config) *float64 { return &c.CFITAGL },
	"cfit_gs_dev_ft":         func(c *Config) *float64 { return &c.CFITGSDevFt },
	"cfit_penalty":           func(c *Config) *float64 { return &c.CFITPenalty },
	"stall_min_agl":          func(c *Config) *float64 { return &c.StallMinAGL },
	"stall_margin":           func(c *Config) *float64 { return &c.StallMargin },
	"stall_penalty":          func(c *Config) *float64 { return &c.StallPenalty },
	"default_approach_speed": func(c *Config) *float64 { return &c.DefaultApproach },
	"default_dirty_stall":    func(c *Config) *float64 { return &c.DefaultStall },

	"grade_a": func(c *Config) *float64 { return &c.GradeA },
	"grade_b": func(c *Config) *float64 { return &c.GradeB },
	"grade_c": func(c *Config) *float64 { return &c.GradeC },
	"grade_d": func(c *Config) *float64 { return &c.GradeD },
}

// Keys returns every override name, sorted
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// With returns a copy of c with the overrides applied. The receiver is not
// modified. Any unknown key fails the whole merge.
func (c Config) With(overrides map[string]float64) (Config, error) {
	next := c
	for k, v := range overrides {
		field, ok := keys[k]
		if !ok {
			return c, fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
		*field(&next) = v
	}
	return next, nil
}

// Get returns the value of a named threshold
func (c Config) Get(key string) (float64, bool) {
	field, ok := keys[key]
	if !ok {
		return 0, false
	}
	return *field(&c), true
}

// Values returns every threshold keyed by override name
func (c Config) Values() map[string]float64 {
	out := make(map[string]float64, len(keys))
	for k, field := range keys {
		out[k] = *field(&c)
	}
	return out
}
