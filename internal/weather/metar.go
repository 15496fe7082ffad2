package weather

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reWind     = regexp.MustCompile(`\s(\d{3}|VRB)(\d{2,3})(?:G(\d{2,3}))?KT\b`)
	reTGroup   = regexp.MustCompile(`T([01])(\d{3})`)
	reStandard = regexp.MustCompile(`\s(M)?(\d{2})/(?:M)?\d{2}`)
)

// RawWind is the surface wind group of a raw METAR
type RawWind struct {
	Direction *int // nil when variable
	Speed     int
	Gust      *int
}

// ParseRawWind extracts the wind group, e.g. "24012G20KT" or "VRB03KT"
func ParseRawWind(raw string) (RawWind, bool) {
	m := reWind.FindStringSubmatch(" " + raw)
	if m == nil {
		return RawWind{}, false
	}
	var w RawWind
	if m[1] != "VRB" {
		dir, err := strconv.Atoi(m[1])
		if err != nil {
			return RawWind{}, false
		}
		w.Direction = &dir
	}
	speed, err := strconv.Atoi(m[2])
	if err != nil {
		return RawWind{}, false
	}
	w.Speed = speed
	if m[3] != "" {
		if gust, err := strconv.Atoi(m[3]); err == nil {
			w.Gust = &gust
		}
	}
	return w, true
}

// ParseTemperature extracts the temperature in Celsius from the raw METAR string.
// Standard Format: "22/M05" (22°C, Dewpoint -5°C) or "M02/M10" (-2°C / -10°C)
// Also supports RMK T-group: "T00561050" (Precise Temp: 5.6°C)
func ParseTemperature(raw string) (float64, bool) {
	// T-group in the remarks is more precise
	if i := strings.Index(raw, "RMK"); i >= 0 {
		if matches := reTGroup.FindStringSubmatch(raw[i:]); len(matches) == 3 {
			val, err := strconv.ParseFloat(matches[2], 64)
			if err == nil {
				val = val / 10.0
				if matches[1] == "1" {
					val = -val
				}
				return val, true
			}
		}
	}

	matches := reStandard.FindStringSubmatch(raw)
	if len(matches) == 3 {
		val, err := strconv.ParseFloat(matches[2], 64)
		if err == nil {
			if matches[1] == "M" {
				val = -val
			}
			return val, true
		}
	}

	return 0, false
}
