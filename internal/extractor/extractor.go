package extractor

import (
	"fmt"
	"strings"

	"github.com/yegors/glidepath/internal/track"
	"github.com/yegors/glidepath/pkg/logger"
)

// Format selects the record framing and parser
type Format string

const (
	FormatFDPS  Format = "fdps"
	FormatSTDDS Format = "stdds"
)

// Element returns the local name of the element that frames one record
func (f Format) Element() string {
	switch f {
	case FormatSTDDS:
		return "TATrackAndFlightPlan"
	default:
		return "message"
	}
}

// ParseFormat validates a configured format name
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatFDPS:
		return FormatFDPS, nil
	case FormatSTDDS:
		return FormatSTDDS, nil
	default:
		return "", fmt.Errorf("unknown feed format: %q", s)
	}
}

// Filter drops reports the deployment is not interested in
type Filter struct {
	Facilities []string // empty = all
	GAOnly     bool     // keep only N-registered callsigns
}

func (f Filter) allowFacility(facility string) bool {
	if len(f.Facilities) == 0 {
		return true
	}
	for _, allowed := range f.Facilities {
		if strings.EqualFold(allowed, facility) {
			return true
		}
	}
	return false
}

func (f Filter) allowCallsign(callsign string) bool {
	if !f.GAOnly {
		return true
	}
	return strings.HasPrefix(callsign, "N")
}

// Result is the outcome of one extraction pass over a buffer
type Result struct {
	Points []track.RawPoint

	// Consumed is the offset just past the last complete block. Bytes after
	// it belong to a block that is still arriving.
	Consumed int

	Blocks   int // complete blocks found
	Failed   int // blocks that could not be parsed
	Filtered int // reports dropped by the filter
	Dropped  int // records inside a good block that lacked mandatory fields
}

// Extractor turns a growing buffer of framed records into reports
type Extractor struct {
	format Format
	filter Filter
	logger *logger.Logger
}

// New creates an extractor for the given feed format
func New(format Format, filter Filter, log *logger.Logger) *Extractor {
	return &Extractor{
		format: format,
		filter: filter,
		logger: log.Named("extractor"),
	}
}

// Extract parses every complete block in buf. A block that fails to parse is
// logged and skipped. The buffer itself is never modified.
func (e *Extractor) Extract(buf []byte) Result {
	var res Result

	frames := FindFrames(buf, e.format.Element())
	res.Blocks = len(frames)
	if len(frames) == 0 {
		return res
	}
	res.Consumed = frames[len(frames)-1].End

	for _, fr := range frames {
		block := buf[fr.Start:fr.End]
		switch e.format {
		case FormatSTDDS:
			e.extractSTDDS(block, fr, &res)
		default:
			e.extractFDPS(block, fr, &res)
		}
	}

	e.logger.Debug("Extracted records",
		logger.Int("blocks", res.Blocks),
		logger.Int("points", len(res.Points)),
		logger.Int("failed", res.Failed),
		logger.Int("filtered", res.Filtered),
		logger.Int("dropped", res.Dropped),
		logger.Int("consumed_bytes", res.Consumed))

	return res
}

func (e *Extractor) extractFDPS(block []byte, fr Frame, res *Result) {
	p, err := parseFDPS(block)
	if err != nil {
		res.Failed++
		e.logger.Warn("Skipping unparseable record",
			logger.Int("offset", fr.Start),
			logger.Error(err))
		return
	}
	if !e.filter.allowFacility(p.Center) || !e.filter.allowCallsign(p.Callsign) {
		res.Filtered++
		return
	}
	res.Points = append(res.Points, p)
}

func (e *Extractor) extractSTDDS(block []byte, fr Frame, res *Result) {
	msg, err := parseSTDDS(block)
	if err != nil {
		res.Failed++
		e.logger.Warn("Skipping unparseable message",
			logger.Int("offset", fr.Start),
			logger.Error(err))
		return
	}
	res.Dropped += msg.dropped
	if !e.filter.allowFacility(msg.facility) {
		res.Filtered += len(msg.points)
		return
	}
	for _, p := range msg.points {
		if !e.filter.allowCallsign(p.Callsign) {
			res.Filtered++
			continue
		}
		res.Points = append(res.Points, p)
	}
}
