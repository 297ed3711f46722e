// Package match picks the bus route nearest to a passenger and the next
// scheduled trip on it that runs in the passenger's direction.
//
// Every function here is a pure computation over its arguments. A "no
// result" outcome is reported through one of the sentinel errors below so
// callers can render a "not available" state with errors.Is.
package match

import (
	"errors"

	"trackly/internal/geo"
	"trackly/internal/polyline"
)

var (
	ErrNoCandidate = errors.New("no bus route near the passenger")
	ErrNoSchedule  = errors.New("no schedule entries for today")
	ErrNoTrip      = errors.New("no upcoming trip in the passenger's direction")
	ErrNoReference = errors.New("bus has no reference schedule entry")
)

// Skip reasons reported to an Observer.
const (
	SkipMissingRoute = "missing_route"
	SkipDecodeError  = "decode_error"
	SkipInvalidLine  = "invalid_line"
)

// LineDecoder turns an encoded route polyline into its points.
type LineDecoder interface {
	Decode(encoded string) ([]geo.Point, error)
}

// DecoderFunc adapts a function to LineDecoder.
type DecoderFunc func(encoded string) ([]geo.Point, error)

func (f DecoderFunc) Decode(encoded string) ([]geo.Point, error) { return f(encoded) }

// Observer receives a callback for each candidate the selector skips.
type Observer interface {
	CandidateSkipped(reason string)
}

type Matcher struct {
	lines    LineDecoder
	observer Observer
}

// NewMatcher builds a Matcher. A nil decoder decodes polylines directly; a
// nil observer disables skip callbacks.
func NewMatcher(lines LineDecoder, observer Observer) *Matcher {
	if lines == nil {
		lines = DecoderFunc(polyline.Decode)
	}
	return &Matcher{lines: lines, observer: observer}
}

func (m *Matcher) skipped(reason string) {
	if m.observer != nil {
		m.observer.CandidateSkipped(reason)
	}
}
