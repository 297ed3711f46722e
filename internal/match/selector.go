package match

import (
	"errors"
	"log"
	"math"

	"trackly/internal/geo"
	"trackly/internal/polyline"
	"trackly/internal/transit"
)

// SelectNearestBus returns the vehicle number of the bus whose route comes
// closest to either start or end.
//
// One running minimum is kept across all candidates and both endpoints, each
// endpoint compared on its own. Only a strictly smaller distance replaces the
// current winner, so on ties the earliest candidate in the slice wins.
// Candidates without a usable route are logged and skipped.
func (m *Matcher) SelectNearestBus(start, end geo.Point, candidates []transit.Bus) (string, error) {
	nearest := ""
	minDistance := math.Inf(1)

	for _, bus := range candidates {
		if !bus.HasRoute() {
			log.Printf("skipping bus %s: route or polyline missing", bus.VehicleNumber)
			m.skipped(SkipMissingRoute)
			continue
		}

		line, err := m.lines.Decode(bus.Route.Polyline)
		if err != nil {
			log.Printf("skipping bus %s: %v", bus.VehicleNumber, err)
			m.skipped(skipReason(err))
			continue
		}

		nearStart, err := geo.ProjectPointOntoLine(line, start)
		if err != nil {
			log.Printf("skipping bus %s: %v", bus.VehicleNumber, err)
			m.skipped(skipReason(err))
			continue
		}
		nearEnd, err := geo.ProjectPointOntoLine(line, end)
		if err != nil {
			log.Printf("skipping bus %s: %v", bus.VehicleNumber, err)
			m.skipped(skipReason(err))
			continue
		}

		if nearStart.Distance < minDistance {
			minDistance = nearStart.Distance
			nearest = bus.VehicleNumber
		}
		if nearEnd.Distance < minDistance {
			minDistance = nearEnd.Distance
			nearest = bus.VehicleNumber
		}
	}

	if math.IsInf(minDistance, 1) {
		log.Printf("no nearest bus among %d candidates", len(candidates))
		return "", ErrNoCandidate
	}
	return nearest, nil
}

func skipReason(err error) string {
	var decErr *polyline.DecodeError
	if errors.As(err, &decErr) {
		return SkipDecodeError
	}
	return SkipInvalidLine
}
