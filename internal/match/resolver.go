package match

import (
	"fmt"
	"log"
	"time"

	"trackly/internal/geo"
	"trackly/internal/transit"
)

// ReferenceEndpoints returns the departure and arrival places of the bus's
// first schedule's first entry. They define the bus's forward direction.
func ReferenceEndpoints(bus transit.Bus) (departure, arrival string, err error) {
	if len(bus.Schedules) == 0 || len(bus.Schedules[0].Entries) == 0 {
		return "", "", fmt.Errorf("bus %s: %w", bus.VehicleNumber, ErrNoReference)
	}
	first := bus.Schedules[0].Entries[0]
	return first.DeparturePlace, first.ArrivalPlace, nil
}

// IsBusGoingForward reports whether entry runs from refDeparture to refArrival.
func IsBusGoingForward(entry transit.ScheduleEntry, refDeparture, refArrival string) bool {
	return entry.DeparturePlace == refDeparture && entry.ArrivalPlace == refArrival
}

// IsPassengerGoingForward reports whether start lies earlier along the bus
// route than end, comparing the ordinal indices of their projections.
func (m *Matcher) IsPassengerGoingForward(bus transit.Bus, start, end geo.Point) (bool, error) {
	if !bus.HasRoute() {
		return false, fmt.Errorf("bus %s: route or polyline missing", bus.VehicleNumber)
	}
	line, err := m.lines.Decode(bus.Route.Polyline)
	if err != nil {
		return false, fmt.Errorf("bus %s: %w", bus.VehicleNumber, err)
	}
	nearStart, err := geo.ProjectPointOntoLine(line, start)
	if err != nil {
		return false, fmt.Errorf("bus %s: %w", bus.VehicleNumber, err)
	}
	nearEnd, err := geo.ProjectPointOntoLine(line, end)
	if err != nil {
		return false, fmt.Errorf("bus %s: %w", bus.VehicleNumber, err)
	}
	return nearStart.Index < nearEnd.Index, nil
}

// TodaySchedule returns the bus's schedule for now's weekday.
func TodaySchedule(bus transit.Bus, now time.Time) (transit.DaySchedule, error) {
	day := transit.DayName(now)
	for _, s := range bus.Schedules {
		if s.Day != day {
			continue
		}
		if len(s.Entries) == 0 {
			break
		}
		return s, nil
	}
	return transit.DaySchedule{}, fmt.Errorf("bus %s on %s: %w", bus.VehicleNumber, day, ErrNoSchedule)
}

// ResolveTrip picks the first of today's entries, in schedule order, that
// departs strictly after now and whose direction equals the passenger's.
//
// Departure times are read as HH:MM on now's calendar date in now's
// location; trips after midnight are never matched against the previous day.
func (m *Matcher) ResolveTrip(bus transit.Bus, start, end geo.Point, refDeparture, refArrival string, now time.Time) (transit.ScheduleEntry, error) {
	today, err := TodaySchedule(bus, now)
	if err != nil {
		log.Printf("no schedule entries available for today: %v", err)
		return transit.ScheduleEntry{}, err
	}

	passengerForward, err := m.IsPassengerGoingForward(bus, start, end)
	if err != nil {
		return transit.ScheduleEntry{}, err
	}

	for _, entry := range today.Entries {
		departure, err := transit.At(now, entry.DepartureTime)
		if err != nil {
			log.Printf("bus %s: skipping entry with departure %q: %v", bus.VehicleNumber, entry.DepartureTime, err)
			continue
		}
		if IsBusGoingForward(entry, refDeparture, refArrival) != passengerForward {
			continue
		}
		if departure.After(now) {
			return entry, nil
		}
	}

	log.Printf("no upcoming trips for bus %s on %s in the passenger's direction (forward=%t)", bus.VehicleNumber, today.Day, passengerForward)
	return transit.ScheduleEntry{}, fmt.Errorf("bus %s: %w", bus.VehicleNumber, ErrNoTrip)
}
