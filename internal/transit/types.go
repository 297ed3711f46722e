package transit

import "time"

// Route is the path a bus drives, as an encoded polyline (precision 1e-5).
type Route struct {
	Polyline string `json:"polyline"`
}

type ScheduleEntry struct {
	DepartureTime  string `json:"departureTime" validate:"required,datetime=15:04"`
	ArrivalTime    string `json:"arrivalTime" validate:"required,datetime=15:04"`
	DeparturePlace string `json:"departurePlace"`
	ArrivalPlace   string `json:"arrivalPlace"`
}

// DaySchedule holds the trips for one weekday, ordered by departure time.
type DaySchedule struct {
	Day     string          `json:"day" validate:"required,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	Entries []ScheduleEntry `json:"entries" validate:"dive"`
}

type Bus struct {
	VehicleNumber string        `json:"vehicleNumber" validate:"required"`
	Route         *Route        `json:"route,omitempty"`
	Schedules     []DaySchedule `json:"schedules" validate:"dive"`
}

// HasRoute reports whether the bus carries a non-empty route polyline.
func (b Bus) HasRoute() bool {
	return b.Route != nil && b.Route.Polyline != ""
}

// DayName is the schedule key for t's weekday in t's location.
func DayName(t time.Time) string {
	return t.Weekday().String()
}

// At returns the wall clock "HH:MM" on day's calendar date in day's location.
func At(day time.Time, hhmm string) (time.Time, error) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, day.Location()), nil
}
