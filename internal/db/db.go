package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"trackly/internal/transit"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// busRow is one bus joined with one of its schedule entries. Buses without
// entries come back once with an empty Day.
type busRow struct {
	VehicleNumber  string
	Polyline       sql.NullString
	Day            string
	DepartureTime  string
	ArrivalTime    string
	DeparturePlace string
	ArrivalPlace   string
}

// fetchBusesQuery returns one row per schedule entry, ordered so that a bus's
// days follow day_position and each day's entries follow seq.
const fetchBusesQuery = `
SELECT b.vehicle_number,
       b.route_polyline,
       COALESCE(e.day, ''),
       COALESCE(e.departure_time::text, ''),
       COALESCE(e.arrival_time::text, ''),
       COALESCE(e.departure_place, ''),
       COALESCE(e.arrival_place, '')
FROM buses b
LEFT JOIN bus_schedule_entries e ON e.vehicle_number = b.vehicle_number
ORDER BY b.vehicle_number, e.day_position, e.seq`

// FetchBuses reads every bus with its route and schedules.
func FetchBuses(ctx context.Context, db *sql.DB) ([]transit.Bus, error) {
	rows, err := db.QueryContext(ctx, fetchBusesQuery)
	if err != nil {
		return nil, fmt.Errorf("query buses: %w", err)
	}
	defer rows.Close()

	var all []busRow
	for rows.Next() {
		var r busRow
		if err := rows.Scan(&r.VehicleNumber, &r.Polyline, &r.Day, &r.DepartureTime, &r.ArrivalTime, &r.DeparturePlace, &r.ArrivalPlace); err != nil {
			return nil, err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assembleBuses(all), nil
}

// assembleBuses folds ordered join rows back into buses.
func assembleBuses(rows []busRow) []transit.Bus {
	var buses []transit.Bus
	for _, r := range rows {
		if len(buses) == 0 || buses[len(buses)-1].VehicleNumber != r.VehicleNumber {
			b := transit.Bus{VehicleNumber: r.VehicleNumber}
			if r.Polyline.Valid {
				b.Route = &transit.Route{Polyline: r.Polyline.String}
			}
			buses = append(buses, b)
		}
		if r.Day == "" {
			continue
		}
		b := &buses[len(buses)-1]
		if n := len(b.Schedules); n == 0 || b.Schedules[n-1].Day != r.Day {
			b.Schedules = append(b.Schedules, transit.DaySchedule{Day: r.Day})
		}
		s := &b.Schedules[len(b.Schedules)-1]
		s.Entries = append(s.Entries, transit.ScheduleEntry{
			DepartureTime:  clockHHMM(r.DepartureTime),
			ArrivalTime:    clockHHMM(r.ArrivalTime),
			DeparturePlace: r.DeparturePlace,
			ArrivalPlace:   r.ArrivalPlace,
		})
	}
	return buses
}

// clockHHMM trims a time column rendered as HH:MM:SS down to HH:MM.
func clockHHMM(s string) string {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return s
	}
	h := parts[0]
	if len(h) == 1 {
		h = "0" + h
	}
	return h + ":" + parts[1]
}
