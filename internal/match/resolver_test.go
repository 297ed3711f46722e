package match

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/geo"
	"trackly/internal/transit"
)

const (
	depot    = "Kandy"
	terminus = "Peradeniya"
)

func forward(dep, arr string) transit.ScheduleEntry {
	return transit.ScheduleEntry{DepartureTime: dep, ArrivalTime: arr, DeparturePlace: depot, ArrivalPlace: terminus}
}

func reverse(dep, arr string) transit.ScheduleEntry {
	return transit.ScheduleEntry{DepartureTime: dep, ArrivalTime: arr, DeparturePlace: terminus, ArrivalPlace: depot}
}

func scheduledBus(day string, entries ...transit.ScheduleEntry) transit.Bus {
	b := eastboundBus("NB-1234", 0)
	b.Schedules = []transit.DaySchedule{{Day: day, Entries: entries}}
	return b
}

// monday0730 is Monday 4 March 2024, 07:30 UTC.
var monday0730 = time.Date(2024, time.March, 4, 7, 30, 0, 0, time.UTC)

func TestReferenceEndpoints(t *testing.T) {
	dep, arr, err := ReferenceEndpoints(scheduledBus("Monday", forward("06:00", "06:40"), reverse("07:00", "07:40")))
	require.NoError(t, err)
	assert.Equal(t, depot, dep)
	assert.Equal(t, terminus, arr)

	_, _, err = ReferenceEndpoints(transit.Bus{VehicleNumber: "X"})
	assert.True(t, errors.Is(err, ErrNoReference))

	_, _, err = ReferenceEndpoints(scheduledBus("Monday"))
	assert.True(t, errors.Is(err, ErrNoReference))
}

func TestIsBusGoingForward(t *testing.T) {
	assert.True(t, IsBusGoingForward(forward("06:00", "06:40"), depot, terminus))
	assert.False(t, IsBusGoingForward(reverse("06:00", "06:40"), depot, terminus))
	// both places must match
	half := transit.ScheduleEntry{DeparturePlace: depot, ArrivalPlace: "Katugastota"}
	assert.False(t, IsBusGoingForward(half, depot, terminus))
}

func TestIsPassengerGoingForward(t *testing.T) {
	m := NewMatcher(nil, nil)
	b := eastboundBus("NB-1", 0)
	a := geo.Point{Lat: 0.0005, Lng: 0.005}
	z := geo.Point{Lat: 0.0005, Lng: 0.025}

	fwd, err := m.IsPassengerGoingForward(b, a, z)
	require.NoError(t, err)
	assert.True(t, fwd)

	fwd, err = m.IsPassengerGoingForward(b, z, a)
	require.NoError(t, err)
	assert.False(t, fwd)

	// same segment is not forward
	fwd, err = m.IsPassengerGoingForward(b, a, geo.Point{Lat: 0, Lng: 0.006})
	require.NoError(t, err)
	assert.False(t, fwd)

	_, err = m.IsPassengerGoingForward(transit.Bus{VehicleNumber: "NB-2"}, a, z)
	assert.Error(t, err)
}

func TestTodaySchedule(t *testing.T) {
	b := scheduledBus("Monday", forward("08:00", "08:40"))
	b.Schedules = append(b.Schedules, transit.DaySchedule{Day: "Tuesday"})

	got, err := TodaySchedule(b, monday0730)
	require.NoError(t, err)
	assert.Equal(t, "Monday", got.Day)

	_, err = TodaySchedule(b, monday0730.AddDate(0, 0, 1))
	assert.True(t, errors.Is(err, ErrNoSchedule), "empty day")

	_, err = TodaySchedule(b, monday0730.AddDate(0, 0, 2))
	assert.True(t, errors.Is(err, ErrNoSchedule), "missing day")
}

func TestTodayScheduleUsesClockLocation(t *testing.T) {
	b := scheduledBus("Tuesday", forward("08:00", "08:40"))
	// 22:00 UTC Monday is already Tuesday in Colombo
	colombo := time.FixedZone("Asia/Colombo", 5*3600+1800)
	now := time.Date(2024, time.March, 4, 22, 0, 0, 0, time.UTC).In(colombo)

	got, err := TodaySchedule(b, now)
	require.NoError(t, err)
	assert.Equal(t, "Tuesday", got.Day)
}

func TestResolveTrip(t *testing.T) {
	forwardStart := geo.Point{Lat: 0, Lng: 0.005}
	forwardEnd := geo.Point{Lat: 0, Lng: 0.025}

	tests := []struct {
		name     string
		entries  []transit.ScheduleEntry
		start    geo.Point
		end      geo.Point
		wantTime string
		wantErr  error
	}{
		{
			name:     "skips past trips",
			entries:  []transit.ScheduleEntry{forward("07:00", "07:40"), forward("08:00", "08:40")},
			start:    forwardStart,
			end:      forwardEnd,
			wantTime: "08:00",
		},
		{
			name:     "skips opposite direction",
			entries:  []transit.ScheduleEntry{forward("07:00", "07:40"), reverse("07:45", "08:25"), forward("08:30", "09:10")},
			start:    forwardStart,
			end:      forwardEnd,
			wantTime: "08:30",
		},
		{
			name:     "passenger going backward takes reverse trip",
			entries:  []transit.ScheduleEntry{forward("07:00", "07:40"), forward("07:45", "08:25"), reverse("08:15", "08:55")},
			start:    forwardEnd,
			end:      forwardStart,
			wantTime: "08:15",
		},
		{
			name:     "departure equal to now is not upcoming",
			entries:  []transit.ScheduleEntry{forward("07:30", "08:10"), forward("07:31", "08:11")},
			start:    forwardStart,
			end:      forwardEnd,
			wantTime: "07:31",
		},
		{
			name:     "first match in schedule order wins",
			entries:  []transit.ScheduleEntry{forward("09:00", "09:40"), forward("08:00", "08:40")},
			start:    forwardStart,
			end:      forwardEnd,
			wantTime: "09:00",
		},
		{
			name:    "all trips departed",
			entries: []transit.ScheduleEntry{forward("06:00", "06:40"), forward("07:00", "07:40")},
			start:   forwardStart,
			end:     forwardEnd,
			wantErr: ErrNoTrip,
		},
		{
			name:    "only opposite direction left",
			entries: []transit.ScheduleEntry{forward("06:00", "06:40"), reverse("09:00", "09:40")},
			start:   forwardStart,
			end:     forwardEnd,
			wantErr: ErrNoTrip,
		},
		{
			name:    "empty schedule",
			start:   forwardStart,
			end:     forwardEnd,
			wantErr: ErrNoSchedule,
		},
	}

	m := NewMatcher(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := scheduledBus("Monday", tt.entries...)
			got, err := m.ResolveTrip(b, tt.start, tt.end, depot, terminus, monday0730)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTime, got.DepartureTime)
		})
	}
}

func TestResolveTripNoScheduleForToday(t *testing.T) {
	m := NewMatcher(nil, nil)
	b := scheduledBus("Sunday", forward("08:00", "08:40"))

	_, err := m.ResolveTrip(b, passengerStart, passengerEnd, depot, terminus, monday0730)
	assert.True(t, errors.Is(err, ErrNoSchedule))
}

func TestResolveTripSkipsUnparsableEntry(t *testing.T) {
	m := NewMatcher(nil, nil)
	b := scheduledBus("Monday", forward("soon", "later"), forward("08:00", "08:40"))

	got, err := m.ResolveTrip(b, passengerStart, passengerEnd, depot, terminus, monday0730)
	require.NoError(t, err)
	assert.Equal(t, "08:00", got.DepartureTime)
}
