package transit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bus(vehicle string, days ...string) Bus {
	b := Bus{VehicleNumber: vehicle, Route: &Route{Polyline: "_p~iF~ps|U_ulLnnqC"}}
	for _, d := range days {
		b.Schedules = append(b.Schedules, DaySchedule{
			Day: d,
			Entries: []ScheduleEntry{
				{DepartureTime: "07:00", ArrivalTime: "07:45", DeparturePlace: "Kandy", ArrivalPlace: "Peradeniya"},
			},
		})
	}
	return b
}

func TestAt(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	day := time.Date(2024, time.March, 4, 22, 10, 33, 0, loc)

	got, err := At(day, "07:05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 4, 7, 5, 0, 0, loc), got)

	_, err = At(day, "7 o'clock")
	assert.Error(t, err)
}

func TestDayName(t *testing.T) {
	assert.Equal(t, "Monday", DayName(time.Date(2024, time.March, 4, 12, 0, 0, 0, time.UTC)))
}

func TestHasRoute(t *testing.T) {
	assert.True(t, bus("NB-1").HasRoute())
	assert.False(t, Bus{VehicleNumber: "NB-2"}.HasRoute())
	assert.False(t, Bus{VehicleNumber: "NB-3", Route: &Route{}}.HasRoute())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, bus("NB-1", "Monday", "Tuesday").Validate())
	assert.NoError(t, Bus{VehicleNumber: "NB-2"}.Validate(), "missing route is not a record error")

	assert.ErrorContains(t, bus("NB-1", "Monday", "Monday").Validate(), "duplicate schedule")
	assert.Error(t, bus("", "Monday").Validate())
	assert.Error(t, bus("NB-1", "Funday").Validate())

	bad := bus("NB-1", "Monday")
	bad.Schedules[0].Entries[0].DepartureTime = "25:99"
	assert.Error(t, bad.Validate())
}

func TestFilter(t *testing.T) {
	kept, rejected := Filter([]Bus{
		bus("NB-1", "Monday"),
		bus("NB-2", "Monday", "Monday"),
		bus("NB-1", "Sunday"),
		bus("NB-3"),
	})

	require.Len(t, kept, 2)
	assert.Equal(t, "NB-1", kept[0].VehicleNumber)
	assert.Equal(t, "Monday", kept[0].Schedules[0].Day)
	assert.Equal(t, "NB-3", kept[1].VehicleNumber)
	assert.Len(t, rejected, 2)
}
