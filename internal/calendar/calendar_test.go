package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var clinicHours = WorkingHours{StartHour: 8, EndHour: 18}

func TestAvailableSlots_EmptyDay(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	slots := AvailableSlots(date, clinicHours, 30*time.Minute, nil)

	require.Len(t, slots, 20)
	require.Equal(t, time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC), slots[0])
	require.Equal(t, time.Date(2024, 6, 10, 8, 30, 0, 0, time.UTC), slots[1])
	require.Equal(t, time.Date(2024, 6, 10, 17, 30, 0, 0, time.UTC), slots[19])
}

func TestAvailableSlots_ExcludesExactBookings(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	booked := []time.Time{
		time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 10, 17, 30, 0, 0, time.UTC),
	}

	slots := AvailableSlots(date, clinicHours, 30*time.Minute, booked)

	require.Len(t, slots, 18)
	require.NotContains(t, slots, booked[0])
	require.NotContains(t, slots, booked[1])
	for i := 1; i < len(slots); i++ {
		require.True(t, slots[i-1].Before(slots[i]), "slots must be ascending")
	}
}

func TestAvailableSlots_IgnoresOffGridBookings(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	booked := []time.Time{
		time.Date(2024, 6, 10, 9, 10, 0, 0, time.UTC),
		time.Date(2024, 6, 10, 19, 0, 0, 0, time.UTC),
	}

	slots := AvailableSlots(date, clinicHours, 30*time.Minute, booked)

	require.Len(t, slots, 20)
}

func TestAvailableSlots_MatchesInstantAcrossLocations(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	date := time.Date(2024, 6, 10, 0, 0, 0, 0, paris)
	// 09:00 Paris is 07:00 UTC in June.
	booked := []time.Time{time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)}

	slots := AvailableSlots(date, clinicHours, time.Hour, booked)

	require.Len(t, slots, 9)
	require.Equal(t, 8, slots[0].Hour())
	require.Equal(t, 10, slots[1].Hour())
}

func TestAvailableSlots_IgnoresTimeOfDay(t *testing.T) {
	date := time.Date(2024, 6, 10, 15, 45, 0, 0, time.UTC)

	slots := AvailableSlots(date, clinicHours, time.Hour, nil)

	require.Len(t, slots, 10)
	require.Equal(t, 8, slots[0].Hour())
}

func TestAvailableSlots_InvalidInput(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	require.Empty(t, AvailableSlots(date, clinicHours, 0, nil))
	require.Empty(t, AvailableSlots(date, WorkingHours{StartHour: 18, EndHour: 8}, time.Hour, nil))
	require.Empty(t, AvailableSlots(date, WorkingHours{StartHour: 8, EndHour: 25}, time.Hour, nil))
}

func TestAvailableSlots_UnevenStep(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	slots := AvailableSlots(date, WorkingHours{StartHour: 8, EndHour: 9}, 25*time.Minute, nil)

	// 08:00, 08:25, 08:50 all start before 09:00.
	require.Len(t, slots, 3)
}

func TestDayBounds(t *testing.T) {
	start, end := DayBounds(time.Date(2024, 6, 10, 13, 14, 15, 0, time.UTC))

	require.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), end)
}

func TestAvailableSlots_DaylightSavingDays(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	for _, date := range []time.Time{
		time.Date(2024, 3, 31, 0, 0, 0, 0, paris),  // spring forward, 23h day
		time.Date(2024, 10, 27, 0, 0, 0, 0, paris), // fall back, 25h day
	} {
		t.Run(date.Format("2006-01-02"), func(t *testing.T) {
			slots := AvailableSlots(date, clinicHours, 30*time.Minute, nil)

			require.Len(t, slots, 20)
			require.Equal(t, 8, slots[0].Hour())
			require.Equal(t, 0, slots[0].Minute())
			require.Equal(t, 17, slots[19].Hour())
			require.Equal(t, 30, slots[19].Minute())
		})
	}
}
