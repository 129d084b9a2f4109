package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-core/internal/apperr"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AppointmentStatus
		ok       bool
	}{
		{StatusScheduled, StatusInProgress, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCancelled, StatusCancelled, false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusValid(t *testing.T) {
	require.True(t, StatusInProgress.Valid())
	require.False(t, AppointmentStatus("done").Valid())
}

func TestBookRequestValidate(t *testing.T) {
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	valid := BookRequest{
		DoctorID:    uuid.New(),
		PatientID:   uuid.New(),
		ScheduledAt: now.Add(time.Hour),
		Reason:      "Checkup",
	}
	require.NoError(t, valid.validate(now))

	// the current instant is not in the past
	atNow := valid
	atNow.ScheduledAt = now
	require.NoError(t, atNow.validate(now))

	broken := map[string]func(r *BookRequest){
		"no doctor":       func(r *BookRequest) { r.DoctorID = uuid.Nil },
		"no patient":      func(r *BookRequest) { r.PatientID = uuid.Nil },
		"no instant":      func(r *BookRequest) { r.ScheduledAt = time.Time{} },
		"blank reason":    func(r *BookRequest) { r.Reason = "   " },
		"negative length": func(r *BookRequest) { r.Duration = -time.Minute },
		"sub-second":      func(r *BookRequest) { r.Duration = 500 * time.Millisecond },
		"fractional secs": func(r *BookRequest) { r.Duration = time.Minute + time.Millisecond },
		"instant in past": func(r *BookRequest) { r.ScheduledAt = now.Add(-time.Second) },
	}
	for name, mutate := range broken {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			require.ErrorIs(t, r.validate(now), apperr.ErrValidation)
		})
	}
}

func TestListFilterNormalize(t *testing.T) {
	f := ListFilter{Offset: -3}
	f.normalize()
	require.Equal(t, 20, f.Limit)
	require.Equal(t, 0, f.Offset)

	f = ListFilter{Limit: 500}
	f.normalize()
	require.Equal(t, 100, f.Limit)
}

func TestAppointmentEndsAt(t *testing.T) {
	a := Appointment{ScheduledAt: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), Duration: 30 * time.Minute}
	require.Equal(t, time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC), a.EndsAt())
}
