package services

import (
	"testing"
	"time"

	"example.com/backstage/services/partyup/internal/database"
	"example.com/backstage/services/partyup/internal/metrics"
	"example.com/backstage/services/partyup/internal/models"

	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status models.EventStatus
		start  time.Time
		end    time.Time
		want   models.EventStatus
	}{
		{"not started", models.EventUpcoming, now.Add(time.Hour), now.Add(2 * time.Hour), models.EventUpcoming},
		{"started", models.EventUpcoming, now.Add(-time.Hour), now.Add(time.Hour), models.EventOngoing},
		{"started and ended", models.EventUpcoming, now.Add(-2 * time.Hour), now.Add(-time.Hour), models.EventOutdated},
		{"ongoing ended", models.EventOngoing, now.Add(-2 * time.Hour), now, models.EventOutdated},
		{"cancelled", models.EventCancelled, now.Add(-2 * time.Hour), now.Add(-time.Hour), models.EventCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &models.Event{Status: tt.status, StartDate: tt.start, EndDate: tt.end}
			require.Equal(t, tt.want, nextStatus(e, now))
		})
	}
}

func TestSweepEventStatuses(t *testing.T) {
	f := newFixture(t, nil)
	creator := f.user(t, "creator")
	uow := database.NewUnitOfWorkWith(f.store)

	create := func(title string, start, end time.Time) *models.Event {
		e, err := f.svc.CreateEvent(f.ctx, f.store, creator, CreateEventInput{
			Title:        title,
			StartDate:    start,
			EndDate:      end,
			MaxAttendees: 5,
		})
		require.NoError(t, err)
		return e
	}
	future := create("future", f.clock.Add(time.Hour), f.clock.Add(2*time.Hour))
	running := create("running", f.clock.Add(-time.Hour), f.clock.Add(time.Hour))
	over := create("over", f.clock.Add(-3*time.Hour), f.clock.Add(-time.Hour))

	changed, err := f.svc.SweepEventStatuses(f.ctx, uow, 100)
	require.NoError(t, err)
	require.Equal(t, 2, changed)
	require.Equal(t, models.EventUpcoming, f.reloadEvent(t, future.GUID).Status)
	require.Equal(t, models.EventOngoing, f.reloadEvent(t, running.GUID).Status)
	require.Equal(t, models.EventOutdated, f.reloadEvent(t, over.GUID).Status)

	doc, err := f.svc.eventDoc(f.ctx, over.GUID)
	require.NoError(t, err)
	require.Equal(t, models.EventOutdated, doc.Status)

	f.clock = f.clock.Add(90 * time.Minute)
	changed, err = f.svc.SweepEventStatuses(f.ctx, uow, 100)
	require.NoError(t, err)
	// future started, running ended
	require.Equal(t, 2, changed)
	require.Equal(t, models.EventOngoing, f.reloadEvent(t, future.GUID).Status)
	require.Equal(t, models.EventOutdated, f.reloadEvent(t, running.GUID).Status)
	require.Equal(t, int64(4), f.metrics.Counter(metrics.StatusTransitions))
}
