package services

import (
	"context"
	"time"

	"example.com/backstage/services/partyup/internal/metrics"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// nextStatus returns the lifecycle state an event should be in at now, or
// its current status when no transition is due. An UPCOMING event that has
// already ended walks through ONGOING to OUTDATED.
func nextStatus(e *models.Event, now time.Time) models.EventStatus {
	status := e.Status
	if status == models.EventUpcoming && !e.StartDate.After(now) {
		status = models.EventOngoing
	}
	if status == models.EventOngoing && !e.EndDate.After(now) {
		status = models.EventOutdated
	}
	return status
}

// SweepEventStatuses moves started events to ONGOING and finished ones to
// OUTDATED. Each event is updated in its own unit of work; at most batch
// events of each status are handled per call. It returns the number of
// events that changed.
func (s *Service) SweepEventStatuses(ctx context.Context, uow UnitOfWork, batch int) (int, error) {
	defer s.segment(ctx, "sweep-event-statuses")()
	start := time.Now()
	defer func() { s.metrics.RecordTimer("event_status_sweep", time.Since(start)) }()

	now := s.now()
	var due []uuid.UUID
	err := uow.Do(ctx, func(ctx context.Context, tx repositories.Session) error {
		started, err := tx.Events().List(ctx, batch,
			repositories.EventStatus.Eq(models.EventUpcoming),
			repositories.EventStart.Before(now),
		)
		if err != nil {
			return err
		}
		ended, err := tx.Events().List(ctx, batch,
			repositories.EventStatus.Eq(models.EventOngoing),
			repositories.EventEnd.Before(now),
		)
		if err != nil {
			return err
		}
		for _, e := range append(started, ended...) {
			due = append(due, e.GUID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, guid := range due {
		moved, err := s.advanceEvent(ctx, uow, guid, now)
		if err != nil {
			log.Error().Err(err).Str("event_guid", guid.String()).Msg("Failed to advance event status")
			continue
		}
		if moved {
			changed++
		}
	}

	if changed > 0 {
		log.Info().Int("events", changed).Msg("Event statuses advanced")
	}
	return changed, nil
}

func (s *Service) advanceEvent(ctx context.Context, uow UnitOfWork, guid uuid.UUID, now time.Time) (bool, error) {
	var event *models.Event
	err := uow.Do(ctx, func(ctx context.Context, tx repositories.Session) error {
		e, err := tx.Events().FindOneForUpdate(ctx, repositories.EventGUID.Eq(guid))
		if err != nil || e == nil {
			return err
		}
		next := nextStatus(e, now)
		if next == e.Status {
			return nil
		}
		e.Status = next
		e.UpdatedAt = now
		if err := tx.Events().Update(ctx, e); err != nil {
			return err
		}
		event = e
		return nil
	})
	if err != nil || event == nil {
		return false, err
	}

	s.metrics.IncrementCounter(metrics.StatusTransitions)

	doc, err := search.FindOne[models.EventDocument](ctx, s.index, search.IndexEvents, byGUID(guid))
	switch {
	case err != nil:
		s.mirrored(ctx, "sweep_event_status", search.IndexEvents, err)
	case doc != nil:
		s.updateDoc(ctx, "sweep_event_status", search.IndexEvents, doc.ID, map[string]interface{}{
			"status":     event.Status,
			"updated_at": event.UpdatedAt,
		})
	}

	log.Debug().
		Str("event_guid", guid.String()).
		Str("status", string(event.Status)).
		Msg("Event status advanced")
	return true, nil
}
