package services

import (
	"context"
	"time"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/cache"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/search/queries"
	"example.com/backstage/services/partyup/internal/storage"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// CreateEventInput carries the fields of a new event
type CreateEventInput struct {
	Title               string
	Description         string
	Location            models.GeoPoint
	LocationName        string
	StartDate           time.Time
	EndDate             time.Time
	MaxAttendees        int
	MinDonation         float64
	Currency            string
	Tags                []string
	IsPrivate           bool
	IsLastMinute        bool
	PONR                *time.Time
	HiversReservedSlots int
	Cover               *Upload
}

func checkEventWindow(start, end time.Time, maxAttendees, reserved int) error {
	if !end.After(start) {
		return apperrors.Validation("end_date must be after start_date")
	}
	if maxAttendees <= 0 {
		return apperrors.Validation("max_attendees must be positive")
	}
	if reserved < 0 || reserved > maxAttendees {
		return apperrors.Validation("hivers_reserved_slots must be between 0 and max_attendees")
	}
	return nil
}

// CreateEvent stores a new UPCOMING event owned by principal and mirrors it into the index
func (s *Service) CreateEvent(ctx context.Context, tx repositories.Session, principal *models.User, in CreateEventInput) (*models.Event, error) {
	defer s.segment(ctx, "create-event")()

	if err := checkEventWindow(in.StartDate, in.EndDate, in.MaxAttendees, in.HiversReservedSlots); err != nil {
		return nil, err
	}

	now := s.now()
	event := &models.Event{
		GUID:                   uuid.New(),
		CreatedAt:              now,
		UpdatedAt:              now,
		CreatorGUID:            principal.GUID,
		Title:                  in.Title,
		Description:            in.Description,
		Location:               in.Location,
		LocationName:           in.LocationName,
		StartDate:              in.StartDate,
		EndDate:                in.EndDate,
		Status:                 models.EventUpcoming,
		MaxAttendees:           in.MaxAttendees,
		MinDonation:            in.MinDonation,
		Currency:               in.Currency,
		CreatorPopularityScore: principal.PopularityScore,
		Tags:                   pq.StringArray(nonNilTags(in.Tags)),
		IsPrivate:              in.IsPrivate,
		IsLastMinute:           in.IsLastMinute,
		PONR:                   in.PONR,
		HiversReservedSlots:    in.HiversReservedSlots,
	}

	if in.Cover != nil {
		url, key, err := s.blobs.Upload(ctx, in.Cover.Data, in.Cover.ContentType, storage.PathEventMedia)
		if err != nil {
			return nil, err
		}
		event.CoverImageURL, event.CoverImageKey = url, key
	}

	if err := tx.Events().Add(ctx, event); err != nil {
		s.discardBlob(ctx, event.CoverImageKey)
		return nil, err
	}

	s.addDoc(ctx, "create_event", search.IndexEvents, event.Document())
	s.joinStream(ctx, event.GUID, principal.GUID)

	log.Info().
		Str("event_guid", event.GUID.String()).
		Str("creator_guid", principal.GUID.String()).
		Msg("Event created")

	return event, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// discardBlob removes an object whose owning row was never stored
func (s *Service) discardBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to remove orphaned object")
	}
}

// userEvent loads an event owned by principal from both stores
func (s *Service) userEvent(ctx context.Context, tx repositories.Session, principal *models.User, guid uuid.UUID) (*models.Event, *models.EventDocument, error) {
	event, err := tx.Events().FindOneForUpdate(ctx, repositories.EventGUID.Eq(guid))
	if err != nil {
		return nil, nil, err
	}
	if event == nil {
		return nil, nil, apperrors.NotFound(apperrors.BackendRecordStore, "event %s not found", guid)
	}

	doc, err := search.FindOne[models.EventDocument](ctx, s.index, search.IndexEvents, queries.FindByAttr(
		queries.Attr{Field: "creator_guid", Value: principal.GUID.String()},
		queries.Attr{Field: "guid", Value: guid.String()},
	))
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, apperrors.NotFound(apperrors.BackendSearchIndex, "event %s of user %s not found in search index", guid, principal.GUID)
	}
	return event, doc, nil
}

// CancelEvent moves one of principal's events to CANCELLED
func (s *Service) CancelEvent(ctx context.Context, tx repositories.Session, principal *models.User, guid uuid.UUID) (*models.Event, error) {
	event, doc, err := s.userEvent(ctx, tx, principal, guid)
	if err != nil {
		return nil, err
	}
	if !event.Status.CanTransitionTo(models.EventCancelled) {
		return nil, apperrors.InvalidState("event %s is %s and cannot be cancelled", guid, event.Status)
	}

	event.Status = models.EventCancelled
	event.UpdatedAt = s.now()
	if err := tx.Events().Update(ctx, event); err != nil {
		return nil, err
	}

	s.updateDoc(ctx, "cancel_event", search.IndexEvents, doc.ID, map[string]interface{}{
		"status":     event.Status,
		"updated_at": event.UpdatedAt,
	})
	return event, nil
}

// UpdateEventInput is a partial update; nil fields are left untouched
type UpdateEventInput struct {
	Title               *string
	Description         *string
	Location            *models.GeoPoint
	LocationName        *string
	StartDate           *time.Time
	EndDate             *time.Time
	MaxAttendees        *int
	MinDonation         *float64
	Currency            *string
	Tags                []string
	IsPrivate           *bool
	IsLastMinute        *bool
	PONR                *time.Time
	HiversReservedSlots *int
	// ReplaceCover swaps the cover for Cover, or removes it when Cover is nil
	ReplaceCover bool
	Cover        *Upload
}

func (in UpdateEventInput) apply(e *models.Event) {
	if in.Title != nil {
		e.Title = *in.Title
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.Location != nil {
		e.Location = *in.Location
	}
	if in.LocationName != nil {
		e.LocationName = *in.LocationName
	}
	if in.StartDate != nil {
		e.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		e.EndDate = *in.EndDate
	}
	if in.MaxAttendees != nil {
		e.MaxAttendees = *in.MaxAttendees
	}
	if in.MinDonation != nil {
		e.MinDonation = *in.MinDonation
	}
	if in.Currency != nil {
		e.Currency = *in.Currency
	}
	if in.Tags != nil {
		e.Tags = pq.StringArray(in.Tags)
	}
	if in.IsPrivate != nil {
		e.IsPrivate = *in.IsPrivate
	}
	if in.IsLastMinute != nil {
		e.IsLastMinute = *in.IsLastMinute
	}
	if in.PONR != nil {
		e.PONR = in.PONR
	}
	if in.HiversReservedSlots != nil {
		e.HiversReservedSlots = *in.HiversReservedSlots
	}
}

// UpdateEvent merges in into one of principal's UPCOMING events
func (s *Service) UpdateEvent(ctx context.Context, tx repositories.Session, principal *models.User, guid uuid.UUID, in UpdateEventInput) (*models.Event, error) {
	defer s.segment(ctx, "update-event")()

	event, doc, err := s.userEvent(ctx, tx, principal, guid)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventUpcoming {
		return nil, apperrors.InvalidState("only an UPCOMING event can be updated")
	}

	in.apply(event)
	if err := checkEventWindow(event.StartDate, event.EndDate, event.MaxAttendees, event.HiversReservedSlots); err != nil {
		return nil, err
	}
	if event.MaxAttendees < event.TotalAttendeesCount {
		return nil, apperrors.Validation("max_attendees cannot be lower than the %d current attendees", event.TotalAttendeesCount)
	}

	if in.ReplaceCover {
		oldKey := event.CoverImageKey
		event.CoverImageURL, event.CoverImageKey = "", ""
		if in.Cover != nil {
			url, key, err := s.blobs.Upload(ctx, in.Cover.Data, in.Cover.ContentType, storage.PathEventMedia)
			if err != nil {
				return nil, err
			}
			event.CoverImageURL, event.CoverImageKey = url, key
		}
		// the old cover goes only once the row no longer points at it
		if oldKey != "" {
			repositories.AfterCommit(ctx, func(ctx context.Context) {
				s.discardBlob(ctx, oldKey)
			})
		}
	}

	event.UpdatedAt = s.now()
	if err := tx.Events().Update(ctx, event); err != nil {
		if in.ReplaceCover {
			s.discardBlob(ctx, event.CoverImageKey)
		}
		return nil, err
	}

	s.updateDocFrom(ctx, "update_event", search.IndexEvents, doc.ID, event.Document())
	return event, nil
}

// EventPage is one page of event documents
type EventPage struct {
	Events []models.EventDocument `json:"events"`
	Paging
}

// ListUserEvents lists principal's events, optionally filtered by status
func (s *Service) ListUserEvents(ctx context.Context, principal *models.User, status models.EventStatus, page queries.Page) (*EventPage, error) {
	events, err := search.Find[models.EventDocument](ctx, s.index, search.IndexEvents,
		queries.FindUserEvents(principal.GUID.String(), status, page))
	if err != nil {
		return nil, err
	}
	return &EventPage{Events: events, Paging: paging(len(events), page)}, nil
}

// FeedInput locates the ranked event feed
type FeedInput struct {
	Lat      float64
	Lon      float64
	RadiusKm int
	Status   models.EventStatus
	Page     queries.Page
}

// Leaderboard ranks events around a point for principal. Pages are cached for ListTTL.
func (s *Service) Leaderboard(ctx context.Context, principal *models.User, in FeedInput) (*EventPage, error) {
	key := cache.LeaderboardKey(principal.GUID.String(), string(in.Status), in.Lat, in.Lon, in.RadiusKm, in.Page.Limit, in.Page.Offset)

	if s.cache != nil && s.listTTL > 0 {
		var cached EventPage
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	events, err := search.Find[models.EventDocument](ctx, s.index, search.IndexEvents, queries.Leaderboard(queries.LeaderboardParams{
		UserGUID: principal.GUID.String(),
		Bio:      principal.Bio,
		Status:   in.Status,
		Lat:      in.Lat,
		Lon:      in.Lon,
		RadiusKm: in.RadiusKm,
		Page:     in.Page,
	}))
	if err != nil {
		return nil, err
	}
	page := &EventPage{Events: events, Paging: paging(len(events), in.Page)}

	if s.cache != nil && s.listTTL > 0 {
		if err := s.cache.Set(ctx, key, page, s.listTTL); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Leaderboard not cached")
		}
	}
	return page, nil
}

// SearchEvents matches input against events near the point or at principal's location
func (s *Service) SearchEvents(ctx context.Context, principal *models.User, input string, in FeedInput) (*EventPage, error) {
	events, err := search.Find[models.EventDocument](ctx, s.index, search.IndexEvents, queries.SearchEvents(queries.EventSearchParams{
		UserGUID:     principal.GUID.String(),
		UserInput:    input,
		Bio:          principal.Bio,
		LocationName: principal.LocationName,
		Status:       in.Status,
		Lat:          in.Lat,
		Lon:          in.Lon,
		RadiusKm:     in.RadiusKm,
		Page:         in.Page,
	}))
	if err != nil {
		return nil, err
	}
	return &EventPage{Events: events, Paging: paging(len(events), in.Page)}, nil
}
