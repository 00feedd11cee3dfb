package services

import (
	"context"
	"strings"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/cache"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/search/queries"
	"example.com/backstage/services/partyup/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MediaUpdate is the message published on an event's media topic
type MediaUpdate struct {
	EventGUID string           `json:"event_guid"`
	UserGUID  string           `json:"user_guid"`
	FileURL   string           `json:"file_url"`
	MediaType models.MediaType `json:"media_type"`
}

func mediaTypeOf(contentType string) models.MediaType {
	if strings.HasPrefix(contentType, "video/") {
		return models.MediaVideo
	}
	return models.MediaPhoto
}

// UploadMedia stores a photo or video for an event that has started and
// broadcasts it to the event's live stream
func (s *Service) UploadMedia(ctx context.Context, tx repositories.Session, principal *models.User, eventGUID uuid.UUID, upload Upload) (*models.Media, error) {
	defer s.segment(ctx, "upload-media")()

	event, err := tx.Events().FindOne(ctx, repositories.EventGUID.Eq(eventGUID))
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, apperrors.NotFound(apperrors.BackendRecordStore, "event %s not found", eventGUID)
	}
	if event.Status != models.EventOngoing && event.Status != models.EventOutdated {
		return nil, apperrors.InvalidState("event %s is not ready to host media content", eventGUID)
	}

	if event.CreatorGUID != principal.GUID {
		attendee, err := tx.Attendees().FindOne(ctx,
			repositories.AttendeeEvent.Eq(eventGUID),
			repositories.AttendeeUser.Eq(principal.GUID),
			repositories.AttendeeStatus.Eq(models.AttendeeConfirmed),
		)
		if err != nil {
			return nil, err
		}
		if attendee == nil {
			return nil, apperrors.Forbidden("only confirmed attendees can upload media to event %s", eventGUID)
		}
	}

	url, key, err := s.blobs.Upload(ctx, upload.Data, upload.ContentType, storage.PathEventMedia)
	if err != nil {
		return nil, err
	}

	now := s.now()
	media := &models.Media{
		GUID:            uuid.New(),
		CreatedAt:       now,
		UpdatedAt:       now,
		EventGUID:       eventGUID,
		UserGUID:        principal.GUID,
		FileURL:         url,
		ContentFilename: key,
		MediaType:       mediaTypeOf(upload.ContentType),
	}
	if err := tx.Media().Add(ctx, media); err != nil {
		s.discardBlob(ctx, key)
		return nil, err
	}

	s.addDoc(ctx, "upload_media", search.IndexMedia, media.Document())

	if s.cache != nil {
		update := MediaUpdate{
			EventGUID: eventGUID.String(),
			UserGUID:  principal.GUID.String(),
			FileURL:   url,
			MediaType: media.MediaType,
		}
		if err := s.cache.Publish(ctx, cache.EventMediaTopic(eventGUID.String()), update); err != nil {
			log.Warn().Err(err).Str("event_guid", eventGUID.String()).Msg("Failed to publish media update")
		}
	}
	return media, nil
}

// MediaPage is one page of an event's media
type MediaPage struct {
	Media []models.MediaDocument `json:"media"`
	Paging
}

// ListEventMedia lists an event's media, newest first
func (s *Service) ListEventMedia(ctx context.Context, eventGUID uuid.UUID, page queries.Page) (*MediaPage, error) {
	media, err := search.Find[models.MediaDocument](ctx, s.index, search.IndexMedia, queries.FindEventMedia(eventGUID.String(), page))
	if err != nil {
		return nil, err
	}
	return &MediaPage{Media: media, Paging: paging(len(media), page)}, nil
}
