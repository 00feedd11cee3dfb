package services

import (
	"context"
	"time"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/geocoding"
	"example.com/backstage/services/partyup/internal/metrics"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/notify"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/search/queries"
	"example.com/backstage/services/partyup/internal/storage"
	"example.com/backstage/services/partyup/internal/tracing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Cache is the pub/sub, stream membership and list cache used by the orchestrators
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Publish(ctx context.Context, topic string, payload interface{}) error
	AddMember(ctx context.Context, eventGUID, userGUID string) error
	RemoveMember(ctx context.Context, eventGUID, userGUID string) error
}

// UnitOfWork runs fn inside one record store transaction
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx repositories.Session) error) error
}

// Dependencies are the collaborators shared by every orchestrator
type Dependencies struct {
	Index    search.Index
	Blobs    storage.BlobStore
	Push     notify.Sender
	Cache    Cache
	Geocoder geocoding.Geocoder
	Metrics  *metrics.Metrics
	Tracer   tracing.Tracer
	ListTTL  time.Duration
}

// Service implements the dual-write operations. The record store part of
// every operation runs in the caller's session; search index writes that
// follow a record store write are best-effort.
type Service struct {
	index    search.Index
	blobs    storage.BlobStore
	push     notify.Sender
	cache    Cache
	geocoder geocoding.Geocoder
	metrics  *metrics.Metrics
	tracer   tracing.Tracer
	listTTL  time.Duration
	now      func() time.Time
}

// NewService creates the orchestrator service
func NewService(deps Dependencies) *Service {
	s := &Service{
		index:    deps.Index,
		blobs:    deps.Blobs,
		push:     deps.Push,
		cache:    deps.Cache,
		geocoder: deps.Geocoder,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		listTTL:  deps.ListTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.push == nil {
		s.push = notify.NoopSender{}
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics()
	}
	return s
}

// Upload is a file received from a client
type Upload struct {
	Data        []byte
	ContentType string
}

func (s *Service) segment(ctx context.Context, name string) func() {
	if s.tracer == nil {
		return func() {}
	}
	return s.tracer.StartSegment(ctx, name)
}

// mirrored reports a failed search index write that follows committed record
// store work. The operation carries on.
func (s *Service) mirrored(ctx context.Context, op, index string, err error) {
	if err == nil {
		return
	}
	s.metrics.IncrementCounter(metrics.DualWriteFailures)
	if s.tracer != nil {
		s.tracer.RecordError(ctx, err)
	}
	log.Warn().Err(err).Str("operation", op).Str("index", index).Msg("Search index write failed, record store kept")
}

func (s *Service) addDoc(ctx context.Context, op, index string, doc interface{}) string {
	id, err := s.index.Add(ctx, index, doc)
	s.mirrored(ctx, op, index, err)
	return id
}

func (s *Service) updateDoc(ctx context.Context, op, index, id string, fields map[string]interface{}) {
	s.mirrored(ctx, op, index, s.index.Update(ctx, index, id, fields))
}

func (s *Service) updateDocFrom(ctx context.Context, op, index, id string, doc interface{}) {
	fields, err := search.Fields(doc)
	if err != nil {
		s.mirrored(ctx, op, index, err)
		return
	}
	s.updateDoc(ctx, op, index, id, fields)
}

func (s *Service) deleteDoc(ctx context.Context, op, index, id string) {
	s.mirrored(ctx, op, index, s.index.Delete(ctx, index, id))
}

// notify delivers a push message when the recipient has a token. Failures are logged only.
func (s *Service) notify(ctx context.Context, recipient *models.User, n notify.Notification) {
	if recipient == nil || recipient.PushToken() == "" {
		return
	}
	n.Token = recipient.PushToken()
	if n.Data == nil {
		n.Data = map[string]string{}
	}
	n.Data["click_action"] = "FLUTTER_NOTIFICATION_CLICK"

	if err := s.push.Send(ctx, n); err != nil {
		s.metrics.IncrementCounter(metrics.NotificationErrors)
		log.Warn().Err(err).Str("user_guid", recipient.GUID.String()).Str("title", n.Title).Msg("Failed to send push notification")
	}
}

func (s *Service) joinStream(ctx context.Context, eventGUID, userGUID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.AddMember(ctx, eventGUID.String(), userGUID.String()); err != nil {
		log.Warn().Err(err).Str("event_guid", eventGUID.String()).Msg("Failed to add stream member")
	}
}

func (s *Service) leaveStream(ctx context.Context, eventGUID, userGUID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.RemoveMember(ctx, eventGUID.String(), userGUID.String()); err != nil {
		log.Warn().Err(err).Str("event_guid", eventGUID.String()).Msg("Failed to remove stream member")
	}
}

func byGUID(guid uuid.UUID) map[string]interface{} {
	return queries.FindByAttr(queries.Attr{Field: "guid", Value: guid.String()})
}

// eventDoc resolves an event's search document; a miss is NotFound in the search index
func (s *Service) eventDoc(ctx context.Context, guid uuid.UUID) (*models.EventDocument, error) {
	doc, err := search.FindOne[models.EventDocument](ctx, s.index, search.IndexEvents, byGUID(guid))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperrors.NotFound(apperrors.BackendSearchIndex, "event %s not found in search index", guid)
	}
	return doc, nil
}

// userDoc resolves a user's search document; a miss is NotFound in the search index
func (s *Service) userDoc(ctx context.Context, guid uuid.UUID) (*models.UserDocument, error) {
	doc, err := search.FindOne[models.UserDocument](ctx, s.index, search.IndexUsers, byGUID(guid))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperrors.NotFound(apperrors.BackendSearchIndex, "user %s not found in search index", guid)
	}
	return doc, nil
}

// user loads a user row; a miss is NotFound in the record store
func user(ctx context.Context, tx repositories.Session, guid uuid.UUID) (*models.User, error) {
	u, err := tx.Users().FindOne(ctx, repositories.UserGUID.Eq(guid))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperrors.NotFound(apperrors.BackendRecordStore, "user %s not found", guid)
	}
	return u, nil
}

// Paging is the limit/offset echoed back by list operations
type Paging struct {
	TotalResults int `json:"total_results"`
	Limit        int `json:"limit"`
	Offset       int `json:"offset"`
}

func paging(n int, page queries.Page) Paging {
	return Paging{TotalResults: n, Limit: page.Limit, Offset: page.Offset}
}
