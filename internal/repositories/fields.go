package repositories

import (
	"time"

	"example.com/backstage/services/partyup/internal/models"

	"github.com/google/uuid"
)

// User fields
var (
	UserGUID        = Field[models.User, uuid.UUID]{"guid", func(u *models.User) uuid.UUID { return u.GUID }}
	UserUsername    = Field[models.User, string]{"username", func(u *models.User) string { return u.UsernameValue() }}
	UserEmail       = Field[models.User, string]{"email", func(u *models.User) string { return u.Email }}
	UserExternalUID = Field[models.User, string]{"external_uid", func(u *models.User) string { return u.ExternalUID }}
	UserIsActive    = Field[models.User, bool]{"is_active", func(u *models.User) bool { return u.IsActive }}
)

// Event fields
var (
	EventGUID    = Field[models.Event, uuid.UUID]{"guid", func(e *models.Event) uuid.UUID { return e.GUID }}
	EventCreator = Field[models.Event, uuid.UUID]{"creator_guid", func(e *models.Event) uuid.UUID { return e.CreatorGUID }}
	EventStatus  = Field[models.Event, models.EventStatus]{"status", func(e *models.Event) models.EventStatus { return e.Status }}
	EventStart   = TimeField[models.Event]{"start_date", func(e *models.Event) time.Time { return e.StartDate }}
	EventEnd     = TimeField[models.Event]{"end_date", func(e *models.Event) time.Time { return e.EndDate }}
)

// EventAttendee fields
var (
	AttendeeGUID   = Field[models.EventAttendee, uuid.UUID]{"guid", func(a *models.EventAttendee) uuid.UUID { return a.GUID }}
	AttendeeEvent  = Field[models.EventAttendee, uuid.UUID]{"event_guid", func(a *models.EventAttendee) uuid.UUID { return a.EventGUID }}
	AttendeeUser   = Field[models.EventAttendee, uuid.UUID]{"user_guid", func(a *models.EventAttendee) uuid.UUID { return a.UserGUID }}
	AttendeeStatus = Field[models.EventAttendee, models.AttendeeStatus]{"status", func(a *models.EventAttendee) models.AttendeeStatus { return a.Status }}
)

// UserFollower fields
var (
	FollowerGUID     = Field[models.UserFollower, uuid.UUID]{"guid", func(f *models.UserFollower) uuid.UUID { return f.GUID }}
	FollowerFollower = Field[models.UserFollower, uuid.UUID]{"follower_guid", func(f *models.UserFollower) uuid.UUID { return f.FollowerGUID }}
	FollowerFollowed = Field[models.UserFollower, uuid.UUID]{"user_guid", func(f *models.UserFollower) uuid.UUID { return f.UserGUID }}
)

// HiverRequest fields
var (
	HiverRequestGUID     = Field[models.HiverRequest, uuid.UUID]{"guid", func(r *models.HiverRequest) uuid.UUID { return r.GUID }}
	HiverRequestSender   = Field[models.HiverRequest, uuid.UUID]{"sender_guid", func(r *models.HiverRequest) uuid.UUID { return r.SenderGUID }}
	HiverRequestReceiver = Field[models.HiverRequest, uuid.UUID]{"receiver_guid", func(r *models.HiverRequest) uuid.UUID { return r.ReceiverGUID }}
	HiverRequestStatus   = Field[models.HiverRequest, models.HiverRequestStatus]{"status", func(r *models.HiverRequest) models.HiverRequestStatus { return r.Status }}
)

// UserHiver fields
var (
	UserHiverHiver = Field[models.UserHiver, uuid.UUID]{"hiver_guid", func(h *models.UserHiver) uuid.UUID { return h.HiverGUID }}
	UserHiverUser  = Field[models.UserHiver, uuid.UUID]{"user_guid", func(h *models.UserHiver) uuid.UUID { return h.UserGUID }}
)

// Media fields
var (
	MediaGUID  = Field[models.Media, uuid.UUID]{"guid", func(m *models.Media) uuid.UUID { return m.GUID }}
	MediaEvent = Field[models.Media, uuid.UUID]{"event_guid", func(m *models.Media) uuid.UUID { return m.EventGUID }}
)
