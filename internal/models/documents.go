package models

import (
	"time"

	"github.com/google/uuid"
)

// Search documents mirror the relational rows. ID holds the engine-assigned
// document id; it is returned to clients but never written into the source.

// UserDocument is the search representation of a User
type UserDocument struct {
	ID                 string         `json:"id,omitempty"`
	GUID               uuid.UUID      `json:"guid"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	AuthProvider       AuthProvider   `json:"auth_provider"`
	Email              string         `json:"email"`
	EmailVerified      bool           `json:"email_verified"`
	Username           string         `json:"username,omitempty"`
	FirstName          string         `json:"first_name"`
	LastName           string         `json:"last_name"`
	FullName           string         `json:"full_name"`
	Bio                string         `json:"bio"`
	DateOfBirth        string         `json:"date_of_birth"`
	Location           *GeoPoint      `json:"location,omitempty"`
	LocationName       string         `json:"location_name"`
	ProfileImage       string         `json:"profile_image"`
	Tags               []string       `json:"tags"`
	FollowersCount     int            `json:"followers_count"`
	FollowingCount     int            `json:"following_count"`
	HiversCount        int            `json:"hivers_count"`
	PostsCount         int            `json:"posts_count"`
	EventParticipation int            `json:"event_participation"`
	PopularityScore    float64        `json:"popularity_score"`
	UserInfoStatus     UserInfoStatus `json:"user_info_status"`
	IsActive           bool           `json:"is_active"`
}

// Document converts the user into its search representation
func (u *User) Document() UserDocument {
	return UserDocument{
		GUID:               u.GUID,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
		AuthProvider:       u.AuthProvider,
		Email:              u.Email,
		EmailVerified:      u.EmailVerified,
		Username:           u.UsernameValue(),
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		FullName:           u.FullName,
		Bio:                u.Bio,
		DateOfBirth:        u.DateOfBirth,
		Location:           u.Location(),
		LocationName:       u.LocationName,
		ProfileImage:       u.ProfileImage,
		Tags:               []string(u.Tags),
		FollowersCount:     u.FollowersCount,
		FollowingCount:     u.FollowingCount,
		HiversCount:        u.HiversCount,
		PostsCount:         u.PostsCount,
		EventParticipation: u.EventParticipation,
		PopularityScore:    u.PopularityScore,
		UserInfoStatus:     u.UserInfoStatus,
		IsActive:           u.IsActive,
	}
}

// EventDocument is the search representation of an Event
type EventDocument struct {
	ID                      string      `json:"id,omitempty"`
	GUID                    uuid.UUID   `json:"guid"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
	CreatorGUID             uuid.UUID   `json:"creator_guid"`
	Title                   string      `json:"title"`
	Description             string      `json:"description"`
	Location                GeoPoint    `json:"location"`
	LocationName            string      `json:"location_name"`
	StartDate               time.Time   `json:"start_date"`
	EndDate                 time.Time   `json:"end_date"`
	Status                  EventStatus `json:"status"`
	MaxAttendees            int         `json:"max_attendees"`
	MinDonation             float64     `json:"min_donation"`
	Currency                string      `json:"currency"`
	TotalDonations          float64     `json:"total_donations"`
	CoverImageURL           string      `json:"cover_image_url"`
	CreatorPopularityScore  float64     `json:"creator_popularity_score"`
	Tags                    []string    `json:"tags"`
	IsPrivate               bool        `json:"is_private"`
	IsLastMinute            bool        `json:"is_last_minute"`
	PONR                    *time.Time  `json:"ponr,omitempty"`
	TotalAttendeesCount     int         `json:"total_attendees_count"`
	FollowersAttendeesCount int         `json:"followers_attendees_count"`
	PublicAttendeesCount    int         `json:"public_attendees_count"`
	HiversCount             int         `json:"hivers_count"`
	HiversReservedSlots     int         `json:"hivers_reserved_slots"`
}

// Document converts the event into its search representation
func (e *Event) Document() EventDocument {
	return EventDocument{
		GUID:                    e.GUID,
		CreatedAt:               e.CreatedAt,
		UpdatedAt:               e.UpdatedAt,
		CreatorGUID:             e.CreatorGUID,
		Title:                   e.Title,
		Description:             e.Description,
		Location:                e.Location,
		LocationName:            e.LocationName,
		StartDate:               e.StartDate,
		EndDate:                 e.EndDate,
		Status:                  e.Status,
		MaxAttendees:            e.MaxAttendees,
		MinDonation:             e.MinDonation,
		Currency:                e.Currency,
		TotalDonations:          e.TotalDonations,
		CoverImageURL:           e.CoverImageURL,
		CreatorPopularityScore:  e.CreatorPopularityScore,
		Tags:                    []string(e.Tags),
		IsPrivate:               e.IsPrivate,
		IsLastMinute:            e.IsLastMinute,
		PONR:                    e.PONR,
		TotalAttendeesCount:     e.TotalAttendeesCount,
		FollowersAttendeesCount: e.FollowersAttendeesCount,
		PublicAttendeesCount:    e.PublicAttendeesCount,
		HiversCount:             e.HiversCount,
		HiversReservedSlots:     e.HiversReservedSlots,
	}
}

// AttendeeDocument is the search representation of an EventAttendee
type AttendeeDocument struct {
	ID               string         `json:"id,omitempty"`
	GUID             uuid.UUID      `json:"guid"`
	EventGUID        uuid.UUID      `json:"event_guid"`
	UserGUID         uuid.UUID      `json:"user_guid"`
	CreatedAt        time.Time      `json:"created_at"`
	AttendeeType     AttendeeType   `json:"attendee_type"`
	Status           AttendeeStatus `json:"status"`
	InvitationSentAt *time.Time     `json:"invitation_sent_at,omitempty"`
	RSVPDate         *time.Time     `json:"rsvp_date,omitempty"`
}

// Document converts the attendee into its search representation
func (a *EventAttendee) Document() AttendeeDocument {
	return AttendeeDocument{
		GUID:             a.GUID,
		EventGUID:        a.EventGUID,
		UserGUID:         a.UserGUID,
		CreatedAt:        a.CreatedAt,
		AttendeeType:     a.AttendeeType,
		Status:           a.Status,
		InvitationSentAt: a.InvitationSentAt,
		RSVPDate:         a.RSVPDate,
	}
}

// FollowerDocument is the search representation of a UserFollower
type FollowerDocument struct {
	ID           string    `json:"id,omitempty"`
	GUID         uuid.UUID `json:"guid"`
	CreatedAt    time.Time `json:"created_at"`
	FollowerGUID uuid.UUID `json:"follower_guid"`
	UserGUID     uuid.UUID `json:"user_guid"`
}

// Document converts the edge into its search representation
func (f *UserFollower) Document() FollowerDocument {
	return FollowerDocument{
		GUID:         f.GUID,
		CreatedAt:    f.CreatedAt,
		FollowerGUID: f.FollowerGUID,
		UserGUID:     f.UserGUID,
	}
}

// HiverRequestDocument is the search representation of a HiverRequest
type HiverRequestDocument struct {
	ID           string             `json:"id,omitempty"`
	GUID         uuid.UUID          `json:"guid"`
	CreatedAt    time.Time          `json:"created_at"`
	SenderGUID   uuid.UUID          `json:"sender_guid"`
	ReceiverGUID uuid.UUID          `json:"receiver_guid"`
	Status       HiverRequestStatus `json:"status"`
}

// Document converts the request into its search representation
func (r *HiverRequest) Document() HiverRequestDocument {
	return HiverRequestDocument{
		GUID:         r.GUID,
		CreatedAt:    r.CreatedAt,
		SenderGUID:   r.SenderGUID,
		ReceiverGUID: r.ReceiverGUID,
		Status:       r.Status,
	}
}

// UserHiverDocument is the search representation of a UserHiver
type UserHiverDocument struct {
	ID        string    `json:"id,omitempty"`
	GUID      uuid.UUID `json:"guid"`
	CreatedAt time.Time `json:"created_at"`
	HiverGUID uuid.UUID `json:"hiver_guid"`
	UserGUID  uuid.UUID `json:"user_guid"`
}

// Document converts the link into its search representation
func (h *UserHiver) Document() UserHiverDocument {
	return UserHiverDocument{
		GUID:      h.GUID,
		CreatedAt: h.CreatedAt,
		HiverGUID: h.HiverGUID,
		UserGUID:  h.UserGUID,
	}
}

// MediaDocument is the search representation of a Media row
type MediaDocument struct {
	ID        string    `json:"id,omitempty"`
	GUID      uuid.UUID `json:"guid"`
	CreatedAt time.Time `json:"created_at"`
	EventGUID uuid.UUID `json:"event_guid"`
	UserGUID  uuid.UUID `json:"user_guid"`
	FileURL   string    `json:"file_url"`
	MediaType MediaType `json:"media_type"`
}

// Document converts the media row into its search representation
func (m *Media) Document() MediaDocument {
	return MediaDocument{
		GUID:      m.GUID,
		CreatedAt: m.CreatedAt,
		EventGUID: m.EventGUID,
		UserGUID:  m.UserGUID,
		FileURL:   m.FileURL,
		MediaType: m.MediaType,
	}
}

// SetDocumentID records the engine-assigned id after a lookup
func (d *UserDocument) SetDocumentID(id string) { d.ID = id }

// SetDocumentID records the engine-assigned id after a lookup
func (d *EventDocument) SetDocumentID(id string) { d.ID = id }

// SetDocumentID records the engine-assigned id after a lookup
func (d *AttendeeDocument) SetDocumentID(id string) { d.ID = id }

// SetDocumentID records the engine-assigned id after a lookup
func (d *FollowerDocument) SetDocumentID(id string) { d.ID = id }

// SetDocumentID records the engine-assigned id after a lookup
func (d *HiverRequestDocument) SetDocumentID(id string) { d.ID = id }

// SetDocumentID records the engine-assigned id after a lookup
func (d *UserHiverDocument) SetDocumentID(id string) { d.ID = id }

// SetDocumentID records the engine-assigned id after a lookup
func (d *MediaDocument) SetDocumentID(id string) { d.ID = id }

// ListedUser is the projection of a user document returned by account listings
type ListedUser struct {
	ID             string    `json:"id"`
	GUID           uuid.UUID `json:"guid"`
	Username       string    `json:"username"`
	FullName       string    `json:"full_name"`
	ProfileImage   string    `json:"profile_image"`
	FollowersCount int       `json:"followers_count"`
	HiversCount    int       `json:"hivers_count"`
}

// ListedUserFields is the _source projection matching ListedUser
var ListedUserFields = []string{"guid", "username", "full_name", "profile_image", "followers_count", "hivers_count"}

// SetDocumentID records the engine-assigned id after a lookup
func (d *ListedUser) SetDocumentID(id string) { d.ID = id }
