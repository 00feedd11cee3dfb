package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// AuthProvider identifies how a user signed up
type AuthProvider string

const (
	AuthProviderEmail  AuthProvider = "EMAIL"
	AuthProviderGoogle AuthProvider = "GOOGLE"
)

// UserInfoStatus tracks whether a profile has every required field
type UserInfoStatus string

const (
	UserInfoComplete   UserInfoStatus = "COMPLETE"
	UserInfoIncomplete UserInfoStatus = "INCOMPLETE"
)

// EventStatus is the lifecycle state of an event
type EventStatus string

const (
	EventUpcoming  EventStatus = "UPCOMING"
	EventOngoing   EventStatus = "ONGOING"
	EventCancelled EventStatus = "CANCELLED"
	EventOutdated  EventStatus = "OUTDATED"
)

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case EventUpcoming:
		return next == EventOngoing || next == EventCancelled
	case EventOngoing:
		return next == EventOutdated
	}
	return false
}

// AttendeeType classifies how a user relates to an event
type AttendeeType string

const (
	AttendeePublic   AttendeeType = "PUBLIC"
	AttendeeFollower AttendeeType = "FOLLOWER"
	AttendeeHiver    AttendeeType = "HIVER"
)

// AttendeeStatus is the participation state of an attendee
type AttendeeStatus string

const (
	AttendeePending   AttendeeStatus = "PENDING"
	AttendeeConfirmed AttendeeStatus = "CONFIRMED"
	AttendeeDeclined  AttendeeStatus = "DECLINED"
	AttendeeWithdrawn AttendeeStatus = "WITHDRAWN"
)

// HiverRequestStatus is the state of a hiver request
type HiverRequestStatus string

const (
	HiverRequestPending  HiverRequestStatus = "PENDING"
	HiverRequestAccepted HiverRequestStatus = "ACCEPTED"
	HiverRequestDeclined HiverRequestStatus = "DECLINED"
)

// MediaType is the kind of uploaded event media
type MediaType string

const (
	MediaPhoto MediaType = "PHOTO"
	MediaVideo MediaType = "VIDEO"
)

// GeoPoint is a latitude/longitude pair
type GeoPoint struct {
	Lat float64 `gorm:"column:lat" json:"lat"`
	Lon float64 `gorm:"column:lon" json:"lon"`
}

// User is a registered account
type User struct {
	GUID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"guid"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	AuthProvider       AuthProvider   `gorm:"type:varchar(16);not null" json:"auth_provider"`
	ExternalUID        string         `gorm:"uniqueIndex;not null" json:"-"`
	Email              string         `gorm:"uniqueIndex;not null" json:"email"`
	EmailVerified      bool           `gorm:"not null;default:false" json:"email_verified"`
	Username           *string        `gorm:"uniqueIndex" json:"username"`
	FirstName          string         `json:"first_name"`
	LastName           string         `json:"last_name"`
	FullName           string         `json:"full_name"`
	Bio                string         `json:"bio"`
	DateOfBirth        string         `json:"date_of_birth"`
	Latitude           *float64       `json:"-"`
	Longitude          *float64       `json:"-"`
	LocationName       string         `json:"location_name"`
	ProfileImage       string         `json:"profile_image"`
	Tags               pq.StringArray `gorm:"type:text[]" json:"tags"`
	FollowersCount     int            `gorm:"not null;default:0" json:"followers_count"`
	FollowingCount     int            `gorm:"not null;default:0" json:"following_count"`
	HiversCount        int            `gorm:"not null;default:0" json:"hivers_count"`
	PostsCount         int            `gorm:"not null;default:0" json:"posts_count"`
	EventParticipation int            `gorm:"not null;default:0" json:"event_participation"`
	PopularityScore    float64        `gorm:"not null;default:0" json:"popularity_score"`
	UserInfoStatus     UserInfoStatus `gorm:"type:varchar(16);not null" json:"user_info_status"`
	IsActive           bool           `gorm:"not null;default:true" json:"is_active"`
	FCMToken           *string        `json:"-"`
	LogoutTimestamp    *time.Time     `json:"logout_timestamp"`
}

// Location returns the user's coordinates, or nil when unknown
func (u *User) Location() *GeoPoint {
	if u.Latitude == nil || u.Longitude == nil {
		return nil
	}
	return &GeoPoint{Lat: *u.Latitude, Lon: *u.Longitude}
}

// SetLocation stores the user's coordinates
func (u *User) SetLocation(p *GeoPoint) {
	if p == nil {
		u.Latitude, u.Longitude = nil, nil
		return
	}
	lat, lon := p.Lat, p.Lon
	u.Latitude, u.Longitude = &lat, &lon
}

// UsernameValue returns the username or an empty string
func (u *User) UsernameValue() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// PushToken returns the registered push token or an empty string
func (u *User) PushToken() string {
	if u.FCMToken == nil {
		return ""
	}
	return *u.FCMToken
}

// RefreshInfoStatus recomputes the completeness flag from the required fields
func (u *User) RefreshInfoStatus() {
	if u.FirstName != "" && u.LastName != "" && u.DateOfBirth != "" && u.EmailVerified &&
		u.UsernameValue() != "" && u.LocationName != "" && u.Location() != nil {
		u.UserInfoStatus = UserInfoComplete
		return
	}
	u.UserInfoStatus = UserInfoIncomplete
}

// Event is a user-created happening others can join
type Event struct {
	GUID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"guid"`
	CreatedAt               time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	CreatorGUID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"creator_guid"`
	Title                   string         `gorm:"not null" json:"title"`
	Description             string         `json:"description"`
	Location                GeoPoint       `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	LocationName            string         `json:"location_name"`
	StartDate               time.Time      `gorm:"not null" json:"start_date"`
	EndDate                 time.Time      `gorm:"not null" json:"end_date"`
	Status                  EventStatus    `gorm:"type:varchar(16);not null;index" json:"status"`
	MaxAttendees            int            `gorm:"not null" json:"max_attendees"`
	MinDonation             float64        `gorm:"not null;default:0" json:"min_donation"`
	Currency                string         `gorm:"type:varchar(8)" json:"currency"`
	TotalDonations          float64        `gorm:"not null;default:0" json:"total_donations"`
	CoverImageURL           string         `json:"cover_image_url"`
	CoverImageKey           string         `json:"-"`
	CreatorPopularityScore  float64        `gorm:"not null;default:0" json:"creator_popularity_score"`
	Tags                    pq.StringArray `gorm:"type:text[]" json:"tags"`
	IsPrivate               bool           `gorm:"not null;default:false" json:"is_private"`
	IsLastMinute            bool           `gorm:"not null;default:false" json:"is_last_minute"`
	PONR                    *time.Time     `gorm:"column:ponr" json:"ponr"`
	TotalAttendeesCount     int            `gorm:"not null;default:0" json:"total_attendees_count"`
	FollowersAttendeesCount int            `gorm:"not null;default:0" json:"followers_attendees_count"`
	PublicAttendeesCount    int            `gorm:"not null;default:0" json:"public_attendees_count"`
	HiversCount             int            `gorm:"not null;default:0" json:"hivers_count"`
	HiversReservedSlots     int            `gorm:"not null;default:0" json:"hivers_reserved_slots"`
}

// EventAttendee links a user to an event
type EventAttendee struct {
	EventGUID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"event_guid"`
	UserGUID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"user_guid"`
	GUID             uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null" json:"guid"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	AttendeeType     AttendeeType   `gorm:"type:varchar(16);not null" json:"attendee_type"`
	Status           AttendeeStatus `gorm:"type:varchar(16);not null" json:"status"`
	InvitationSentAt *time.Time     `json:"invitation_sent_at"`
	RSVPDate         *time.Time     `gorm:"column:rsvp_date" json:"rsvp_date"`
}

// UserFollower is a follower -> followed edge
type UserFollower struct {
	GUID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"guid"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	FollowerGUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_follower_pair" json:"follower_guid"`
	UserGUID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_follower_pair" json:"user_guid"`
}

// HiverRequest asks the receiver to join the sender's hive. A partial unique
// index allows one PENDING or ACCEPTED request per ordered pair.
type HiverRequest struct {
	GUID         uuid.UUID          `gorm:"type:uuid;primaryKey" json:"guid"`
	CreatedAt    time.Time          `gorm:"autoCreateTime" json:"created_at"`
	SenderGUID   uuid.UUID          `gorm:"type:uuid;not null;index:idx_hiver_request_pair;uniqueIndex:idx_hiver_request_active_pair,priority:1,where:status <> 'DECLINED'" json:"sender_guid"`
	ReceiverGUID uuid.UUID          `gorm:"type:uuid;not null;index:idx_hiver_request_pair;uniqueIndex:idx_hiver_request_active_pair,priority:2,where:status <> 'DECLINED'" json:"receiver_guid"`
	Status       HiverRequestStatus `gorm:"type:varchar(16);not null" json:"status"`
}

// UserHiver is the link created once a hiver request is accepted
type UserHiver struct {
	GUID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"guid"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	HiverGUID uuid.UUID `gorm:"type:uuid;not null;index" json:"hiver_guid"`
	UserGUID  uuid.UUID `gorm:"type:uuid;not null;index" json:"user_guid"`
}

// Media is a file uploaded to an event
type Media struct {
	GUID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"guid"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	EventGUID       uuid.UUID `gorm:"type:uuid;not null;index" json:"event_guid"`
	UserGUID        uuid.UUID `gorm:"type:uuid;not null;index" json:"user_guid"`
	FileURL         string    `gorm:"not null" json:"file_url"`
	ContentFilename string    `gorm:"not null" json:"-"`
	MediaType       MediaType `gorm:"type:varchar(8);not null" json:"media_type"`
}

// TableName overrides the default pluralized name
func (Media) TableName() string {
	return "media"
}

// SetupModels runs the schema migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Event{},
		&EventAttendee{},
		&UserFollower{},
		&HiverRequest{},
		&UserHiver{},
		&Media{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to auto-migrate models")
	}
	return nil
}
