package handlers

import (
	"context"
	"net/http"
	"time"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventHandler handles event lifecycle, attendance, feed and media requests
type EventHandler struct {
	service *services.Service
	uow     services.UnitOfWork
}

// NewEventHandler creates a new event handler
func NewEventHandler(service *services.Service, uow services.UnitOfWork) *EventHandler {
	return &EventHandler{service: service, uow: uow}
}

// CreateEventRequest is accepted as JSON or as multipart fields with a "cover" file
type CreateEventRequest struct {
	Title               string     `json:"title" form:"title" binding:"required,max=200"`
	Description         string     `json:"description" form:"description" binding:"max=5000"`
	Lat                 float64    `json:"lat" form:"lat" binding:"latitude"`
	Lon                 float64    `json:"lon" form:"lon" binding:"longitude"`
	LocationName        string     `json:"location_name" form:"location_name"`
	StartDate           time.Time  `json:"start_date" form:"start_date" binding:"required"`
	EndDate             time.Time  `json:"end_date" form:"end_date" binding:"required"`
	MaxAttendees        int        `json:"max_attendees" form:"max_attendees" binding:"required,min=1"`
	MinDonation         float64    `json:"min_donation" form:"min_donation" binding:"min=0"`
	Currency            string     `json:"currency" form:"currency" binding:"omitempty,iso4217"`
	Tags                []string   `json:"tags" form:"tags"`
	IsPrivate           bool       `json:"is_private" form:"is_private"`
	IsLastMinute        bool       `json:"is_last_minute" form:"is_last_minute"`
	PONR                *time.Time `json:"ponr" form:"ponr"`
	HiversReservedSlots int        `json:"hivers_reserved_slots" form:"hivers_reserved_slots" binding:"min=0"`
}

// UpdateEventRequest is a partial event update. replace_cover with no
// "cover" file removes the current cover.
type UpdateEventRequest struct {
	Title               *string    `json:"title" form:"title" binding:"omitempty,min=1,max=200"`
	Description         *string    `json:"description" form:"description" binding:"omitempty,max=5000"`
	Lat                 *float64   `json:"lat" form:"lat" binding:"omitempty,latitude"`
	Lon                 *float64   `json:"lon" form:"lon" binding:"omitempty,longitude"`
	LocationName        *string    `json:"location_name" form:"location_name"`
	StartDate           *time.Time `json:"start_date" form:"start_date"`
	EndDate             *time.Time `json:"end_date" form:"end_date"`
	MaxAttendees        *int       `json:"max_attendees" form:"max_attendees" binding:"omitempty,min=1"`
	MinDonation         *float64   `json:"min_donation" form:"min_donation" binding:"omitempty,min=0"`
	Currency            *string    `json:"currency" form:"currency" binding:"omitempty,iso4217"`
	Tags                []string   `json:"tags" form:"tags"`
	IsPrivate           *bool      `json:"is_private" form:"is_private"`
	IsLastMinute        *bool      `json:"is_last_minute" form:"is_last_minute"`
	PONR                *time.Time `json:"ponr" form:"ponr"`
	HiversReservedSlots *int       `json:"hivers_reserved_slots" form:"hivers_reserved_slots" binding:"omitempty,min=0"`
	ReplaceCover        bool       `json:"replace_cover" form:"replace_cover"`
}

// InvitationRequest lists the hivers invited to an event
type InvitationRequest struct {
	HiverGUIDs []string `json:"hiver_guids" binding:"required,min=1,dive,guid"`
}

// RSVPRequest answers an invitation
type RSVPRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// UserEventsQuery filters the caller's events
type UserEventsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=UPCOMING ONGOING CANCELLED OUTDATED"`
	PageQuery
}

// FeedQuery locates the leaderboard and the event search
type FeedQuery struct {
	Lat       float64 `form:"lat" binding:"latitude"`
	Lon       float64 `form:"lon" binding:"longitude"`
	Radius    *int    `form:"radius" binding:"omitempty,min=1"`
	Status    string  `form:"status" binding:"omitempty,oneof=UPCOMING ONGOING CANCELLED OUTDATED"`
	UserInput string  `form:"user_input"`
	PageQuery
}

func (q FeedQuery) input(defaultRadius int) services.FeedInput {
	radius := defaultRadius
	if q.Radius != nil {
		radius = *q.Radius
	}
	status := models.EventUpcoming
	if q.Status != "" {
		status = models.EventStatus(q.Status)
	}
	return services.FeedInput{
		Lat:      q.Lat,
		Lon:      q.Lon,
		RadiusKm: radius,
		Status:   status,
		Page:     q.Page(10),
	}
}

// HandleCreate creates an event owned by the caller
func (h *EventHandler) HandleCreate(c *gin.Context) {
	var req CreateEventRequest
	if err := bind(c, &req); err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	cover, err := readUpload(c, "cover")
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}

	var event *models.Event
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		event, err = h.service.CreateEvent(ctx, tx, principal, services.CreateEventInput{
			Title:               req.Title,
			Description:         req.Description,
			Location:            models.GeoPoint{Lat: req.Lat, Lon: req.Lon},
			LocationName:        req.LocationName,
			StartDate:           req.StartDate,
			EndDate:             req.EndDate,
			MaxAttendees:        req.MaxAttendees,
			MinDonation:         req.MinDonation,
			Currency:            req.Currency,
			Tags:                req.Tags,
			IsPrivate:           req.IsPrivate,
			IsLastMinute:        req.IsLastMinute,
			PONR:                req.PONR,
			HiversReservedSlots: req.HiversReservedSlots,
			Cover:               cover,
		})
		return err
	})
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// HandleListOwn lists the caller's events
func (h *EventHandler) HandleListOwn(c *gin.Context) {
	var q UserEventsQuery
	if err := bindQuery(c, &q); err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}

	var page *services.EventPage
	err := principalTx(c, h.service, h.uow, func(ctx context.Context, _ repositories.Session, principal *models.User) error {
		var err error
		page, err = h.service.ListUserEvents(ctx, principal, models.EventStatus(q.Status), q.Page(10))
		return err
	})
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleCancel cancels one of the caller's events
func (h *EventHandler) HandleCancel(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}

	var event *models.Event
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		event, err = h.service.CancelEvent(ctx, tx, principal, guid)
		return err
	})
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// HandleUpdate merges the request into one of the caller's events
func (h *EventHandler) HandleUpdate(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	var req UpdateEventRequest
	if err := bind(c, &req); err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	if (req.Lat == nil) != (req.Lon == nil) {
		WriteError(c, UserEventAPIContext, apperrors.Validation("lat and lon must be sent together"))
		return
	}
	cover, err := readUpload(c, "cover")
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}

	in := services.UpdateEventInput{
		Title:               req.Title,
		Description:         req.Description,
		LocationName:        req.LocationName,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		MaxAttendees:        req.MaxAttendees,
		MinDonation:         req.MinDonation,
		Currency:            req.Currency,
		Tags:                req.Tags,
		IsPrivate:           req.IsPrivate,
		IsLastMinute:        req.IsLastMinute,
		PONR:                req.PONR,
		HiversReservedSlots: req.HiversReservedSlots,
		ReplaceCover:        req.ReplaceCover || cover != nil,
		Cover:               cover,
	}
	if req.Lat != nil {
		in.Location = &models.GeoPoint{Lat: *req.Lat, Lon: *req.Lon}
	}

	var event *models.Event
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		event, err = h.service.UpdateEvent(ctx, tx, principal, guid, in)
		return err
	})
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// HandleSendInvitations invites linked hivers to one of the caller's events
func (h *EventHandler) HandleSendInvitations(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	var req InvitationRequest
	if err := bind(c, &req); err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	hivers, err := parseGUIDs(req.HiverGUIDs)
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}

	var invited []models.EventAttendee
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		invited, err = h.service.SendInvitations(ctx, tx, principal, guid, hivers)
		return err
	})
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	c.JSON(http.StatusCreated, invited)
}

// HandleRSVP answers the caller's invitation to the event
func (h *EventHandler) HandleRSVP(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	var req RSVPRequest
	if err := bind(c, &req); err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}

	var attendee *models.EventAttendee
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		attendee, err = h.service.RSVP(ctx, tx, principal, guid, *req.Accept)
		return err
	})
	if err != nil {
		WriteError(c, UserEventAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, attendee)
}

// HandleLeaderboard ranks events around a point
func (h *EventHandler) HandleLeaderboard(c *gin.Context) {
	var q FeedQuery
	if err := bindQuery(c, &q); err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}

	var page *services.EventPage
	err := principalTx(c, h.service, h.uow, func(ctx context.Context, _ repositories.Session, principal *models.User) error {
		var err error
		page, err = h.service.Leaderboard(ctx, principal, q.input(50))
		return err
	})
	if err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleSearch matches user_input against events around a point
func (h *EventHandler) HandleSearch(c *gin.Context) {
	var q FeedQuery
	if err := bindQuery(c, &q); err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}
	if q.UserInput == "" {
		WriteError(c, PublicEventAPIContext, apperrors.Validation("user_input is required"))
		return
	}

	var page *services.EventPage
	err := principalTx(c, h.service, h.uow, func(ctx context.Context, _ repositories.Session, principal *models.User) error {
		var err error
		page, err = h.service.SearchEvents(ctx, principal, q.UserInput, q.input(10))
		return err
	})
	if err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleJoin confirms the caller as a public or follower attendee
func (h *EventHandler) HandleJoin(c *gin.Context) {
	h.attendance(c, func(ctx context.Context, tx repositories.Session, principal *models.User, guid uuid.UUID) (interface{}, error) {
		return h.service.JoinEvent(ctx, tx, principal, guid)
	}, http.StatusCreated)
}

// HandleRevokeJoin withdraws the caller from the event
func (h *EventHandler) HandleRevokeJoin(c *gin.Context) {
	h.attendance(c, func(ctx context.Context, tx repositories.Session, principal *models.User, guid uuid.UUID) (interface{}, error) {
		return nil, h.service.RevokeJoin(ctx, tx, principal, guid)
	}, http.StatusNoContent)
}

func (h *EventHandler) attendance(c *gin.Context,
	op func(ctx context.Context, tx repositories.Session, principal *models.User, guid uuid.UUID) (interface{}, error), status int) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}

	var result interface{}
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		result, err = op(ctx, tx, principal, guid)
		return err
	})
	if err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}
	if result == nil {
		c.Status(status)
		return
	}
	c.JSON(status, result)
}

// HandleUploadMedia stores the "file" part as event media
func (h *EventHandler) HandleUploadMedia(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}
	upload, err := requireUpload(c, "file")
	if err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}

	var media *models.Media
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		media, err = h.service.UploadMedia(ctx, tx, principal, guid, *upload)
		return err
	})
	if err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}
	c.JSON(http.StatusCreated, media)
}

// HandleListMedia pages an event's media, newest first
func (h *EventHandler) HandleListMedia(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}
	var q PageQuery
	if err := bindQuery(c, &q); err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}

	var page *services.MediaPage
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, _ repositories.Session, _ *models.User) error {
		var err error
		page, err = h.service.ListEventMedia(ctx, guid, q.Page(20))
		return err
	})
	if err != nil {
		WriteError(c, PublicEventAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// RegisterRoutes registers the handler's routes
func (h *EventHandler) RegisterRoutes(router gin.IRouter) {
	own := router.Group("/users/me/events")
	own.GET("", h.HandleListOwn)
	own.POST("/create", h.HandleCreate)
	own.PATCH("/:guid", h.HandleUpdate)
	own.DELETE("/:guid", h.HandleCancel)
	own.POST("/:guid/send-invitation", h.HandleSendInvitations)
	own.PUT("/:guid/rsvp", h.HandleRSVP)

	events := router.Group("/events")
	events.GET("/leaderboard", h.HandleLeaderboard)
	events.GET("/search", h.HandleSearch)
	events.PUT("/:guid/join", h.HandleJoin)
	events.DELETE("/:guid/revoke-join", h.HandleRevokeJoin)
	events.POST("/:guid/media", h.HandleUploadMedia)
	events.GET("/:guid/media", h.HandleListMedia)
}
