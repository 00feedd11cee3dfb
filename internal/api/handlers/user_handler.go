package handlers

import (
	"context"
	"net/http"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/services"

	"github.com/gin-gonic/gin"
)

// UserHandler handles profile, public account and location requests
type UserHandler struct {
	service *services.Service
	uow     services.UnitOfWork
}

// NewUserHandler creates a new user handler
func NewUserHandler(service *services.Service, uow services.UnitOfWork) *UserHandler {
	return &UserHandler{service: service, uow: uow}
}

// ProfileRequest is a partial profile update
type ProfileRequest struct {
	Username     *string  `json:"username" binding:"omitempty,min=3,max=30,alphanum"`
	FirstName    *string  `json:"first_name" binding:"omitempty,max=50"`
	LastName     *string  `json:"last_name" binding:"omitempty,max=50"`
	Bio          *string  `json:"bio" binding:"omitempty,max=500"`
	DateOfBirth  *string  `json:"date_of_birth" binding:"omitempty,dob"`
	Lat          *float64 `json:"lat" binding:"omitempty,latitude"`
	Lon          *float64 `json:"lon" binding:"omitempty,longitude"`
	LocationName *string  `json:"location_name" binding:"omitempty,max=200"`
	Tags         []string `json:"tags" binding:"omitempty,max=20"`
}

func (r ProfileRequest) input() (services.ProfileInput, error) {
	if (r.Lat == nil) != (r.Lon == nil) {
		return services.ProfileInput{}, apperrors.Validation("lat and lon must be sent together")
	}
	in := services.ProfileInput{
		Username:     r.Username,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Bio:          r.Bio,
		DateOfBirth:  r.DateOfBirth,
		LocationName: r.LocationName,
		Tags:         r.Tags,
	}
	if r.Lat != nil && r.Lon != nil {
		in.Location = &models.GeoPoint{Lat: *r.Lat, Lon: *r.Lon}
	}
	return in, nil
}

// AccountSearchQuery are the public account search parameters
type AccountSearchQuery struct {
	UserInput string   `form:"user_input" binding:"required"`
	Lat       *float64 `form:"lat" binding:"omitempty,latitude"`
	Lon       *float64 `form:"lon" binding:"omitempty,longitude"`
	Radius    *int     `form:"radius" binding:"omitempty,min=1"`
	PageQuery
}

// HandleGetProfile returns the caller's account
func (h *UserHandler) HandleGetProfile(c *gin.Context) {
	var user *models.User
	err := principalTx(c, h.service, h.uow, func(_ context.Context, _ repositories.Session, principal *models.User) error {
		user = principal
		return nil
	})
	if err != nil {
		WriteError(c, UserAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// HandleCompleteProfile merges the request into the caller's profile
func (h *UserHandler) HandleCompleteProfile(c *gin.Context) {
	var req ProfileRequest
	if err := bind(c, &req); err != nil {
		WriteError(c, UserAPIContext, err)
		return
	}
	in, err := req.input()
	if err != nil {
		WriteError(c, UserAPIContext, err)
		return
	}

	var user *models.User
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		user, err = h.service.UpdateProfile(ctx, tx, principal, in)
		return err
	})
	if err != nil {
		WriteError(c, UserAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// HandleUpdateProfileImage replaces the caller's profile image with the "file" part
func (h *UserHandler) HandleUpdateProfileImage(c *gin.Context) {
	upload, err := requireUpload(c, "file")
	if err != nil {
		WriteError(c, UserAPIContext, err)
		return
	}

	var user *models.User
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		user, err = h.service.UpdateProfileImage(ctx, tx, principal, *upload)
		return err
	})
	if err != nil {
		WriteError(c, UserAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// HandleDeactivate deactivates the caller's account
func (h *UserHandler) HandleDeactivate(c *gin.Context) {
	err := principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		return h.service.Deactivate(ctx, tx, principal)
	})
	if err != nil {
		WriteError(c, UserAPIContext, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSearchAccounts ranks public accounts the caller is not linked to
func (h *UserHandler) HandleSearchAccounts(c *gin.Context) {
	var q AccountSearchQuery
	if err := bindQuery(c, &q); err != nil {
		WriteError(c, PublicUserAPIContext, err)
		return
	}
	radius := 50
	if q.Radius != nil {
		radius = *q.Radius
	}

	var page *services.UserPage
	err := principalTx(c, h.service, h.uow, func(ctx context.Context, _ repositories.Session, principal *models.User) error {
		var err error
		page, err = h.service.SearchAccounts(ctx, principal, services.AccountSearchInput{
			Input:    q.UserInput,
			Lat:      q.Lat,
			Lon:      q.Lon,
			RadiusKm: radius,
			Page:     q.Page(20),
		})
		return err
	})
	if err != nil {
		WriteError(c, PublicUserAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleGetBoard returns a public profile by its search document id
func (h *UserHandler) HandleGetBoard(c *gin.Context) {
	var profile *models.UserDocument
	err := principalTx(c, h.service, h.uow, func(ctx context.Context, _ repositories.Session, _ *models.User) error {
		var err error
		profile, err = h.service.GetProfile(ctx, c.Param("guid"))
		return err
	})
	if err != nil {
		WriteError(c, PublicUserAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// HandleFollow makes the caller follow the user in the path
func (h *UserHandler) HandleFollow(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, PublicUserAPIContext, err)
		return
	}

	var edge *models.UserFollower
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		edge, err = h.service.Follow(ctx, tx, principal, guid)
		return err
	})
	if err != nil {
		WriteError(c, PublicUserAPIContext, err)
		return
	}
	c.JSON(http.StatusCreated, edge)
}

// HandleUnfollow removes the caller's follow edge to the user in the path
func (h *UserHandler) HandleUnfollow(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, PublicUserAPIContext, err)
		return
	}

	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		return h.service.Unfollow(ctx, tx, principal, guid)
	})
	if err != nil {
		WriteError(c, PublicUserAPIContext, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSendHiverRequest asks the user in the path to join the caller's hive
func (h *UserHandler) HandleSendHiverRequest(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, PublicUserAPIContext, err)
		return
	}

	var req *models.HiverRequest
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		req, err = h.service.SendHiverRequest(ctx, tx, principal, guid)
		return err
	})
	if err != nil {
		WriteError(c, PublicUserAPIContext, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// HandleSearchLocation geocodes free text
func (h *UserHandler) HandleSearchLocation(c *gin.Context) {
	input := c.Query("user_input")
	if input == "" {
		WriteError(c, MapsAPIContext, apperrors.Validation("user_input is required"))
		return
	}
	limit, err := queryInt(c, "limit", 5)
	if err != nil {
		WriteError(c, MapsAPIContext, err)
		return
	}

	places, err := h.service.SearchLocation(c.Request.Context(), input, limit)
	if err != nil {
		WriteError(c, MapsAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, places)
}

// RegisterRoutes registers the handler's routes
func (h *UserHandler) RegisterRoutes(router gin.IRouter) {
	profile := router.Group("/users/me/profile")
	profile.GET("", h.HandleGetProfile)
	profile.PATCH("/complete", h.HandleCompleteProfile)
	profile.PUT("/image", h.HandleUpdateProfileImage)
	profile.DELETE("/deactivate", h.HandleDeactivate)

	public := router.Group("/users/public")
	public.GET("/search", h.HandleSearchAccounts)
	public.GET("/:guid/board", h.HandleGetBoard)
	public.POST("/:guid/follow", h.HandleFollow)
	public.DELETE("/:guid/unfollow", h.HandleUnfollow)
	public.POST("/:guid/send-hiver-request", h.HandleSendHiverRequest)

	router.GET("/maps/location/search", h.HandleSearchLocation)
}
