package handlers

import (
	"context"
	"net/http"
	"strings"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/identity"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const identityKey = "identity"

// Authenticate verifies the bearer token and stores the identity on the context.
// Websocket clients that cannot set headers may pass the token as ?token=.
func Authenticate(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := verifier.Verify(c.Request.Context(), bearerToken(c))
		if err != nil {
			if !apperrors.IsDomain(err) {
				err = apperrors.Unauthenticated(err)
			}
			WriteError(c, AuthAPIContext, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

func currentIdentity(c *gin.Context) (*identity.Identity, error) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, apperrors.Unauthenticated(errors.New("no verified identity on request"))
	}
	return v.(*identity.Identity), nil
}

// principalTx runs fn in one unit of work with the caller's active account
func principalTx(c *gin.Context, svc *services.Service, uow services.UnitOfWork,
	fn func(ctx context.Context, tx repositories.Session, principal *models.User) error) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	return uow.Do(c.Request.Context(), func(ctx context.Context, tx repositories.Session) error {
		principal, err := svc.Principal(ctx, tx, id)
		if err != nil {
			return err
		}
		return fn(ctx, tx, principal)
	})
}

// AuthHandler handles sign in and session related requests
type AuthHandler struct {
	service *services.Service
	uow     services.UnitOfWork
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *services.Service, uow services.UnitOfWork) *AuthHandler {
	return &AuthHandler{service: service, uow: uow}
}

// SignInRequest is the optional client state sent with a Google sign in
type SignInRequest struct {
	FCMToken string `json:"fcm_token"`
	Username string `json:"username" binding:"omitempty,min=3,max=30,alphanum"`
}

// PushTokenRequest replaces the device push token
type PushTokenRequest struct {
	FCMToken string `json:"fcm_token" binding:"required"`
}

// HandleSignIn registers the verified identity or refreshes its account
func (h *AuthHandler) HandleSignIn(c *gin.Context) {
	var req SignInRequest
	if c.Request.ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			WriteError(c, AuthAPIContext, err)
			return
		}
	}

	id, err := currentIdentity(c)
	if err != nil {
		WriteError(c, AuthAPIContext, err)
		return
	}

	var (
		user    *models.User
		created bool
	)
	err = h.uow.Do(c.Request.Context(), func(ctx context.Context, tx repositories.Session) error {
		var err error
		user, created, err = h.service.SignIn(ctx, tx, id, services.SignInInput{
			PushToken: req.FCMToken,
			Username:  req.Username,
		})
		return err
	})
	if err != nil {
		WriteError(c, AuthAPIContext, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		log.Info().Str("user_guid", user.GUID.String()).Msg("New account signed in")
	}
	c.JSON(status, user)
}

// HandleLogout clears the caller's push token
func (h *AuthHandler) HandleLogout(c *gin.Context) {
	err := principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		return h.service.Logout(ctx, tx, principal)
	})
	if err != nil {
		WriteError(c, AuthAPIContext, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleRefreshPushToken stores a new push token for the caller
func (h *AuthHandler) HandleRefreshPushToken(c *gin.Context) {
	var req PushTokenRequest
	if err := bind(c, &req); err != nil {
		WriteError(c, AuthAPIContext, err)
		return
	}

	err := principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		return h.service.RefreshPushToken(ctx, tx, principal, req.FCMToken)
	})
	if err != nil {
		WriteError(c, AuthAPIContext, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the handler's routes
func (h *AuthHandler) RegisterRoutes(router gin.IRouter) {
	auth := router.Group("/auth")
	auth.POST("/signin/google", h.HandleSignIn)
	auth.POST("/logout", h.HandleLogout)
	auth.POST("/fcm-token/refresh", h.HandleRefreshPushToken)
}
