package handlers

import (
	"context"
	"net/http"
	"strings"

	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search/queries"
	"example.com/backstage/services/partyup/internal/services"

	"github.com/gin-gonic/gin"
)

// HiverHandler handles the caller's hiver requests and links
type HiverHandler struct {
	service *services.Service
	uow     services.UnitOfWork
}

// NewHiverHandler creates a new hiver handler
func NewHiverHandler(service *services.Service, uow services.UnitOfWork) *HiverHandler {
	return &HiverHandler{service: service, uow: uow}
}

// RespondRequest accepts or declines a received hiver request
type RespondRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// HiverRequestsQuery filters the caller's hiver requests
type HiverRequestsQuery struct {
	Mode   string `form:"mode" binding:"required,oneof=sent received"`
	Status string `form:"status" binding:"omitempty,oneof=PENDING ACCEPTED DECLINED"`
	PageQuery
}

// LinkedHiversQuery pages the caller's hivers
type LinkedHiversQuery struct {
	Fields string `form:"fields"`
	PageQuery
}

// HandleRespond accepts or declines the request in the path
func (h *HiverHandler) HandleRespond(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, UserHiverAPIContext, err)
		return
	}
	var req RespondRequest
	if err := bind(c, &req); err != nil {
		WriteError(c, UserHiverAPIContext, err)
		return
	}

	var updated *models.HiverRequest
	err = principalTx(c, h.service, h.uow, func(ctx context.Context, tx repositories.Session, principal *models.User) error {
		var err error
		updated, err = h.service.RespondHiverRequest(ctx, tx, principal, guid, *req.Accept)
		return err
	})
	if err != nil {
		WriteError(c, UserHiverAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// HandleListRequests lists sent or received requests in one status
func (h *HiverHandler) HandleListRequests(c *gin.Context) {
	var q HiverRequestsQuery
	if err := bindQuery(c, &q); err != nil {
		WriteError(c, UserHiverAPIContext, err)
		return
	}
	status := models.HiverRequestPending
	if q.Status != "" {
		status = models.HiverRequestStatus(q.Status)
	}

	var requests []models.HiverRequestDocument
	err := principalTx(c, h.service, h.uow, func(ctx context.Context, _ repositories.Session, principal *models.User) error {
		var err error
		requests, err = h.service.ListHiverRequests(ctx, principal, status, queries.RequestMode(q.Mode), q.Page(20))
		return err
	})
	if err != nil {
		WriteError(c, UserHiverAPIContext, err)
		return
	}
	if requests == nil {
		requests = []models.HiverRequestDocument{}
	}
	c.JSON(http.StatusOK, requests)
}

// HandleLinkedHivers pages the accounts linked to the caller
func (h *HiverHandler) HandleLinkedHivers(c *gin.Context) {
	var q LinkedHiversQuery
	if err := bindQuery(c, &q); err != nil {
		WriteError(c, UserHiverAPIContext, err)
		return
	}
	var fields []string
	if q.Fields != "" {
		fields = strings.Split(q.Fields, ",")
	}

	var page *services.UserPage
	err := principalTx(c, h.service, h.uow, func(ctx context.Context, _ repositories.Session, principal *models.User) error {
		var err error
		page, err = h.service.LinkedHivers(ctx, principal, q.Page(20), fields)
		return err
	})
	if err != nil {
		WriteError(c, UserHiverAPIContext, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// RegisterRoutes registers the handler's routes
func (h *HiverHandler) RegisterRoutes(router gin.IRouter) {
	hivers := router.Group("/users/me/hivers")
	hivers.GET("", h.HandleLinkedHivers)
	hivers.GET("/requests", h.HandleListRequests)
	hivers.PUT("/requests/:guid/respond", h.HandleRespond)
}
