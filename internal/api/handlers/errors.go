package handlers

import (
	"net/http"

	"example.com/backstage/services/partyup/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// API contexts reported in the API-Context header
const (
	AuthAPIContext        = "AUTH"
	UserAPIContext        = "USER"
	PublicUserAPIContext  = "PUBLIC_USER"
	UserHiverAPIContext   = "USER_HIVER"
	UserEventAPIContext   = "USER_EVENT"
	PublicEventAPIContext = "PUB_EVENT"
	MapsAPIContext        = "MAPS"
	StreamAPIContext      = "STREAM"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// WriteError maps err to its status code and aborts the request with an ErrorResponse
func WriteError(c *gin.Context, apiContext string, err error) {
	status := apperrors.HTTPStatus(err)

	c.Header("API-Context", apiContext)
	if dbContext := apperrors.DBContext(err); dbContext != "" {
		c.Header("DB-Context", dbContext)
	}

	resp := ErrorResponse{
		Message: apperrors.ErrInternal.Message,
		Code:    string(apperrors.KindInternal),
	}
	if appErr, ok := apperrors.As(err); ok {
		resp.Message = appErr.Message
		resp.Code = string(appErr.Kind)
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("api_context", apiContext).Int("status", status).Msg("Request failed")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}
