package handlers

import (
	"context"
	"net/http"
	"time"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/cache"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Stream is the membership check and subscription behind the media websocket
type Stream interface {
	IsMember(ctx context.Context, eventGUID, userGUID string) (bool, error)
	Subscribe(ctx context.Context, topic string) (cache.Subscription, error)
}

// StreamHandler serves the live media stream of an event
type StreamHandler struct {
	service  *services.Service
	uow      services.UnitOfWork
	stream   Stream
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(service *services.Service, uow services.UnitOfWork, stream Stream, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		service: service,
		uow:     uow,
		stream:  stream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleEventMedia checks stream membership, then forwards every message
// published on the event's media topic until the client disconnects
func (h *StreamHandler) HandleEventMedia(c *gin.Context) {
	guid, err := pathGUID(c, "guid")
	if err != nil {
		WriteError(c, StreamAPIContext, err)
		return
	}

	var principal *models.User
	err = principalTx(c, h.service, h.uow, func(_ context.Context, _ repositories.Session, p *models.User) error {
		principal = p
		return nil
	})
	if err != nil {
		WriteError(c, StreamAPIContext, err)
		return
	}

	ctx := c.Request.Context()
	ok, err := h.stream.IsMember(ctx, guid.String(), principal.GUID.String())
	if err != nil {
		WriteError(c, StreamAPIContext, apperrors.Internal(errors.Wrap(err, "failed to check stream membership")))
		return
	}
	if !ok {
		WriteError(c, StreamAPIContext, apperrors.Unauthenticated(errors.New("user is not allowed to access event media stream")))
		return
	}

	sub, err := h.stream.Subscribe(ctx, cache.EventMediaTopic(guid.String()))
	if err != nil {
		WriteError(c, StreamAPIContext, apperrors.Internal(errors.Wrap(err, "failed to subscribe to event media")))
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Warn().Err(err).Str("event_guid", guid.String()).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("event_guid", guid.String()).Str("user_guid", principal.GUID.String()).Logger()
	logger.Info().Msg("Media stream opened")

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				logger.Info().Msg("Media subscription ended")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn().Err(err).Msg("Failed to forward media update")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			logger.Info().Msg("Media stream closed by client")
			return
		case <-ctx.Done():
			return
		}
	}
}

// readPump drains client frames so control messages are handled and closes
// done when the connection goes away
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// RegisterRoutes registers the handler's routes
func (h *StreamHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws/stream/events/:guid", h.HandleEventMedia)
}
