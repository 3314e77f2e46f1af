package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mamadbah2/nutrilog/internal/domain/models"
	"github.com/mamadbah2/nutrilog/internal/service/dailymeals"
)

const liveWriteTimeout = 10 * time.Second

// DailyView describes the operations the HTTP layer can perform on the view.
type DailyView interface {
	State() dailymeals.State
	Listen() (<-chan dailymeals.State, func())
	AddMeal(ctx context.Context, input models.MealInput) error
	DeleteMeal(ctx context.Context, mealID string) error
}

// IdentityReader exposes the current session identity.
type IdentityReader interface {
	Current() models.Identity
}

// MealHandler serves the daily meal screen over HTTP and WebSocket.
type MealHandler struct {
	view     DailyView
	sessions IdentityReader
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewMealHandler constructs the HTTP handler adapter.
func NewMealHandler(view DailyView, sessions IdentityReader, logger *zap.Logger) *MealHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MealHandler{
		view:     view,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Session reports who is signed in.
func (h *MealHandler) Session(c *gin.Context) {
	identity := h.sessions.Current()
	c.JSON(http.StatusOK, gin.H{
		"signed_in": identity.Present(),
		"user_id":   identity.UserID,
	})
}

// Today returns the current daily view.
func (h *MealHandler) Today(c *gin.Context) {
	c.JSON(http.StatusOK, h.view.State())
}

// AddMeal forwards a new meal to the store. The meal appears in the view
// once the next snapshot arrives.
func (h *MealHandler) AddMeal(c *gin.Context) {
	var input models.MealInput
	if err := c.ShouldBind(&input); err != nil {
		h.logger.Warn("invalid meal payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.view.AddMeal(c.Request.Context(), input); err != nil {
		h.writeError(c, "failed adding meal", err)
		return
	}

	c.Status(http.StatusAccepted)
}

// DeleteMeal forwards a delete to the store.
func (h *MealHandler) DeleteMeal(c *gin.Context) {
	mealID := c.Param("id")

	if err := h.view.DeleteMeal(c.Request.Context(), mealID); err != nil {
		h.writeError(c, "failed deleting meal", err)
		return
	}

	c.Status(http.StatusAccepted)
}

// Live upgrades to a WebSocket and pushes every frame of the daily view.
func (h *MealHandler) Live(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	frames, stop := h.view.Listen()
	defer stop()

	// The client never sends anything; reading only detects a closed socket.
	// The server read timeout still applies to the hijacked conn, so clear it.
	_ = conn.SetReadDeadline(time.Time{})
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				h.logger.Debug("live client gone", zap.Error(err))
				return
			}
		}
	}
}

func (h *MealHandler) writeError(c *gin.Context, msg string, err error) {
	if errors.Is(err, dailymeals.ErrNotSignedIn) {
		c.JSON(http.StatusConflict, gin.H{"error": "not signed in"})
		return
	}
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "meal store unavailable"})
}
