package api

import (
	"errors"
	"net/http"
	"time"

	"case-tracker/internal/services/tracker"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler serves the tracker over HTTP.
type Handler struct {
	tracker       *tracker.Service
	historyWindow time.Duration
	upgrader      websocket.Upgrader
}

// SetupRoutes registers all API routes on the given group.
func SetupRoutes(r *gin.RouterGroup, svc *tracker.Service, historyWindow time.Duration) *Handler {
	handler := &Handler{
		tracker:       svc,
		historyWindow: historyWindow,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	users := r.Group("/users")
	{
		users.GET("/:name", handler.GetValuation)
		users.GET("/:name/export", handler.ExportWorkbook)
		users.POST("/:name/profile", handler.RefreshProfile)
		users.POST("/:name/inventory", handler.RefreshInventory)
		users.DELETE("/:name", handler.DeleteUser)
	}
	r.GET("/ws", handler.SyncFeed)

	return handler
}

// since derives the time-series lower bound from the request: the default
// history window back from now, or the whole history for time=all.
func (h *Handler) since(c *gin.Context) time.Time {
	if c.Query("time") == "all" {
		return time.Unix(0, 0)
	}
	return time.Now().Add(-h.historyWindow)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrIdentityNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrEmptyInventory):
		return http.StatusBadRequest
	case errors.Is(err, tracker.ErrPriceFetchIncomplete):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// GetValuation is the main entry point: it serves the cached valuation when
// the last snapshot is fresh and runs a full sync otherwise. force=1
// overrides the freshness window; time=all widens the series to everything.
func (h *Handler) GetValuation(c *gin.Context) {
	name := c.Param("name")
	force := c.Query("force") == "1"

	valuation, err := h.tracker.SyncUser(c.Request.Context(), name, force, h.since(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, valuation)
}

// RefreshProfile re-fetches display name and avatar without syncing.
func (h *Handler) RefreshProfile(c *gin.Context) {
	user, err := h.tracker.RefreshProfile(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// RefreshInventory re-reconciles ownership without recording a snapshot.
func (h *Handler) RefreshInventory(c *gin.Context) {
	if err := h.tracker.RefreshInventory(c.Request.Context(), c.Param("name")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DeleteUser removes a tracked user and all recorded history.
func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.tracker.DeleteUser(c.Request.Context(), c.Param("name")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// SyncFeed streams sync progress events over a websocket until the client
// disconnects.
func (h *Handler) SyncFeed(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events := h.tracker.Events().Subscribe()
	defer h.tracker.Events().Unsubscribe(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
