// Package api serves a small read-only admin surface over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yokitheyo/gamdlbot/internal/config"
	"github.com/yokitheyo/gamdlbot/internal/limiter"
	"github.com/yokitheyo/gamdlbot/internal/model"
	"github.com/yokitheyo/gamdlbot/internal/session"
	"github.com/yokitheyo/gamdlbot/internal/store"
)

// History is implemented by *store.SQLite.
type History interface {
	DownloadCounts(ctx context.Context) (map[string]int, error)
	RecentDownloads(ctx context.Context, limit int) ([]store.DownloadRow, error)
}

type APIHandler struct {
	Sessions *session.Store
	Limiter  *limiter.Limiter
	Presets  config.Presets
	// History is optional; nil when no database is configured.
	History History
}

type sessionView struct {
	Token     string          `json:"token"`
	State     model.State     `json:"state"`
	Preset    string          `json:"preset,omitempty"`
	Mode      model.SendMode  `json:"mode,omitempty"`
	URLs      int             `json:"urls"`
	CreatedAt string          `json:"created_at"`
	Meta      *model.Metadata `json:"meta,omitempty"`
}

func RegisterHandlers(r *gin.Engine, h *APIHandler) {
	r.GET("/healthz", h.health)
	r.GET("/stats", h.stats)
	r.GET("/presets", h.presets)
	r.GET("/sessions/:token", h.getSession)
	r.GET("/downloads", h.recentDownloads)
}

// NewRouter builds a release-mode engine with the handlers mounted.
func NewRouter(h *APIHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	RegisterHandlers(r, h)
	return r
}

func (h *APIHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *APIHandler) stats(c *gin.Context) {
	byState := make(map[string]int)
	for st, n := range h.Sessions.Stats() {
		byState[string(st)] = n
	}
	out := gin.H{
		"sessions":  h.Sessions.Len(),
		"by_state":  byState,
		"in_flight": h.Limiter.InFlight(),
		"waiting":   h.Limiter.Waiting(),
		"capacity":  h.Limiter.Capacity(),
		"peak":      h.Limiter.Peak(),
	}
	if h.History != nil {
		counts, err := h.History.DownloadCounts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out["downloads"] = counts
	}
	c.JSON(http.StatusOK, out)
}

func (h *APIHandler) presets(c *gin.Context) {
	c.JSON(http.StatusOK, h.Presets)
}

func (h *APIHandler) getSession(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sessionView{
		Token:     sess.Token,
		State:     sess.State,
		Preset:    sess.Preset,
		Mode:      sess.Mode,
		URLs:      len(sess.URLs),
		CreatedAt: sess.CreatedAt.UTC().Format(time.RFC3339),
		Meta:      sess.Meta,
	})
}

func (h *APIHandler) recentDownloads(c *gin.Context) {
	if h.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no database configured"})
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	rows, err := h.History.RecentDownloads(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}
