// Package handler is the HTTP surface: anonymous id issuance, the websocket
// endpoint, live stats, Prometheus metrics and the admin API.
package handler

import (
	"context"
	"log/slog"
	"time"

	"pairchat/backend/internal/chathub"
	"pairchat/backend/internal/config"
	"pairchat/backend/internal/metrics"

	"github.com/gin-gonic/gin"
)

// BanStore is the part of the moderation store the admin API uses.
type BanStore interface {
	BanUser(ctx context.Context, fingerprint, reason string, duration time.Duration) error
	UnbanUser(ctx context.Context, fingerprint string) error
}

// Handler holds the services the HTTP routes call into.
type Handler struct {
	Router  *chathub.Router
	Hub     *chathub.ManagerService
	Matcher *chathub.MatcherService
	Bans    BanStore

	cfg config.Config
	log *slog.Logger
}

// NewHandler creates a Handler. bans may be nil when no store is configured.
func NewHandler(router *chathub.Router, bans BanStore, cfg config.Config, log *slog.Logger) *Handler {
	return &Handler{
		Router:  router,
		Hub:     router.Hub,
		Matcher: router.Matcher,
		Bans:    bans,
		cfg:     cfg,
		log:     log,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/stats", h.Stats)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	admin := r.Group("/admin", h.requireAdmin)
	admin.GET("/rooms", h.ListRooms)
	admin.POST("/rooms/:id/close", h.CloseRoom)
	admin.POST("/bans", h.Ban)
	admin.DELETE("/bans/:fingerprint", h.Unban)
}
