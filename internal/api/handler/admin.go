package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"pairchat/backend/internal/chathub"
	"pairchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Stats reports live connection, queue and room counts.
func (h *Handler) Stats(c *gin.Context) {
	conns, rooms := h.Hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"connections": conns,
		"waiting":     h.Matcher.Waiting(),
		"rooms":       rooms,
	})
}

// requireAdmin checks X-Admin-Token. The admin API is disabled when no
// token is configured.
func (h *Handler) requireAdmin(c *gin.Context) {
	want := h.cfg.AdminToken
	got := c.GetHeader("X-Admin-Token")
	if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// ListRooms returns summaries of every live room.
func (h *Handler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Hub.ActiveRooms()})
}

// CloseRoom force-closes a room by id or alias.
func (h *Handler) CloseRoom(c *gin.Context) {
	id := c.Param("id")
	if err := h.Hub.CloseRoom(id, chathub.ReasonAdmin); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.log.Info("room closed by admin", "room", id)
	c.JSON(http.StatusOK, gin.H{"closed": id})
}

type banRequest struct {
	Fingerprint string `json:"fingerprint" binding:"required"`
	Hours       int    `json:"hours" binding:"gte=0"`
	Reason      string `json:"reason"`
}

// Ban bans a fingerprint and removes it from the queue and its room. hours
// 0 is permanent.
func (h *Handler) Ban(c *gin.Context) {
	if h.Bans == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no moderation store configured"})
		return
	}
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := chathub.ValidateFingerprint(req.Fingerprint); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = "banned by moderator"
	}
	duration := time.Duration(req.Hours) * time.Hour
	if err := h.Bans.BanUser(c.Request.Context(), req.Fingerprint, req.Reason, duration); err != nil {
		h.log.Error("ban failed", "fingerprint", req.Fingerprint, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ban failed"})
		return
	}
	evicted := h.Matcher.Evict(req.Fingerprint)
	h.log.Info("fingerprint banned by admin", "fingerprint", req.Fingerprint, "duration", duration)
	c.JSON(http.StatusOK, gin.H{"banned": req.Fingerprint, "evicted": evicted})
}

// Unban lifts a ban.
func (h *Handler) Unban(c *gin.Context) {
	if h.Bans == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no moderation store configured"})
		return
	}
	fp := c.Param("fingerprint")
	if err := h.Bans.UnbanUser(c.Request.Context(), fp); err != nil {
		h.log.Error("unban failed", "fingerprint", fp, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unban failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unbanned": fp})
}
