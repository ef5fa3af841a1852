package handler

import (
	"net/http"
	"slices"

	"pairchat/backend/internal/chathub"
	"pairchat/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the request and starts a chat session. A token
// from /anonid is optional; when given it must be valid and pre-seeds the
// session fingerprint.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	var profile models.Profile
	if token := bearerToken(c); token != "" {
		fp, err := parseJWT(token, h.cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		profile.Fingerprint = fp
		profile.Verified = true
	}
	profile.Language = h.language(c.Query("lang"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Router, profile, h.log)
	client.Run()
}

func (h *Handler) language(requested string) string {
	if requested != "" && slices.Contains(h.Hub.Localizer.Languages(), requested) {
		return requested
	}
	return h.cfg.DefaultLanguage
}
