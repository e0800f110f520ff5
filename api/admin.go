package api

import (
	"errors"
	"net/http"

	"github.com/bellafleur/benly/internal/domain"
	"github.com/gin-gonic/gin"
)

// RegisterDev mounts the introspection routes. These are development tooling
// and must never be registered in a production configuration.
func (h *SessionHandler) RegisterDev(router *gin.Engine) {
	router.GET("/sessions", h.listSessions)
	router.GET("/sessions/:sid", h.getSession)
	router.DELETE("/sessions/:sid", h.deleteSession)
}

func (h *SessionHandler) listSessions(c *gin.Context) {
	list, err := h.service.ListSessions(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": list.Count, "sessions": list.Sessions})
}

func (h *SessionHandler) getSession(c *gin.Context) {
	sess, err := h.service.GetSession(c.Request.Context(), c.Param("sid"))
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "NOT_FOUND"})
			return
		}
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "session": sess})
}

func (h *SessionHandler) deleteSession(c *gin.Context) {
	sid := c.Param("sid")
	if err := h.service.DeleteSession(c.Request.Context(), sid); err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "NOT_FOUND"})
			return
		}
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": sid})
}
