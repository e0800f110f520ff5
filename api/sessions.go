package api

import (
	"errors"
	"net/http"

	"github.com/bellafleur/benly/internal/domain"
	"github.com/bellafleur/benly/internal/service/session"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type SessionHandler struct {
	service session.SessionUseCase
	log     *logrus.Logger
}

func NewSessionHandler(service session.SessionUseCase, log *logrus.Logger) *SessionHandler {
	return &SessionHandler{service: service, log: log}
}

type startAuthRequest struct {
	SID        string         `json:"sid"`
	ClickToken string         `json:"click_token"`
	AttemptNo  int            `json:"attempt_no"`
	Channel    string         `json:"channel"`
	ClientInfo map[string]any `json:"client_info"`
}

type callbackRequest struct {
	SID   string         `json:"sid"`
	TxID  string         `json:"txID"`
	Event string         `json:"event"`
	DLT   map[string]any `json:"dlt"`
}

type renewLinkRequest struct {
	SID string `json:"sid"`
}

func (h *SessionHandler) Register(router *gin.Engine) {
	router.GET("/", h.health)
	router.GET("/config", h.config)
	router.POST("/start-auth", RateLimit(60), h.startAuth)
	router.GET("/status", RateLimit(300), h.status)
	router.POST("/dlt/callback", RateLimit(120), h.callback)
	router.POST("/renew-link", RateLimit(60), h.renewLink)
}

func (h *SessionHandler) health(c *gin.Context) {
	c.String(http.StatusOK, "Bellafleur-Benly API is up")
}

// config hands the front-end its LIFF id plus an open-strategy hint for the
// requesting user-agent.
func (h *SessionHandler) config(c *gin.Context) {
	hint := h.service.Hint(c.GetHeader("User-Agent"))
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"liff_id": hint.LiffID,
		"hint":    hint,
	})
}

func (h *SessionHandler) startAuth(c *gin.Context) {
	var req startAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_SID", "sid required")
		return
	}
	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey == "" {
		idemKey = req.ClickToken
	}

	raw, err := h.service.StartAuth(c.Request.Context(), session.StartAuthInput{
		SID:            req.SID,
		ClickToken:     req.ClickToken,
		AttemptNo:      req.AttemptNo,
		Channel:        req.Channel,
		ClientInfo:     req.ClientInfo,
		IdempotencyKey: idemKey,
		UserAgent:      c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (h *SessionHandler) status(c *gin.Context) {
	sid := c.Query("sid")
	resp, err := h.service.Status(c.Request.Context(), sid)
	if err != nil {
		// Unknown sid is soft on polling: 200 with ok:false so the
		// front-end keeps control of the flow.
		if errors.Is(err, domain.ErrUnknownSession) || errors.Is(err, domain.ErrMissingSID) {
			respondError(c, http.StatusOK, "INVALID_SID", "unknown sid")
			return
		}
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) callback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SID == "" {
		respondError(c, http.StatusBadRequest, "INVALID_SID", "sid required")
		return
	}

	resp, err := h.service.HandleCallback(c.Request.Context(), session.CallbackInput{
		SID:   req.SID,
		TxID:  req.TxID,
		Event: req.Event,
		DLT:   req.DLT,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) renewLink(c *gin.Context) {
	var req renewLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SID == "" {
		respondError(c, http.StatusBadRequest, "INVALID_SID", "sid required")
		return
	}

	resp, err := h.service.RenewLink(c.Request.Context(), req.SID, c.GetHeader("User-Agent"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// respondServiceError maps service sentinels onto the wire taxonomy.
func (h *SessionHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingSID):
		respondError(c, http.StatusBadRequest, "INVALID_SID", "sid required")
	case errors.Is(err, domain.ErrUnknownSession):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "unknown sid")
	case errors.Is(err, domain.ErrTxMismatch):
		respondError(c, http.StatusConflict, "TX_MISMATCH", "txID mismatch")
	case errors.Is(err, domain.ErrCannotRenew):
		respondError(c, http.StatusBadRequest, "CANNOT_RENEW", "cannot renew in current status")
	default:
		h.log.WithError(err).Error("request failed")
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"ok": false, "error": code, "message": message})
}
