package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pebble-sync/internal/logging"
	"pebble-sync/internal/middleware"
	"pebble-sync/internal/models"
	"pebble-sync/internal/services"
)

type SyncHandler struct {
	svc *services.HistoryService
	log *logging.Logger
}

func NewSyncHandler(svc *services.HistoryService, logger *logging.Logger) *SyncHandler {
	return &SyncHandler{svc: svc, log: logger}
}

func (h *SyncHandler) Push(c *gin.Context) {
	var body models.PushRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid json body"})
		return
	}
	res, err := h.svc.Push(c.Request.Context(), body)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if keyID := middleware.KeyIDFromContext(c); keyID != "" {
		h.log.Debugf("push %s by key %s", res.SyncID, keyID)
	}
	c.JSON(http.StatusOK, res)
}

func (h *SyncHandler) Fetch(c *gin.Context) {
	items, err := h.svc.Fetch(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *SyncHandler) History(c *gin.Context) {
	limit := parseIntDefault(c.Query("limit"), 0)
	page, err := h.svc.History(c.Request.Context(), limit, strings.TrimSpace(c.Query("cursor")))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func parseIntDefault(v string, fallback int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return i
	}
	return fallback
}
