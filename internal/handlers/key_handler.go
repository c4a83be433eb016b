package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pebble-sync/internal/logging"
	"pebble-sync/internal/services"
)

type KeyHandler struct {
	svc *services.KeyService
	log *logging.Logger
}

func NewKeyHandler(svc *services.KeyService, logger *logging.Logger) *KeyHandler {
	return &KeyHandler{svc: svc, log: logger}
}

func (h *KeyHandler) Create(c *gin.Context) {
	var body services.CreateKeyInput
	// an empty body asks the server to generate both halves
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid json body"})
		return
	}
	created, err := h.svc.Create(c.Request.Context(), body)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Infof("created api key %s", created.KeyID)
	c.JSON(http.StatusOK, created)
}

func (h *KeyHandler) List(c *gin.Context) {
	keys, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (h *KeyHandler) Revoke(c *gin.Context) {
	var body struct {
		KeyID string `json:"keyId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid json body"})
		return
	}
	if err := h.svc.Revoke(c.Request.Context(), body.KeyID); err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Infof("revoked api key %s", body.KeyID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
