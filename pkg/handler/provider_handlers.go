package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prismchat/prismchat/pkg/models"
	"github.com/prismchat/prismchat/pkg/service"
)

// ProviderHandler provides HTTP handlers for provider credential and
// activation operations
type ProviderHandler struct {
	Keys   *service.KeyService
	Logger *slog.Logger
}

func NewProviderHandler(keys *service.KeyService, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{Keys: keys, Logger: logger}
}

// List handles listing all providers with masked credentials
func (h *ProviderHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: h.Keys.ProviderInfos()})
}

// SetKey handles storing a provider credential
func (h *ProviderHandler) SetKey(c *gin.Context) {
	p, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: err.Error()})
		return
	}
	var req models.SetKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request: " + err.Error()})
		return
	}
	if err := h.Keys.SetCredential(p, req.APIKey); err != nil {
		h.Logger.Error("Failed to store credential", "provider", p, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: h.Keys.ProviderInfos()})
}

// ToggleActive handles flipping a provider's active flag
func (h *ProviderHandler) ToggleActive(c *gin.Context) {
	p, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: err.Error()})
		return
	}
	var req models.ToggleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request: " + err.Error()})
		return
	}
	h.Keys.ToggleActive(p, req.Active)
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: h.Keys.ProviderInfos()})
}

// Reload handles re-reading all stored credentials from disk
func (h *ProviderHandler) Reload(c *gin.Context) {
	h.Keys.LoadCredentials()
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: h.Keys.ProviderInfos()})
}
