package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prismchat/prismchat/pkg/models"
	"github.com/prismchat/prismchat/pkg/service"
)

// ChatHandler provides HTTP handlers for prompt submission and the live
// streaming surface
type ChatHandler struct {
	Sessions *service.SessionService
	Stream   *service.StreamService
	Logger   *slog.Logger
}

func NewChatHandler(sessions *service.SessionService, stream *service.StreamService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{Sessions: sessions, Stream: stream, Logger: logger}
}

// Submit handles fanning a prompt out to all active providers. A duplicate
// prompt is accepted but launches nothing.
func (h *ChatHandler) Submit(c *gin.Context) {
	var req models.SubmitPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request: " + err.Error()})
		return
	}

	launched, err := h.Stream.Submit(c.Request.Context(), req.Prompt)
	switch {
	case errors.Is(err, service.ErrEmptyPrompt):
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: err.Error()})
		return
	case errors.Is(err, service.ErrNoCurrentSession):
		c.JSON(http.StatusConflict, models.Response{Code: 409, Message: err.Error()})
		return
	case err != nil:
		h.Logger.Error("Prompt submission failed", "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: models.SubmitPromptResponse{
		SessionID: h.Sessions.CurrentID(),
		Launched:  launched,
	}})
}

// Streaming handles snapshotting the live per-provider records
func (h *ChatHandler) Streaming(c *gin.Context) {
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: h.Stream.Snapshot()})
}

// Feed handles listing completed responses, most recent first
func (h *ChatHandler) Feed(c *gin.Context) {
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: h.Stream.Feed()})
}

// ClearFeed handles emptying the completed-response feed
func (h *ChatHandler) ClearFeed(c *gin.Context) {
	h.Stream.ClearFeed()
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Cleared"})
}
