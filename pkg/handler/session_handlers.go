package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prismchat/prismchat/pkg/models"
	"github.com/prismchat/prismchat/pkg/service"
)

// SessionHandler provides HTTP handlers for chat session operations
type SessionHandler struct {
	Sessions *service.SessionService
	Stream   *service.StreamService
	Logger   *slog.Logger
}

func NewSessionHandler(sessions *service.SessionService, stream *service.StreamService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{Sessions: sessions, Stream: stream, Logger: logger}
}

// List handles listing all sessions, most recent first
func (h *SessionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: h.Sessions.List()})
}

// Get handles retrieving a single session with its full message log
func (h *SessionHandler) Get(c *gin.Context) {
	sess := h.Sessions.Get(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: "session not found"})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: sess})
}

// Current handles retrieving the current session, if any
func (h *SessionHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: h.Sessions.Current()})
}

// Create handles opening a new session and making it current
func (h *SessionHandler) Create(c *gin.Context) {
	sess, err := h.Sessions.Create()
	if err != nil {
		h.Logger.Error("Failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	h.Stream.Reset()
	c.JSON(http.StatusCreated, models.Response{Code: 200, Message: "Created", Data: sess})
}

// Select handles switching the current session
func (h *SessionHandler) Select(c *gin.Context) {
	id := c.Param("id")
	if !h.Sessions.Select(id) {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: "session not found"})
		return
	}
	h.Stream.Reset()
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK", Data: h.Sessions.Get(id)})
}

// Delete handles removing a session
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	wasCurrent := h.Sessions.CurrentID() == id
	if err := h.Sessions.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	if wasCurrent {
		h.Stream.Reset()
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Deleted"})
}
