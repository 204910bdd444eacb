package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prismchat/prismchat/pkg/config"
	"github.com/prismchat/prismchat/pkg/event"
	"github.com/prismchat/prismchat/pkg/handler"
	"github.com/prismchat/prismchat/pkg/models"
	"github.com/prismchat/prismchat/pkg/service"
	"github.com/prismchat/prismchat/pkg/utils"
)

type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	cfg       *config.AppConfig
	port      int
}

func NewServer(cfg *config.AppConfig) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: the backend is local-only, so only localhost dev
	// origins are allowed. Unknown origins are rejected outright.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// No Origin header means it's not a browser CORS request.
		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			} else {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	attachStatic(ginEngine)

	server := &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		cfg:       cfg,
	}

	server.SetupRoutes()

	return server
}

// Start binds the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Listen first so a busy port fails immediately instead of inside Serve.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = s.cfg.Port()
	}
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) SetupRoutes() {
	// Wire the service graph: registry -> store -> orchestrator.
	keyService := service.NewKeyService()
	keyService.LoadCredentials()

	sessionService := service.NewSessionService(keyService)

	modelService := service.NewModelService()
	streamService := service.NewStreamService(
		keyService, sessionService, modelService,
		time.Duration(s.cfg.GraceMs())*time.Millisecond,
	)

	providerHandler := handler.NewProviderHandler(keyService, s.logger)
	sessionHandler := handler.NewSessionHandler(sessionService, streamService, s.logger)
	chatHandler := handler.NewChatHandler(sessionService, streamService, s.logger)
	wsHandler := event.NewWSHandler()

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	// Runtime info for clients to discover correct base URLs
	apiGroup.GET("/runtime", func(c *gin.Context) {
		host := "127.0.0.1"
		port := s.port
		if port == 0 {
			port = s.cfg.Port()
		}
		c.JSON(http.StatusOK, models.RuntimeInfo{
			HTTPBaseURL: fmt.Sprintf("http://%s:%d", host, port),
			WSBaseURL:   fmt.Sprintf("ws://%s:%d", host, port),
			Port:        port,
		})
	})

	// Event push route
	// /api/events/ws
	apiGroup.GET("/events/ws", wsHandler.Handle)

	// Provider registry API routes
	// /api/providers
	providersGroup := apiGroup.Group("/providers")
	{
		providersGroup.GET("", providerHandler.List)
		providersGroup.POST("/reload", providerHandler.Reload)
		providersGroup.PUT(":provider/key", providerHandler.SetKey)
		providersGroup.PUT(":provider/active", providerHandler.ToggleActive)
	}

	// Session management API routes
	// /api/sessions
	sessionsGroup := apiGroup.Group("/sessions")
	{
		sessionsGroup.GET("", sessionHandler.List)
		sessionsGroup.POST("", sessionHandler.Create)
		sessionsGroup.GET("/current", sessionHandler.Current)
		sessionsGroup.GET(":id", sessionHandler.Get)
		sessionsGroup.PUT(":id/select", sessionHandler.Select)
		sessionsGroup.DELETE(":id", sessionHandler.Delete)
	}

	// Chat API routes
	// /api/chat
	chatGroup := apiGroup.Group("/chat")
	{
		chatGroup.POST("/prompt", chatHandler.Submit)
		chatGroup.GET("/streaming", chatHandler.Streaming)
		chatGroup.GET("/feed", chatHandler.Feed)
		chatGroup.DELETE("/feed", chatHandler.ClearFeed)
	}
}
