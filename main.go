package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/adapters/auth"
	httpadapter "github.com/satriahrh/landuse-agentic/adapters/http"
	"github.com/satriahrh/landuse-agentic/adapters/message_broker"
	"github.com/satriahrh/landuse-agentic/adapters/websocket"
	"github.com/satriahrh/landuse-agentic/app"
	"github.com/satriahrh/landuse-agentic/config"
	"github.com/satriahrh/landuse-agentic/usecase"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

func main() {
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.With().Fatal("loading config", zap.Error(err))
	}
	if cfg.Debug {
		if logger, err := zap.NewDevelopment(); err == nil {
			log.SetLogger(logger)
		}
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		if secret, err = auth.RandomSecret(); err != nil {
			log.With().Fatal("generating JWT secret", zap.Error(err))
		}
		log.With().Warn("JWT_SECRET is not set; session tokens will not survive a restart")
	}

	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()

	svc, err := app.NewChatService(ctx, cfg, usecase.WithBroker(broker))
	if err != nil {
		log.With().Fatal("building chat service", zap.Error(err))
	}
	go svc.RunExpiry(ctx, cfg.JWTExpiry, time.Minute)

	tokens := auth.NewTokens(secret, cfg.JWTExpiry)
	server := websocket.NewServer(svc, broker)
	handler := httpadapter.NewSessionHandler(svc, tokens, httpadapter.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxConcurrent:  cfg.MaxConcurrent,
	})

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(httpadapter.RequestContext)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		MaxAge: 86400,
	}))
	// Multipart overhead on top of the image itself.
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", (cfg.MaxUploadBytes+1<<20)/1024)))

	wsGroup := e.Group("/ws")
	wsGroup.Use(tokens.Middleware)
	wsGroup.GET("", server.Handler)

	handler.Mount(e.Group("/api/v1"))

	go func() {
		log.With(zap.String("addr", cfg.HTTPAddr), zap.String("provider", cfg.LLMProvider)).Info("Starting server")
		log.With().Info("Available endpoints:\n" +
			"  GET    /api/v1/health            - Health check\n" +
			"  POST   /api/v1/sessions          - Open a session, returns a token\n" +
			"  GET    /api/v1/session           - Session state and transcript\n" +
			"  POST   /api/v1/session/messages  - Ask a question\n" +
			"  POST   /api/v1/session/image     - Upload a site plan (multipart \"file\")\n" +
			"  POST   /api/v1/session/analyze   - Analyze the uploaded site plan\n" +
			"  POST   /api/v1/session/clear     - Start over\n" +
			"  GET    /api/v1/session/export    - Download the transcript\n" +
			"  GET    /ws                       - Turn stream (JWT required)")
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.With().Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.With().Error("shutting down", zap.Error(err))
	}
}
