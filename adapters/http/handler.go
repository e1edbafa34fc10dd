package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/adapters/auth"
	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/usecase"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

const (
	// ExportFilename is the name offered for the downloaded transcript.
	ExportFilename = "bellevue_land_use_analysis.txt"

	DefaultMaxUploadBytes = 20 << 20
	DefaultMaxConcurrent  = 10
	MaxAudioBytes         = 10 << 20

	contextSession = "session"
)

type Config struct {
	MaxUploadBytes int64
	MaxConcurrent  int
}

type SessionHandler struct {
	chatService *usecase.ChatService
	tokens      *auth.Tokens
	config      Config
	inFlight    chan struct{}
}

type CreateSessionRequest struct {
	APIKey string `json:"api_key" form:"api_key"`
}

type CreateSessionResponse struct {
	Session   usecase.SessionView `json:"session"`
	Token     string              `json:"token"`
	Type      string              `json:"type"`
	ExpiresAt time.Time           `json:"expires_at"`
}

type MessageRequest struct {
	Text string `json:"text" form:"text"`
}

// TurnResponse carries the appended assistant turn. Failed turns keep the
// human-readable error in Turn.Content and its kind in Turn.ErrorKind.
type TurnResponse struct {
	Turn  domain.ChatMessage  `json:"turn"`
	State domain.SessionState `json:"state"`
}

type UploadResponse struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ClearResponse struct {
	State  domain.SessionState `json:"state"`
	ChatID string              `json:"chat_id,omitempty"`
}

func NewSessionHandler(chatService *usecase.ChatService, tokens *auth.Tokens, config Config) *SessionHandler {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	return &SessionHandler{
		chatService: chatService,
		tokens:      tokens,
		config:      config,
		inFlight:    make(chan struct{}, config.MaxConcurrent),
	}
}

// Mount registers the API routes on g, normally the /api/v1 group.
func (h *SessionHandler) Mount(g *echo.Group) {
	g.GET("/health", h.HealthCheck)
	g.POST("/sessions", h.CreateSession)

	session := g.Group("/session")
	session.Use(h.tokens.Middleware)
	session.Use(h.SessionMiddleware)
	session.Use(h.RateLimitMiddleware)

	session.GET("", h.GetSession)
	session.DELETE("", h.CloseSession)
	session.POST("/messages", h.SendMessage)
	session.POST("/image", h.UploadImage)
	session.POST("/analyze", h.Analyze)
	session.POST("/clear", h.Clear)
	session.GET("/export", h.Export)
	session.GET("/history", h.History)
	session.POST("/voice", h.AskByVoice)
	session.POST("/speak", h.Speak)
}

// RequestContext copies the request id into the request context for logging.
func RequestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(log.WithRequestID(req.Context(), id)))
		}
		return next(c)
	}
}

// SessionMiddleware resolves the session named by the token.
func (h *SessionHandler) SessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := auth.SessionID(c)
		session, err := h.chatService.Get(sessionID)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "Session not found")
		}
		req := c.Request()
		c.SetRequest(req.WithContext(log.WithSessionID(req.Context(), sessionID)))
		c.Set(contextSession, session)
		return next(c)
	}
}

// RateLimitMiddleware bounds the number of in-flight session requests
// across every route it wraps. echo rebuilds route middleware per request,
// so the slots live on the handler.
func (h *SessionHandler) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		select {
		case h.inFlight <- struct{}{}:
			defer func() { <-h.inFlight }()
			return next(c)
		default:
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many concurrent requests")
		}
	}
}

// CreateSession opens a session, optionally bound to the caller's API key,
// and returns a bearer token for it.
func (h *SessionHandler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
		}
	}

	ctx := c.Request().Context()
	session, err := h.chatService.Open(ctx, req.APIKey)
	if err != nil {
		log.WithCtx(ctx).Error("opening session", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create session")
	}

	token, expires, err := h.tokens.Issue(session.ID)
	if err != nil {
		log.WithCtx(ctx).Error("issuing session token", zap.Error(err))
		_ = h.chatService.Close(ctx, session.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusCreated, CreateSessionResponse{
		Session:   h.chatService.View(session),
		Token:     token,
		Type:      "Bearer",
		ExpiresAt: expires,
	})
}

func (h *SessionHandler) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.chatService.View(sessionFrom(c)))
}

func (h *SessionHandler) CloseSession(c echo.Context) error {
	if err := h.chatService.Close(c.Request().Context(), sessionFrom(c).ID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) SendMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	session := sessionFrom(c)
	turn, err := h.chatService.Ask(c.Request().Context(), session, req.Text)
	return h.turnResponse(c, session, turn, err)
}

func (h *SessionHandler) UploadImage(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing multipart field \"file\"")
	}
	if file.Size > h.config.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Image exceeds %d bytes", h.config.MaxUploadBytes))
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable upload")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.config.MaxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable upload")
	}
	if int64(len(data)) > h.config.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Image exceeds %d bytes", h.config.MaxUploadBytes))
	}

	upload, err := h.chatService.Upload(c.Request().Context(), sessionFrom(c), file.Filename, data)
	if err != nil {
		return httpError(err)
	}
	bounds := upload.Pixels.Bounds()
	return c.JSON(http.StatusOK, UploadResponse{
		Name:   upload.Name,
		Digest: upload.Digest,
		Format: upload.Format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	})
}

func (h *SessionHandler) Analyze(c echo.Context) error {
	session := sessionFrom(c)
	turn, err := h.chatService.Analyze(c.Request().Context(), session)
	return h.turnResponse(c, session, turn, err)
}

func (h *SessionHandler) Clear(c echo.Context) error {
	session := sessionFrom(c)
	state := h.chatService.Clear(c.Request().Context(), session)
	return c.JSON(http.StatusOK, ClearResponse{State: state, ChatID: h.chatService.View(session).ChatID})
}

// Export downloads the transcript as plain text. An empty transcript has
// nothing to offer.
func (h *SessionHandler) Export(c echo.Context) error {
	text := h.chatService.Export(sessionFrom(c))
	if text == "" {
		return c.NoContent(http.StatusNoContent)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", ExportFilename))
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

func (h *SessionHandler) History(c echo.Context) error {
	history, err := h.chatService.ProviderHistory(sessionFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"turns": history})
}

// AskByVoice takes raw LINEAR16 audio as the request body.
func (h *SessionHandler) AskByVoice(c echo.Context) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, "audio/") && !strings.HasPrefix(contentType, echo.MIMEOctetStream) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid content type. Expected audio/* or application/octet-stream")
	}
	audio, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxAudioBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable audio")
	}
	if len(audio) > MaxAudioBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Audio too large")
	}

	session := sessionFrom(c)
	turn, err := h.chatService.AskByVoice(c.Request().Context(), session, audio)
	return h.turnResponse(c, session, turn, err)
}

func (h *SessionHandler) Speak(c echo.Context) error {
	audio, err := h.chatService.Speak(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

// HealthCheck endpoint
func (h *SessionHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "landuse-agentic",
	})
}

// turnResponse answers 200 for any appended turn, failed or not.
func (h *SessionHandler) turnResponse(c echo.Context, session *domain.Session, turn domain.ChatMessage, err error) error {
	if err != nil && domain.KindOf(err) == "" {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, TurnResponse{Turn: turn, State: session.State()})
}

func sessionFrom(c echo.Context) *domain.Session {
	return c.Get(contextSession).(*domain.Session)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoImage):
		return echo.NewHTTPError(http.StatusBadRequest, "Upload an image first")
	case errors.Is(err, domain.ErrAlreadyAnalyzed):
		return echo.NewHTTPError(http.StatusConflict, "Image already analyzed; upload a new image or clear the session")
	case errors.Is(err, domain.ErrImage):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Session not found")
	case errors.Is(err, domain.ErrVoiceDisabled):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case errors.Is(err, domain.ErrNothingToSpeak):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case domain.KindOf(err) == domain.KindUnavailable:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
