package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/adapters/auth"
	"github.com/satriahrh/landuse-agentic/adapters/hasher"
	"github.com/satriahrh/landuse-agentic/adapters/imageproc"
	"github.com/satriahrh/landuse-agentic/adapters/inmemory"
	"github.com/satriahrh/landuse-agentic/adapters/llm"
	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/usecase"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

func TestMain(m *testing.M) {
	log.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return "What setbacks apply?", nil
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

// blockingLlm holds every SendMessage until release is closed.
type blockingLlm struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLlm) For(string) domain.Llm { return b }

func (b *blockingLlm) StartChat(context.Context) (domain.ChatSession, error) {
	return &blockingChat{llm: b}, nil
}

type blockingChat struct{ llm *blockingLlm }

func (c *blockingChat) ID() string { return "blocking" }

func (c *blockingChat) SendMessage(_ context.Context, m domain.ChatMessage) (domain.ChatMessage, error) {
	c.llm.entered <- struct{}{}
	<-c.llm.release
	return domain.ChatMessage{Role: domain.AssistantRole, Content: "done"}, nil
}

func (c *blockingChat) History() ([]domain.ChatMessage, error) { return nil, nil }

func newTestServer(t *testing.T, cfg Config, opts ...usecase.Option) *echo.Echo {
	t.Helper()
	return newTestServerWith(t, llm.NewEchoClient("").For, cfg, opts...)
}

func newTestServerWith(t *testing.T, factory domain.LlmFactory, cfg Config, opts ...usecase.Option) *echo.Echo {
	t.Helper()
	assistant := usecase.NewAssistant(imageproc.New(), domain.Prompts{SiteAnalysis: "Analyze the attached site plan."}, "echo")
	svc := usecase.NewChatService(assistant, factory, inmemory.NewSessionRepository(), imageproc.New(), hasher.New(), opts...)

	e := echo.New()
	e.Use(RequestContext)
	NewSessionHandler(svc, auth.NewTokens([]byte("test-secret"), time.Hour), cfg).Mount(e.Group("/api/v1"))
	return e
}

func serve(e *echo.Echo, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func openSession(t *testing.T, e *echo.Echo) CreateSessionResponse {
	t.Helper()
	rec := serve(e, http.MethodPost, "/api/v1/sessions", "", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func ask(t *testing.T, e *echo.Echo, token, text string) TurnResponse {
	t.Helper()
	rec := serve(e, http.MethodPost, "/api/v1/session/messages", token,
		strings.NewReader(`{"text":`+mustJSON(t, text)+`}`), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func upload(t *testing.T, e *echo.Echo, token, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return serve(e, http.MethodPost, "/api/v1/session/image", token, &body, w.FormDataContentType())
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.NRGBA{A: 0})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealthCheck(t *testing.T) {
	e := newTestServer(t, Config{})
	rec := serve(e, http.MethodGet, "/api/v1/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestCreateSession(t *testing.T) {
	e := newTestServer(t, Config{})
	resp := openSession(t, e)

	assert.Equal(t, "Bearer", resp.Type)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, domain.StateReady, resp.Session.State)
	assert.NotEmpty(t, resp.Session.ChatID)

	rec := serve(e, http.MethodGet, "/api/v1/session", resp.Token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view usecase.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, resp.Session.ID, view.ID)

	rec = serve(e, http.MethodPost, "/api/v1/sessions", "", strings.NewReader(`{"api_key":"abc"}`), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSessionRoutesRequireToken(t *testing.T) {
	e := newTestServer(t, Config{})
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/api/v1/session", "", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/api/v1/session", "bogus", nil, "").Code)

	other, _, err := auth.NewTokens([]byte("test-secret"), time.Hour).Issue("unknown-session")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, serve(e, http.MethodGet, "/api/v1/session", other, nil, "").Code)
}

func TestConversationFlow(t *testing.T) {
	e := newTestServer(t, Config{})
	token := openSession(t, e).Token

	turn := ask(t, e, token, "What is the max height in R-4?")
	assert.Equal(t, domain.AssistantRole, turn.Turn.Role)
	assert.Equal(t, "Echo: What is the max height in R-4?", turn.Turn.Content)
	assert.False(t, turn.Turn.Failed())

	rec := serve(e, http.MethodPost, "/api/v1/session/messages", token, strings.NewReader(`{"text":"  "}`), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodPost, "/api/v1/session/analyze", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, e, token, "plan.png", pngBytes(t, 5000, 20))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var up UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.Equal(t, "plan.png", up.Name)
	assert.Equal(t, "png", up.Format)
	assert.Equal(t, 5000, up.Width)
	assert.True(t, strings.HasPrefix(up.Digest, "sha256:"))

	rec = serve(e, http.MethodPost, "/api/v1/session/analyze", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "Echo: [image/jpeg 4096x16] Analyze the attached site plan.", report.Turn.Content)

	rec = serve(e, http.MethodPost, "/api/v1/session/analyze", token, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(e, http.MethodGet, "/api/v1/session/history", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Turns []domain.ChatMessage `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history.Turns, 4)

	rec = serve(e, http.MethodGet, "/api/v1/session/export", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="bellevue_land_use_analysis.txt"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/plain"))
	assert.Equal(t,
		"USER: What is the max height in R-4?\n\n"+
			"ASSISTANT: Echo: What is the max height in R-4?\n\n"+
			"ASSISTANT: Echo: [image/jpeg 4096x16] Analyze the attached site plan.",
		rec.Body.String())
}

func TestUploadRejections(t *testing.T) {
	e := newTestServer(t, Config{MaxUploadBytes: 64})
	token := openSession(t, e).Token

	rec := upload(t, e, token, "notes.txt", []byte("plain text"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = upload(t, e, token, "big.png", bytes.Repeat([]byte{1}, 65))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = serve(e, http.MethodPost, "/api/v1/session/image", token, strings.NewReader("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearResetsTranscript(t *testing.T) {
	e := newTestServer(t, Config{})
	created := openSession(t, e)
	token := created.Token
	ask(t, e, token, "hello")

	rec := serve(e, http.MethodPost, "/api/v1/session/clear", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared ClearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cleared))
	assert.Equal(t, domain.StateReady, cleared.State)
	assert.NotEqual(t, created.Session.ChatID, cleared.ChatID)

	rec = serve(e, http.MethodGet, "/api/v1/session/export", token, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCloseSession(t *testing.T) {
	e := newTestServer(t, Config{})
	token := openSession(t, e).Token

	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodDelete, "/api/v1/session", token, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, serve(e, http.MethodGet, "/api/v1/session", token, nil, "").Code)
}

func TestVoiceEndpoints(t *testing.T) {
	disabled := newTestServer(t, Config{})
	token := openSession(t, disabled).Token
	rec := serve(disabled, http.MethodPost, "/api/v1/session/voice", token, strings.NewReader("pcm"), "audio/l16")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	e := newTestServer(t, Config{}, usecase.WithVoice(stubTranscriber{}, stubSynthesizer{}))
	token = openSession(t, e).Token

	rec = serve(e, http.MethodPost, "/api/v1/session/speak", token, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, http.MethodPost, "/api/v1/session/voice", token, strings.NewReader("pcm"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodPost, "/api/v1/session/voice", token, strings.NewReader("pcm"), "audio/l16")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var turn TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	assert.Equal(t, "Echo: What setbacks apply?", turn.Turn.Content)

	rec = serve(e, http.MethodPost, "/api/v1/session/speak", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "mp3:Echo: What setbacks apply?", rec.Body.String())
}

func TestRateLimitMiddleware(t *testing.T) {
	h := NewSessionHandler(nil, nil, Config{MaxConcurrent: 1})
	release := make(chan struct{})
	entered := make(chan struct{})
	handler := h.RateLimitMiddleware(func(c echo.Context) error {
		close(entered)
		<-release
		return c.NoContent(http.StatusOK)
	})

	e := echo.New()
	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		_ = handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
		done <- rec.Code
	}()
	<-entered

	err := handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestRateLimitSharedAcrossMountedRoutes(t *testing.T) {
	model := &blockingLlm{entered: make(chan struct{}), release: make(chan struct{})}
	e := newTestServerWith(t, model.For, Config{MaxConcurrent: 1})
	first := openSession(t, e)
	second := openSession(t, e)

	done := make(chan int)
	go func() {
		rec := serve(e, http.MethodPost, "/api/v1/session/messages", first.Token,
			strings.NewReader(`{"text":"hold"}`), echo.MIMEApplicationJSON)
		done <- rec.Code
	}()
	<-model.entered

	rec := serve(e, http.MethodGet, "/api/v1/session", second.Token, nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	close(model.release)
	assert.Equal(t, http.StatusOK, <-done)

	rec = serve(e, http.MethodGet, "/api/v1/session", second.Token, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
