package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/app"
	"github.com/satriahrh/landuse-agentic/config"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

func TestMain(m *testing.M) {
	log.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

func newTestConsole(t *testing.T) (*console, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	svc, err := app.NewChatService(ctx, &config.Config{LLMProvider: config.ProviderEcho})
	require.NoError(t, err)
	session, err := svc.Open(ctx, "")
	require.NoError(t, err)

	var out bytes.Buffer
	return newConsole(svc, session, &out), &out
}

func pngFile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 30, 20))))
	return buf.Bytes()
}

func TestAskPrintsReply(t *testing.T) {
	c, out := newTestConsole(t)

	assert.False(t, c.handle(context.Background(), "What is the max height in R-4?"))
	assert.Equal(t, "ASSISTANT: Echo: What is the max height in R-4?\n", out.String())

	out.Reset()
	assert.False(t, c.handle(context.Background(), ""))
	assert.Empty(t, out.String())
}

func TestImageAnalyzeAndExport(t *testing.T) {
	c, out := newTestConsole(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.png")
	require.NoError(t, os.WriteFile(path, pngFile(t), 0o600))

	c.handle(ctx, ":analyze")
	assert.Contains(t, out.String(), "no image uploaded")

	out.Reset()
	c.handle(ctx, ":image "+path)
	assert.Contains(t, out.String(), "Uploaded plan.png (png, 30x20)")

	out.Reset()
	c.handle(ctx, ":analyze")
	assert.Contains(t, out.String(), "ASSISTANT: Echo: [image/jpeg 30x20]")

	out.Reset()
	c.handle(ctx, ":analyze")
	assert.Contains(t, out.String(), "already analyzed")

	exportPath := filepath.Join(dir, "out.txt")
	c.handle(ctx, ":export "+exportPath)
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ASSISTANT: Echo: [image/jpeg 30x20]")
}

func TestImageFromURL(t *testing.T) {
	c, out := newTestConsole(t)
	var fetched string
	c.fetch = func(_ context.Context, url string) ([]byte, error) {
		fetched = url
		return pngFile(t), nil
	}

	c.handle(context.Background(), ":image https://example.com/plans/site.png")
	assert.Equal(t, "https://example.com/plans/site.png", fetched)
	assert.Contains(t, out.String(), "Uploaded site.png")
}

func TestCommands(t *testing.T) {
	c, out := newTestConsole(t)
	ctx := context.Background()

	c.handle(ctx, "hello")
	out.Reset()
	c.handle(ctx, ":history")
	assert.Contains(t, out.String(), "user")
	assert.Contains(t, out.String(), "Echo: hello")

	out.Reset()
	c.handle(ctx, ":clear")
	assert.Contains(t, out.String(), "Conversation cleared (ready)")

	out.Reset()
	c.handle(ctx, ":export")
	assert.Contains(t, out.String(), "Nothing to export yet")

	out.Reset()
	c.handle(ctx, ":image")
	assert.Contains(t, out.String(), "usage")

	out.Reset()
	c.handle(ctx, ":dance")
	assert.Contains(t, out.String(), "unknown command")

	assert.True(t, c.handle(ctx, ":quit"))
}

func TestAbbreviateCountsRunes(t *testing.T) {
	assert.Equal(t, "short", abbreviate("short", 10))
	assert.Equal(t, "ééééééé...", abbreviate(strings.Repeat("é", 11), 10))
	assert.Equal(t, strings.Repeat("é", 10), abbreviate(strings.Repeat("é", 10), 10))
}

func TestHistoryKeepsMultibyteTextValid(t *testing.T) {
	c, out := newTestConsole(t)
	ctx := context.Background()

	c.handle(ctx, "a"+strings.Repeat("日本", 60))
	out.Reset()
	c.handle(ctx, ":history")

	require.True(t, utf8.ValidString(out.String()))
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		assert.True(t, strings.HasSuffix(line, "..."), line)
	}
}
