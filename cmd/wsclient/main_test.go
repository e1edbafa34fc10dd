package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSURL(t *testing.T) {
	c := &client{baseURL: "https://example.com:8443", token: "abc"}
	assert.Equal(t, "wss://example.com:8443/ws?token=abc", c.wsURL())

	c = &client{baseURL: "http://localhost:8080", token: "a b"}
	assert.Equal(t, "ws://localhost:8080/ws?token=a+b", c.wsURL())
}

func TestRender(t *testing.T) {
	var f frame
	f.Type = "cleared"
	assert.Equal(t, "--- conversation cleared ---", render(f))

	f = frame{Type: "turn"}
	f.Turn = &struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		ErrorKind string `json:"error_kind,omitempty"`
	}{Role: "assistant", Content: "Hi"}
	assert.Equal(t, "ASSISTANT: Hi", render(f))
}

func TestOpenSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sessions", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"session":{"id":"s1","state":"ready"},"token":"tok"}`))
	}))
	defer srv.Close()

	c := &client{baseURL: srv.URL, http: srv.Client()}
	resp, err := c.openSession("")
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.Session.ID)
	assert.Equal(t, "tok", resp.Token)
}
