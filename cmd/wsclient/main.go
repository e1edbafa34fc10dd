// Command wsclient chats with a running server: it opens a session over
// HTTP, then sends questions and prints turns over the WebSocket stream.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/gorilla/websocket"
)

type sessionResponse struct {
	Session struct {
		ID    string `json:"id"`
		State string `json:"state"`
	} `json:"session"`
	Token string `json:"token"`
}

type frame struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Index int    `json:"index,omitempty"`
	Turn  *struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		ErrorKind string `json:"error_kind,omitempty"`
	} `json:"turn,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	apiKey := flag.String("api-key", "", "Gemini API key bound to the session (optional)")
	flag.Parse()

	c := &client{baseURL: strings.TrimRight(*server, "/"), http: &http.Client{Timeout: 2 * time.Minute}}
	session, err := c.openSession(*apiKey)
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	c.token = session.Token
	fmt.Printf("✅ Session %s (%s)\n", session.Session.ID, session.Session.State)

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL(), nil)
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()

	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				log.Println("Error reading message:", err)
				os.Exit(0)
			}
			fmt.Println(render(f))
		}
	}()

	rl, err := readline.New("> ")
	if err != nil {
		log.Fatal(err)
	}
	defer rl.Close()

	fmt.Println("Type a question, :image <path>, :analyze, :clear or :quit")
	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case line == ":quit":
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case strings.HasPrefix(line, ":image "):
			report(c.uploadImage(strings.TrimSpace(strings.TrimPrefix(line, ":image "))))
		case line == ":analyze":
			report(c.post("/api/v1/session/analyze"))
		case line == ":clear":
			report(c.post("/api/v1/session/clear"))
		default:
			if err := conn.WriteJSON(frame{Type: "message", Text: line}); err != nil {
				log.Println("Error sending message:", err)
				return
			}
		}
	}
}

func render(f frame) string {
	switch {
	case f.Type == "turn" && f.Turn != nil:
		return fmt.Sprintf("%s: %s", strings.ToUpper(f.Turn.Role), f.Turn.Content)
	case f.Type == "cleared":
		return "--- conversation cleared ---"
	case f.Type == "error" && f.Error != nil:
		return fmt.Sprintf("❌ %s: %s", f.Error.Code, f.Error.Message)
	default:
		return fmt.Sprintf("? %s", f.Type)
	}
}

func report(body []byte, err error) {
	if err != nil {
		fmt.Println("❌", err)
		return
	}
	if len(body) > 0 && !bytes.Contains(body, []byte(`"turn"`)) {
		fmt.Println(string(body))
	}
}

func (c *client) wsURL() string {
	u, _ := url.Parse(c.baseURL)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {c.token}}.Encode()
	return u.String()
}

func (c *client) openSession(apiKey string) (*sessionResponse, error) {
	payload, _ := json.Marshal(map[string]string{"api_key": apiKey})
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &resp, nil
}

func (c *client) uploadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/session/image", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, http.StatusOK)
}

func (c *client) post(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, http.StatusOK)
}

func (c *client) do(req *http.Request, want int) ([]byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
