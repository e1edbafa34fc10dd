package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mvdan/xurls"

	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/usecase"
)

const (
	defaultExportPath = "bellevue_land_use_analysis.txt"
	maxDownloadBytes  = 20 << 20
	historyWidth      = 80
)

const help = `Ask anything about Bellevue land use, or:
  :image <path|url>   upload a site plan
  :analyze            analyze the uploaded site plan
  :clear              start a new conversation
  :export [file]      save the transcript (default ` + defaultExportPath + `)
  :history            show the turns the model holds
  :quit               exit`

type console struct {
	svc     *usecase.ChatService
	session *domain.Session
	out     io.Writer
	fetch   func(ctx context.Context, url string) ([]byte, error)
}

func newConsole(svc *usecase.ChatService, session *domain.Session, out io.Writer) *console {
	return &console{svc: svc, session: session, out: out, fetch: download}
}

func (c *console) greet() {
	fmt.Fprintln(c.out, "Bellevue Land Use Assistant")
	if c.session.State() == domain.StateDegraded {
		fmt.Fprintf(c.out, "warning: chat unavailable: %v\n", c.session.ChatErr)
	}
	fmt.Fprintln(c.out, help)
}

// handle runs one input line and reports whether the console should exit.
func (c *console) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ":") {
		turn, _ := c.svc.Ask(ctx, c.session, line)
		c.printTurn(turn)
		return false
	}

	command, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "quit", "q", "exit":
		return true
	case "help", "h":
		fmt.Fprintln(c.out, help)
	case "image":
		c.upload(ctx, arg)
	case "analyze":
		fmt.Fprintln(c.out, "Analyzing site plan...")
		turn, err := c.svc.Analyze(ctx, c.session)
		if err != nil && domain.KindOf(err) == "" {
			c.printError(err)
			return false
		}
		c.printTurn(turn)
	case "clear":
		state := c.svc.Clear(ctx, c.session)
		fmt.Fprintf(c.out, "Conversation cleared (%s)\n", state)
	case "export":
		c.export(arg)
	case "history":
		c.history()
	default:
		fmt.Fprintf(c.out, "unknown command :%s (try :help)\n", command)
	}
	return false
}

func (c *console) upload(ctx context.Context, arg string) {
	if arg == "" {
		fmt.Fprintln(c.out, "usage: :image <path|url>")
		return
	}

	var (
		data []byte
		name string
		err  error
	)
	if url := xurls.Strict.FindString(arg); url != "" {
		name = filepath.Base(url)
		data, err = c.fetch(ctx, url)
	} else {
		name = filepath.Base(arg)
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		c.printError(err)
		return
	}

	upload, err := c.svc.Upload(ctx, c.session, name, data)
	if err != nil {
		c.printError(err)
		return
	}
	bounds := upload.Pixels.Bounds()
	fmt.Fprintf(c.out, "Uploaded %s (%s, %dx%d). Run :analyze to analyze it.\n",
		upload.Name, upload.Format, bounds.Dx(), bounds.Dy())
}

func (c *console) export(path string) {
	if path == "" {
		path = defaultExportPath
	}
	text := c.svc.Export(c.session)
	if text == "" {
		fmt.Fprintln(c.out, "Nothing to export yet")
		return
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "Transcript saved to %s\n", path)
}

func (c *console) history() {
	turns, err := c.svc.ProviderHistory(c.session)
	if err != nil {
		c.printError(err)
		return
	}
	for i, turn := range turns {
		content := abbreviate(strings.ReplaceAll(turn.Content, "\n", " "), historyWidth)
		fmt.Fprintf(c.out, "%3d %-9s %s\n", i, turn.Role, content)
	}
}

// abbreviate shortens text to at most width runes, ending in "...".
func abbreviate(text string, width int) string {
	if utf8.RuneCountInString(text) <= width {
		return text
	}
	runes := []rune(text)
	return string(runes[:width-3]) + "..."
}

func (c *console) printTurn(turn domain.ChatMessage) {
	fmt.Fprintf(c.out, "%s: %s\n", strings.ToUpper(string(turn.Role)), turn.Content)
}

func (c *console) printError(err error) {
	fmt.Fprintf(c.out, "error: %v\n", err)
}

func download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: %s", url, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDownloadBytes {
		return nil, errors.New("downloaded image is too large")
	}
	return data, nil
}
