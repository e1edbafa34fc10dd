package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/satriahrh/landuse-agentic/app"
	"github.com/satriahrh/landuse-agentic/config"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainImpl() error {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	svc, err := app.NewChatService(ctx, cfg)
	if err != nil {
		return err
	}
	session, err := svc.Open(ctx, "")
	if err != nil {
		return err
	}

	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	c := newConsole(svc, session, rl.Stdout())
	c.greet()
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		if quit := c.handle(ctx, strings.TrimSpace(line)); quit {
			break
		}
	}
	return nil
}
