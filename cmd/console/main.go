package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
)

// ConsoleConfig holds console settings
type ConsoleConfig struct {
	APIBaseURL string
	UserID     string
	Timeout    time.Duration
	Stream     bool
}

func parseFlags(args []string) (*ConsoleConfig, error) {
	cfg := &ConsoleConfig{}
	fs := pflag.NewFlagSet("console", pflag.ContinueOnError)
	fs.StringVar(&cfg.APIBaseURL, "api-url", envOr("QUEST_API_URL", "http://localhost:8080"), "Quest engine API base URL")
	fs.StringVarP(&cfg.UserID, "user", "u", envOr("QUEST_USER", "console"), "User id to play as")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "Per-request timeout")
	fs.BoolVar(&cfg.Stream, "stream", false, "Listen for background worker events")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, fmt.Errorf("--user must not be empty")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("--timeout must be positive")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	api := newAPIClient(&http.Client{Timeout: cfg.Timeout}, cfg.APIBaseURL, cfg.UserID)

	ctx, cancel := withTimeout(5 * time.Second)
	healthy := api.healthy(ctx)
	cancel()
	if !healthy {
		fmt.Fprintf(os.Stderr, "Error: API server at %s is not healthy\n", cfg.APIBaseURL)
		fmt.Fprintln(os.Stderr, "Start it with: go run ./cmd/api")
		os.Exit(1)
	}

	p := tea.NewProgram(
		NewConsoleUI(cfg, api),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	streamCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()
	if cfg.Stream {
		go func() {
			err := api.listenStream(streamCtx, func(event, data string) {
				p.Send(streamMsg{event: event, data: data})
			})
			if err != nil {
				p.Send(streamMsg{event: "request.failed", data: fmt.Sprintf(`{"error":%q}`, err.Error())})
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running console: %v\n", err)
		os.Exit(1)
	}
}
