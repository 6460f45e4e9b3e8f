package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	jsonlbuffer "github.com/arenaverse/arenactl/internal/adapters/buffer/jsonl"
	credfile "github.com/arenaverse/arenactl/internal/adapters/credentials/file"
	"github.com/arenaverse/arenactl/internal/adapters/proc"
	"github.com/arenaverse/arenactl/internal/adapters/remote"
	statusadapter "github.com/arenaverse/arenactl/internal/adapters/render/status"
	tomlrepo "github.com/arenaverse/arenactl/internal/adapters/repo/toml"
	"github.com/arenaverse/arenactl/internal/application"
	"github.com/arenaverse/arenactl/internal/observer"
	"github.com/arenaverse/arenactl/internal/ports"
	"github.com/spf13/viper"
)

const (
	defaultBaseURL     = "https://api.arenaverse.dev"
	defaultJoinTimeout = 2 * time.Minute
)

type app struct {
	service        *application.Service
	repo           *tomlrepo.Repository
	buffer         *jsonlbuffer.Buffer
	client         *remote.Client
	workers        *proc.Controller
	credentials    *credfile.Source
	statusRenderer func([]application.SessionStatus, statusadapter.RenderOptions) string
	observerCfg    observer.Config
	joinTimeout    time.Duration
	now            func() time.Time
}

func wireApp() (*app, error) {
	cfg := viper.New()
	cfg.SetDefault("remote.base_url", defaultBaseURL)
	cfg.SetDefault("join.timeout", defaultJoinTimeout)

	repo, err := tomlrepo.NewRepository(cfg, ports.SystemClock{})
	if err != nil {
		return nil, fmt.Errorf("wire session repository: %w", err)
	}

	buffer := jsonlbuffer.NewBuffer(repo.SessionsDir(), ports.SystemClock{})
	workers := proc.NewController(repo.SessionsDir())
	// Normally the observer is a re-exec of this binary; the override exists
	// for tests and debugging.
	workers.Executable = os.Getenv("ARENA_OBSERVER_BIN")
	credentials := credfile.NewSource(repo.DataDir())

	client := &remote.Client{
		BaseURL:        envOrDefault("ARENA_BASE_URL", cfg.GetString("remote.base_url")),
		RequestTimeout: cfg.GetDuration("remote.request_timeout"),
	}
	// The observer and act paths reuse the stored identity; a missing one
	// surfaces on join, before any session exists.
	if creds, err := credentials.Load(context.Background()); err == nil {
		client.Credentials = creds
	}

	return &app{
		service:        application.NewService(repo, buffer, client, workers, credentials, ports.SystemClock{}),
		repo:           repo,
		buffer:         buffer,
		client:         client,
		workers:        workers,
		credentials:    credentials,
		statusRenderer: statusadapter.Render,
		observerCfg: observer.Config{
			PollInterval:      cfg.GetDuration("observer.poll_interval"),
			MaxPollFailures:   cfg.GetInt("observer.max_poll_failures"),
			InactivityTimeout: cfg.GetDuration("observer.inactivity_timeout"),
		},
		joinTimeout: cfg.GetDuration("join.timeout"),
		now:         time.Now,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
