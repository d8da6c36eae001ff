package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/groupchat/internal/config"
	"github.com/haasonsaas/groupchat/internal/gateway"
	"github.com/haasonsaas/groupchat/internal/metrics"
	"github.com/haasonsaas/groupchat/internal/reaper"
	"github.com/haasonsaas/groupchat/internal/session"
	"github.com/haasonsaas/groupchat/internal/telemetry"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load a team configuration and serve the observer websocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "team.yaml", "path to the team configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	logger := slog.Default()

	team, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading team config %s: %w", configPath, err)
	}
	logger.Info("team configuration loaded", "team", team.Name, "participants", len(team.Participants))

	client, err := newLLMClient(team.LLM)
	if err != nil {
		return fmt.Errorf("building llm client: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	tracer, shutdownTracer := telemetry.New(telemetry.Config{
		ServiceName: "groupchat",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	rt := &runtime{client: client, metrics: m, tracer: tracer, logger: logger}
	rt.setTeam(team)

	var store session.Store
	if team.Session.SQLiteDSN != "" {
		store, err = session.NewSQLStore(team.Session.SQLiteDSN)
		if err != nil {
			return fmt.Errorf("opening sqlite session store: %w", err)
		}
	} else {
		store = session.NewMemStore()
	}

	sessions := session.NewManager(store, m, logger)

	rp, err := reaper.New(reaper.Config{
		Schedule: team.Session.ReapCron,
		TTL:      team.Session.IdleTTLDuration(),
		StateDir: team.Session.StateDir,
	}, sessions, logger)
	if err != nil {
		return fmt.Errorf("building reaper: %w", err)
	}
	rp.Start()
	defer rp.Stop()

	var auth *gateway.JWTAuth
	if team.Gateway.JWT.Enabled {
		secretEnv := team.Gateway.JWT.SecretEnv
		if secretEnv == "" {
			secretEnv = "GROUPCHAT_JWT_SECRET"
		}
		auth = gateway.NewJWTAuth(os.Getenv(secretEnv), 24*time.Hour)
	}

	gw := gateway.New(team, sessions, rt.buildSession, auth, m, logger)

	addr := team.Gateway.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := config.NewWatcher(configPath, func(reloaded *config.Team) {
		if err := reloaded.Validate(); err != nil {
			logger.Error("reloaded config failed validation, keeping previous team", "error", err)
			return
		}
		rt.setTeam(reloaded)
	}, nil, logger)
	go func() {
		// The initial load inside Start re-reads configPath and passes it
		// through the same callback. If that load fails, Start returns and
		// the error is logged; failures of later reloads are logged by the
		// watcher itself and keep the previous team in effect.
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("config watcher stopped", "error", err)
		}
	}()

	return gw.ListenAndServe(ctx, addr)
}
