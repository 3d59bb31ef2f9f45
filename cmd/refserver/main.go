// Command refserver runs the reference replication and realtime server
// (internal/refserver), a generic stand-in for "the server's
// authoritative storage engine" (spec §1 Out of scope) used to give the
// sync agent something real to dial against in tests and local
// development.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nimbuscorp/syncengine/internal/authctx"
	"github.com/nimbuscorp/syncengine/internal/realtime"
	"github.com/nimbuscorp/syncengine/internal/refserver"
)

type refserverConfig struct {
	httpAddr      string
	databaseURL   string
	jwtSecret     string
	jwtIssuer     string
	jwtAudience   string
	queueDir      string
	queueLimit    int
	mutationTTL   time.Duration
	rateLimitN    int
	rateWindowMs  int64
	env           string
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "syncengine-refserver").Logger()

	cfg := refserverConfig{
		httpAddr:     env("REFSERVER_HTTP_ADDR", ":8080"),
		databaseURL:  env("REFSERVER_DATABASE_URL", ""),
		jwtSecret:    env("REFSERVER_JWT_SECRET", "dev-secret-change-in-production"),
		jwtIssuer:    env("REFSERVER_JWT_ISSUER", "syncengine-refserver"),
		jwtAudience:  env("REFSERVER_JWT_AUDIENCE", "syncengine-agent"),
		queueDir:     env("REFSERVER_QUEUE_DIR", "./refserver-data/queue"),
		queueLimit:   1000,
		mutationTTL:  24 * time.Hour,
		rateLimitN:   50,
		rateWindowMs: 10_000,
		env:          env("ENV", ""),
	}

	root := &cobra.Command{
		Use:   "refserver",
		Short: "reference replication and realtime server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&cfg.httpAddr, "http-addr", cfg.httpAddr, "listen address")
	f.StringVar(&cfg.databaseURL, "database-url", cfg.databaseURL, "postgres connection string")
	f.StringVar(&cfg.jwtSecret, "jwt-secret", cfg.jwtSecret, "HS256 shared secret")
	f.StringVar(&cfg.jwtIssuer, "jwt-issuer", cfg.jwtIssuer, "expected token issuer")
	f.StringVar(&cfg.jwtAudience, "jwt-audience", cfg.jwtAudience, "expected token audience")
	f.StringVar(&cfg.queueDir, "queue-dir", cfg.queueDir, "badger directory for the offline message queue")
	f.IntVar(&cfg.queueLimit, "queue-limit", cfg.queueLimit, "per-recipient offline queue capacity")
	f.IntVar(&cfg.rateLimitN, "rate-limit", cfg.rateLimitN, "realtime messages allowed per sliding window")
	f.Int64Var(&cfg.rateWindowMs, "rate-window-ms", cfg.rateWindowMs, "realtime sliding window width")

	if cfg.env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("refserver exited with error")
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(cfg refserverConfig) error {
	if cfg.databaseURL == "" {
		log.Fatal().Msg("REFSERVER_DATABASE_URL is required")
	}

	ctx := context.Background()
	db, err := refserver.OpenDB(ctx, cfg.databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer db.Close()

	queue, err := realtime.OpenOfflineQueue(cfg.queueDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open offline queue")
	}
	defer queue.Close()

	limiter := realtime.NewSlidingWindowLimiter(cfg.rateLimitN, time.Duration(cfg.rateWindowMs)*time.Millisecond)
	hub := realtime.NewHub(queue, limiter, cfg.mutationTTL, cfg.queueLimit)
	go logHubEvents(hub)

	jwtCfg := authctx.JWTCfg{Secret: cfg.jwtSecret, Issuer: cfg.jwtIssuer, Audience: cfg.jwtAudience}
	srv := refserver.NewServer(db, hub, jwtCfg)

	httpServer := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.httpAddr).Msg("starting refserver")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	log.Info().Msg("refserver stopped")
	return nil
}

func logHubEvents(hub *realtime.Hub) {
	for ev := range hub.Events() {
		log.Warn().Str("tenantId", ev.TenantID).Str("kind", string(ev.Kind)).Err(ev.Err).Msg("realtime hub event")
	}
}
