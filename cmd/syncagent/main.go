// Command syncagent runs the client-resident sync daemon: it opens the
// Local Store, drains the Mutation Log against the reference server's
// replication surface, watches connectivity, and maintains a Realtime
// Channel connection for interactive traffic, wiring components C1-C8
// together the way an embedding mobile/desktop shell would.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nimbuscorp/syncengine/internal/classifier"
	"github.com/nimbuscorp/syncengine/internal/config"
	"github.com/nimbuscorp/syncengine/internal/connectivity"
	"github.com/nimbuscorp/syncengine/internal/localstore"
	"github.com/nimbuscorp/syncengine/internal/mutationlog"
	"github.com/nimbuscorp/syncengine/internal/realtime"
	"github.com/nimbuscorp/syncengine/internal/resolver"
	"github.com/nimbuscorp/syncengine/internal/syncengine"
)

// collections is the fixed set of collections this agent replicates.
// An embedding application would derive this from its own data model;
// the daemon itself treats every collection identically.
var collections = []string{"tasks", "notes", "comments"}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "syncengine-agent").Logger()

	cfg := config.FromEnv()

	root := &cobra.Command{
		Use:   "syncagent",
		Short: "offline-first sync agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	config.BindFlags(root, &cfg)

	if os.Getenv("ENV") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("syncagent exited with error")
	}
}

func run(cfg config.Config) error {
	if cfg.TenantID == "" || cfg.ClientID == "" {
		log.Fatal().Msg("--tenant-id and --client-id (or SYNC_TENANT_ID/SYNC_CLIENT_ID) are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := localstore.Open(cfg.DataDir, cfg.TenantID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open local store")
	}
	defer store.Close()

	mlog := mutationlog.New(store, cfg.MaxRetries)

	transport := syncengine.NewHTTPTransport(cfg.ServerBaseURL, cfg.ClientID)

	deferred := resolver.NewDeferredRegistry()
	resolvers := resolver.NewRegistry(deferred)

	engine := syncengine.New(store, mlog, transport, resolvers, cfg, collections)
	go logEngineEvents(engine)

	prober := &connectivity.HTTPProber{PingURL: cfg.ServerBaseURL + "/ping"}
	monitor := connectivity.New(prober, nil, cfg.ProbeInterval(), 2*time.Second)
	monitor.Start(ctx)
	defer monitor.Stop()

	rtLimiter := realtime.NewSlidingWindowLimiter(cfg.RateLimitPerWindow, cfg.RateWindow())
	_ = rtLimiter // constructed but not consulted by this agent; neither the agent, the realtime client nor internal/refserver calls Allow on a limiter.

	rtClient := realtime.NewClient(realtimeURL(cfg.ServerBaseURL), cfg.ClientID, 30*time.Second)

	go connectivityLoop(ctx, monitor, engine, cfg)
	go realtimeLoop(ctx, rtClient)

	log.Info().Str("tenantId", cfg.TenantID).Str("clientId", cfg.ClientID).Msg("syncagent started")

	ticker := time.NewTicker(cfg.SyncInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("syncagent shutting down")
			_ = rtClient.Close()
			return nil
		case <-ticker.C:
			if monitor.Online() {
				engine.Trigger(ctx, cfg.TenantID)
			}
		}
	}
}

// connectivityLoop triggers an immediate sync pass whenever the
// Connectivity Monitor reports the device coming back online (spec §4.5
// "a sync pass is triggered ... on a connectivity transition to
// online"). Offline transitions are consumed and ignored; no traffic
// routing happens here.
func connectivityLoop(ctx context.Context, monitor *connectivity.Monitor, engine *syncengine.Engine, cfg config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-monitor.Events():
			if !ok {
				return
			}
			if ev.Online {
				engine.Trigger(ctx, cfg.TenantID)
			}
		}
	}
}

// realtimeLoop owns the Realtime Channel client's connect/reconnect
// cycle and heartbeat. Reconnection waits a fixed delay between
// attempts; it does not use the sync engine's exponential backoff.
func realtimeLoop(ctx context.Context, client *realtime.Client) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := client.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("realtime connect failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		log.Info().Msg("realtime channel connected")

		heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
		go client.Heartbeat(heartbeatCtx, func() {
			log.Warn().Msg("realtime heartbeat missed")
		})

		err := client.ReadLoop(ctx, func(env realtime.Envelope) {
			if !classifier.AllowsRealtimeTransport(env.InteractionClass) {
				log.Error().Str("messageId", env.MessageID).Msg("received class-D envelope on realtime channel, dropping")
				return
			}
			log.Debug().Str("type", string(env.Type)).Str("messageId", env.MessageID).Msg("realtime envelope received")
		})
		cancelHeartbeat()
		if err != nil {
			log.Warn().Err(err).Msg("realtime channel dropped, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func realtimeURL(baseURL string) string {
	u := baseURL
	switch {
	case len(u) >= 5 && u[:5] == "https":
		return "wss" + u[5:] + "/realtime"
	case len(u) >= 4 && u[:4] == "http":
		return "ws" + u[4:] + "/realtime"
	default:
		return u + "/realtime"
	}
}

func logEngineEvents(engine *syncengine.Engine) {
	for ev := range engine.Events() {
		if ev.Kind == "" {
			continue
		}
		logEvent := log.Warn()
		if !ev.Kind.Retryable() {
			logEvent = log.Error()
		}
		logEvent.Str("tenantId", ev.TenantID).Str("collection", ev.Collection).
			Str("recordId", ev.RecordID).Str("mutationId", ev.MutationID).
			Err(ev.Err).Msg("sync engine event")
	}
}
