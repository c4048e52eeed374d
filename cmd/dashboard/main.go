package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danudenny/geoapi-saas/internal/analysis"
	"github.com/danudenny/geoapi-saas/internal/cache"
	"github.com/danudenny/geoapi-saas/internal/cache/memstore"
	"github.com/danudenny/geoapi-saas/internal/cache/redisstore"
	"github.com/danudenny/geoapi-saas/internal/core/config"
	"github.com/danudenny/geoapi-saas/internal/core/httpclient"
	"github.com/danudenny/geoapi-saas/internal/core/observability"
	"github.com/danudenny/geoapi-saas/internal/core/server"
	"github.com/danudenny/geoapi-saas/internal/dashboard"
	"github.com/danudenny/geoapi-saas/internal/events"
	"github.com/danudenny/geoapi-saas/internal/logger"
	"github.com/danudenny/geoapi-saas/internal/metrics"
	"github.com/danudenny/geoapi-saas/internal/session"
	"github.com/danudenny/geoapi-saas/internal/templates"
)

var Version = "dev"

const eventQueueSize = 1024

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var addr, store string
	root := &cobra.Command{
		Use:          "dashboard",
		Short:        "GeoJSON overlap analysis dashboard",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			if addr != "" {
				cfg.Addr = addr
			}
			if store != "" {
				cfg.SessionStore = store
			}
			return serve(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	root.Flags().StringVar(&store, "store", "", "session store, memory or redis (overrides SESSION_STORE)")
	root.AddCommand(newOpenAPICmd(), newEventsCmd())
	return root
}

// newOpenAPICmd prints the JSON API description without starting anything.
func newOpenAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api := server.NewAPI(chi.NewRouter(), Version)
			dashboard.NewAPIHandler(nil).RegisterRoutes(api)
			spec := api.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			var out []byte
			var err error
			if useYAML {
				out, err = yaml.Marshal(spec)
			} else {
				out, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				return fmt.Errorf("marshal spec: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// newEventsCmd tails analysis.completed events as JSON lines.
func newEventsCmd() *cobra.Command {
	var group string
	var fromStart bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print analysis events from Kafka as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			if group != "" {
				cfg.Events.GroupID = group
			}
			zl := logger.Build(logger.Config{
				Level:     cfg.LogLevel,
				Console:   cfg.LogConsole,
				Component: "events",
				Version:   Version,
			}, os.Stderr)
			log := logger.NewSlog(&zl)

			ccfg := events.DefaultConsumerConfig(cfg.Events.BrokerList(), cfg.Events.Topic, cfg.Events.GroupID)
			ccfg.InitialOffsetOldest = fromStart

			enc := json.NewEncoder(cmd.OutOrStdout())
			c := events.NewConsumer(ccfg, log, func(_ context.Context, ev events.Event) error {
				return enc.Encode(ev)
			})
			return c.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "consumer group (overrides KAFKA_GROUP_ID)")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "read the topic from the oldest offset")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "dashboard",
		Version:   Version,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting dashboard",
		"addr", cfg.Addr,
		"analysis_url", cfg.AnalysisURL,
		"store", cfg.SessionStore)

	store, err := newStore(ctx, cfg)
	if err != nil {
		appLog.Error("session store setup failed", "err", err)
		return err
	}
	defer store.Close()

	checker, err := analysis.NewClient(appLog, httpclient.NewOutbound(cfg.AnalysisTimeout), cfg.AnalysisURL)
	if err != nil {
		appLog.Error("failed to initialize analysis client", "err", err)
		return err
	}

	pub := newPublisher(cfg, appLog)
	defer pub.Close()

	renderer, err := templates.New()
	if err != nil {
		appLog.Error("failed to parse templates", "err", err)
		return err
	}

	if cfg.Metrics.Enabled {
		p, err := metrics.Init(metrics.Config{
			Addr: cfg.Metrics.Addr,
			Path: cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		if err != nil {
			appLog.Error("metrics setup failed", "err", err)
			return err
		}
		go func() {
			if err := p.Serve(ctx, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	}

	sessions := session.NewManager(store, cfg.SessionTTL, cfg.StoreOpTimeout, appLog)
	svc := dashboard.NewService(sessions, checker, pub, appLog, dashboard.Options{HotspotRes: cfg.HotspotRes})

	// /metrics stays on the main router unless METRICS_ENABLED started the
	// dedicated listener above.
	h := server.NewRouter(cfg, appLog, Version, server.Deps{
		UI:           dashboard.NewHandler(svc, renderer, appLog, cfg.UploadMaxBytes),
		API:          dashboard.NewAPIHandler(svc),
		Ready:        sessions,
		ServeMetrics: !cfg.Metrics.Enabled,
	})
	return server.Run(ctx, cfg, appLog, h)
}

func newStore(ctx context.Context, cfg config.Config) (cache.Interface, error) {
	if cfg.SessionStore == "redis" {
		return redisstore.New(ctx, cfg.RedisAddr)
	}
	return memstore.New(cfg.SessionCapacity, cfg.SessionTTL), nil
}

// newPublisher falls back to a no-op publisher when Kafka is disabled or
// unreachable; events never block the dashboard.
func newPublisher(cfg config.Config, log *slog.Logger) events.Publisher {
	if !cfg.Events.Enabled {
		return events.Nop{}
	}
	prod, err := events.NewProducer(cfg.Events.BrokerList())
	if err != nil {
		log.Warn("kafka unavailable, analysis events disabled", "err", err)
		return events.Nop{}
	}
	return events.NewKafkaPublisher(prod, cfg.Events.Topic, eventQueueSize, log)
}
