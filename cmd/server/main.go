package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	identityhandler "visitid/internal/identity/handler"
	identitymetrics "visitid/internal/identity/metrics"
	"visitid/internal/identity/service"
	"visitid/internal/identity/session"
	"visitid/internal/identity/store"
	"visitid/internal/jwttoken"
	"visitid/internal/platform/config"
	"visitid/internal/platform/httpserver"
	"visitid/internal/platform/logger"
	"visitid/internal/platform/postgres"
	redisplatform "visitid/internal/platform/redis"
	"visitid/internal/ratelimit"
	"visitid/internal/transport/http/shared"
	"visitid/pkg/platform/audit"
	auditworker "visitid/pkg/platform/audit/worker"
)

// main wires dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var (
		identities store.Store
		txRunner   service.StoreTx
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		identities = store.NewPostgres(db)
		txRunner = newIdentityPostgresTx(db)
		log.Info("using postgres identity store")
	} else {
		identities = store.NewInMemory()
		log.Warn("no database configured, using in-memory identity store")
	}

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	var limiterStore ratelimit.Store
	if redisClient != nil {
		defer redisClient.Close()
		limiterStore = ratelimit.NewRedis(redisClient.Client)
		log.Info("using redis rate limiter")
	} else {
		limiterStore = ratelimit.NewInMemory()
	}

	g, ctx := errgroup.WithContext(ctx)

	var publisher audit.Publisher = audit.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer sink.Close()

		channel := audit.NewChannelPublisher(cfg.AuditBuffer)
		worker := auditworker.New(sink, channel.Inbox())
		g.Go(func() error {
			return worker.Run(ctx)
		})
		publisher = channel
		log.Info("audit events published to kafka", "topic", cfg.Kafka.Topic)
	}

	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(identitymetrics.New()),
		service.WithAuditPublisher(publisher),
	}
	if txRunner != nil {
		serviceOpts = append(serviceOpts, service.WithStoreTx(txRunner))
	}
	svc := service.New(identities, serviceOpts...)

	limiter := ratelimit.NewMiddleware(limiterStore, log,
		cfg.RateLimit.Limit, cfg.RateLimit.Window,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
	)

	handler := identityhandler.New(svc, log,
		identityhandler.WithAssertions(jwttoken.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)),
		identityhandler.WithRateLimit(limiter.PerIP),
		identityhandler.WithCookieOptions(session.CookieOptions{
			Path:   cfg.CookiePath,
			Secure: cfg.CookieSecure,
		}),
	)

	router := chi.NewRouter()
	handler.Register(router)
	router.Get("/healthz", healthHandler(redisClient))
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.Info("starting visitid server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func healthHandler(redisClient *redisplatform.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				status["status"] = "degraded"
				status["redis"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		shared.WriteJSON(w, code, status)
	}
}
