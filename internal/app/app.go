package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/nvoronov/link-manager/internal/analytics"
	"github.com/nvoronov/link-manager/internal/auth"
	"github.com/nvoronov/link-manager/internal/config"
	"github.com/nvoronov/link-manager/internal/database/postgres"
	"github.com/nvoronov/link-manager/internal/models"
	"github.com/nvoronov/link-manager/internal/permission"
	"github.com/nvoronov/link-manager/internal/ratelimit"
	"github.com/nvoronov/link-manager/internal/service"
	"github.com/nvoronov/link-manager/internal/slug"
	"golang.org/x/sync/errgroup"

	api "github.com/nvoronov/link-manager/internal/api/http/v1"
)

// clickStore joins the per-table repositories into the single sink the
// analytics recorder writes through.
type clickStore struct {
	links  *postgres.LinkRepository
	temps  *postgres.TempLinkRepository
	events *postgres.EventRepository
}

func (s *clickStore) IncrementLinkClicks(ctx context.Context, id int64) error {
	return s.links.IncrementClicks(ctx, id)
}

func (s *clickStore) IncrementTempLinkClicks(ctx context.Context, id int64) error {
	return s.temps.IncrementClicks(ctx, id)
}

func (s *clickStore) InsertEvent(ctx context.Context, ev *models.AnalyticsEvent) error {
	return s.events.Insert(ctx, ev)
}

// Run wires the application together and blocks until ctx is cancelled or a
// component fails.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := httplog.NewLogger("link-manager", httplog.Options{
		JSON:     cfg.Env == config.EnvProd,
		LogLevel: logLevel(cfg.Env),
		Concise:  cfg.Env != config.EnvProd,
	})

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	linkRepo := postgres.NewLinkRepository(db)
	tempRepo := postgres.NewTempLinkRepository(db)
	shareRepo := postgres.NewShareRepository(db)
	domainRepo := postgres.NewDomainRepository(db)
	eventRepo := postgres.NewEventRepository(db)

	recorder := analytics.NewRecorder(&clickStore{
		links:  linkRepo,
		temps:  tempRepo,
		events: eventRepo,
	}, logger.Logger, analytics.Config{
		Workers:         cfg.Analytics.Workers,
		BufferSize:      cfg.Analytics.BufferSize,
		RetryAttempts:   cfg.Analytics.RetryAttempts,
		RetryDelay:      cfg.Analytics.RetryDelay,
		ShutdownTimeout: cfg.Analytics.ShutdownTimeout,
	})
	if err := recorder.Start(); err != nil {
		return fmt.Errorf("%s: failed to start analytics recorder: %w", op, err)
	}

	perms := permission.New(shareRepo)
	generator := slug.NewGenerator(cfg.SlugLength, linkRepo.SlugExists)
	limiter := ratelimit.New()
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TokenTTL, cfg.JWT.Issuer)

	resolver := service.NewResolver(linkRepo, tempRepo, domainRepo, recorder, logger.Logger, cfg.Resolver.LookupTimeout)
	linkSvc := service.NewLinkService(linkRepo, shareRepo, perms, generator)
	shareSvc := service.NewShareService(linkRepo, shareRepo, perms)
	tempSvc := service.NewTempLinkService(tempRepo, generator, limiter, service.TempLinkConfig{
		CreateLimit:  cfg.TempLinks.CreateLimit,
		CreateWindow: cfg.TempLinks.CreateWindow,
		DefaultTTL:   cfg.TempLinks.DefaultTTL,
		MaxTTL:       cfg.TempLinks.MaxTTL,
	})

	router := api.NewRouter(logger, resolver, linkSvc, shareSvc, tempSvc, tokens, limiter, api.RouterConfig{
		MutationLimit:  cfg.RateLimit.MutationLimit,
		MutationWindow: cfg.RateLimit.MutationWindow,
	})

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	// Expired temp links and stale rate-limit windows are reclaimed in the
	// background; neither sweep failing is fatal.
	g.Go(func() error {
		sweepTempLinks(ctx, logger, tempRepo, cfg.TempLinks.SweepInterval)
		return nil
	})

	g.Go(func() error {
		sweepRateLimiter(ctx, limiter, cfg.RateLimit.SweepInterval)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := recorder.Stop(); err != nil {
			return fmt.Errorf("%s: failed to stop analytics recorder: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

func logLevel(env string) slog.Level {
	if env == config.EnvProd {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func sweepTempLinks(ctx context.Context, logger *httplog.Logger, repo *postgres.TempLinkRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				logger.Error("failed to sweep expired temp links", "err", err)
				continue
			}
			if n > 0 {
				logger.Debug("swept expired temp links", "count", n)
			}
		}
	}
}

func sweepRateLimiter(ctx context.Context, limiter *ratelimit.Limiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
