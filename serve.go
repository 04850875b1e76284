package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"bizdesk/api"
	"bizdesk/pipeline"
	"bizdesk/projector"
	"bizdesk/storage"
)

const shutdownTimeout = 10 * time.Second

var withProjector bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withProjector, "projector", false, "also project domain events into the activity feed")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	tmpl, err := pipeline.LoadTemplate(cfg.BoardTemplate)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	rc, err := openRedis(cfg.RedisConnectionString)
	if err != nil {
		return err
	}
	defer rc.Close()

	auth, closeAuth, err := newAuth()
	if err != nil {
		return err
	}
	defer closeAuth()

	publisher := api.NewEventPublisher(store, logger, api.PublisherOptions{
		Workers:          cfg.PublisherWorkers,
		Buffer:           cfg.PublisherBuffer,
		QueueConcurrency: cfg.QueueConcurrency,
		Timeout:          cfg.PublisherTimeout,
		Handoff:          cfg.PublisherHandoffTimeout,
	})
	defer publisher.Close()

	broker := api.NewBroker()
	notifier := api.NewRedisNotifier(rc, cfg.BoardChannel)
	go api.SubscribeUpdates(ctx, logger, rc, cfg.BoardChannel, broker)

	if withProjector {
		p := projector.New(store, notifier, logger, projectorOptions())
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.WithError(err).Error("projector stopped")
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderContentEncoding, "Idempotency-Key",
		},
	}))
	e.Use(api.GzipRequestMiddleware())
	e.Use(api.Observe(logger))

	api.Register(e, api.Deps{
		Store:     storage.NewCache(store, rc, cfg.CacheTTL),
		Auth:      auth,
		Deduper:   api.NewRedisDeduper(rc, cfg.DeduperTTL),
		Publisher: publisher,
		Notifier:  notifier,
		Broker:    broker,
		Template:  tmpl,
		Location:  loc,
		Logger:    logger,
		Debug:     cfg.Debug,
	})

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.ListenAddr())
		errc <- e.Start(cfg.ListenAddr())
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

// newAuth verifies RS256 tokens against the Auth0 JWKS, or HS256 tokens
// signed with the shared secret in test mode.
func newAuth() (*api.Auth, func(), error) {
	if cfg.Auth0TestMode {
		logger.Warn("auth test mode: accepting HS256 tokens signed with TEST_JWT_SECRET")
		return api.NewAuth(nil, api.AuthOptions{
			Audience:   cfg.Auth0Audience,
			RolesClaim: cfg.RolesClaim,
			TestSecret: []byte(cfg.TestJWTSecret),
		}), func() {}, nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.WithError(err).Warn("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("jwks: %w", err)
	}
	auth := api.NewAuth(jwks, api.AuthOptions{
		Audience:   cfg.Auth0Audience,
		Issuer:     "https://" + cfg.Auth0Domain + "/",
		RolesClaim: cfg.RolesClaim,
		KeyTTL:     cfg.JWKSCacheTTL,
	})
	return auth, jwks.EndBackground, nil
}

func projectorOptions() projector.Options {
	return projector.Options{
		Batch:      cfg.ProjectorBatch,
		Poll:       cfg.ProjectorPoll,
		Visibility: cfg.ProjectorVisibility,
	}
}
