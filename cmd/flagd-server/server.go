package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flagd/pkg/flagd/api"
	"github.com/mikepea/flagd/pkg/flagd/auth"
	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/eligibility"
	"github.com/mikepea/flagd/pkg/flagd/engine"
	"github.com/mikepea/flagd/pkg/flagd/escalation"
	"github.com/mikepea/flagd/pkg/flagd/events"
	"github.com/mikepea/flagd/pkg/flagd/ledger"
	"github.com/mikepea/flagd/pkg/flagd/notify"
	"github.com/mikepea/flagd/pkg/flagd/settings"
	"github.com/mikepea/flagd/pkg/flagd/store"
	"github.com/mikepea/flagd/pkg/flagd/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Config struct {
	Settings     *settings.Settings
	Registry     *content.Registry
	Locker       store.Locker
	Notifier     notify.Notifier
	Composer     *escalation.Composer
	JWTSecret    string
	UserCache    int
	UserCacheTTL time.Duration
	MaxInFlight  int64
	SendTimeout  time.Duration
	Logger       *slog.Logger
}

type Server struct {
	router     *gin.Engine
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

func NewServer(db *gorm.DB, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("a JWT secret is required")
	}

	bus := events.NewBus(logger)
	bus.Subscribe(events.LogSink{Logger: logger.With("system", "audit")})

	st := store.New(db, cfg.Locker)
	users := auth.NewProvider(db, cfg.UserCache, cfg.UserCacheTTL)
	dispatcher := notify.NewDispatcher(cfg.Notifier, cfg.MaxInFlight, cfg.SendTimeout, logger)
	wf := workflow.New(cfg.Settings, st, bus, logger)

	l, err := ledger.New(ledger.Config{
		Settings:      cfg.Settings,
		Store:         st,
		Workflow:      wf,
		Composer:      cfg.Composer,
		Notifications: dispatcher,
		Bus:           bus,
		Names:         users,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	e, err := engine.New(engine.Config{
		Settings: cfg.Settings,
		Registry: cfg.Registry,
		Resolver: content.NewGormResolver(db, cfg.Registry),
		Store:    st,
		Checker:  eligibility.NewChecker(cfg.Settings, st),
		Workflow: wf,
		Ledger:   l,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "flagd",
		})
	})

	tokens := auth.NewTokens(cfg.JWTSecret, 0)
	handler := api.NewHandler(e, logger)
	apiGroup := r.Group("/api", auth.Middleware(tokens, users))
	handler.RegisterRoutes(apiGroup)
	handler.RegisterAdminRoutes(apiGroup.Group("/admin", auth.RequireStaff()))

	return &Server{router: r, dispatcher: dispatcher, logger: logger}, nil
}

// Run serves HTTP until ctx is done, then drains requests and pending
// notifications.
func (s *Server) Run(ctx context.Context, bind string) error {
	srv := &http.Server{
		Addr:              bind,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "bind", bind)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shut down HTTP server cleanly", "err", err)
		}
	}

	s.dispatcher.Wait()
	return nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}
