// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourlook/safeline/internal/alerts"
	"github.com/yourlook/safeline/internal/alerts/email"
	alertspostgres "github.com/yourlook/safeline/internal/alerts/postgres"
	"github.com/yourlook/safeline/internal/alerts/telegram"
	"github.com/yourlook/safeline/internal/alerts/webhook"
	"github.com/yourlook/safeline/internal/config"
	"github.com/yourlook/safeline/internal/domain"
	"github.com/yourlook/safeline/internal/identity"
	"github.com/yourlook/safeline/internal/identity/jwt"
	identitypostgres "github.com/yourlook/safeline/internal/identity/postgres"
	"github.com/yourlook/safeline/internal/incidents"
	incidentspostgres "github.com/yourlook/safeline/internal/incidents/postgres"
	"github.com/yourlook/safeline/internal/pkg/ctxlog"
	"github.com/yourlook/safeline/internal/pkg/httputil"
	"github.com/yourlook/safeline/internal/pkg/metrics"
	"github.com/yourlook/safeline/internal/pkg/postgres"
	"github.com/yourlook/safeline/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	alertWorker   *alerts.Worker
	incidentHub   *incidents.Hub
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.DSN,
		MaxOpenConns:    int(cfg.Database.MaxConns),
		ConnectAttempts: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.MigrationsPath != "" {
		if err := runMigrations(cfg.Database.MigrationsPath, cfg.Database.DSN); err != nil {
			db.Close()
			return nil, err
		}
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: bgCancel,
	}

	go app.collectDBMetrics(bgCtx)

	router, err := app.setupRouter(bgCtx)
	if err != nil {
		db.Close()
		bgCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server", "addr", a.config.Server.MetricsAddr)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server", "addr", a.config.Server.Addr)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop the alert worker first so in-flight deliveries finish
	if a.alertWorker != nil {
		a.alertWorker.Stop()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if a.incidentHub != nil {
		a.incidentHub.Close()
	}
	a.db.Close()

	return errors.Join(errs...)
}

func runMigrations(path, dsn string) error {
	migrator, err := migrate.New("file://"+path, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo alerts.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.GetQueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			alerts.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// AlertWorker returns the alert worker instance. Used in tests to access
// worker state.
func (a *App) AlertWorker() *alerts.Worker {
	return a.alertWorker
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>SafeLine API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	// Alert delivery pipeline
	alertsRepo := alertspostgres.NewRepository(a.db)

	slog.Info("alert senders configured",
		"email_enabled", a.config.Alerts.Email.Enabled,
		"telegram_enabled", a.config.Alerts.Telegram.Enabled,
		"webhook_enabled", a.config.Alerts.Webhook.Enabled,
	)

	emailSender, err := email.NewSender(email.Config{
		Enabled:      a.config.Alerts.Email.Enabled,
		SMTPHost:     a.config.Alerts.Email.SMTPHost,
		SMTPPort:     a.config.Alerts.Email.SMTPPort,
		SMTPUser:     a.config.Alerts.Email.SMTPUser,
		SMTPPassword: a.config.Alerts.Email.SMTPPassword,
		FromAddress:  a.config.Alerts.Email.FromAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	telegramSender, err := telegram.NewSender(telegram.Config{
		Enabled:    a.config.Alerts.Telegram.Enabled,
		BotToken:   a.config.Alerts.Telegram.BotToken,
		RateLimit:  a.config.Alerts.Telegram.RateLimit,
		APIBaseURL: a.config.Alerts.Telegram.APIBaseURL,
		Timeout:    a.config.Alerts.Telegram.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram sender: %w", err)
	}

	// Webhook target URL is set per-channel by the responder
	webhookSender := webhook.NewSender(webhook.Config{
		Timeout: a.config.Alerts.Webhook.Timeout,
	})

	dispatcher := alerts.NewDispatcher(emailSender, telegramSender, webhookSender)

	renderer, err := alerts.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create alert renderer: %w", err)
	}

	notifier := alerts.NewNotifier(alerts.NotifierConfig{
		MaxAttempts: a.config.Alerts.MaxAttempts,
		BaseURL:     a.config.Emergency.BaseURL,
	}, alertsRepo)

	a.alertWorker = alerts.NewWorker(alerts.WorkerConfig{
		BatchSize:         a.config.Alerts.Worker.BatchSize,
		PollInterval:      a.config.Alerts.Worker.PollInterval,
		InitialBackoff:    a.config.Alerts.Worker.InitialBackoff,
		MaxBackoff:        a.config.Alerts.Worker.MaxBackoff,
		BackoffMultiplier: a.config.Alerts.Worker.BackoffMultiplier,
		NumWorkers:        a.config.Alerts.Worker.NumWorkers,
	}, alertsRepo, dispatcher, renderer)
	a.alertWorker.Start(ctx)

	go a.collectQueueMetrics(ctx, alertsRepo)

	alertsService := alerts.NewService(alertsRepo)
	alertsHandler := alerts.NewHandler(alertsService)

	// Incident lifecycle
	a.incidentHub = incidents.NewHub()
	incidentsRepo := incidentspostgres.NewRepository(a.db)
	incidentsService := incidents.NewService(incidents.DefaultServiceConfig(), incidentsRepo, a.incidentHub, notifier)
	incidentsHandler := incidents.NewHandler(incidentsService)

	// Identity
	identityRepo := identitypostgres.NewRepository(a.db)
	jwtAuth, err := jwt.NewAuthenticator(jwt.Config{
		Secret:               a.config.JWT.Secret,
		AccessTokenDuration:  a.config.JWT.AccessTokenDuration,
		RefreshTokenDuration: a.config.JWT.RefreshTokenDuration,
	}, identityRepo)
	if err != nil {
		return nil, fmt.Errorf("create jwt authenticator: %w", err)
	}
	identityService := identity.NewService(identityRepo, jwtAuth, nil)
	identityHandler := identity.NewHandler(identityService, identity.CookieSettings{
		Secure:               a.config.Cookie.Secure,
		Domain:               a.config.Cookie.Domain,
		AccessTokenDuration:  a.config.JWT.AccessTokenDuration,
		RefreshTokenDuration: a.config.JWT.RefreshTokenDuration,
	})

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterRoutes(r)

		// Client bootstrap for the emergency gesture overlay. Public so the
		// app can configure the detector before login completes.
		r.Get("/emergency/config", a.emergencyConfigHandler)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))

			identityHandler.RegisterProtectedRoutes(r)
			incidentsHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleResponder))
				incidentsHandler.RegisterResponderRoutes(r)
				alertsHandler.RegisterRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func (a *App) emergencyConfigHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, map[string]interface{}{
		"gesture_hold_ms": a.config.Emergency.GestureHoldDuration.Milliseconds(),
		"fallback_dial":   a.config.Emergency.FallbackDial,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
