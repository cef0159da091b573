package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/rosy-tax/reviewer/internal/activity"
	"github.com/rosy-tax/reviewer/internal/api"
	"github.com/rosy-tax/reviewer/internal/config"
	"github.com/rosy-tax/reviewer/internal/extraction"
	"github.com/rosy-tax/reviewer/internal/logger"
	"github.com/rosy-tax/reviewer/internal/metrics"
	"github.com/rosy-tax/reviewer/internal/review"
	"github.com/rosy-tax/reviewer/internal/session"
	"github.com/rosy-tax/reviewer/internal/storage"
	"github.com/rosy-tax/reviewer/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	configPath := os.Getenv("REVIEWER_CONFIG")
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(filepath.Dir(exePath), "reviewer.yaml")
	}

	// Load YAML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		Pretty:     cfg.Logging.Pretty,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.Advanced.EnableMetrics {
		metrics.Init()
	}

	// Initialize storage for finalized PDFs
	fileStore, err := storage.NewLocalStore(cfg.Storage.DownloadsDirectory)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Extraction server client
	client := extraction.NewClient(cfg.Extraction.BaseURL, extraction.WithTimeout(cfg.ExtractionTimeout()))

	sessionOpts := []session.Option{
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
		session.WithUploadPolicy(review.UploadPolicy{
			MaxFileSize:       cfg.MaxFileSize(),
			AllowedExtensions: cfg.Extraction.AllowedExtensions,
		}),
	}

	// Optional activity journal
	deps := &api.Dependencies{
		Store:         fileStore,
		Version:       Version,
		ExtractionURL: client.BaseURL(),
	}
	if cfg.Advanced.EnableActivityLog {
		journal, err := activity.Open(cfg.Storage.ActivityDB)
		if err != nil {
			log.Warn().Err(err).Msg("activity journal disabled")
		} else {
			defer journal.Close()
			sessionOpts = append(sessionOpts, session.WithRecorder(journal))
			deps.Activity = journal
		}
	}

	// Initialize session manager
	sessionMgr := session.NewManager(client, fileStore, sessionOpts...)
	deps.Sessions = sessionMgr

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background session and download cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions := sessionMgr.CleanupOldSessions(cfg.SessionTimeout())
				downloads := 0
				if cfg.DownloadRetention() > 0 {
					downloads = fileStore.DeleteOlderThan(cfg.DownloadRetention())
				}
				if sessions > 0 || downloads > 0 {
					log.Info().Int("sessions", sessions).Int("downloads", downloads).Msg("cleanup finished")
				}
			}
		}
	}()

	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load page templates")
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/static/") ||
				strings.HasSuffix(path, "/status/ws") ||
				path == "/api/health" ||
				path == "/metrics"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	// Compression middleware
	if cfg.Advanced.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Advanced.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Request().URL.Path, "/status/ws")
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	// API routes
	api.RegisterRoutes(e, api.NewHandlers(deps))
	if cfg.Advanced.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	// Review page and assets
	if err := web.RegisterStaticRoutes(e); err != nil {
		log.Warn().Err(err).Msg("failed to register static routes")
	}
	web.NewHandler(sessionMgr).Register(e)

	// Configure server with settings from YAML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Print startup banner
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Tax Document Review Portal                      ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:     %-45s║\n", configPath)
	fmt.Printf("║  Listen:     http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Extraction: %-45s║\n", client.BaseURL())
	fmt.Printf("║  Data Dir:   %-45s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
