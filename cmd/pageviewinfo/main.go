package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pageviewinfo/internal/api"
	"pageviewinfo/pkg/cache"
	"pageviewinfo/pkg/config"
	"pageviewinfo/pkg/db"
	"pageviewinfo/pkg/logging"
	"pageviewinfo/pkg/pageview"
	"pageviewinfo/pkg/probe"
	"pageviewinfo/pkg/site"
	"pageviewinfo/pkg/tracker"
	"pageviewinfo/pkg/version"
)

const defaultConfigPath = "configs/pageviewinfo.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the YAML config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	envFile    = flag.String("env", ".env", "Optional dotenv file with secrets")
)

// newPageviewService builds the uncached service. Tests replace it.
var newPageviewService = func(ctx context.Context, opts pageview.Options) (pageview.Service, error) {
	return pageview.NewGAService(ctx, opts)
}

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := loadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

// loadEnv loads a dotenv file. A missing file is not an error; variables
// already set in the environment win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("pageviewinfo started", "version", version.Version)

	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()

	// Startup Probes
	results := probe.Run(ctx, startupProbes(appCfg, dbConn))
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	tr := tracker.New()
	svc, err := initService(ctx, appCfg, dbConn, tr)
	if err != nil {
		return err
	}

	pruneDone := make(chan struct{})
	go func() {
		defer close(pruneDone)
		pruneLoop(ctx, dbConn, appCfg.Cache.PruneInterval.Std())
	}()
	// Stop pruning before the database closes
	defer func() {
		cancel()
		<-pruneDone
	}()

	return runServer(ctx, appCfg, svc, tr)
}

func startupProbes(cfg *config.Config, dbConn *db.DB) []probe.Probe {
	probes := []probe.Probe{
		{
			Name:     "Analytics Profile",
			Check:    probe.NotEmpty("analytics.profile_id", cfg.Analytics.ProfileID),
			Critical: true,
		},
		{
			Name:     "Cache Database",
			Check:    probe.Ping(dbConn),
			Critical: true,
		},
		{
			Name:     "Tracking ID",
			Check:    probe.NotEmpty("analytics.tracking_id", cfg.Analytics.TrackingID),
			Critical: false, // Only the head snippet needs it
		},
	}
	if !cfg.Analytics.UseDefaultCredentials {
		probes = append(probes, probe.Probe{
			Name:     "Credentials File",
			Check:    probe.FileReadable(cfg.Analytics.CredentialsFile),
			Critical: true,
		})
	}
	return probes
}

func initService(ctx context.Context, cfg *config.Config, dbConn *db.DB, tr *tracker.Tracker) (pageview.Service, error) {
	logger := slog.With("component", "pageview")

	inner, err := newPageviewService(ctx, pageview.Options{
		CredentialsFile:       cfg.Analytics.CredentialsFile,
		UseDefaultCredentials: cfg.Analytics.UseDefaultCredentials,
		ProfileID:             cfg.Analytics.ProfileID,
		CustomMap:             cfg.Analytics.CustomMap,
		ReadCustomDimensions:  cfg.Analytics.ReadCustomDimensions,
		UserAgent:             cfg.Analytics.UserAgent + "/" + version.Version,
		FailureBackoff:        cfg.Analytics.FailureBackoff.Std(),
		MaxFailureBackoff:     cfg.Analytics.MaxFailureBackoff.Std(),
		Location:              cfg.Location(),
		Logger:                logger,
		Tracker:               tr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pageview service: %w", err)
	}

	return pageview.NewCachedService(inner, cache.NewSQLiteCache(dbConn), pageview.CachedOptions{
		CachedDays: max(cfg.Cache.CachedDays, cfg.Cache.MaxDays),
		Logger:     logger,
		Tracker:    tr,
	}), nil
}

// pruneLoop deletes expired cache rows at startup and then every interval.
func pruneLoop(ctx context.Context, dbConn *db.DB, interval time.Duration) {
	prune := func() {
		n, err := dbConn.PruneCache(time.Now())
		if err != nil {
			slog.Warn("Cache prune failed", "error", err)
			return
		}
		if n > 0 {
			slog.Debug("Pruned expired cache entries", "count", n)
		}
	}

	prune()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func runServer(ctx context.Context, cfg *config.Config, svc pageview.Service, tr *tracker.Tracker) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	customizer := site.New(site.Options{
		TrackingID:            cfg.Analytics.TrackingID,
		WriteCustomDimensions: cfg.Analytics.WriteCustomDimensions,
		CustomMap:             cfg.Analytics.CustomMap,
		CanonicalServer:       cfg.Site.CanonicalServer,
		Terms:                 site.Link{URL: cfg.Site.TermsURL, Text: cfg.Site.TermsText},
		Support:               site.Link{URL: cfg.Site.SupportURL, Text: cfg.Site.SupportText},
	})

	srv := api.NewServer(cfg.Server.Address,
		api.NewPageviewHandler(svc, cfg.Cache.MaxDays),
		api.NewSiteHandler(customizer),
		api.NewStatsHandler(tr),
	)
	return runServerLifecycle(ctx, srv, quit, cfg.Server.ShutdownTimeout.Std())
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal, shutdownTimeout time.Duration) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
