package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"tani/internal/amqp"
	"tani/internal/backend"
	"tani/internal/cache"
	"tani/internal/cli"
	apphttp "tani/internal/http"
	applog "tani/internal/log"
	"tani/internal/metrics"
	"tani/internal/report"
	"tani/internal/services"
	"tani/internal/session"
	"tani/internal/weather"
	"tani/internal/worker"
)

// boundedRunner caps in-process rendering at the configured render timeout.
type boundedRunner struct {
	*worker.ReportWorker
	timeout time.Duration
}

func (r boundedRunner) Handle(ctx context.Context, msg *amqp.ReportJobMessage) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.ReportWorker.Handle(ctx, msg)
}

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig()
	logger := cli.SetupLogger(cfg)
	m := metrics.New()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	relay := &backend.TokenRelay{}
	be, err := backend.New(backendCfg, relay, m, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	mgr := session.New(session.Config{
		Auth:          be.Ports.Auth,
		Account:       be.Ports.Account,
		Profiles:      be.Ports.Profiles,
		Store:         repo,
		RefreshMargin: cfg.RefreshMargin,
		RedirectURL:   cfg.RedirectURL,
		Logger:        logger,
	})
	relay.Attach(mgr)

	svc := services.New(services.Config{
		Backend:  be.Ports,
		Filters:  repo,
		CacheTTL: 5 * time.Minute,
		Metrics:  m,
		Logger:   logger,
	})

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	svc.RegisterCaches(caches)

	forecaster := weather.New(weather.Config{URL: cfg.WeatherURL, TTL: cfg.WeatherTTL, Logger: logger})
	caches.Register(forecaster.Cache())
	caches.StartCleanup(10 * time.Minute)

	renderer := report.NewChromeRenderer(cfg.ChromeBin, cfg.ChromeControlURL)
	exporter := report.NewExporter(cfg.ReportDir(), renderer, m, logger)
	generator := report.NewGenerator(svc, exporter, cfg.ReportTitle, cfg.Farm)
	runner := boundedRunner{
		ReportWorker: worker.NewReportWorker(repo, func(string) worker.Generator { return generator }, nil, logger),
		timeout:      cfg.RenderTimeout,
	}

	var publisher apphttp.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			amqp.WithLogger(logger), amqp.WithMetrics(m))
		if err != nil {
			// Reports still render in process.
			logger.Warn("AMQP unavailable, rendering reports in process", applog.FieldError, err)
		} else {
			publisher = amqpClient
		}
	}

	janitor := services.NewJanitor(repo, services.DefaultJanitorConfig(), logger)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:              ":" + cfg.Port,
		Session:           mgr,
		Services:          svc,
		Jobs:              repo,
		Publisher:         publisher,
		Runner:            runner,
		ReportDir:         cfg.ReportDir(),
		Weather:           forecaster,
		Farm:              cfg.Farm,
		Store:             repo,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Metrics:           m,
		Logger:            logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := janitor.Stop(ctx); err != nil {
			logger.Warn("Janitor stop error", applog.FieldError, err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if err := renderer.Close(); err != nil {
			logger.Warn("Browser close error", applog.FieldError, err)
		}
	})

	if err := janitor.Start(ctx); err != nil {
		logger.Error("Failed to start report janitor", applog.FieldError, err)
	}

	st := mgr.Bootstrap(ctx)
	logger.Info("Session bootstrapped", "state", st.State, "route", st.Route)

	logger.Info("Starting tani server",
		"port", cfg.Port, "backend", cfg.DataBackend, "reports_queued", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
