package main

import (
	"context"
	"errors"
	"os"
	"time"

	"tani/internal/amqp"
	"tani/internal/backend"
	"tani/internal/cli"
	"tani/internal/config"
	applog "tani/internal/log"
	"tani/internal/metrics"
	"tani/internal/report"
	"tani/internal/services"
	"tani/internal/session"
	"tani/internal/sheets"
	gsheet "tani/internal/sheets/google"
	"tani/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig()
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting tani-worker")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the report worker")
		os.Exit(1)
	}
	if cfg.DataBackend != config.BackendRemote {
		// Jobs carry the caller's token for the shared backend; a memory
		// backend lives in the API process only.
		logger.Error("The report worker needs the remote backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	m := metrics.New()
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	var exporter sheets.ReportExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
			Logger:          logger,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	renderer := report.NewChromeRenderer(cfg.ChromeBin, cfg.ChromeControlURL)
	defer renderer.Close()
	pdfs := report.NewExporter(cfg.ReportDir(), renderer, m, logger)

	// Each job reads the records with the token of the user who asked.
	generatorFor := func(token string) worker.Generator {
		be, err := backend.New(backendCfg, session.TokenSource(token), m, logger)
		if err != nil {
			return failedGenerator{err: err}
		}
		svc := services.New(services.Config{Backend: be.Ports, Metrics: m, Logger: logger})
		return report.NewGenerator(svc, pdfs, cfg.ReportTitle, cfg.Farm)
	}
	reports := worker.NewReportWorker(repo, generatorFor, exporter, logger)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		amqp.WithLogger(logger), amqp.WithMetrics(m))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	janitor := services.NewJanitor(repo, services.DefaultJanitorConfig(), logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := janitor.Stop(ctx); err != nil {
			logger.Warn("Janitor stop error", applog.FieldError, err)
		}
	})
	if err := janitor.Start(ctx); err != nil {
		logger.Error("Failed to start report janitor", applog.FieldError, err)
	}

	handle := func(ctx context.Context, msg *amqp.ReportJobMessage) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.RenderTimeout)
		defer cancel()
		return reports.Handle(ctx, msg)
	}
	logger.Info("Consuming report jobs", "queue", cfg.AMQPQueue)
	if err := amqpClient.ConsumeReportJobs(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

// failedGenerator reports a backend that could not be built, so the job
// is marked failed instead of the message being requeued forever.
type failedGenerator struct{ err error }

func (g failedGenerator) Generate(context.Context, string, string) (report.Result, error) {
	return report.Result{}, g.err
}
