// Package worker renders queued report jobs.
package worker

import (
	"context"
	"errors"
	"fmt"

	"tani/internal/amqp"
	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/ports"
	"tani/internal/report"
	"tani/internal/sheets"
)

// JobStore is the slice of the local store the worker updates.
type JobStore interface {
	GetReportJob(ctx context.Context, id string) (core.ReportJob, error)
	UpdateReportJob(ctx context.Context, id string, status core.JobStatus, filePath, errMsg string) error
}

type Generator interface {
	Generate(ctx context.Context, userID, seasonID string) (report.Result, error)
}

// GeneratorFunc returns a generator that reads records with the given
// access token.
type GeneratorFunc func(accessToken string) Generator

// ReportWorker handles report job messages from AMQP
type ReportWorker struct {
	jobs      JobStore
	generator GeneratorFunc
	sheets    sheets.ReportExporter
	log       *applog.Logger
}

// NewReportWorker creates a worker. exporter may be nil when Sheets export
// is disabled.
func NewReportWorker(jobs JobStore, generator GeneratorFunc, exporter sheets.ReportExporter, logger *applog.Logger) *ReportWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ReportWorker{
		jobs:      jobs,
		generator: generator,
		sheets:    exporter,
		log:       logger.WithComponent(applog.ComponentWorker),
	}
}

// Handle runs one job. Render failures are recorded on the job and not
// returned, so the message is acknowledged. Store failures are returned
// and the message is requeued.
func (w *ReportWorker) Handle(ctx context.Context, msg *amqp.ReportJobMessage) error {
	log := w.log.With(applog.FieldJobID, msg.JobID, applog.FieldSeasonID, msg.SeasonID)
	log.InfoContext(ctx, "Processing report job", "queued_at", msg.Timestamp)

	job, err := w.jobs.GetReportJob(ctx, msg.JobID)
	if errors.Is(err, ports.ErrNotFound) {
		log.WarnContext(ctx, "Report job no longer exists, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get report job: %w", err)
	}
	if job.Status.Finished() {
		log.InfoContext(ctx, "Report job already finished, skipping", "status", job.Status)
		return nil
	}
	if job.UserID != msg.UserID || job.SeasonID != msg.SeasonID {
		return w.fail(ctx, log, msg.JobID, errors.New("message does not match job"))
	}

	if err := w.jobs.UpdateReportJob(ctx, msg.JobID, core.JobRunning, "", ""); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	res, err := w.generator(msg.AccessToken).Generate(ctx, msg.UserID, msg.SeasonID)
	if err != nil {
		return w.fail(ctx, log, msg.JobID, err)
	}

	if err := w.jobs.UpdateReportJob(ctx, msg.JobID, core.JobDone, res.Path, ""); err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	log.InfoContext(ctx, "Report job done", applog.FieldReportPath, res.Path)

	if w.sheets != nil {
		ref, err := w.sheets.ExportReport(ctx, res.Report)
		if err != nil {
			// The PDF is the deliverable; the spreadsheet copy is best effort.
			log.WarnContext(ctx, "Failed to export report to Google Sheets", applog.FieldError, err)
		} else {
			log.InfoContext(ctx, "Report exported to Google Sheets", "sheets_ref", ref)
		}
	}
	return nil
}

func (w *ReportWorker) fail(ctx context.Context, log *applog.Logger, jobID string, cause error) error {
	log.ErrorContext(ctx, "Report job failed", applog.FieldError, cause)
	if err := w.jobs.UpdateReportJob(ctx, jobID, core.JobFailed, "", cause.Error()); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}
