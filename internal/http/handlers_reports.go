package http

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"tani/internal/amqp"
	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/ports"
)

var errReportsUnavailable = errors.New("report rendering is not configured")

// handleCreateReport queues a P&L report for a season. With a broker the
// answer is 202 and the job is rendered by the worker; otherwise, or when
// publishing fails, it is rendered before answering 201.
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	var req reportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	seasonID := strings.TrimSpace(req.SeasonID)
	if seasonID == "" {
		s.writeError(w, r, core.ErrEmptySeason)
		return
	}
	if s.publisher == nil && s.runner == nil {
		ErrorResponse(http.StatusServiceUnavailable, errReportsUnavailable.Error()).Write(w)
		return
	}
	if _, err := s.svc.Season(r.Context(), p.ID, seasonID); err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.jobs.CreateReportJob(r.Context(), core.ReportJob{
		ID:       uuid.NewString(),
		UserID:   p.ID,
		SeasonID: seasonID,
		Status:   core.JobQueued,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	log := applog.FromContext(r.Context()).With(applog.FieldJobID, job.ID, applog.FieldSeasonID, seasonID)

	if s.publisher != nil {
		token, err := s.session.AccessToken(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		err = s.publisher.PublishReportJob(r.Context(), amqp.NewReportJobMessage(job, token))
		if err == nil {
			NewJSONResponse().
				Status(http.StatusAccepted).
				Header("Location", "/api/reports/"+job.ID).
				Body(job).
				Write(w)
			return
		}
		if s.runner == nil {
			_ = s.jobs.UpdateReportJob(r.Context(), job.ID, core.JobFailed, "", err.Error())
			s.writeError(w, r, fmt.Errorf("queue report: %w", err))
			return
		}
		log.WarnContext(r.Context(), "Publishing report job failed, rendering in process", applog.FieldError, err)
	}

	if err := s.runner.Handle(r.Context(), amqp.NewReportJobMessage(job, "")); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err = s.jobs.GetReportJob(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job.Status == core.JobFailed {
		log.WarnContext(r.Context(), "Report render failed", applog.FieldError, job.Error)
		NewJSONResponse().
			Status(http.StatusBadGateway).
			Header("Location", "/api/reports/"+job.ID).
			Body(map[string]any{"error": job.Error, "job": job}).
			Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/reports/"+job.ID).
		Body(job).
		Write(w)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	jobs, err := s.jobs.ListReportJobs(r.Context(), p.ID, queryInt(r, "limit", 20))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []core.ReportJob{}
	}
	NewJSONResponse().Body(map[string]any{"items": jobs}).Write(w)
}

// ownJob loads a job of the signed-in user. Other users' jobs are not
// found.
func (s *Server) ownJob(r *http.Request, userID string) (core.ReportJob, error) {
	id, err := pathID(r)
	if err != nil {
		return core.ReportJob{}, err
	}
	job, err := s.jobs.GetReportJob(r.Context(), id)
	if err != nil {
		return core.ReportJob{}, err
	}
	if job.UserID != userID {
		return core.ReportJob{}, ports.ErrNotFound
	}
	return job, nil
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	job, err := s.ownJob(r, p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(job).Write(w)
}

// handleDownloadReport serves the finished PDF as an attachment.
func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	job, err := s.ownJob(r, p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job.Status != core.JobDone {
		ErrorResponse(http.StatusConflict, fmt.Sprintf("report is %s", job.Status)).Write(w)
		return
	}
	if !s.inReportDir(job.FilePath) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Report path outside report directory",
			applog.FieldJobID, job.ID, applog.FieldReportPath, job.FilePath)
		s.writeError(w, r, ports.ErrNotFound)
		return
	}

	f, err := os.Open(job.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Pruned by the janitor or the cache was cleared.
			s.writeError(w, r, fmt.Errorf("report file: %w", ports.ErrNotFound))
			return
		}
		s.writeError(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": filepath.Base(job.FilePath),
	}))
	http.ServeContent(w, r, filepath.Base(job.FilePath), info.ModTime(), f)
}

func (s *Server) inReportDir(path string) bool {
	if s.reportDir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(s.reportDir), filepath.Clean(path))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
