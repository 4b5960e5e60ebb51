package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tani/internal/core"
	"tani/internal/ports"

	_ "modernc.org/sqlite"
)

// Preference keys.
const (
	PrefRememberMe       = "remember_me"
	prefSeasonFilterBase = "season_filter:"
)

// SQLiteRepository keeps the device-local state: preferences, the
// remembered session, registrations awaiting confirmation and report jobs.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// dsn enables WAL and a busy timeout so the server and the report worker
// can share one file.
func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Preferences

// Preference returns the stored value and whether one exists.
func (r *SQLiteRepository) Preference(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return v, true, nil
}

func (r *SQLiteRepository) SetPreference(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, r.stamp())
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) DeletePreference(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}

// RememberMe reads the remember-me flag. Missing means false.
func (r *SQLiteRepository) RememberMe(ctx context.Context) (bool, error) {
	v, ok, err := r.Preference(ctx, PrefRememberMe)
	if err != nil || !ok {
		return false, err
	}
	return v == "true", nil
}

func (r *SQLiteRepository) SetRememberMe(ctx context.Context, on bool) error {
	v := "false"
	if on {
		v = "true"
	}
	return r.SetPreference(ctx, PrefRememberMe, v)
}

// SeasonFilter returns the season a user last filtered lists by. Empty
// means all seasons.
func (r *SQLiteRepository) SeasonFilter(ctx context.Context, userID string) (string, error) {
	v, _, err := r.Preference(ctx, prefSeasonFilterBase+userID)
	return v, err
}

// SetSeasonFilter stores the filter; an empty seasonID clears it.
func (r *SQLiteRepository) SetSeasonFilter(ctx context.Context, userID, seasonID string) error {
	if seasonID == "" {
		return r.DeletePreference(ctx, prefSeasonFilterBase+userID)
	}
	return r.SetPreference(ctx, prefSeasonFilterBase+userID, seasonID)
}

// Sessions

func (r *SQLiteRepository) SaveSession(ctx context.Context, s ports.Session) error {
	exp := ""
	if !s.ExpiresAt.IsZero() {
		exp = s.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, email, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			email = excluded.email,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		s.UserID, s.Email, s.AccessToken, s.RefreshToken, exp, r.stamp())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the remembered session, if any.
func (r *SQLiteRepository) LoadSession(ctx context.Context) (ports.Session, bool, error) {
	var s ports.Session
	var exp string
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, email, access_token, refresh_token, expires_at FROM sessions WHERE id = 1`).
		Scan(&s.UserID, &s.Email, &s.AccessToken, &s.RefreshToken, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Session{}, false, nil
	}
	if err != nil {
		return ports.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	s.ExpiresAt = parseTime(exp)
	return s, true, nil
}

func (r *SQLiteRepository) ClearSession(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Pending registrations. The password is never stored.

func (r *SQLiteRepository) SavePendingRegistration(ctx context.Context, reg core.Registration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_registrations (email, full_name, phone, village, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			full_name = excluded.full_name,
			phone = excluded.phone,
			village = excluded.village`,
		normalizeEmail(reg.Email), reg.FullName, reg.Phone, reg.Village, r.stamp())
	if err != nil {
		return fmt.Errorf("save pending registration: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PendingRegistration(ctx context.Context, email string) (core.Registration, bool, error) {
	reg := core.Registration{}
	err := r.db.QueryRowContext(ctx, `
		SELECT email, full_name, phone, village FROM pending_registrations WHERE email = ?`,
		normalizeEmail(email)).Scan(&reg.Email, &reg.FullName, &reg.Phone, &reg.Village)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Registration{}, false, nil
	}
	if err != nil {
		return core.Registration{}, false, fmt.Errorf("get pending registration: %w", err)
	}
	return reg, true, nil
}

func (r *SQLiteRepository) DeletePendingRegistration(ctx context.Context, email string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_registrations WHERE email = ?`, normalizeEmail(email)); err != nil {
		return fmt.Errorf("delete pending registration: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Report jobs

func (r *SQLiteRepository) CreateReportJob(ctx context.Context, job core.ReportJob) (core.ReportJob, error) {
	now := r.stamp()
	if job.Status == "" {
		job.Status = core.JobQueued
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO report_jobs (id, user_id, season_id, status, file_path, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.SeasonID, string(job.Status), job.FilePath, job.Error, now, now)
	if err != nil {
		return core.ReportJob{}, fmt.Errorf("create report job: %w", err)
	}
	job.CreatedAt = parseTime(now)
	job.UpdatedAt = job.CreatedAt
	return job, nil
}

// UpdateReportJob sets the status, file path and error of a job.
func (r *SQLiteRepository) UpdateReportJob(ctx context.Context, id string, status core.JobStatus, filePath, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_jobs SET status = ?, file_path = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), filePath, errMsg, r.stamp(), id)
	if err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update report job %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

const jobColumns = `id, user_id, season_id, status, file_path, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (core.ReportJob, error) {
	var j core.ReportJob
	var status, created, updated string
	if err := s.Scan(&j.ID, &j.UserID, &j.SeasonID, &status, &j.FilePath, &j.Error, &created, &updated); err != nil {
		return core.ReportJob{}, err
	}
	j.Status = core.JobStatus(status)
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	return j, nil
}

func (r *SQLiteRepository) GetReportJob(ctx context.Context, id string) (core.ReportJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM report_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.ReportJob{}, ports.ErrNotFound
	}
	if err != nil {
		return core.ReportJob{}, fmt.Errorf("get report job: %w", err)
	}
	return j, nil
}

// ListReportJobs returns the newest jobs of a user first.
func (r *SQLiteRepository) ListReportJobs(ctx context.Context, userID string, limit int) ([]core.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM report_jobs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	defer rows.Close()

	var out []core.ReportJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// PruneReportJobs deletes finished jobs last updated before cutoff and
// returns their file paths so the caller can remove the PDFs.
func (r *SQLiteRepository) PruneReportJobs(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT file_path FROM report_jobs
		WHERE status IN ('done', 'failed') AND updated_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("select old report jobs: %w", err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan report job path: %w", err)
		}
		if p != "" {
			paths = append(paths, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM report_jobs WHERE status IN ('done', 'failed') AND updated_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("delete old report jobs: %w", err)
	}
	return paths, nil
}
