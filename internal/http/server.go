// Package http serves the JSON API of the single household agent: the
// session, the bookkeeping records, posts and account administration,
// reports and weather.
package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"tani/internal/amqp"
	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/metrics"
	"tani/internal/middleware/ratelimit"
	"tani/internal/middleware/security"
	"tani/internal/middleware/trace"
	"tani/internal/services"
	"tani/internal/session"
	"tani/internal/weather"
)

// JobStore is the slice of the local store the report endpoints use.
type JobStore interface {
	CreateReportJob(ctx context.Context, job core.ReportJob) (core.ReportJob, error)
	GetReportJob(ctx context.Context, id string) (core.ReportJob, error)
	UpdateReportJob(ctx context.Context, id string, status core.JobStatus, filePath, errMsg string) error
	ListReportJobs(ctx context.Context, userID string, limit int) ([]core.ReportJob, error)
}

// Publisher queues report jobs for the worker.
type Publisher interface {
	PublishReportJob(ctx context.Context, msg *amqp.ReportJobMessage) error
}

// Runner renders a job in process. worker.ReportWorker satisfies it.
type Runner interface {
	Handle(ctx context.Context, msg *amqp.ReportJobMessage) error
}

type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64) (weather.Forecast, error)
}

// Pinger is checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr     string
	Session  *session.Manager
	Services *services.Service
	Jobs     JobStore
	// Publisher is nil when reports render in process.
	Publisher Publisher
	Runner    Runner
	ReportDir string
	Weather   Forecaster
	Farm      core.Farm
	Store     Pinger

	RequestsPerMinute int
	Metrics           *metrics.Metrics
	Logger            *applog.Logger
}

type Server struct {
	http.Server
	session   *session.Manager
	svc       *services.Service
	jobs      JobStore
	publisher Publisher
	runner    Runner
	reportDir string
	weather   Forecaster
	farm      core.Farm
	store     Pinger
	metrics   *metrics.Metrics
	log       *applog.Logger

	limiter   *ratelimit.Limiter
	detector  *security.Detector
	startedAt time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = applog.Discard()
	}
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       60 * time.Second,
		},
		session:   cfg.Session,
		svc:       cfg.Services,
		jobs:      cfg.Jobs,
		publisher: cfg.Publisher,
		runner:    cfg.Runner,
		reportDir: cfg.ReportDir,
		weather:   cfg.Weather,
		farm:      cfg.Farm,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		log:       cfg.Logger.WithComponent(applog.ComponentHTTP),
		detector:  security.NewDetector(cfg.Metrics, cfg.Logger),
		startedAt: time.Now(),
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Cost:              requestCost,
		Metrics:           cfg.Metrics,
	})

	s.routes(mux)

	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, cfg.Logger, cfg.Metrics)
	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
	})(h)
	h = s.detector.Middleware(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = tracer.Middleware(h)
	s.Handler = h
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Session
	mux.HandleFunc("GET /api/session", s.handleSessionStatus)
	mux.HandleFunc("POST /api/session/bootstrap", s.handleBootstrap)
	mux.HandleFunc("POST /api/session/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/session/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/session/signout", s.handleSignOut)
	mux.HandleFunc("POST /api/session/password/reset", s.handleResetPassword)
	mux.HandleFunc("POST /api/session/password/recover", s.handleVerifyRecovery)
	mux.HandleFunc("PUT /api/session/email", s.handleChangeEmail)
	mux.HandleFunc("GET /api/profile", s.handleGetProfile)
	mux.HandleFunc("PUT /api/profile", s.handleUpdateProfile)

	// Farmer records
	mux.HandleFunc("GET /api/seasons", s.handleListSeasons)
	mux.HandleFunc("POST /api/seasons", s.handleCreateSeason)
	mux.HandleFunc("GET /api/seasons/{id}", s.handleGetSeason)
	mux.HandleFunc("PUT /api/seasons/{id}", s.handleUpdateSeason)
	mux.HandleFunc("DELETE /api/seasons/{id}", s.handleDeleteSeason)
	mux.HandleFunc("GET /api/preferences/season", s.handleGetSeasonFilter)
	mux.HandleFunc("PUT /api/preferences/season", s.handleSetSeasonFilter)

	mux.HandleFunc("GET /api/receipts", s.handleListReceipts)
	mux.HandleFunc("POST /api/receipts", s.handleCreateReceipt)
	mux.HandleFunc("GET /api/receipts/{id}", s.handleGetReceipt)
	mux.HandleFunc("PUT /api/receipts/{id}", s.handleUpdateReceipt)
	mux.HandleFunc("DELETE /api/receipts/{id}", s.handleDeleteReceipt)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("POST /api/reports", s.handleCreateReport)
	mux.HandleFunc("GET /api/reports", s.handleListReports)
	mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /api/reports/{id}/pdf", s.handleDownloadReport)

	// Shared
	mux.HandleFunc("GET /api/posts", s.handleListPublishedPosts)
	mux.HandleFunc("GET /api/posts/{id}", s.handleGetPost)
	mux.HandleFunc("GET /api/weather", s.handleWeather)

	// Administration
	mux.HandleFunc("GET /api/admin/posts", s.handleListAllPosts)
	mux.HandleFunc("POST /api/admin/posts", s.handleCreatePost)
	mux.HandleFunc("PUT /api/admin/posts/{id}", s.handleUpdatePost)
	mux.HandleFunc("DELETE /api/admin/posts/{id}", s.handleDeletePost)
	mux.HandleFunc("GET /api/admin/users", s.handleListUsers)
	mux.HandleFunc("POST /api/admin/users", s.handleCreateUser)
	mux.HandleFunc("PUT /api/admin/users/{id}", s.handleUpdateUser)
	mux.HandleFunc("DELETE /api/admin/users/{id}", s.handleDeleteUser)
}

// requestCost charges report renders and credential attempts more than
// reads against the rate limit budget.
func requestCost(r *http.Request) int {
	if r.Method != http.MethodPost {
		return 1
	}
	switch {
	case r.URL.Path == "/api/reports":
		return 10
	case strings.HasPrefix(r.URL.Path, "/api/session/"):
		return 5
	}
	return 1
}

// Shutdown stops the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Close releases background resources without serving. Tests use it.
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.Server.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the local store answers and a session is
// held.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := map[string]string{}

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			checks["store"] = "failed: " + err.Error()
			status = "not_ready"
			code = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "not_configured"
	}

	checks["session"] = string(s.session.Status().State)
	if s.publisher != nil {
		checks["reports"] = "queued"
	} else {
		checks["reports"] = "in_process"
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status": status,
		"checks": checks,
	}).Write(w)
}
