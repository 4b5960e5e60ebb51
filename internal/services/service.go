// Package services holds the bookkeeping operations behind the API: the
// per-user records, informational posts and account administration. List
// reads go through Loaders so repeated screens do not refetch.
package services

import (
	"context"
	"errors"
	"time"

	"tani/internal/cache"
	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/metrics"
	"tani/internal/ports"
)

var (
	ErrSelfDelete = errors.New("cannot delete your own account")
	// ErrNotAllowed is returned when the acting role may not do something.
	ErrNotAllowed = ports.ErrForbidden
)

// FilterStore persists the per-user season filter.
type FilterStore interface {
	SeasonFilter(ctx context.Context, userID string) (string, error)
	SetSeasonFilter(ctx context.Context, userID, seasonID string) error
}

type Config struct {
	Backend  ports.Backend
	Filters  FilterStore
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Logger   *applog.Logger
}

type Service struct {
	backend ports.Backend
	filters FilterStore
	log     *applog.Logger

	seasons  *Loader[[]core.Season]
	receipts *Loader[[]core.Receipt]
	expenses *Loader[[]core.Expense]
	posts    *Loader[[]core.Post]
	profiles *Loader[[]core.Profile]
}

func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = applog.Discard()
	}
	opts := LoaderOptions{TTL: cfg.CacheTTL, Metrics: cfg.Metrics, Logger: cfg.Logger}
	return &Service{
		backend:  cfg.Backend,
		filters:  cfg.Filters,
		log:      cfg.Logger.WithComponent(applog.ComponentServices),
		seasons:  NewLoader[[]core.Season]("seasons", opts),
		receipts: NewLoader[[]core.Receipt]("receipts", opts),
		expenses: NewLoader[[]core.Expense]("expenses", opts),
		posts:    NewLoader[[]core.Post]("posts", opts),
		profiles: NewLoader[[]core.Profile]("profiles", opts),
	}
}

// RegisterCaches hands the loader caches to a cleanup manager.
func (s *Service) RegisterCaches(m *cache.Manager) {
	m.Register(s.seasons.Cache())
	m.Register(s.receipts.Cache())
	m.Register(s.expenses.Cache())
	m.Register(s.posts.Cache())
	m.Register(s.profiles.Cache())
}

// scopedKey keys per-season lists of one user; userID+"/" prefixes them all.
func scopedKey(userID, seasonID string) string {
	return userID + "/" + seasonID
}

// invalidateUser drops every cached list of a user.
func (s *Service) invalidateUser(userID string) {
	s.seasons.Invalidate(userID)
	s.receipts.InvalidatePrefix(userID + "/")
	s.expenses.InvalidatePrefix(userID + "/")
}
