package services

import (
	"context"
	"errors"
	"fmt"

	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/ports"
)

func (s *Service) ListSeasons(ctx context.Context, userID string) ([]core.Season, error) {
	return s.seasons.Load(ctx, userID, func(ctx context.Context) ([]core.Season, error) {
		return s.backend.Seasons.ListSeasons(ctx, userID)
	})
}

// RefreshSeasons is ListSeasons bypassing the cache, for pull-to-refresh.
func (s *Service) RefreshSeasons(ctx context.Context, userID string) ([]core.Season, error) {
	return s.seasons.Refresh(ctx, userID, func(ctx context.Context) ([]core.Season, error) {
		return s.backend.Seasons.ListSeasons(ctx, userID)
	})
}

// Season returns a season owned by userID. Other users' seasons are
// reported as not found.
func (s *Service) Season(ctx context.Context, userID, id string) (core.Season, error) {
	season, err := s.backend.Seasons.GetSeason(ctx, id)
	if err != nil {
		return core.Season{}, fmt.Errorf("get season: %w", err)
	}
	if season.UserID != userID {
		return core.Season{}, fmt.Errorf("get season: %w", ports.ErrNotFound)
	}
	return season, nil
}

func (s *Service) CreateSeason(ctx context.Context, userID string, in core.Season) (core.Season, error) {
	in.ID = ""
	in.UserID = userID
	if err := validateSeason(in); err != nil {
		return core.Season{}, err
	}
	out, err := s.backend.Seasons.CreateSeason(ctx, in)
	if err != nil {
		return core.Season{}, fmt.Errorf("create season: %w", err)
	}
	s.seasons.Invalidate(userID)
	s.log.InfoContext(ctx, "Season created",
		applog.FieldOperation, applog.OpCreate, applog.FieldUserID, userID, applog.FieldSeasonID, out.ID)
	return out, nil
}

func (s *Service) UpdateSeason(ctx context.Context, userID string, in core.Season) (core.Season, error) {
	if _, err := s.Season(ctx, userID, in.ID); err != nil {
		return core.Season{}, err
	}
	in.UserID = userID
	if err := validateSeason(in); err != nil {
		return core.Season{}, err
	}
	out, err := s.backend.Seasons.UpdateSeason(ctx, in)
	if err != nil {
		return core.Season{}, fmt.Errorf("update season: %w", err)
	}
	s.seasons.Invalidate(userID)
	return out, nil
}

// DeleteSeason removes the season with its receipts and expenses, and
// clears the season filter when it pointed at it.
func (s *Service) DeleteSeason(ctx context.Context, userID, id string) error {
	if _, err := s.Season(ctx, userID, id); err != nil {
		return err
	}
	if err := s.backend.Seasons.DeleteSeason(ctx, id); err != nil {
		return fmt.Errorf("delete season: %w", err)
	}
	s.invalidateUser(userID)

	if s.filters != nil {
		current, err := s.filters.SeasonFilter(ctx, userID)
		if err == nil && current == id {
			if err := s.filters.SetSeasonFilter(ctx, userID, ""); err != nil {
				s.log.WarnContext(ctx, "Failed to clear season filter", applog.FieldError, err)
			}
		}
	}
	s.log.InfoContext(ctx, "Season deleted",
		applog.FieldOperation, applog.OpDelete, applog.FieldUserID, userID, applog.FieldSeasonID, id)
	return nil
}

func validateSeason(in core.Season) error {
	if err := core.EnsureDates(in.StartDate.String(), in.EndDate.String()); err != nil {
		return err
	}
	return in.Validate()
}

// SeasonFilter returns the season the user filters lists by, or "" for
// all seasons. A filter naming a season that no longer exists is cleared.
func (s *Service) SeasonFilter(ctx context.Context, userID string) (string, error) {
	if s.filters == nil {
		return "", nil
	}
	id, err := s.filters.SeasonFilter(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("read season filter: %w", err)
	}
	if id == "" {
		return "", nil
	}
	if _, err := s.Season(ctx, userID, id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			if err := s.filters.SetSeasonFilter(ctx, userID, ""); err != nil {
				s.log.WarnContext(ctx, "Failed to clear season filter", applog.FieldError, err)
			}
			return "", nil
		}
		// Backend unreachable: keep the stored choice.
		return id, nil
	}
	return id, nil
}

// SetSeasonFilter stores the filter. Empty means all seasons.
func (s *Service) SetSeasonFilter(ctx context.Context, userID, seasonID string) error {
	if s.filters == nil {
		return errors.New("season filter storage not configured")
	}
	if seasonID != "" {
		if _, err := s.Season(ctx, userID, seasonID); err != nil {
			return err
		}
	}
	if err := s.filters.SetSeasonFilter(ctx, userID, seasonID); err != nil {
		return fmt.Errorf("save season filter: %w", err)
	}
	return nil
}
