package services

import (
	"context"
	"fmt"
	"strings"

	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/ports"
)

func (s *Service) Profile(ctx context.Context, userID string) (core.Profile, error) {
	p, err := s.backend.Profiles.GetProfile(ctx, userID)
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile edits the caller's own name, phone and village. Role and
// email are changed through other paths.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in core.Profile) (core.Profile, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return core.Profile{}, core.ErrEmptyName
	}
	out, err := s.backend.Profiles.UpsertProfile(ctx, core.Profile{
		ID:       userID,
		FullName: strings.TrimSpace(in.FullName),
		Phone:    strings.TrimSpace(in.Phone),
		Village:  strings.TrimSpace(in.Village),
	})
	if err != nil {
		return core.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	s.profiles.InvalidatePrefix("")
	return out, nil
}

// ListUsers lists the accounts actor may manage. role narrows the list;
// an admin only ever sees plain users.
func (s *Service) ListUsers(ctx context.Context, actor core.Profile, role core.Role) ([]core.Profile, error) {
	if !actor.Role.IsAdmin() {
		return nil, ErrNotAllowed
	}
	if role != "" && !actor.Role.CanManage(role) {
		return nil, ErrNotAllowed
	}
	if actor.Role == core.RoleAdmin {
		role = core.RoleUser
	}

	all, err := s.profiles.Load(ctx, string(role), func(ctx context.Context) ([]core.Profile, error) {
		return s.backend.Profiles.ListProfiles(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.Profile, 0, len(all))
	for _, p := range all {
		if actor.Role.CanManage(p.Role) {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreateUser creates an account through the admin function. The role
// defaults to user.
func (s *Service) CreateUser(ctx context.Context, actor core.Profile, in ports.AdminUserInput) (core.Profile, error) {
	if in.Role == "" {
		in.Role = core.RoleUser
	}
	if !in.Role.Valid() {
		return core.Profile{}, core.ErrInvalidRole
	}
	if !actor.Role.CanManage(in.Role) {
		return core.Profile{}, ErrNotAllowed
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := (core.Registration{Email: in.Email, Password: in.Password, FullName: in.FullName}).Validate(); err != nil {
		return core.Profile{}, err
	}

	out, err := s.backend.Admin.CreateUser(ctx, in)
	if err != nil {
		return core.Profile{}, fmt.Errorf("create user: %w", err)
	}
	s.profiles.InvalidatePrefix("")
	s.log.InfoContext(ctx, "Account created",
		applog.FieldOperation, applog.OpCreate, applog.FieldUserID, actor.ID,
		"target_id", out.ID, applog.FieldRole, string(out.Role))
	return out, nil
}

// UpdateUser edits an account actor manages. A role change must also be
// one actor may grant.
func (s *Service) UpdateUser(ctx context.Context, actor core.Profile, id string, in ports.AdminUserInput) (core.Profile, error) {
	target, err := s.manageable(ctx, actor, id)
	if err != nil {
		return core.Profile{}, err
	}
	if in.Role != "" && in.Role != target.Role {
		if !in.Role.Valid() {
			return core.Profile{}, core.ErrInvalidRole
		}
		if !actor.Role.CanManage(in.Role) {
			return core.Profile{}, ErrNotAllowed
		}
	}
	if in.Email != "" {
		in.Email = strings.ToLower(strings.TrimSpace(in.Email))
		if err := core.ValidateEmail(in.Email); err != nil {
			return core.Profile{}, err
		}
	}
	if in.Password != "" && len(in.Password) < core.MinPasswordLength {
		return core.Profile{}, core.ErrWeakPassword
	}
	if strings.TrimSpace(in.FullName) == "" {
		in.FullName = target.FullName
	}

	out, err := s.backend.Admin.UpdateUser(ctx, id, in)
	if err != nil {
		return core.Profile{}, fmt.Errorf("update user: %w", err)
	}
	s.profiles.InvalidatePrefix("")
	return out, nil
}

func (s *Service) DeleteUser(ctx context.Context, actor core.Profile, id string) error {
	if id == actor.ID {
		return ErrSelfDelete
	}
	if _, err := s.manageable(ctx, actor, id); err != nil {
		return err
	}
	if err := s.backend.Admin.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.profiles.InvalidatePrefix("")
	s.invalidateUser(id)
	s.log.InfoContext(ctx, "Account deleted",
		applog.FieldOperation, applog.OpDelete, applog.FieldUserID, actor.ID, "target_id", id)
	return nil
}

func (s *Service) manageable(ctx context.Context, actor core.Profile, id string) (core.Profile, error) {
	if !actor.Role.IsAdmin() {
		return core.Profile{}, ErrNotAllowed
	}
	target, err := s.backend.Profiles.GetProfile(ctx, id)
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if !actor.Role.CanManage(target.Role) {
		return core.Profile{}, ErrNotAllowed
	}
	return target, nil
}
