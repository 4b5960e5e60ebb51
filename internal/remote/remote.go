// Package remote implements the data ports on top of the hosted backend.
// Row-level security on the backend scopes every query to the caller, the
// user_id filters here only narrow admin listings.
package remote

import (
	"context"
	"fmt"

	"tani/internal/baas"
	"tani/internal/core"
	"tani/internal/ports"
)

const (
	tableSeasons      = "seasons"
	tableReceipts     = "receipts"
	tableExpenses     = "expenses"
	tableExpenseItems = "expense_items"
	tablePosts        = "posts"
	tableProfiles     = "profiles"

	fnAdminCreateUser = "admin-create-user"
	fnAdminUpdateUser = "admin-update-user"
	fnAdminDeleteUser = "admin-delete-user"
	fnVerifyRecovery  = "verify-recovery"
	fnChangeEmail     = "change-email"
)

// Store adapts a baas.Client to the ports. Data calls take their bearer
// token from tokens.
type Store struct {
	c      *baas.Client
	tokens ports.TokenSource
}

func New(c *baas.Client, tokens ports.TokenSource) *Store {
	return &Store{c: c, tokens: tokens}
}

// Backend returns the port bundle. Auth is served by Auth, which needs no
// token source.
func (s *Store) Backend() ports.Backend {
	return ports.Backend{
		Auth:     Auth{c: s.c},
		Account:  s,
		Seasons:  s,
		Receipts: s,
		Expenses: s,
		Posts:    s,
		Profiles: s,
		Admin:    s,
	}
}

func (s *Store) token(ctx context.Context) (string, error) {
	if s.tokens == nil {
		return "", ports.ErrUnauthorized
	}
	tok, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("access token: %w", err)
	}
	return tok, nil
}

// first returns rows[0] or ErrNotFound.
func first[T any](rows []T) (T, error) {
	var zero T
	if len(rows) == 0 {
		return zero, ports.ErrNotFound
	}
	return rows[0], nil
}

// Auth adapts the GoTrue endpoints to ports.Authenticator.
type Auth struct {
	c *baas.Client
}

func NewAuth(c *baas.Client) Auth {
	return Auth{c: c}
}

func toSession(s baas.Session) ports.Session {
	return ports.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
		UserID:       s.User.ID,
		Email:        s.User.Email,
	}
}

func (a Auth) SignIn(ctx context.Context, email, password string) (ports.Session, error) {
	s, err := a.c.SignInWithPassword(ctx, email, password)
	if err != nil {
		return ports.Session{}, err
	}
	return toSession(s), nil
}

func (a Auth) SignUp(ctx context.Context, email, password string, meta map[string]any) (ports.SignUpResult, error) {
	u, s, err := a.c.SignUp(ctx, email, password, meta)
	if err != nil {
		return ports.SignUpResult{}, err
	}
	res := ports.SignUpResult{UserID: u.ID}
	if s != nil {
		ps := toSession(*s)
		res.Session = &ps
	}
	return res, nil
}

func (a Auth) Refresh(ctx context.Context, refreshToken string) (ports.Session, error) {
	s, err := a.c.RefreshSession(ctx, refreshToken)
	if err != nil {
		return ports.Session{}, err
	}
	return toSession(s), nil
}

func (a Auth) SignOut(ctx context.Context, accessToken string) error {
	return a.c.SignOut(ctx, accessToken)
}

func (a Auth) ResetPassword(ctx context.Context, email, redirectTo string) error {
	return a.c.ResetPasswordForEmail(ctx, email, redirectTo)
}

// Account functions

func (s *Store) VerifyRecovery(ctx context.Context, in ports.RecoveryInput) error {
	return s.c.Invoke(ctx, "", fnVerifyRecovery, in, nil)
}

func (s *Store) ChangeEmail(ctx context.Context, newEmail string) error {
	tok, err := s.token(ctx)
	if err != nil {
		return err
	}
	return s.c.Invoke(ctx, tok, fnChangeEmail, map[string]string{"new_email": newEmail}, nil)
}

// Admin user functions

type adminUserResponse struct {
	User    *core.Profile `json:"user"`
	Profile *core.Profile `json:"profile"`
	ID      string        `json:"id"`
}

func (r adminUserResponse) profile(in ports.AdminUserInput) core.Profile {
	switch {
	case r.Profile != nil:
		return *r.Profile
	case r.User != nil:
		return *r.User
	}
	return core.Profile{ID: r.ID, Email: in.Email, FullName: in.FullName, Phone: in.Phone, Village: in.Village, Role: in.Role}
}

func (s *Store) CreateUser(ctx context.Context, in ports.AdminUserInput) (core.Profile, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Profile{}, err
	}
	var out adminUserResponse
	if err := s.c.Invoke(ctx, tok, fnAdminCreateUser, in, &out); err != nil {
		return core.Profile{}, err
	}
	return out.profile(in), nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, in ports.AdminUserInput) (core.Profile, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Profile{}, err
	}
	body := struct {
		UserID string `json:"user_id"`
		ports.AdminUserInput
	}{UserID: id, AdminUserInput: in}
	var out adminUserResponse
	if err := s.c.Invoke(ctx, tok, fnAdminUpdateUser, body, &out); err != nil {
		return core.Profile{}, err
	}
	p := out.profile(in)
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tok, err := s.token(ctx)
	if err != nil {
		return err
	}
	return s.c.Invoke(ctx, tok, fnAdminDeleteUser, map[string]string{"user_id": id}, nil)
}
