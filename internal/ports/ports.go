// Package ports declares the outbound interfaces the service layer talks
// to. The remote package implements them over the hosted backend, the
// memory package implements them in-process for tests and offline use.
package ports

import (
	"context"
	"errors"
	"time"

	"tani/internal/core"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type (
	// Session is an authenticated backend session.
	Session struct {
		AccessToken  string    `json:"access_token"`
		RefreshToken string    `json:"refresh_token"`
		ExpiresAt    time.Time `json:"expires_at"`
		UserID       string    `json:"user_id"`
		Email        string    `json:"email"`
	}

	// SignUpResult carries the new account id. Session is nil when the
	// backend requires email confirmation before the first sign-in.
	SignUpResult struct {
		UserID  string
		Session *Session
	}

	// AdminUserInput is the payload of the admin user functions. Password
	// is only required on create.
	AdminUserInput struct {
		Email    string    `json:"email"`
		Password string    `json:"password,omitempty"`
		FullName string    `json:"full_name"`
		Phone    string    `json:"phone,omitempty"`
		Village  string    `json:"village,omitempty"`
		Role     core.Role `json:"role"`
	}

	// RecoveryInput completes a password reset with the emailed code.
	RecoveryInput struct {
		Email       string `json:"email"`
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
)

// Expired reports whether the access token expires within margin of now.
func (s Session) Expired(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

type (
	Authenticator interface {
		SignIn(ctx context.Context, email, password string) (Session, error)
		SignUp(ctx context.Context, email, password string, meta map[string]any) (SignUpResult, error)
		Refresh(ctx context.Context, refreshToken string) (Session, error)
		SignOut(ctx context.Context, accessToken string) error
		ResetPassword(ctx context.Context, email, redirectTo string) error
	}

	// Account wraps the self-service serverless functions.
	Account interface {
		VerifyRecovery(ctx context.Context, in RecoveryInput) error
		ChangeEmail(ctx context.Context, newEmail string) error
	}

	SeasonRepository interface {
		ListSeasons(ctx context.Context, userID string) ([]core.Season, error)
		GetSeason(ctx context.Context, id string) (core.Season, error)
		CreateSeason(ctx context.Context, s core.Season) (core.Season, error)
		UpdateSeason(ctx context.Context, s core.Season) (core.Season, error)
		DeleteSeason(ctx context.Context, id string) error
	}

	// ReceiptRepository lists by user; an empty seasonID means every season.
	ReceiptRepository interface {
		ListReceipts(ctx context.Context, userID, seasonID string) ([]core.Receipt, error)
		GetReceipt(ctx context.Context, id string) (core.Receipt, error)
		CreateReceipt(ctx context.Context, r core.Receipt) (core.Receipt, error)
		UpdateReceipt(ctx context.Context, r core.Receipt) (core.Receipt, error)
		DeleteReceipt(ctx context.Context, id string) error
	}

	// ExpenseRepository stores expenses together with their line items.
	ExpenseRepository interface {
		ListExpenses(ctx context.Context, userID, seasonID string) ([]core.Expense, error)
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, id string) error
	}

	PostRepository interface {
		ListPosts(ctx context.Context, publishedOnly bool) ([]core.Post, error)
		GetPost(ctx context.Context, id string) (core.Post, error)
		CreatePost(ctx context.Context, p core.Post) (core.Post, error)
		UpdatePost(ctx context.Context, p core.Post) (core.Post, error)
		DeletePost(ctx context.Context, id string) error
	}

	// ProfileRepository reads profile rows. An empty role lists everyone.
	ProfileRepository interface {
		GetProfile(ctx context.Context, userID string) (core.Profile, error)
		UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error)
		ListProfiles(ctx context.Context, role core.Role) ([]core.Profile, error)
	}

	// AdminUsers creates and removes accounts with elevated privileges.
	AdminUsers interface {
		CreateUser(ctx context.Context, in AdminUserInput) (core.Profile, error)
		UpdateUser(ctx context.Context, id string, in AdminUserInput) (core.Profile, error)
		DeleteUser(ctx context.Context, id string) error
	}

	// TokenSource hands out a valid access token for the signed-in user.
	TokenSource interface {
		AccessToken(ctx context.Context) (string, error)
	}

	// Backend bundles every data port of one implementation.
	Backend struct {
		Auth     Authenticator
		Account  Account
		Seasons  SeasonRepository
		Receipts ReceiptRepository
		Expenses ExpenseRepository
		Posts    PostRepository
		Profiles ProfileRepository
		Admin    AdminUsers
	}
)
