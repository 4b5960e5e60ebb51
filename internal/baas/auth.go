package baas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Session is the token pair returned by the auth endpoints.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// tokenResponse covers both the token grant answer and the bare user the
// signup endpoint returns when email confirmation is pending.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`

	ID    string `json:"id"`
	Email string `json:"email"`
}

func (t tokenResponse) user() User {
	if t.User != nil {
		return *t.User
	}
	return User{ID: t.ID, Email: t.Email}
}

func (t tokenResponse) session(now time.Time) (Session, error) {
	if t.AccessToken == "" {
		return Session{}, errors.New("auth response carried no access token")
	}
	s := Session{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken, User: t.user()}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	default:
		if c, err := ParseClaims(t.AccessToken); err == nil {
			s.ExpiresAt = c.ExpiresAt
		}
	}
	if s.User.ID == "" {
		if c, err := ParseClaims(t.AccessToken); err == nil {
			s.User.ID = c.Subject
			if s.User.Email == "" {
				s.User.Email = c.Email
			}
		}
	}
	return s, nil
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	var out tokenResponse
	err := c.do(ctx, request{
		kind:   "auth",
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return Session{}, err
	}
	return out.session(time.Now())
}

// SignUp registers an account. The returned session is nil when the
// backend wants the email confirmed first.
func (c *Client) SignUp(ctx context.Context, email, password string, data map[string]any) (User, *Session, error) {
	body := map[string]any{"email": email, "password": password}
	if len(data) > 0 {
		body["data"] = data
	}
	var out tokenResponse
	err := c.do(ctx, request{
		kind:   "auth",
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   body,
	}, &out)
	if err != nil {
		return User{}, nil, err
	}
	if out.AccessToken == "" {
		return out.user(), nil, nil
	}
	s, err := out.session(time.Now())
	if err != nil {
		return User{}, nil, err
	}
	return s.User, &s, nil
}

// RefreshSession trades a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, errors.New("no refresh token")
	}
	var out tokenResponse
	err := c.do(ctx, request{
		kind:   "auth",
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &out)
	if err != nil {
		return Session{}, err
	}
	return out.session(time.Now())
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		kind:   "auth",
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  accessToken,
	}, nil)
}

// ResetPasswordForEmail asks the backend to email a recovery link.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	if err := c.do(ctx, request{
		kind:   "auth",
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		query:  q,
		body:   map[string]string{"email": email},
	}, nil); err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	return nil
}
