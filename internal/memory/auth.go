package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tani/internal/core"
	"tani/internal/ports"
)

var (
	ErrInvalidCredentials = fmt.Errorf("invalid login credentials: %w", ports.ErrUnauthorized)
	ErrEmailNotConfirmed  = fmt.Errorf("email not confirmed: %w", ports.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("invalid or expired token: %w", ports.ErrUnauthorized)
)

const tokenTTL = time.Hour

type account struct {
	id        string
	email     string
	password  string
	confirmed bool
}

type authState struct {
	accounts      map[string]*account // by lower-cased email
	refresh       map[string]string   // refresh token -> user id
	revoked       map[string]bool     // access tokens
	recovery      map[string]string   // email -> code
	secret        []byte
	confirmSignUp bool
	tokens        ports.TokenSource
}

func newAuthState() *authState {
	return &authState{
		accounts: map[string]*account{},
		refresh:  map[string]string{},
		revoked:  map[string]bool{},
		recovery: map[string]string{},
		secret:   []byte(uuid.NewString()),
	}
}

// RequireConfirmation makes SignUp return no session until ConfirmEmail is
// called, the way hosted auth behaves with email confirmation enabled.
func (s *Store) RequireConfirmation(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth.confirmSignUp = on
}

// SetTokenSource tells the account functions who the caller is.
func (s *Store) SetTokenSource(ts ports.TokenSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth.tokens = ts
}

// AddUser seeds an account with a profile and returns its id.
func (s *Store) AddUser(email, password, fullName string, role core.Role) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &account{id: uuid.NewString(), email: strings.ToLower(email), password: password, confirmed: true}
	s.auth.accounts[a.email] = a
	s.upsertProfileLocked(core.Profile{ID: a.id, Email: a.email, FullName: fullName, Role: role})
	return a.id
}

// ConfirmEmail marks a signed-up account as confirmed.
func (s *Store) ConfirmEmail(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auth.accounts[strings.ToLower(email)]
	if !ok {
		return ports.ErrNotFound
	}
	a.confirmed = true
	return nil
}

// RecoveryCode returns the code ResetPassword "emailed".
func (s *Store) RecoveryCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth.recovery[strings.ToLower(email)]
}

func (s *Store) SignIn(_ context.Context, email, password string) (ports.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auth.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok || a.password != password {
		return ports.Session{}, ErrInvalidCredentials
	}
	if !a.confirmed {
		return ports.Session{}, ErrEmailNotConfirmed
	}
	return s.issueLocked(a)
}

func (s *Store) SignUp(_ context.Context, email, password string, meta map[string]any) (ports.SignUpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(email))
	if _, exists := s.auth.accounts[key]; exists {
		return ports.SignUpResult{}, fmt.Errorf("user already registered: %w", ports.ErrConflict)
	}
	a := &account{id: uuid.NewString(), email: key, password: password, confirmed: !s.auth.confirmSignUp}
	s.auth.accounts[key] = a

	name, _ := meta["full_name"].(string)
	s.upsertProfileLocked(core.Profile{ID: a.id, Email: key, FullName: name, Role: core.RoleUser})

	res := ports.SignUpResult{UserID: a.id}
	if a.confirmed {
		sess, err := s.issueLocked(a)
		if err != nil {
			return ports.SignUpResult{}, err
		}
		res.Session = &sess
	}
	return res, nil
}

func (s *Store) Refresh(_ context.Context, refreshToken string) (ports.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.auth.refresh[refreshToken]
	if !ok {
		return ports.Session{}, ErrInvalidToken
	}
	delete(s.auth.refresh, refreshToken)
	for _, a := range s.auth.accounts {
		if a.id == userID {
			return s.issueLocked(a)
		}
	}
	return ports.Session{}, ErrInvalidToken
}

func (s *Store) SignOut(_ context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth.revoked[accessToken] = true
	return nil
}

func (s *Store) ResetPassword(_ context.Context, email, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := s.auth.accounts[key]; ok {
		s.auth.recovery[key] = strings.ToUpper(uuid.NewString()[:6])
	}
	return nil
}

func (s *Store) VerifyRecovery(_ context.Context, in ports.RecoveryInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(in.Email))
	code, ok := s.auth.recovery[key]
	if !ok || code != in.Token {
		return ErrInvalidToken
	}
	if len(in.NewPassword) < core.MinPasswordLength {
		return core.ErrWeakPassword
	}
	delete(s.auth.recovery, key)
	s.auth.accounts[key].password = in.NewPassword
	return nil
}

func (s *Store) ChangeEmail(ctx context.Context, newEmail string) error {
	if err := core.ValidateEmail(newEmail); err != nil {
		return err
	}
	s.mu.Lock()
	ts := s.auth.tokens
	s.mu.Unlock()
	if ts == nil {
		return ports.ErrUnauthorized
	}
	token, err := ts.AccessToken(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, err := s.subjectLocked(token)
	if err != nil {
		return err
	}
	key := strings.ToLower(newEmail)
	if _, taken := s.auth.accounts[key]; taken {
		return fmt.Errorf("email already in use: %w", ports.ErrConflict)
	}
	for old, a := range s.auth.accounts {
		if a.id == userID {
			delete(s.auth.accounts, old)
			a.email = key
			s.auth.accounts[key] = a
			if p, ok := s.profiles[userID]; ok {
				p.Email = key
				s.profiles[userID] = p
			}
			return nil
		}
	}
	return ports.ErrNotFound
}

// Admin user functions

func (s *Store) CreateUser(_ context.Context, in ports.AdminUserInput) (core.Profile, error) {
	if err := core.ValidateEmail(in.Email); err != nil {
		return core.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(in.Email)
	if _, exists := s.auth.accounts[key]; exists {
		return core.Profile{}, fmt.Errorf("email already in use: %w", ports.ErrConflict)
	}
	a := &account{id: uuid.NewString(), email: key, password: in.Password, confirmed: true}
	s.auth.accounts[key] = a
	return s.upsertProfileLocked(core.Profile{
		ID: a.id, Email: key, FullName: in.FullName, Phone: in.Phone, Village: in.Village, Role: in.Role,
	}), nil
}

func (s *Store) UpdateUser(_ context.Context, id string, in ports.AdminUserInput) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return core.Profile{}, ports.ErrNotFound
	}
	if in.Email != "" && !strings.EqualFold(in.Email, p.Email) {
		key := strings.ToLower(in.Email)
		if _, taken := s.auth.accounts[key]; taken {
			return core.Profile{}, fmt.Errorf("email already in use: %w", ports.ErrConflict)
		}
		if a, ok := s.auth.accounts[p.Email]; ok {
			delete(s.auth.accounts, p.Email)
			a.email = key
			s.auth.accounts[key] = a
		}
		p.Email = key
	}
	if in.Password != "" {
		if a, ok := s.auth.accounts[p.Email]; ok {
			a.password = in.Password
		}
	}
	p.FullName = in.FullName
	p.Phone = in.Phone
	p.Village = in.Village
	if in.Role != "" {
		p.Role = in.Role
	}
	return s.upsertProfileLocked(p), nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return ports.ErrNotFound
	}
	delete(s.profiles, id)
	delete(s.auth.accounts, p.Email)
	return nil
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Store) issueLocked(a *account) (ports.Session, error) {
	now := s.stamp()
	exp := now.Add(tokenTTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: a.email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.id,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(s.auth.secret)
	if err != nil {
		return ports.Session{}, fmt.Errorf("sign token: %w", err)
	}
	refresh := uuid.NewString()
	s.auth.refresh[refresh] = a.id
	return ports.Session{
		AccessToken:  signed,
		RefreshToken: refresh,
		ExpiresAt:    exp.Truncate(time.Second),
		UserID:       a.id,
		Email:        a.email,
	}, nil
}

func (s *Store) subjectLocked(token string) (string, error) {
	if s.auth.revoked[token] {
		return "", ErrInvalidToken
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.auth.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return c.Subject, nil
}
