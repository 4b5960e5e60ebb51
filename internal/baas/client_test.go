package baas

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tani/internal/ports"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL + "/", AnonKey: "anon"})
	require.NoError(t, err)
	return c
}

func signToken(t *testing.T, sub, email string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   exp.Unix(),
	})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New(Config{URL: "example.com"})
	assert.Error(t, err)
}

func TestSignInWithPassword(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signToken(t, "u-1", "budi@example.com", exp)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "rahasia" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"refresh_token": "r-1",
			"expires_in":    3600,
			"user":          map[string]any{"id": "u-1", "email": "budi@example.com"},
		})
	})

	s, err := c.SignInWithPassword(context.Background(), "budi@example.com", "rahasia")
	require.NoError(t, err)
	assert.Equal(t, "u-1", s.User.ID)
	assert.Equal(t, "r-1", s.RefreshToken)
	assert.WithinDuration(t, exp, s.ExpiresAt, 5*time.Second)

	_, err = c.SignInWithPassword(context.Background(), "budi@example.com", "salah")
	require.Error(t, err)
	assert.Equal(t, "Invalid login credentials", Message(err))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestSignUpPendingConfirmation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		data, _ := body["data"].(map[string]any)
		assert.Equal(t, "Pak Budi", data["full_name"])
		_, _ = io.WriteString(w, `{"id":"u-9","email":"budi@example.com"}`)
	})

	u, sess, err := c.SignUp(context.Background(), "budi@example.com", "rahasia", map[string]any{"full_name": "Pak Budi"})
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, "u-9", u.ID)
}

func TestQueryBuildsPostgRESTRequest(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = io.WriteString(w, `[{"id":"s1"},{"id":"s2"}]`)
	})

	var rows []struct{ ID string }
	err := c.From("seasons").
		Select("*").
		Eq("user_id", "u-1").
		Order("start_date", true).
		Order("created_at", true).
		Limit(50).
		Execute(context.Background(), "tok", &rows)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	q := got.URL.Query()
	assert.Equal(t, "/rest/v1/seasons", got.URL.Path)
	assert.Equal(t, "*", q.Get("select"))
	assert.Equal(t, "eq.u-1", q.Get("user_id"))
	assert.Equal(t, "start_date.desc,created_at.desc", q.Get("order"))
	assert.Equal(t, "50", q.Get("limit"))
	assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
}

func TestQueryIsImmutable(t *testing.T) {
	c, err := New(Config{URL: "http://localhost"})
	require.NoError(t, err)
	base := c.From("receipts").Eq("user_id", "u")
	a := base.Eq("season_id", "s1")
	b := base.Eq("season_id", "s2")
	assert.Equal(t, "eq.s1", a.Values().Get("season_id"))
	assert.Equal(t, "eq.s2", b.Values().Get("season_id"))
	assert.Empty(t, base.Values().Get("season_id"))
}

func TestSingleNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = io.WriteString(w, `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`)
	})
	var out map[string]any
	err := c.From("profiles").Eq("id", "x").Single().Execute(context.Background(), "tok", &out)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestUpdateAndDeleteRequireFilter(t *testing.T) {
	c, err := New(Config{URL: "http://localhost"})
	require.NoError(t, err)
	assert.Error(t, c.From("posts").Delete(context.Background(), "tok"))
	assert.Error(t, c.From("posts").Select("*").Update(context.Background(), "tok", map[string]any{"x": 1}, nil))
}

func TestUpsertSendsConflictTarget(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "id", r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")
		_, _ = io.WriteString(w, `[{"id":"u-1"}]`)
	})
	var out []map[string]any
	err := c.From("profiles").OnConflict("id").Upsert(context.Background(), "tok", map[string]any{"id": "u-1"}, &out)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestInvokeFunction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/admin-delete-user", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"Only superadmin can delete admins"}`)
	})
	err := c.Invoke(context.Background(), "tok", "admin-delete-user", map[string]string{"user_id": "u"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrForbidden))
	assert.Equal(t, "Only superadmin can delete admins", Message(err))
}

func TestAPIErrorFallsBackToBodyText(t *testing.T) {
	e := newAPIError(http.StatusBadGateway, []byte("upstream down"))
	assert.Equal(t, "upstream down", e.Message)
	e = newAPIError(http.StatusInternalServerError, nil)
	assert.Equal(t, "Internal Server Error", e.Message)
}

func TestParseClaims(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	c, err := ParseClaims(signToken(t, "u-7", "a@example.com", exp))
	require.NoError(t, err)
	assert.Equal(t, "u-7", c.Subject)
	assert.Equal(t, "a@example.com", c.Email)
	assert.True(t, exp.Equal(c.ExpiresAt))

	_, err = ParseClaims("not-a-jwt")
	assert.Error(t, err)
}

func TestObserverSeesEveryCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var kinds []string
	c, err := New(Config{URL: srv.URL, Observe: func(kind string, err error) { kinds = append(kinds, kind) }})
	require.NoError(t, err)
	require.NoError(t, c.SignOut(context.Background(), "tok"))
	require.NoError(t, c.From("posts").Eq("id", "p").Delete(context.Background(), "tok"))
	assert.Equal(t, []string{"auth", "rest"}, kinds)
}
