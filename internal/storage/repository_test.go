package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tani/internal/core"
	"tani/internal/ports"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "sub", "tani.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, ok, err := repo.Preference(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetPreference(ctx, "k", "v1"))
	require.NoError(t, repo.SetPreference(ctx, "k", "v2"))
	v, ok, err := repo.Preference(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, repo.DeletePreference(ctx, "k"))
	_, ok, err = repo.Preference(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRememberMeDefaultsOff(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	on, err := repo.RememberMe(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, repo.SetRememberMe(ctx, true))
	on, err = repo.RememberMe(ctx)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestSeasonFilterPerUser(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.SetSeasonFilter(ctx, "u-1", "s-1"))
	require.NoError(t, repo.SetSeasonFilter(ctx, "u-2", "s-9"))

	got, err := repo.SeasonFilter(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", got)

	require.NoError(t, repo.SetSeasonFilter(ctx, "u-1", ""))
	got, err = repo.SeasonFilter(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.SeasonFilter(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, "s-9", got)
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, ok, err := repo.LoadSession(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	exp := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	in := ports.Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: exp, UserID: "u-1", Email: "tani@example.com"}
	require.NoError(t, repo.SaveSession(ctx, in))

	in.AccessToken = "a2"
	require.NoError(t, repo.SaveSession(ctx, in))

	got, ok, err := repo.LoadSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, got)

	require.NoError(t, repo.ClearSession(ctx))
	_, ok, err = repo.LoadSession(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingRegistrationIgnoresPassword(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	reg := core.Registration{Email: " Budi@Example.com ", Password: "rahasia", FullName: "Budi", Village: "Sukamaju"}
	require.NoError(t, repo.SavePendingRegistration(ctx, reg))

	got, ok, err := repo.PendingRegistration(ctx, "budi@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "budi@example.com", got.Email)
	assert.Equal(t, "Budi", got.FullName)
	assert.Empty(t, got.Password)

	require.NoError(t, repo.DeletePendingRegistration(ctx, "BUDI@example.com"))
	_, ok, err = repo.PendingRegistration(ctx, "budi@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportJobs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := repo.CreateReportJob(ctx, core.ReportJob{ID: "j-1", UserID: "u-1", SeasonID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, core.JobQueued, first.Status)
	_, err = repo.CreateReportJob(ctx, core.ReportJob{ID: "j-2", UserID: "u-1", SeasonID: "s-2"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateReportJob(ctx, "j-1", core.JobDone, "/tmp/a.pdf", ""))
	err = repo.UpdateReportJob(ctx, "nope", core.JobDone, "", "")
	assert.True(t, errors.Is(err, ports.ErrNotFound))

	got, err := repo.GetReportJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, core.JobDone, got.Status)
	assert.Equal(t, "/tmp/a.pdf", got.FilePath)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	_, err = repo.GetReportJob(ctx, "nope")
	assert.True(t, errors.Is(err, ports.ErrNotFound))

	jobs, err := repo.ListReportJobs(ctx, "u-1", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j-2", jobs[0].ID)

	paths, err := repo.PruneReportJobs(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/a.pdf"}, paths)

	jobs, err = repo.ListReportJobs(ctx, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "j-2", jobs[0].ID)
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	v, dirty, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), v)
}
