package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tani/internal/core"
	"tani/internal/memory"
	"tani/internal/ports"
)

type mapFilters struct {
	mu sync.Mutex
	m  map[string]string
}

func (f *mapFilters) SeasonFilter(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m[userID], nil
}

func (f *mapFilters) SetSeasonFilter(_ context.Context, userID, seasonID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seasonID == "" {
		delete(f.m, userID)
		return nil
	}
	f.m[userID] = seasonID
	return nil
}

func newService(t *testing.T) (*Service, *memory.Store, *mapFilters) {
	t.Helper()
	store := memory.New()
	filters := &mapFilters{m: map[string]string{}}
	return New(Config{Backend: store.Backend(), Filters: filters, CacheTTL: time.Minute}), store, filters
}

func season(name string) core.Season {
	return core.Season{Name: name, Commodity: "padi", StartDate: core.NewDate(2025, 1, 1), EndDate: core.NewDate(2025, 4, 30)}
}

func TestListSeasonsRapidCallsFetchOnce(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	_, err := svc.CreateSeason(ctx, "u-1", season("MT I"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ListSeasons(ctx, "u-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, store.Calls("ListSeasons"))

	_, err = svc.CreateSeason(ctx, "u-1", season("MT II"))
	require.NoError(t, err)
	list, err := svc.ListSeasons(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, store.Calls("ListSeasons"))
}

func TestCreateSeasonRejectsReversedDates(t *testing.T) {
	svc, _, _ := newService(t)
	s := season("MT I")
	s.EndDate = core.NewDate(2024, 12, 31)
	_, err := svc.CreateSeason(context.Background(), "u-1", s)
	assert.ErrorIs(t, err, core.ErrInvalidDates)
}

func TestOtherUsersRecordsAreHidden(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	s, err := svc.CreateSeason(ctx, "u-1", season("MT I"))
	require.NoError(t, err)

	_, err = svc.Season(ctx, "u-2", s.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	_, err = svc.CreateReceipt(ctx, "u-2", core.Receipt{
		SeasonID: s.ID, Date: core.NewDate(2025, 4, 1), Description: "Gabah", Quantity: 10, UnitPrice: 5000,
	})
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteSeason(ctx, "u-2", s.ID), ports.ErrNotFound)
}

func TestReceiptsAndExpensesBySeason(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	a, err := svc.CreateSeason(ctx, "u-1", season("MT I"))
	require.NoError(t, err)
	b, err := svc.CreateSeason(ctx, "u-1", season("MT II"))
	require.NoError(t, err)

	for _, sid := range []string{a.ID, b.ID} {
		_, err := svc.CreateReceipt(ctx, "u-1", core.Receipt{
			SeasonID: sid, Date: core.NewDate(2025, 4, 1), Description: "Gabah", Quantity: 1000, UnitPrice: 6000,
		})
		require.NoError(t, err)
	}
	exp, err := svc.CreateExpense(ctx, "u-1", core.Expense{
		SeasonID: a.ID, Date: core.NewDate(2025, 1, 5), Type: core.ExpenseCash,
		Items: []core.ExpenseItem{{Kind: core.ItemCash, Name: "Urea", Quantity: 50, UnitPrice: 2500}},
	})
	require.NoError(t, err)

	all, err := svc.ListReceipts(ctx, "u-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	onlyA, err := svc.ListReceipts(ctx, "u-1", a.ID)
	require.NoError(t, err)
	assert.Len(t, onlyA, 1)

	exp.Items = append(exp.Items, core.ExpenseItem{Kind: core.ItemLabor, Name: "Tanam", Workers: 4, Days: 2, Wage: 75000})
	updated, err := svc.UpdateExpense(ctx, "u-1", exp)
	require.NoError(t, err)
	assert.Equal(t, 125000.0+600000.0, updated.Total())

	list, err := svc.ListExpenses(ctx, "u-1", a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Items, 2)

	require.NoError(t, svc.DeleteSeason(ctx, "u-1", a.ID))
	all, err = svc.ListReceipts(ctx, "u-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	list, err = svc.ListExpenses(ctx, "u-1", "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSeasonFilter(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	s, err := svc.CreateSeason(ctx, "u-1", season("MT I"))
	require.NoError(t, err)

	require.NoError(t, svc.SetSeasonFilter(ctx, "u-1", s.ID))
	got, err := svc.SeasonFilter(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got)

	assert.ErrorIs(t, svc.SetSeasonFilter(ctx, "u-1", "missing"), ports.ErrNotFound)

	require.NoError(t, svc.DeleteSeason(ctx, "u-1", s.ID))
	got, err = svc.SeasonFilter(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPostsVisibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	admin := core.Profile{ID: "a-1", Role: core.RoleAdmin}
	user := core.Profile{ID: "u-1", Role: core.RoleUser}

	_, err := svc.CreatePost(ctx, user, core.Post{Title: "x", Body: "y"})
	assert.ErrorIs(t, err, ErrNotAllowed)

	draft, err := svc.CreatePost(ctx, admin, core.Post{Title: "Jadwal tanam", Body: "Draf"})
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, admin, core.Post{Title: "Harga pupuk", Body: "Naik", Published: true})
	require.NoError(t, err)

	pub, err := svc.ListPublishedPosts(ctx)
	require.NoError(t, err)
	require.Len(t, pub, 1)
	assert.Equal(t, "Harga pupuk", pub[0].Title)

	_, err = svc.Post(ctx, user, draft.ID)
	assert.ErrorIs(t, err, ErrNotAllowed)

	draft.Published = true
	_, err = svc.UpdatePost(ctx, admin, draft)
	require.NoError(t, err)
	pub, err = svc.ListPublishedPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, pub, 2)

	_, err = svc.ListAllPosts(ctx, user)
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestAdminUserManagement(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	superID := store.AddUser("super@example.com", "rahasia", "Super", core.RoleSuperadmin)
	adminID := store.AddUser("admin@example.com", "rahasia", "Admin", core.RoleAdmin)
	super := core.Profile{ID: superID, Role: core.RoleSuperadmin}
	admin := core.Profile{ID: adminID, Role: core.RoleAdmin}

	_, err := svc.CreateUser(ctx, admin, ports.AdminUserInput{
		Email: "admin2@example.com", Password: "rahasia", FullName: "Admin 2", Role: core.RoleAdmin,
	})
	assert.ErrorIs(t, err, ErrNotAllowed)

	farmer, err := svc.CreateUser(ctx, admin, ports.AdminUserInput{
		Email: "Petani@Example.com", Password: "rahasia", FullName: "Petani",
	})
	require.NoError(t, err)
	assert.Equal(t, core.RoleUser, farmer.Role)
	assert.Equal(t, "petani@example.com", farmer.Email)

	admin2, err := svc.CreateUser(ctx, super, ports.AdminUserInput{
		Email: "admin2@example.com", Password: "rahasia", FullName: "Admin 2", Role: core.RoleAdmin,
	})
	require.NoError(t, err)

	users, err := svc.ListUsers(ctx, admin, "")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]string{farmer.ID}, ids(users)))

	users, err = svc.ListUsers(ctx, super, core.RoleAdmin)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{adminID, admin2.ID}, ids(users))

	_, err = svc.UpdateUser(ctx, admin, farmer.ID, ports.AdminUserInput{Role: core.RoleAdmin})
	assert.ErrorIs(t, err, ErrNotAllowed)
	upd, err := svc.UpdateUser(ctx, admin, farmer.ID, ports.AdminUserInput{FullName: "Pak Petani", Village: "Sukamaju"})
	require.NoError(t, err)
	assert.Equal(t, "Sukamaju", upd.Village)

	assert.ErrorIs(t, svc.DeleteUser(ctx, admin, admin2.ID), ErrNotAllowed)
	assert.ErrorIs(t, svc.DeleteUser(ctx, super, superID), ErrSelfDelete)
	require.NoError(t, svc.DeleteUser(ctx, super, admin2.ID))
	require.NoError(t, svc.DeleteUser(ctx, admin, farmer.ID))

	_, err = svc.ListUsers(ctx, core.Profile{ID: "u", Role: core.RoleUser}, "")
	assert.True(t, errors.Is(err, ports.ErrForbidden))
}

func TestUpdateProfileKeepsRole(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	id := store.AddUser("admin@example.com", "rahasia", "Admin", core.RoleAdmin)

	p, err := svc.UpdateProfile(ctx, id, core.Profile{FullName: " Bu Admin ", Role: core.RoleSuperadmin})
	require.NoError(t, err)
	assert.Equal(t, "Bu Admin", p.FullName)
	assert.Equal(t, core.RoleAdmin, p.Role)
}

func ids(ps []core.Profile) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

type fakePruner struct{ paths []string }

func (f fakePruner) PruneReportJobs(context.Context, time.Time) ([]string, error) {
	return f.paths, nil
}

func TestJanitorSweepRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "laporan.pdf")
	require.NoError(t, os.WriteFile(existing, []byte("%PDF"), 0o644))

	j := NewJanitor(fakePruner{paths: []string{existing, filepath.Join(dir, "gone.pdf")}}, JanitorConfig{}, nil)
	assert.Equal(t, 2, j.Sweep(context.Background()))
	_, err := os.Stat(existing)
	assert.True(t, os.IsNotExist(err))
}

func TestJanitorLifecycle(t *testing.T) {
	j := NewJanitor(fakePruner{}, JanitorConfig{Interval: time.Hour}, nil)
	ctx := context.Background()
	require.NoError(t, j.Start(ctx))
	assert.Error(t, j.Start(ctx))
	assert.True(t, j.IsRunning())
	require.NoError(t, j.Stop(ctx))
	assert.False(t, j.IsRunning())
	require.NoError(t, j.Stop(ctx))
}
