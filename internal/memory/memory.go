// Package memory is an in-process implementation of every data port. It
// backs tests and DATA_BACKEND=memory.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"tani/internal/core"
	"tani/internal/ports"
)

type Store struct {
	mu       sync.Mutex
	seasons  map[string]core.Season
	receipts map[string]core.Receipt
	expenses map[string]core.Expense
	posts    map[string]core.Post
	profiles map[string]core.Profile

	auth *authState
	now  func() time.Time

	calls map[string]int
}

func New() *Store {
	return &Store{
		seasons:  map[string]core.Season{},
		receipts: map[string]core.Receipt{},
		expenses: map[string]core.Expense{},
		posts:    map[string]core.Post{},
		profiles: map[string]core.Profile{},
		auth:     newAuthState(),
		now:      time.Now,
		calls:    map[string]int{},
	}
}

// Backend exposes the store through the port bundle.
func (s *Store) Backend() ports.Backend {
	return ports.Backend{
		Auth:     s,
		Account:  s,
		Seasons:  s,
		Receipts: s,
		Expenses: s,
		Posts:    s,
		Profiles: s,
		Admin:    s,
	}
}

// Calls returns how many times a list method ran. Tests use it to check
// request de-duplication.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Store) count(method string) {
	s.calls[method]++
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// Seasons

func (s *Store) ListSeasons(_ context.Context, userID string) ([]core.Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListSeasons")
	out := make([]core.Season, 0)
	for _, v := range s.seasons {
		if userID == "" || v.UserID == userID {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b core.Season) int {
		return b.StartDate.Compare(a.StartDate.Time)
	})
	return out, nil
}

func (s *Store) GetSeason(_ context.Context, id string) (core.Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.seasons[id]
	if !ok {
		return core.Season{}, ports.ErrNotFound
	}
	return v, nil
}

func (s *Store) CreateSeason(_ context.Context, v core.Season) (core.Season, error) {
	if err := v.Validate(); err != nil {
		return core.Season{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = uuid.NewString()
	v.CreatedAt = s.stamp()
	v.UpdatedAt = v.CreatedAt
	s.seasons[v.ID] = v
	return v, nil
}

func (s *Store) UpdateSeason(_ context.Context, v core.Season) (core.Season, error) {
	if err := v.Validate(); err != nil {
		return core.Season{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.seasons[v.ID]
	if !ok {
		return core.Season{}, ports.ErrNotFound
	}
	v.UserID = old.UserID
	v.CreatedAt = old.CreatedAt
	v.UpdatedAt = s.stamp()
	s.seasons[v.ID] = v
	return v, nil
}

// DeleteSeason removes the season and everything recorded against it.
func (s *Store) DeleteSeason(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seasons[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.seasons, id)
	for k, r := range s.receipts {
		if r.SeasonID == id {
			delete(s.receipts, k)
		}
	}
	for k, e := range s.expenses {
		if e.SeasonID == id {
			delete(s.expenses, k)
		}
	}
	return nil
}

// Receipts

func (s *Store) ListReceipts(_ context.Context, userID, seasonID string) ([]core.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListReceipts")
	out := make([]core.Receipt, 0)
	for _, v := range s.receipts {
		if (userID == "" || v.UserID == userID) && (seasonID == "" || v.SeasonID == seasonID) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b core.Receipt) int {
		return cmp.Or(b.Date.Compare(a.Date.Time), b.CreatedAt.Compare(a.CreatedAt))
	})
	return out, nil
}

func (s *Store) GetReceipt(_ context.Context, id string) (core.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.receipts[id]
	if !ok {
		return core.Receipt{}, ports.ErrNotFound
	}
	return v, nil
}

func (s *Store) CreateReceipt(_ context.Context, v core.Receipt) (core.Receipt, error) {
	if err := v.Validate(); err != nil {
		return core.Receipt{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seasons[v.SeasonID]; !ok {
		return core.Receipt{}, ports.ErrNotFound
	}
	v.ID = uuid.NewString()
	v.CreatedAt = s.stamp()
	v.UpdatedAt = v.CreatedAt
	s.receipts[v.ID] = v
	return v, nil
}

func (s *Store) UpdateReceipt(_ context.Context, v core.Receipt) (core.Receipt, error) {
	if err := v.Validate(); err != nil {
		return core.Receipt{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.receipts[v.ID]
	if !ok {
		return core.Receipt{}, ports.ErrNotFound
	}
	v.UserID = old.UserID
	v.CreatedAt = old.CreatedAt
	v.UpdatedAt = s.stamp()
	s.receipts[v.ID] = v
	return v, nil
}

func (s *Store) DeleteReceipt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.receipts, id)
	return nil
}

// Expenses

func (s *Store) ListExpenses(_ context.Context, userID, seasonID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListExpenses")
	out := make([]core.Expense, 0)
	for _, v := range s.expenses {
		if (userID == "" || v.UserID == userID) && (seasonID == "" || v.SeasonID == seasonID) {
			out = append(out, cloneExpense(v))
		}
	}
	slices.SortFunc(out, func(a, b core.Expense) int {
		return cmp.Or(b.Date.Compare(a.Date.Time), b.CreatedAt.Compare(a.CreatedAt))
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, ports.ErrNotFound
	}
	return cloneExpense(v), nil
}

func (s *Store) CreateExpense(_ context.Context, v core.Expense) (core.Expense, error) {
	if err := v.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seasons[v.SeasonID]; !ok {
		return core.Expense{}, ports.ErrNotFound
	}
	v = cloneExpense(v)
	v.ID = uuid.NewString()
	v.CreatedAt = s.stamp()
	v.UpdatedAt = v.CreatedAt
	assignItemIDs(&v)
	s.expenses[v.ID] = v
	return cloneExpense(v), nil
}

// UpdateExpense replaces the expense row and all of its items.
func (s *Store) UpdateExpense(_ context.Context, v core.Expense) (core.Expense, error) {
	if err := v.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.expenses[v.ID]
	if !ok {
		return core.Expense{}, ports.ErrNotFound
	}
	v = cloneExpense(v)
	v.UserID = old.UserID
	v.CreatedAt = old.CreatedAt
	v.UpdatedAt = s.stamp()
	for i := range v.Items {
		v.Items[i].ID = ""
	}
	assignItemIDs(&v)
	s.expenses[v.ID] = v
	return cloneExpense(v), nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func assignItemIDs(e *core.Expense) {
	for i := range e.Items {
		if e.Items[i].ID == "" {
			e.Items[i].ID = uuid.NewString()
		}
		e.Items[i].ExpenseID = e.ID
	}
}

func cloneExpense(e core.Expense) core.Expense {
	e.Items = slices.Clone(e.Items)
	return e
}

// Posts

func (s *Store) ListPosts(_ context.Context, publishedOnly bool) ([]core.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListPosts")
	out := make([]core.Post, 0)
	for _, v := range s.posts {
		if !publishedOnly || v.Published {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b core.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) GetPost(_ context.Context, id string) (core.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.posts[id]
	if !ok {
		return core.Post{}, ports.ErrNotFound
	}
	return v, nil
}

func (s *Store) CreatePost(_ context.Context, v core.Post) (core.Post, error) {
	if err := v.Validate(); err != nil {
		return core.Post{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = uuid.NewString()
	v.CreatedAt = s.stamp()
	v.UpdatedAt = v.CreatedAt
	s.posts[v.ID] = v
	return v, nil
}

func (s *Store) UpdatePost(_ context.Context, v core.Post) (core.Post, error) {
	if err := v.Validate(); err != nil {
		return core.Post{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.posts[v.ID]
	if !ok {
		return core.Post{}, ports.ErrNotFound
	}
	v.AuthorID = old.AuthorID
	v.CreatedAt = old.CreatedAt
	v.UpdatedAt = s.stamp()
	s.posts[v.ID] = v
	return v, nil
}

func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

// Profiles

func (s *Store) GetProfile(_ context.Context, userID string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.Profile{}, ports.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpsertProfile(_ context.Context, p core.Profile) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertProfileLocked(p), nil
}

func (s *Store) upsertProfileLocked(p core.Profile) core.Profile {
	now := s.stamp()
	if old, ok := s.profiles[p.ID]; ok {
		p.CreatedAt = old.CreatedAt
		if p.Role == "" {
			p.Role = old.Role
		}
		if p.Email == "" {
			p.Email = old.Email
		}
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.profiles[p.ID] = p
	return p
}

func (s *Store) ListProfiles(_ context.Context, role core.Role) ([]core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("ListProfiles")
	out := make([]core.Profile, 0)
	for _, p := range s.profiles {
		if role == "" || p.Role == role {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b core.Profile) int {
		return cmp.Compare(a.FullName, b.FullName)
	})
	return out, nil
}
