package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tani/internal/baas"
	"tani/internal/core"
	"tani/internal/ports"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

type recorded struct {
	method string
	path   string
	query  string
	body   string
}

func newStore(t *testing.T, h func(w http.ResponseWriter, r *http.Request)) (*Store, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recorded{r.Method, r.URL.Path, r.URL.RawQuery, string(body)})
		mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c, err := baas.New(baas.Config{URL: srv.URL, AnonKey: "anon"})
	require.NoError(t, err)
	return New(c, staticToken("tok")), &calls
}

func sampleExpense() core.Expense {
	return core.Expense{
		UserID:   "u-1",
		SeasonID: "s-1",
		Date:     core.NewDate(2025, 2, 1),
		Type:     core.ExpenseCash,
		Items: []core.ExpenseItem{
			{Kind: core.ItemCash, Name: "Urea", Quantity: 50, UnitPrice: 2500},
		},
	}
}

func TestCreateExpenseInsertsItems(t *testing.T) {
	s, calls := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/expenses":
			_, _ = io.WriteString(w, `[{"id":"e-1","user_id":"u-1","season_id":"s-1","date":"2025-02-01","type":"cash"}]`)
		case "/rest/v1/expense_items":
			_, _ = io.WriteString(w, `[{"id":"i-1","expense_id":"e-1","kind":"cash","name":"Urea","quantity":50,"unit_price":2500}]`)
		}
	})

	e, err := s.CreateExpense(context.Background(), sampleExpense())
	require.NoError(t, err)
	assert.Equal(t, "e-1", e.ID)
	require.Len(t, e.Items, 1)
	assert.Equal(t, 125000.0, e.Total())

	require.Len(t, *calls, 2)
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte((*calls)[1].body), &items))
	assert.Equal(t, "e-1", items[0]["expense_id"])
	assert.NotContains(t, (*calls)[0].body, "created_at")
}

func TestCreateExpenseRollsBackOnItemFailure(t *testing.T) {
	s, calls := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/v1/expenses" && r.Method == http.MethodPost:
			_, _ = io.WriteString(w, `[{"id":"e-2"}]`)
		case r.URL.Path == "/rest/v1/expense_items":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"message":"invalid input value for enum item_kind"}`)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	_, err := s.CreateExpense(context.Background(), sampleExpense())
	require.Error(t, err)
	assert.Equal(t, "invalid input value for enum item_kind", baas.Message(err))
	last := (*calls)[len(*calls)-1]
	assert.Equal(t, http.MethodDelete, last.method)
	assert.Equal(t, "id=eq.e-2", last.query)
}

const storedExpense = `[{"id":"e-1","user_id":"u-1","season_id":"s-1","date":"2025-02-01","type":"cash","note":"lama",
	"expense_items":[{"id":"i-1","expense_id":"e-1","kind":"cash","name":"Urea lama","quantity":20,"unit_price":2400}]}]`

func TestUpdateExpenseRestoresItemsOnFailure(t *testing.T) {
	var mu sync.Mutex
	itemPosts := 0
	s, calls := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/v1/expenses" && r.Method == http.MethodGet:
			_, _ = io.WriteString(w, storedExpense)
		case r.URL.Path == "/rest/v1/expenses" && r.Method == http.MethodPatch:
			_, _ = io.WriteString(w, `[{"id":"e-1"}]`)
		case r.URL.Path == "/rest/v1/expense_items" && r.Method == http.MethodPost:
			mu.Lock()
			itemPosts++
			n := itemPosts
			mu.Unlock()
			if n == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"message":"connection to database lost"}`)
				return
			}
			_, _ = io.WriteString(w, `[{"id":"i-2"}]`)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	v := sampleExpense()
	v.ID = "e-1"
	_, err := s.UpdateExpense(context.Background(), v)
	require.Error(t, err)
	assert.Equal(t, "connection to database lost", baas.Message(err))
	assert.NotContains(t, err.Error(), "rollback failed")

	got := *calls
	require.GreaterOrEqual(t, len(got), 2)
	restoreRow, restoreItems := got[len(got)-2], got[len(got)-1]
	assert.Equal(t, http.MethodPatch, restoreRow.method)
	assert.Contains(t, restoreRow.body, `"note":"lama"`)
	assert.Equal(t, http.MethodPost, restoreItems.method)
	assert.Equal(t, "/rest/v1/expense_items", restoreItems.path)
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(restoreItems.body), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Urea lama", items[0]["name"])
	assert.Equal(t, "e-1", items[0]["expense_id"])
}

func TestDeleteExpenseRestoresItemsOnFailure(t *testing.T) {
	s, calls := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/v1/expenses" && r.Method == http.MethodGet:
			_, _ = io.WriteString(w, storedExpense)
		case r.URL.Path == "/rest/v1/expenses" && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"message":"permission denied for table expenses"}`)
		case r.URL.Path == "/rest/v1/expense_items" && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/rest/v1/expense_items" && r.Method == http.MethodPost:
			_, _ = io.WriteString(w, `[{"id":"i-2"}]`)
		}
	})

	err := s.DeleteExpense(context.Background(), "e-1")
	require.ErrorIs(t, err, ports.ErrForbidden)

	last := (*calls)[len(*calls)-1]
	assert.Equal(t, http.MethodPost, last.method)
	assert.Equal(t, "/rest/v1/expense_items", last.path)
	assert.Contains(t, last.body, "Urea lama")
}

func TestListExpensesReadsEmbeddedItems(t *testing.T) {
	s, calls := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"e-1","type":"noncash","date":"2025-02-01",
			"expense_items":[{"id":"i-1","kind":"labor","name":"Tanam","workers":2,"days":3,"wage":80000}]}]`)
	})
	out, err := s.ListExpenses(context.Background(), "u-1", "s-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 480000.0, out[0].Total())
	assert.Contains(t, (*calls)[0].query, "season_id=eq.s-1")
}

func TestGetSeasonNotFound(t *testing.T) {
	s, _ := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	_, err := s.GetSeason(context.Background(), "missing")
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestDeleteUserInvokesFunction(t *testing.T) {
	s, calls := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	require.NoError(t, s.DeleteUser(context.Background(), "u-5"))
	assert.Equal(t, "/functions/v1/admin-delete-user", (*calls)[0].path)
	assert.JSONEq(t, `{"user_id":"u-5"}`, (*calls)[0].body)
}

func TestStoreWithoutTokenSource(t *testing.T) {
	c, err := baas.New(baas.Config{URL: "http://localhost"})
	require.NoError(t, err)
	_, err = New(c, nil).ListSeasons(context.Background(), "")
	assert.True(t, errors.Is(err, ports.ErrUnauthorized))
}
