package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tani/internal/core"
	"tani/internal/ports"
)

// Write payloads leave out server-assigned columns.
type (
	seasonRow struct {
		UserID    string    `json:"user_id"`
		Name      string    `json:"name"`
		Commodity string    `json:"commodity"`
		LandArea  float64   `json:"land_area"`
		StartDate core.Date `json:"start_date"`
		EndDate   core.Date `json:"end_date"`
		Notes     string    `json:"notes"`
	}

	receiptRow struct {
		UserID      string    `json:"user_id"`
		SeasonID    string    `json:"season_id"`
		Date        core.Date `json:"date"`
		Description string    `json:"description"`
		Quantity    float64   `json:"quantity"`
		Unit        string    `json:"unit"`
		UnitPrice   float64   `json:"unit_price"`
		Buyer       string    `json:"buyer"`
	}

	expenseRow struct {
		UserID   string           `json:"user_id"`
		SeasonID string           `json:"season_id"`
		Date     core.Date        `json:"date"`
		Type     core.ExpenseType `json:"type"`
		Category string           `json:"category"`
		Note     string           `json:"note"`
	}

	itemRow struct {
		ExpenseID     string        `json:"expense_id"`
		Kind          core.ItemKind `json:"kind"`
		Name          string        `json:"name"`
		Quantity      float64       `json:"quantity"`
		Unit          string        `json:"unit"`
		UnitPrice     float64       `json:"unit_price"`
		Workers       float64       `json:"workers"`
		Days          float64       `json:"days"`
		Wage          float64       `json:"wage"`
		PurchasePrice float64       `json:"purchase_price"`
		SalvageValue  float64       `json:"salvage_value"`
		LifespanYears float64       `json:"lifespan_years"`
	}

	// expenseWithItems is the read shape with embedded expense_items.
	expenseWithItems struct {
		core.Expense
		EmbeddedItems []core.ExpenseItem `json:"expense_items"`
	}

	postRow struct {
		AuthorID  string `json:"author_id,omitempty"`
		Title     string `json:"title"`
		Body      string `json:"body"`
		ImageURL  string `json:"image_url"`
		Published bool   `json:"published"`
	}

	profileRow struct {
		ID       string    `json:"id"`
		Email    string    `json:"email,omitempty"`
		FullName string    `json:"full_name"`
		Phone    string    `json:"phone"`
		Village  string    `json:"village"`
		Role     core.Role `json:"role,omitempty"`
	}
)

func newSeasonRow(s core.Season) seasonRow {
	return seasonRow{s.UserID, s.Name, s.Commodity, s.LandArea, s.StartDate, s.EndDate, s.Notes}
}

func newReceiptRow(r core.Receipt) receiptRow {
	return receiptRow{r.UserID, r.SeasonID, r.Date, r.Description, r.Quantity, r.Unit, r.UnitPrice, r.Buyer}
}

func newItemRows(expenseID string, items []core.ExpenseItem) []itemRow {
	rows := make([]itemRow, len(items))
	for i, it := range items {
		rows[i] = itemRow{
			ExpenseID: expenseID, Kind: it.Kind, Name: it.Name,
			Quantity: it.Quantity, Unit: it.Unit, UnitPrice: it.UnitPrice,
			Workers: it.Workers, Days: it.Days, Wage: it.Wage,
			PurchasePrice: it.PurchasePrice, SalvageValue: it.SalvageValue, LifespanYears: it.LifespanYears,
		}
	}
	return rows
}

func (e expenseWithItems) expense() core.Expense {
	out := e.Expense
	if len(e.EmbeddedItems) > 0 {
		out.Items = e.EmbeddedItems
	}
	return out
}

// Seasons

func (s *Store) ListSeasons(ctx context.Context, userID string) ([]core.Season, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	q := s.c.From(tableSeasons).Select("*").Order("start_date", true)
	if userID != "" {
		q = q.Eq("user_id", userID)
	}
	var out []core.Season
	if err := q.Execute(ctx, tok, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetSeason(ctx context.Context, id string) (core.Season, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Season{}, err
	}
	var out []core.Season
	if err := s.c.From(tableSeasons).Select("*").Eq("id", id).Limit(1).Execute(ctx, tok, &out); err != nil {
		return core.Season{}, err
	}
	return first(out)
}

func (s *Store) CreateSeason(ctx context.Context, v core.Season) (core.Season, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Season{}, err
	}
	var out []core.Season
	if err := s.c.From(tableSeasons).Insert(ctx, tok, newSeasonRow(v), &out); err != nil {
		return core.Season{}, err
	}
	return first(out)
}

func (s *Store) UpdateSeason(ctx context.Context, v core.Season) (core.Season, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Season{}, err
	}
	var out []core.Season
	if err := s.c.From(tableSeasons).Eq("id", v.ID).Update(ctx, tok, newSeasonRow(v), &out); err != nil {
		return core.Season{}, err
	}
	return first(out)
}

func (s *Store) DeleteSeason(ctx context.Context, id string) error {
	tok, err := s.token(ctx)
	if err != nil {
		return err
	}
	return s.c.From(tableSeasons).Eq("id", id).Delete(ctx, tok)
}

// Receipts

func (s *Store) ListReceipts(ctx context.Context, userID, seasonID string) ([]core.Receipt, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	q := s.c.From(tableReceipts).Select("*").Order("date", true).Order("created_at", true)
	if userID != "" {
		q = q.Eq("user_id", userID)
	}
	if seasonID != "" {
		q = q.Eq("season_id", seasonID)
	}
	var out []core.Receipt
	if err := q.Execute(ctx, tok, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetReceipt(ctx context.Context, id string) (core.Receipt, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Receipt{}, err
	}
	var out []core.Receipt
	if err := s.c.From(tableReceipts).Select("*").Eq("id", id).Limit(1).Execute(ctx, tok, &out); err != nil {
		return core.Receipt{}, err
	}
	return first(out)
}

func (s *Store) CreateReceipt(ctx context.Context, v core.Receipt) (core.Receipt, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Receipt{}, err
	}
	var out []core.Receipt
	if err := s.c.From(tableReceipts).Insert(ctx, tok, newReceiptRow(v), &out); err != nil {
		return core.Receipt{}, err
	}
	return first(out)
}

func (s *Store) UpdateReceipt(ctx context.Context, v core.Receipt) (core.Receipt, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Receipt{}, err
	}
	var out []core.Receipt
	if err := s.c.From(tableReceipts).Eq("id", v.ID).Update(ctx, tok, newReceiptRow(v), &out); err != nil {
		return core.Receipt{}, err
	}
	return first(out)
}

func (s *Store) DeleteReceipt(ctx context.Context, id string) error {
	tok, err := s.token(ctx)
	if err != nil {
		return err
	}
	return s.c.From(tableReceipts).Eq("id", id).Delete(ctx, tok)
}

// Expenses

const expenseColumns = "*,expense_items(*)"

func (s *Store) ListExpenses(ctx context.Context, userID, seasonID string) ([]core.Expense, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	q := s.c.From(tableExpenses).Select(expenseColumns).Order("date", true).Order("created_at", true)
	if userID != "" {
		q = q.Eq("user_id", userID)
	}
	if seasonID != "" {
		q = q.Eq("season_id", seasonID)
	}
	var rows []expenseWithItems
	if err := q.Execute(ctx, tok, &rows); err != nil {
		return nil, err
	}
	out := make([]core.Expense, len(rows))
	for i, r := range rows {
		out[i] = r.expense()
	}
	return out, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Expense{}, err
	}
	var rows []expenseWithItems
	if err := s.c.From(tableExpenses).Select(expenseColumns).Eq("id", id).Limit(1).Execute(ctx, tok, &rows); err != nil {
		return core.Expense{}, err
	}
	row, err := first(rows)
	if err != nil {
		return core.Expense{}, err
	}
	return row.expense(), nil
}

// CreateExpense inserts the expense row, then its items. When the items
// insert fails the expense row is removed again.
func (s *Store) CreateExpense(ctx context.Context, v core.Expense) (core.Expense, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Expense{}, err
	}
	var created []core.Expense
	row := expenseRow{v.UserID, v.SeasonID, v.Date, v.Type, v.Category, v.Note}
	if err := s.c.From(tableExpenses).Insert(ctx, tok, row, &created); err != nil {
		return core.Expense{}, err
	}
	e, err := first(created)
	if err != nil {
		return core.Expense{}, err
	}

	items, err := s.insertItems(ctx, tok, e.ID, v.Items)
	if err != nil {
		if delErr := s.c.From(tableExpenses).Eq("id", e.ID).Delete(ctx, tok); delErr != nil {
			return core.Expense{}, fmt.Errorf("%w (rollback failed: %v)", err, delErr)
		}
		return core.Expense{}, err
	}
	e.Items = items
	return e, nil
}

// UpdateExpense patches the expense row and replaces all of its items.
// When the new items cannot be stored the previous row and items are put
// back.
func (s *Store) UpdateExpense(ctx context.Context, v core.Expense) (core.Expense, error) {
	prev, err := s.GetExpense(ctx, v.ID)
	if err != nil {
		return core.Expense{}, err
	}
	tok, err := s.token(ctx)
	if err != nil {
		return core.Expense{}, err
	}
	var updated []core.Expense
	row := expenseRow{v.UserID, v.SeasonID, v.Date, v.Type, v.Category, v.Note}
	if err := s.c.From(tableExpenses).Eq("id", v.ID).Update(ctx, tok, row, &updated); err != nil {
		return core.Expense{}, err
	}
	e, err := first(updated)
	if err != nil {
		return core.Expense{}, err
	}
	if err := s.c.From(tableExpenseItems).Eq("expense_id", v.ID).Delete(ctx, tok); err != nil {
		return core.Expense{}, s.restoreExpense(ctx, tok, prev, false, err)
	}
	items, err := s.insertItems(ctx, tok, v.ID, v.Items)
	if err != nil {
		return core.Expense{}, s.restoreExpense(ctx, tok, prev, true, err)
	}
	e.Items = items
	return e, nil
}

// restoreExpense writes prev back after a failed change and returns cause,
// annotated when the restore fails too. withItems re-inserts prev's items.
func (s *Store) restoreExpense(ctx context.Context, tok string, prev core.Expense, withItems bool, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	row := expenseRow{prev.UserID, prev.SeasonID, prev.Date, prev.Type, prev.Category, prev.Note}
	if err := s.c.From(tableExpenses).Eq("id", prev.ID).Update(ctx, tok, row, nil); err != nil {
		errs = append(errs, err)
	}
	if withItems {
		if _, err := s.insertItems(ctx, tok, prev.ID, prev.Items); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w (rollback failed: %v)", cause, errors.Join(errs...))
	}
	return cause
}

func (s *Store) insertItems(ctx context.Context, tok, expenseID string, items []core.ExpenseItem) ([]core.ExpenseItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var out []core.ExpenseItem
	if err := s.c.From(tableExpenseItems).Insert(ctx, tok, newItemRows(expenseID, items), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteExpense removes the items, then the expense row. When the row
// cannot be removed the items are inserted again.
func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	prev, err := s.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	tok, err := s.token(ctx)
	if err != nil {
		return err
	}
	if err := s.c.From(tableExpenseItems).Eq("expense_id", id).Delete(ctx, tok); err != nil {
		return err
	}
	if err := s.c.From(tableExpenses).Eq("id", id).Delete(ctx, tok); err != nil {
		if _, insErr := s.insertItems(context.WithoutCancel(ctx), tok, id, prev.Items); insErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, insErr)
		}
		return err
	}
	return nil
}

// Posts

func (s *Store) ListPosts(ctx context.Context, publishedOnly bool) ([]core.Post, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	q := s.c.From(tablePosts).Select("*").Order("created_at", true)
	if publishedOnly {
		q = q.Eq("published", strconv.FormatBool(true))
	}
	var out []core.Post
	if err := q.Execute(ctx, tok, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (core.Post, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Post{}, err
	}
	var out []core.Post
	if err := s.c.From(tablePosts).Select("*").Eq("id", id).Limit(1).Execute(ctx, tok, &out); err != nil {
		return core.Post{}, err
	}
	return first(out)
}

func (s *Store) CreatePost(ctx context.Context, v core.Post) (core.Post, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Post{}, err
	}
	var out []core.Post
	row := postRow{v.AuthorID, v.Title, v.Body, v.ImageURL, v.Published}
	if err := s.c.From(tablePosts).Insert(ctx, tok, row, &out); err != nil {
		return core.Post{}, err
	}
	return first(out)
}

func (s *Store) UpdatePost(ctx context.Context, v core.Post) (core.Post, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Post{}, err
	}
	var out []core.Post
	row := postRow{Title: v.Title, Body: v.Body, ImageURL: v.ImageURL, Published: v.Published}
	if err := s.c.From(tablePosts).Eq("id", v.ID).Update(ctx, tok, row, &out); err != nil {
		return core.Post{}, err
	}
	return first(out)
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	tok, err := s.token(ctx)
	if err != nil {
		return err
	}
	return s.c.From(tablePosts).Eq("id", id).Delete(ctx, tok)
}

// Profiles

func (s *Store) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Profile{}, err
	}
	var out []core.Profile
	if err := s.c.From(tableProfiles).Select("*").Eq("id", userID).Limit(1).Execute(ctx, tok, &out); err != nil {
		return core.Profile{}, err
	}
	return first(out)
}

func (s *Store) UpsertProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return core.Profile{}, err
	}
	row := profileRow{p.ID, p.Email, p.FullName, p.Phone, p.Village, p.Role}
	var out []core.Profile
	if err := s.c.From(tableProfiles).OnConflict("id").Upsert(ctx, tok, row, &out); err != nil {
		return core.Profile{}, err
	}
	return first(out)
}

func (s *Store) ListProfiles(ctx context.Context, role core.Role) ([]core.Profile, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	q := s.c.From(tableProfiles).Select("*").Order("full_name", false)
	if role != "" {
		q = q.Eq("role", string(role))
	}
	var out []core.Profile
	if err := q.Execute(ctx, tok, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ interface {
	ports.SeasonRepository
	ports.ReceiptRepository
	ports.ExpenseRepository
	ports.PostRepository
	ports.ProfileRepository
	ports.AdminUsers
	ports.Account
} = (*Store)(nil)

var _ ports.Authenticator = Auth{}
