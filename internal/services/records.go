package services

import (
	"context"
	"fmt"

	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/ports"
)

// Receipts

// ListReceipts lists a user's receipts; seasonID "" means every season.
func (s *Service) ListReceipts(ctx context.Context, userID, seasonID string) ([]core.Receipt, error) {
	return s.receipts.Load(ctx, scopedKey(userID, seasonID), s.fetchReceipts(userID, seasonID))
}

func (s *Service) RefreshReceipts(ctx context.Context, userID, seasonID string) ([]core.Receipt, error) {
	return s.receipts.Refresh(ctx, scopedKey(userID, seasonID), s.fetchReceipts(userID, seasonID))
}

func (s *Service) fetchReceipts(userID, seasonID string) Fetch[[]core.Receipt] {
	return func(ctx context.Context) ([]core.Receipt, error) {
		return s.backend.Receipts.ListReceipts(ctx, userID, seasonID)
	}
}

func (s *Service) Receipt(ctx context.Context, userID, id string) (core.Receipt, error) {
	r, err := s.backend.Receipts.GetReceipt(ctx, id)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	if r.UserID != userID {
		return core.Receipt{}, fmt.Errorf("get receipt: %w", ports.ErrNotFound)
	}
	return r, nil
}

func (s *Service) CreateReceipt(ctx context.Context, userID string, in core.Receipt) (core.Receipt, error) {
	in.ID = ""
	in.UserID = userID
	if err := in.Validate(); err != nil {
		return core.Receipt{}, err
	}
	if _, err := s.Season(ctx, userID, in.SeasonID); err != nil {
		return core.Receipt{}, err
	}
	out, err := s.backend.Receipts.CreateReceipt(ctx, in)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("create receipt: %w", err)
	}
	s.receipts.InvalidatePrefix(userID + "/")
	return out, nil
}

func (s *Service) UpdateReceipt(ctx context.Context, userID string, in core.Receipt) (core.Receipt, error) {
	if _, err := s.Receipt(ctx, userID, in.ID); err != nil {
		return core.Receipt{}, err
	}
	in.UserID = userID
	if err := in.Validate(); err != nil {
		return core.Receipt{}, err
	}
	if _, err := s.Season(ctx, userID, in.SeasonID); err != nil {
		return core.Receipt{}, err
	}
	out, err := s.backend.Receipts.UpdateReceipt(ctx, in)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("update receipt: %w", err)
	}
	s.receipts.InvalidatePrefix(userID + "/")
	return out, nil
}

func (s *Service) DeleteReceipt(ctx context.Context, userID, id string) error {
	if _, err := s.Receipt(ctx, userID, id); err != nil {
		return err
	}
	if err := s.backend.Receipts.DeleteReceipt(ctx, id); err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	s.receipts.InvalidatePrefix(userID + "/")
	return nil
}

// Expenses

// ListExpenses lists a user's expenses with their line items.
func (s *Service) ListExpenses(ctx context.Context, userID, seasonID string) ([]core.Expense, error) {
	return s.expenses.Load(ctx, scopedKey(userID, seasonID), s.fetchExpenses(userID, seasonID))
}

func (s *Service) RefreshExpenses(ctx context.Context, userID, seasonID string) ([]core.Expense, error) {
	return s.expenses.Refresh(ctx, scopedKey(userID, seasonID), s.fetchExpenses(userID, seasonID))
}

func (s *Service) fetchExpenses(userID, seasonID string) Fetch[[]core.Expense] {
	return func(ctx context.Context) ([]core.Expense, error) {
		return s.backend.Expenses.ListExpenses(ctx, userID, seasonID)
	}
}

func (s *Service) Expense(ctx context.Context, userID, id string) (core.Expense, error) {
	e, err := s.backend.Expenses.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	if e.UserID != userID {
		return core.Expense{}, fmt.Errorf("get expense: %w", ports.ErrNotFound)
	}
	return e, nil
}

func (s *Service) CreateExpense(ctx context.Context, userID string, in core.Expense) (core.Expense, error) {
	in.ID = ""
	in.UserID = userID
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := s.Season(ctx, userID, in.SeasonID); err != nil {
		return core.Expense{}, err
	}
	out, err := s.backend.Expenses.CreateExpense(ctx, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	s.expenses.InvalidatePrefix(userID + "/")
	s.log.InfoContext(ctx, "Expense created",
		applog.FieldOperation, applog.OpCreate, applog.FieldUserID, userID,
		applog.FieldSeasonID, out.SeasonID, "items", len(out.Items))
	return out, nil
}

// UpdateExpense replaces the expense and all of its line items.
func (s *Service) UpdateExpense(ctx context.Context, userID string, in core.Expense) (core.Expense, error) {
	if _, err := s.Expense(ctx, userID, in.ID); err != nil {
		return core.Expense{}, err
	}
	in.UserID = userID
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	if _, err := s.Season(ctx, userID, in.SeasonID); err != nil {
		return core.Expense{}, err
	}
	out, err := s.backend.Expenses.UpdateExpense(ctx, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.expenses.InvalidatePrefix(userID + "/")
	return out, nil
}

func (s *Service) DeleteExpense(ctx context.Context, userID, id string) error {
	if _, err := s.Expense(ctx, userID, id); err != nil {
		return err
	}
	if err := s.backend.Expenses.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.expenses.InvalidatePrefix(userID + "/")
	return nil
}
