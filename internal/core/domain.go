package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

const (
	ExpenseCash    ExpenseType = "cash"
	ExpenseNonCash ExpenseType = "noncash"
)

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

const (
	ItemCash  ItemKind = "cash"
	ItemLabor ItemKind = "labor"
	ItemTool  ItemKind = "tool"
	ItemExtra ItemKind = "extra"
)

type (
	Role        string
	ExpenseType string
	ItemKind    string
	JobStatus   string

	Profile struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		FullName  string    `json:"full_name"`
		Phone     string    `json:"phone,omitempty"`
		Village   string    `json:"village,omitempty"`
		Role      Role      `json:"role"`
		CreatedAt time.Time `json:"created_at,omitempty"`
		UpdatedAt time.Time `json:"updated_at,omitempty"`
	}

	// Season is a planting/harvest period that bounds receipts and expenses.
	Season struct {
		ID        string    `json:"id,omitempty"`
		UserID    string    `json:"user_id"`
		Name      string    `json:"name"`
		Commodity string    `json:"commodity,omitempty"`
		LandArea  float64   `json:"land_area,omitempty"` // hectares
		StartDate Date      `json:"start_date"`
		EndDate   Date      `json:"end_date"`
		Notes     string    `json:"notes,omitempty"`
		CreatedAt time.Time `json:"created_at,omitempty"`
		UpdatedAt time.Time `json:"updated_at,omitempty"`
	}

	// Receipt is an income transaction: quantity sold times unit price.
	Receipt struct {
		ID          string    `json:"id,omitempty"`
		UserID      string    `json:"user_id"`
		SeasonID    string    `json:"season_id"`
		Date        Date      `json:"date"`
		Description string    `json:"description"`
		Quantity    float64   `json:"quantity"`
		Unit        string    `json:"unit,omitempty"`
		UnitPrice   float64   `json:"unit_price"`
		Buyer       string    `json:"buyer,omitempty"`
		CreatedAt   time.Time `json:"created_at,omitempty"`
		UpdatedAt   time.Time `json:"updated_at,omitempty"`
	}

	Expense struct {
		ID        string        `json:"id,omitempty"`
		UserID    string        `json:"user_id"`
		SeasonID  string        `json:"season_id"`
		Date      Date          `json:"date"`
		Type      ExpenseType   `json:"type"`
		Category  string        `json:"category,omitempty"`
		Note      string        `json:"note,omitempty"`
		Items     []ExpenseItem `json:"items,omitempty"`
		CreatedAt time.Time     `json:"created_at,omitempty"`
		UpdatedAt time.Time     `json:"updated_at,omitempty"`
	}

	// ExpenseItem is a polymorphic line item. Which fields matter depends
	// on Kind: cash/extra use Quantity*UnitPrice, labor uses
	// Workers*Days*Wage, tool uses the depreciation inputs.
	ExpenseItem struct {
		ID            string   `json:"id,omitempty"`
		ExpenseID     string   `json:"expense_id,omitempty"`
		Kind          ItemKind `json:"kind"`
		Name          string   `json:"name"`
		Quantity      float64  `json:"quantity,omitempty"`
		Unit          string   `json:"unit,omitempty"`
		UnitPrice     float64  `json:"unit_price,omitempty"`
		Workers       float64  `json:"workers,omitempty"`
		Days          float64  `json:"days,omitempty"`
		Wage          float64  `json:"wage,omitempty"`
		PurchasePrice float64  `json:"purchase_price,omitempty"`
		SalvageValue  float64  `json:"salvage_value,omitempty"`
		LifespanYears float64  `json:"lifespan_years,omitempty"`
	}

	// Post is informational content published by administrators.
	Post struct {
		ID        string    `json:"id,omitempty"`
		AuthorID  string    `json:"author_id,omitempty"`
		Title     string    `json:"title"`
		Body      string    `json:"body"`
		ImageURL  string    `json:"image_url,omitempty"`
		Published bool      `json:"published"`
		CreatedAt time.Time `json:"created_at,omitempty"`
		UpdatedAt time.Time `json:"updated_at,omitempty"`
	}

	// Farm identifies the household on printed reports.
	Farm struct {
		Name      string  `json:"name" toml:"name"`
		Owner     string  `json:"owner" toml:"owner"`
		Village   string  `json:"village" toml:"village"`
		District  string  `json:"district" toml:"district"`
		Province  string  `json:"province" toml:"province"`
		Latitude  float64 `json:"latitude" toml:"latitude"`
		Longitude float64 `json:"longitude" toml:"longitude"`
	}

	// ReportJob tracks one PDF report request from queueing to download.
	ReportJob struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		SeasonID  string    `json:"season_id"`
		Status    JobStatus `json:"status"`
		FilePath  string    `json:"file_path,omitempty"`
		Error     string    `json:"error,omitempty"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// Registration holds the profile fields collected at sign-up. It is kept
	// locally until the first sign-in when email confirmation is required.
	Registration struct {
		Email    string `json:"email"`
		Password string `json:"password,omitempty"`
		FullName string `json:"full_name"`
		Phone    string `json:"phone,omitempty"`
		Village  string `json:"village,omitempty"`
	}
)

// MinPasswordLength is the shortest password the backend accepts.
const MinPasswordLength = 6

var (
	ErrEmptyName        = invalid("empty name")
	ErrEmptyDescription = invalid("empty description")
	ErrEmptyTitle       = invalid("empty title")
	ErrEmptySeason      = invalid("season is required")
	ErrInvalidQuantity  = invalid("quantity must be greater than zero")
	ErrInvalidPrice     = invalid("price must not be negative")
	ErrInvalidKind      = invalid("invalid line item kind")
	ErrInvalidType      = invalid("invalid expense type")
	ErrNoItems          = invalid("expense needs at least one line item")
	ErrInvalidEmail     = invalid("invalid email address")
	ErrWeakPassword     = invalid("password must be at least 6 characters")
	ErrInvalidRole      = invalid("invalid role")
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// IsAdmin is true for admin and superadmin.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// CanManage reports whether an account with role r may create, edit or
// delete an account with role target.
func (r Role) CanManage(target Role) bool {
	switch r {
	case RoleSuperadmin:
		return target == RoleUser || target == RoleAdmin
	case RoleAdmin:
		return target == RoleUser
	}
	return false
}

func (s Season) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if len(s.Name) > 120 {
		return invalid("name too long (max 120 characters)")
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return ErrInvalidDate
	}
	if s.EndDate.Before(s.StartDate.Time) {
		return ErrInvalidDates
	}
	if s.LandArea < 0 {
		return invalid("land area must not be negative")
	}
	return nil
}

// Total is the receipt value.
func (r Receipt) Total() float64 {
	return r.Quantity * r.UnitPrice
}

func (r Receipt) Validate() error {
	if strings.TrimSpace(r.SeasonID) == "" {
		return ErrEmptySeason
	}
	if r.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(r.Description) == "" {
		return ErrEmptyDescription
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if r.UnitPrice < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Finished is true for done and failed jobs.
func (s JobStatus) Finished() bool {
	return s == JobDone || s == JobFailed
}

func (t ExpenseType) Valid() bool {
	return t == ExpenseCash || t == ExpenseNonCash
}

// Amount is the undiscounted value of the line item. For tools it is the
// yearly straight-line depreciation.
func (it ExpenseItem) Amount() float64 {
	switch it.Kind {
	case ItemCash, ItemExtra:
		return it.Quantity * it.UnitPrice
	case ItemLabor:
		return it.Workers * it.Days * it.Wage
	case ItemTool:
		if it.LifespanYears <= 0 {
			return 0
		}
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		return qty * (it.PurchasePrice - it.SalvageValue) / it.LifespanYears
	}
	return 0
}

func (it ExpenseItem) Validate() error {
	if strings.TrimSpace(it.Name) == "" {
		return ErrEmptyName
	}
	switch it.Kind {
	case ItemCash, ItemExtra:
		if it.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if it.UnitPrice < 0 {
			return ErrInvalidPrice
		}
	case ItemLabor:
		if it.Workers <= 0 || it.Days <= 0 {
			return invalid("labor needs workers and days greater than zero")
		}
		if it.Wage < 0 {
			return ErrInvalidPrice
		}
	case ItemTool:
		if it.LifespanYears <= 0 {
			return invalid("tool lifespan must be greater than zero")
		}
		if it.PurchasePrice < 0 || it.SalvageValue < 0 {
			return ErrInvalidPrice
		}
		if it.SalvageValue > it.PurchasePrice {
			return invalid("salvage value exceeds purchase price")
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, it.Kind)
	}
	return nil
}

// Total sums the line item amounts.
func (e Expense) Total() float64 {
	var sum float64
	for _, it := range e.Items {
		sum += it.Amount()
	}
	return sum
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.SeasonID) == "" {
		return ErrEmptySeason
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, e.Type)
	}
	if len(e.Items) == 0 {
		return ErrNoItems
	}
	for i, it := range e.Items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	return nil
}

func (p Post) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrEmptyTitle
	}
	if len(p.Title) > 200 {
		return invalid("title too long (max 200 characters)")
	}
	if strings.TrimSpace(p.Body) == "" {
		return invalid("empty body")
	}
	return nil
}

// ValidateEmail checks the address syntax only.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return ErrInvalidEmail
	}
	return nil
}

func (r Registration) Validate() error {
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	if len(r.Password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if strings.TrimSpace(r.FullName) == "" {
		return ErrEmptyName
	}
	return nil
}

// ErrValidation matches every input validation error of this package with
// errors.Is.
var ErrValidation = errors.New("validation failed")

type validationError string

func (e validationError) Error() string { return string(e) }

func (e validationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return validationError(msg) }
