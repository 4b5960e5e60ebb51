package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tani/internal/core"
	"tani/internal/ports"
)

// maxBodyBytes caps request bodies; an expense with many line items stays
// far below it.
const maxBodyBytes = 1 << 20

// decodeJSON reads one JSON document into dst. Malformed bodies fail with
// errBadRequest; values rejected by a field's own parser keep their
// validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body too large", errBadRequest)
		}
		return fmt.Errorf("%w: malformed JSON body", errBadRequest)
	}
	return nil
}

// Num accepts a JSON number or a string typed the way people write
// amounts, such as "1.500.000" or "2,5".
type Num float64

func (n *Num) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		*n = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := core.ParseNum(s)
		if err != nil {
			return fmt.Errorf("%q: %w", s, err)
		}
		*n = Num(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return core.ErrInvalidNumber
	}
	*n = Num(f)
	return nil
}

func parseDateField(name, s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

type seasonRequest struct {
	Name      string `json:"name"`
	Commodity string `json:"commodity"`
	LandArea  Num    `json:"land_area"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Notes     string `json:"notes"`
}

func (q seasonRequest) season(id string) (core.Season, error) {
	if err := core.EnsureDates(q.StartDate, q.EndDate); err != nil {
		return core.Season{}, err
	}
	start, _ := core.ParseDate(q.StartDate)
	end, _ := core.ParseDate(q.EndDate)
	return core.Season{
		ID:        id,
		Name:      sanitizeInput(q.Name),
		Commodity: sanitizeInput(q.Commodity),
		LandArea:  float64(q.LandArea),
		StartDate: start,
		EndDate:   end,
		Notes:     sanitizeInput(q.Notes),
	}, nil
}

type receiptRequest struct {
	SeasonID    string `json:"season_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Quantity    Num    `json:"quantity"`
	Unit        string `json:"unit"`
	UnitPrice   Num    `json:"unit_price"`
	Buyer       string `json:"buyer"`
}

func (q receiptRequest) receipt(id string) (core.Receipt, error) {
	date, err := parseDateField("date", q.Date)
	if err != nil {
		return core.Receipt{}, err
	}
	return core.Receipt{
		ID:          id,
		SeasonID:    strings.TrimSpace(q.SeasonID),
		Date:        date,
		Description: sanitizeInput(q.Description),
		Quantity:    float64(q.Quantity),
		Unit:        sanitizeInput(q.Unit),
		UnitPrice:   float64(q.UnitPrice),
		Buyer:       sanitizeInput(q.Buyer),
	}, nil
}

type expenseItemRequest struct {
	Kind          core.ItemKind `json:"kind"`
	Name          string        `json:"name"`
	Quantity      Num           `json:"quantity"`
	Unit          string        `json:"unit"`
	UnitPrice     Num           `json:"unit_price"`
	Workers       Num           `json:"workers"`
	Days          Num           `json:"days"`
	Wage          Num           `json:"wage"`
	PurchasePrice Num           `json:"purchase_price"`
	SalvageValue  Num           `json:"salvage_value"`
	LifespanYears Num           `json:"lifespan_years"`
}

type expenseRequest struct {
	SeasonID string               `json:"season_id"`
	Date     string               `json:"date"`
	Type     core.ExpenseType     `json:"type"`
	Category string               `json:"category"`
	Note     string               `json:"note"`
	Items    []expenseItemRequest `json:"items"`
}

func (q expenseRequest) expense(id string) (core.Expense, error) {
	date, err := parseDateField("date", q.Date)
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		ID:       id,
		SeasonID: strings.TrimSpace(q.SeasonID),
		Date:     date,
		Type:     core.ExpenseType(strings.ToLower(strings.TrimSpace(string(q.Type)))),
		Category: sanitizeInput(q.Category),
		Note:     sanitizeInput(q.Note),
		Items:    make([]core.ExpenseItem, 0, len(q.Items)),
	}
	for _, it := range q.Items {
		e.Items = append(e.Items, core.ExpenseItem{
			Kind:          core.ItemKind(strings.ToLower(strings.TrimSpace(string(it.Kind)))),
			Name:          sanitizeInput(it.Name),
			Quantity:      float64(it.Quantity),
			Unit:          sanitizeInput(it.Unit),
			UnitPrice:     float64(it.UnitPrice),
			Workers:       float64(it.Workers),
			Days:          float64(it.Days),
			Wage:          float64(it.Wage),
			PurchasePrice: float64(it.PurchasePrice),
			SalvageValue:  float64(it.SalvageValue),
			LifespanYears: float64(it.LifespanYears),
		})
	}
	return e, nil
}

type postRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	ImageURL  string `json:"image_url"`
	Published bool   `json:"published"`
}

func (q postRequest) post(id string) core.Post {
	return core.Post{
		ID:        id,
		Title:     sanitizeInput(q.Title),
		Body:      sanitizeInput(q.Body),
		ImageURL:  strings.TrimSpace(q.ImageURL),
		Published: q.Published,
	}
}

type userRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	FullName string    `json:"full_name"`
	Phone    string    `json:"phone"`
	Village  string    `json:"village"`
	Role     core.Role `json:"role"`
}

func (q userRequest) input() ports.AdminUserInput {
	return ports.AdminUserInput{
		Email:    strings.TrimSpace(q.Email),
		Password: q.Password,
		FullName: sanitizeInput(q.FullName),
		Phone:    sanitizeInput(q.Phone),
		Village:  sanitizeInput(q.Village),
		Role:     core.Role(strings.ToLower(strings.TrimSpace(string(q.Role)))),
	}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Village  string `json:"village"`
	Remember bool   `json:"remember"`
}

func (q signUpRequest) registration() core.Registration {
	return core.Registration{
		Email:    strings.TrimSpace(q.Email),
		Password: q.Password,
		FullName: sanitizeInput(q.FullName),
		Phone:    sanitizeInput(q.Phone),
		Village:  sanitizeInput(q.Village),
	}
}

type profileRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Village  string `json:"village"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type seasonFilterRequest struct {
	SeasonID string `json:"season_id"`
}

type reportRequest struct {
	SeasonID string `json:"season_id"`
}
