package http

import (
	"net/http"
	"strings"

	"tani/internal/core"
)

// Seasons, receipts and expenses belong to farmer accounts.

// listScope resolves the season a list is narrowed to: an explicit
// season_id parameter (empty for all seasons) or else the stored filter.
func (s *Server) listScope(r *http.Request, userID string) (string, error) {
	if q := r.URL.Query(); q.Has("season_id") {
		return strings.TrimSpace(q.Get("season_id")), nil
	}
	return s.svc.SeasonFilter(r.Context(), userID)
}

type listResponse[T any] struct {
	SeasonID string `json:"season_id"`
	Items    []T    `json:"items"`
	Total    Num    `json:"total"`
}

// Seasons

func (s *Server) handleListSeasons(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	list := s.svc.ListSeasons
	if queryBool(r, "refresh") {
		list = s.svc.RefreshSeasons
	}
	seasons, err := list(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if seasons == nil {
		seasons = []core.Season{}
	}
	NewJSONResponse().Body(map[string]any{"items": seasons}).Write(w)
}

func (s *Server) handleGetSeason(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	season, err := s.svc.Season(r.Context(), p.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(season).Write(w)
}

func (s *Server) handleCreateSeason(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	var req seasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.season("")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.CreateSeason(r.Context(), p.ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Header("Location", "/api/seasons/"+out.ID).Body(out).Write(w)
}

func (s *Server) handleUpdateSeason(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req seasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.season(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.UpdateSeason(r.Context(), p.ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleDeleteSeason(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.DeleteSeason(r.Context(), p.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleGetSeasonFilter(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := s.svc.SeasonFilter(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(seasonFilterRequest{SeasonID: id}).Write(w)
}

func (s *Server) handleSetSeasonFilter(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	var req seasonFilterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := strings.TrimSpace(req.SeasonID)
	if err := s.svc.SetSeasonFilter(r.Context(), p.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(seasonFilterRequest{SeasonID: id}).Write(w)
}

// Receipts

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	seasonID, err := s.listScope(r, p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list := s.svc.ListReceipts
	if queryBool(r, "refresh") {
		list = s.svc.RefreshReceipts
	}
	receipts, err := list(r.Context(), p.ID, seasonID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := listResponse[core.Receipt]{SeasonID: seasonID, Items: receipts}
	if resp.Items == nil {
		resp.Items = []core.Receipt{}
	}
	for _, rc := range receipts {
		resp.Total += Num(rc.Total())
	}
	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Receipt(r.Context(), p.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	var req receiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.receipt("")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.CreateReceipt(r.Context(), p.ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Header("Location", "/api/receipts/"+out.ID).Body(out).Write(w)
}

func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req receiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.receipt(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.UpdateReceipt(r.Context(), p.ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.DeleteReceipt(r.Context(), p.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

// Expenses

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	seasonID, err := s.listScope(r, p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list := s.svc.ListExpenses
	if queryBool(r, "refresh") {
		list = s.svc.RefreshExpenses
	}
	expenses, err := list(r.Context(), p.ID, seasonID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := listResponse[core.Expense]{SeasonID: seasonID, Items: expenses}
	if resp.Items == nil {
		resp.Items = []core.Expense{}
	}
	for _, e := range expenses {
		resp.Total += Num(e.Total())
	}
	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Expense(r.Context(), p.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.expense("")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.CreateExpense(r.Context(), p.ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Header("Location", "/api/expenses/"+out.ID).Body(out).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := req.expense(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.UpdateExpense(r.Context(), p.ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleUser)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.DeleteExpense(r.Context(), p.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}
