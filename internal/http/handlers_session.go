package http

import (
	"net/http"

	"tani/internal/core"
	applog "tani/internal/log"
	"tani/internal/ports"
	"tani/internal/session"
)

// sessionResponse is the session snapshot plus where the client should go.
type sessionResponse struct {
	session.Status
	Pending bool `json:"pending_confirmation,omitempty"`
}

// requireRole resolves the signed-in profile or answers 401/403.
func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, roles ...core.Role) (core.Profile, bool) {
	p, err := s.session.RequireRole(roles...)
	if err != nil {
		s.writeError(w, r, err)
		return core.Profile{}, false
	}
	return p, true
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Header("Cache-Control", "no-store").Body(sessionResponse{Status: s.session.Status()}).Write(w)
}

// handleBootstrap runs the launch sequence and answers 303 to the route of
// the resolved role.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	st := s.session.Bootstrap(r.Context())
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Session bootstrapped",
		applog.FieldOperation, applog.OpBootstrap, "state", st.State, "route", st.Route)
	NewJSONResponse().
		Status(http.StatusSeeOther).
		Header("Location", st.Route).
		Header("Cache-Control", "no-store").
		Body(sessionResponse{Status: st}).
		Write(w)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.session.SignIn(r.Context(), req.Email, req.Password, req.Remember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusSeeOther).
		Header("Location", st.Route).
		Header("Cache-Control", "no-store").
		Body(sessionResponse{Status: st}).
		Write(w)
}

// handleSignUp answers 202 when the account waits for email confirmation
// and 303 to the landing route when it is usable right away.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.session.SignUp(r.Context(), req.registration(), req.Remember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := NewJSONResponse().Header("Cache-Control", "no-store").Body(sessionResponse{Status: out.Status, Pending: out.Pending})
	if out.Pending {
		resp.Status(http.StatusAccepted).Write(w)
		return
	}
	resp.Status(http.StatusSeeOther).Header("Location", out.Status.Route).Write(w)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.session.SignOut(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.session.ResetPassword(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusAccepted).Body(map[string]string{"status": "sent"}).Write(w)
}

func (s *Server) handleVerifyRecovery(w http.ResponseWriter, r *http.Request) {
	var req ports.RecoveryInput
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.session.VerifyRecovery(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r); !ok {
		return
	}
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.session.ChangeEmail(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Header("Cache-Control", "no-store").Body(sessionResponse{Status: s.session.Status()}).Write(w)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	out, err := s.svc.Profile(r.Context(), p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Header("Cache-Control", "no-store").Body(out).Write(w)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.UpdateProfile(r.Context(), p.ID, core.Profile{
		FullName: sanitizeInput(req.FullName),
		Phone:    sanitizeInput(req.Phone),
		Village:  sanitizeInput(req.Village),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(out).Write(w)
}
