package http

import (
	"net/http"
	"strings"

	"tani/internal/core"
)

// Posts

func (s *Server) handleListPublishedPosts(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r); !ok {
		return
	}
	posts, err := s.svc.ListPublishedPosts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if posts == nil {
		posts = []core.Post{}
	}
	NewJSONResponse().Body(map[string]any{"items": posts}).Write(w)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.svc.Post(r.Context(), p, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(post).Write(w)
}

func (s *Server) handleListAllPosts(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleAdmin, core.RoleSuperadmin)
	if !ok {
		return
	}
	posts, err := s.svc.ListAllPosts(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if posts == nil {
		posts = []core.Post{}
	}
	NewJSONResponse().Body(map[string]any{"items": posts}).Write(w)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleAdmin, core.RoleSuperadmin)
	if !ok {
		return
	}
	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.CreatePost(r.Context(), p, req.post(""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Header("Location", "/api/posts/"+out.ID).Body(out).Write(w)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleAdmin, core.RoleSuperadmin)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.UpdatePost(r.Context(), p, req.post(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleAdmin, core.RoleSuperadmin)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.DeletePost(r.Context(), p, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}

// Users

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleAdmin, core.RoleSuperadmin)
	if !ok {
		return
	}
	role := core.Role(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("role"))))
	if role != "" && !role.Valid() {
		s.writeError(w, r, core.ErrInvalidRole)
		return
	}
	users, err := s.svc.ListUsers(r.Context(), p, role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Header("Cache-Control", "no-store").Body(map[string]any{"items": users}).Write(w)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleAdmin, core.RoleSuperadmin)
	if !ok {
		return
	}
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.CreateUser(r.Context(), p, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(out).Write(w)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleAdmin, core.RoleSuperadmin)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.UpdateUser(r.Context(), p, id, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireRole(w, r, core.RoleAdmin, core.RoleSuperadmin)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.DeleteUser(r.Context(), p, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	NoContent().Write(w)
}
