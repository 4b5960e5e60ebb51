package services

import (
	"context"
	"fmt"

	"tani/internal/core"
	applog "tani/internal/log"
)

const (
	postsPublished = "published"
	postsAll       = "all"
)

// ListPublishedPosts is the information feed every account sees.
func (s *Service) ListPublishedPosts(ctx context.Context) ([]core.Post, error) {
	return s.posts.Load(ctx, postsPublished, func(ctx context.Context) ([]core.Post, error) {
		return s.backend.Posts.ListPosts(ctx, true)
	})
}

// ListAllPosts includes drafts and is limited to administrators.
func (s *Service) ListAllPosts(ctx context.Context, actor core.Profile) ([]core.Post, error) {
	if !actor.Role.IsAdmin() {
		return nil, ErrNotAllowed
	}
	return s.posts.Load(ctx, postsAll, func(ctx context.Context) ([]core.Post, error) {
		return s.backend.Posts.ListPosts(ctx, false)
	})
}

func (s *Service) Post(ctx context.Context, actor core.Profile, id string) (core.Post, error) {
	p, err := s.backend.Posts.GetPost(ctx, id)
	if err != nil {
		return core.Post{}, fmt.Errorf("get post: %w", err)
	}
	if !p.Published && !actor.Role.IsAdmin() {
		return core.Post{}, ErrNotAllowed
	}
	return p, nil
}

func (s *Service) CreatePost(ctx context.Context, actor core.Profile, in core.Post) (core.Post, error) {
	if !actor.Role.IsAdmin() {
		return core.Post{}, ErrNotAllowed
	}
	in.ID = ""
	in.AuthorID = actor.ID
	if err := in.Validate(); err != nil {
		return core.Post{}, err
	}
	out, err := s.backend.Posts.CreatePost(ctx, in)
	if err != nil {
		return core.Post{}, fmt.Errorf("create post: %w", err)
	}
	s.posts.InvalidatePrefix("")
	s.log.InfoContext(ctx, "Post created",
		applog.FieldOperation, applog.OpCreate, applog.FieldUserID, actor.ID, "post_id", out.ID)
	return out, nil
}

func (s *Service) UpdatePost(ctx context.Context, actor core.Profile, in core.Post) (core.Post, error) {
	if !actor.Role.IsAdmin() {
		return core.Post{}, ErrNotAllowed
	}
	old, err := s.backend.Posts.GetPost(ctx, in.ID)
	if err != nil {
		return core.Post{}, fmt.Errorf("get post: %w", err)
	}
	in.AuthorID = old.AuthorID
	if err := in.Validate(); err != nil {
		return core.Post{}, err
	}
	out, err := s.backend.Posts.UpdatePost(ctx, in)
	if err != nil {
		return core.Post{}, fmt.Errorf("update post: %w", err)
	}
	s.posts.InvalidatePrefix("")
	return out, nil
}

func (s *Service) DeletePost(ctx context.Context, actor core.Profile, id string) error {
	if !actor.Role.IsAdmin() {
		return ErrNotAllowed
	}
	if err := s.backend.Posts.DeletePost(ctx, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	s.posts.InvalidatePrefix("")
	return nil
}
