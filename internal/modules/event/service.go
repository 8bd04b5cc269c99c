// README: Read-only event queries backing the events listing and detail endpoints.
package event

import (
	"context"
	"errors"

	"driverbuddy/internal/types"
)

var (
	ErrNotFound   = errors.New("event not found")
	ErrConflict   = errors.New("event conflict")
	ErrBadRequest = errors.New("bad request")
)

type Reader interface {
	Get(ctx context.Context, id types.ID) (*Event, error)
	List(ctx context.Context, f Filter) ([]Event, int, error)
}

type Service struct {
	store Reader
}

func NewService(store Reader) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Event, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	if f.Type != "" && !f.Type.Valid() {
		return Page{}, ErrBadRequest
	}
	f = f.normalized()
	events, total, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Events: events, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}
