// README: Driver registration used by the CLI to attach a phone number for SMS delivery.
package driver

import (
	"context"
	"strings"
	"time"

	"driverbuddy/internal/types"
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	Upsert(ctx context.Context, d *Driver) error
}

type Service struct {
	store Repository
}

func NewService(store Repository) *Service {
	return &Service{store: store}
}

type RegisterCommand struct {
	ID    types.ID
	Name  string
	Phone string
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Driver, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Phone = strings.TrimSpace(cmd.Phone)
	if cmd.ID == "" || cmd.Phone == "" {
		return nil, ErrBadRequest
	}
	if !strings.HasPrefix(cmd.Phone, "+") {
		return nil, ErrBadRequest
	}

	d := &Driver{ID: cmd.ID, Name: cmd.Name, Phone: cmd.Phone, CreatedAt: time.Now().UTC()}
	if existing, err := s.store.Get(ctx, cmd.ID); err == nil {
		d.CreatedAt = existing.CreatedAt
		if d.Name == "" {
			d.Name = existing.Name
		}
	} else if err != ErrNotFound {
		return nil, err
	}
	if d.Name == "" {
		d.Name = DefaultName(cmd.ID)
	}
	if err := s.store.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
