package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// Service resolves customers for carts, checkout and legacy ingestion.
type Service struct {
	repo Repository
}

// NewService creates a customer Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Current returns the customer acting under id. The guest is returned for
// GuestID without touching storage.
func (s *Service) Current(ctx context.Context, id int64) (Customer, error) {
	if id == GuestID {
		return Guest(), nil
	}
	c, err := s.repo.Find(ctx, id)
	if err != nil {
		return Customer{}, errors.Wrap(err, "find current customer")
	}
	return c.Snapshot(), nil
}

// Find returns the customer with the given id.
func (s *Service) Find(ctx context.Context, id int64) (*Customer, error) {
	if id == GuestID {
		g := Guest()
		return &g, nil
	}
	return s.repo.Find(ctx, id)
}

// FindAll lists every registered customer, preceded by the guest.
func (s *Service) FindAll(ctx context.Context) ([]Customer, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	out := make([]Customer, 0, len(list)+1)
	out = append(out, Guest())
	return append(out, list...), nil
}

// Save creates or updates a registered customer.
func (s *Service) Save(ctx context.Context, c *Customer) error {
	if c.IsGuest() && c.Login == "" {
		return errors.New("guest customer cannot be saved")
	}
	return s.repo.Save(ctx, c)
}
