// Package shipping provides the shipping method registry and the methods
// a cart can select.
package shipping

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/money"
)

// Method is a shipping method that can price a cart.
type Method interface {
	ID() string
	Name() string
	// Available reports whether the method can ship a cart with the given
	// subtotal.
	Available(subtotal decimal.Decimal) bool
	Rate(subtotal decimal.Decimal) decimal.Decimal
	// State returns a serializable snapshot of the method's current rate
	// configuration.
	State() map[string]string
}

// Selection is a shipping method captured on a cart or order. It does not
// follow later changes to the registry.
type Selection struct {
	MethodID string            `json:"method"`
	Name     string            `json:"name"`
	Rate     decimal.Decimal   `json:"rate"`
	State    map[string]string `json:"state,omitempty"`
}

// Select prices m for subtotal and captures the result.
func Select(m Method, subtotal decimal.Decimal) *Selection {
	return &Selection{
		MethodID: m.ID(),
		Name:     m.Name(),
		Rate:     money.Round(m.Rate(subtotal)),
		State:    m.State(),
	}
}

// Clone returns a copy that shares nothing with s.
func (s *Selection) Clone() *Selection {
	if s == nil {
		return nil
	}
	out := *s
	if s.State != nil {
		out.State = make(map[string]string, len(s.State))
		for k, v := range s.State {
			out.State[k] = v
		}
	}
	return &out
}

// Registry holds the configured shipping methods in registration order.
type Registry struct {
	methods []Method
	byID    map[string]Method
}

// NewRegistry creates a Registry of methods.
func NewRegistry(methods ...Method) *Registry {
	r := &Registry{byID: make(map[string]Method, len(methods))}
	for _, m := range methods {
		r.methods = append(r.methods, m)
		r.byID[m.ID()] = m
	}
	return r
}

// Get returns the method with the given id or a *fault.NotFoundError.
func (r *Registry) Get(id string) (Method, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, &fault.NotFoundError{Kind: "shipping method", ID: id}
	}
	return m, nil
}

// Available lists the methods that can ship subtotal.
func (r *Registry) Available(subtotal decimal.Decimal) []Method {
	var out []Method
	for _, m := range r.methods {
		if m.Available(subtotal) {
			out = append(out, m)
		}
	}
	return out
}
