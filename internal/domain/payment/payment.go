// Package payment holds the registry of payment methods a customer can pick
// at checkout. Gateway integration lives outside this service.
package payment

import (
	"strings"

	"github.com/xenking/kart-orders/internal/domain/fault"
)

// Method is a payment method.
type Method struct {
	ID   string
	Name string
}

// Registry holds the enabled payment methods.
type Registry struct {
	methods []Method
	byID    map[string]Method
}

// NewRegistry creates a Registry of methods.
func NewRegistry(methods ...Method) *Registry {
	r := &Registry{byID: make(map[string]Method, len(methods))}
	for _, m := range methods {
		r.methods = append(r.methods, m)
		r.byID[m.ID] = m
	}
	return r
}

// ParseMethods builds methods from identifiers such as "cheque" or
// "cod:Cash on delivery".
func ParseMethods(entries []string) []Method {
	out := make([]Method, 0, len(entries))
	for _, entry := range entries {
		id, name, _ := strings.Cut(strings.TrimSpace(entry), ":")
		if id == "" {
			continue
		}
		if name == "" {
			name = id
		}
		out = append(out, Method{ID: id, Name: name})
	}
	return out
}

// Get returns the method with the given id or a *fault.NotFoundError.
func (r *Registry) Get(id string) (Method, error) {
	m, ok := r.byID[id]
	if !ok {
		return Method{}, &fault.NotFoundError{Kind: "payment method", ID: id}
	}
	return m, nil
}

// List returns the methods in registration order.
func (r *Registry) List() []Method {
	return append([]Method(nil), r.methods...)
}
