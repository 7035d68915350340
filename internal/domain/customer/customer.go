// Package customer defines customers and the addresses embedded by value in
// carts and orders.
package customer

import (
	"context"
	"strings"
)

// GuestID identifies the anonymous customer.
const GuestID int64 = 0

// Company turns an Address into a company address.
type Company struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id,omitempty"`
}

// Address is a billing or shipping address. Addresses are value objects:
// copying a Customer copies its addresses, and copies diverge freely.
type Address struct {
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Company   *Company `json:"company,omitempty"`
	Address   string   `json:"address,omitempty"`
	Country   string   `json:"country,omitempty"`
	State     string   `json:"state,omitempty"`
	Postcode  string   `json:"postcode,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Email     string   `json:"email,omitempty"`
}

// Name returns the full name on the address.
func (a Address) Name() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// IsCompany reports whether the address carries company details.
func (a Address) IsCompany() bool {
	return a.Company != nil
}

// IsZero reports whether no field is set.
func (a Address) IsZero() bool {
	return a.FirstName == "" && a.LastName == "" && a.Company == nil &&
		a.Address == "" && a.Country == "" && a.State == "" &&
		a.Postcode == "" && a.Phone == "" && a.Email == ""
}

// Clone returns a copy that shares nothing with a.
func (a Address) Clone() Address {
	if a.Company != nil {
		c := *a.Company
		a.Company = &c
	}
	return a
}

// Customer is a registered or guest customer. A Customer stored on an order
// is a snapshot taken at checkout.
type Customer struct {
	ID       int64   `json:"id"`
	Login    string  `json:"login,omitempty"`
	Email    string  `json:"email,omitempty"`
	Name     string  `json:"name,omitempty"`
	Billing  Address `json:"billing"`
	Shipping Address `json:"shipping"`
}

// Guest returns the anonymous customer.
func Guest() Customer {
	return Customer{ID: GuestID, Name: "Guest"}
}

// IsGuest reports whether c is the anonymous customer.
func (c Customer) IsGuest() bool {
	return c.ID == GuestID
}

// Snapshot returns a copy that later edits to c cannot reach.
func (c Customer) Snapshot() Customer {
	c.Billing = c.Billing.Clone()
	c.Shipping = c.Shipping.Clone()
	return c
}

// Repository defines persistence operations for customers. Find returns a
// *fault.NotFoundError for unknown IDs.
type Repository interface {
	Find(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context) ([]Customer, error)
	Save(ctx context.Context, c *Customer) error
}
