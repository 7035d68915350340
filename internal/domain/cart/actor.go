package cart

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
)

// Actor is whoever owns a cart: a registered customer or an anonymous
// session.
type Actor struct {
	CustomerID int64
	SessionID  string
}

// CartID returns the cart identity of the actor. Registered customers keep
// one cart across sessions.
func (a Actor) CartID() string {
	if a.CustomerID != 0 {
		return "customer:" + strconv.FormatInt(a.CustomerID, 10)
	}
	return "session:" + a.SessionID
}

// Valid reports whether the actor can own a cart.
func (a Actor) Valid() bool {
	return a.CustomerID != 0 || a.SessionID != ""
}

// ErrNotFound is returned by a Store for a cart that does not exist.
var ErrNotFound = errors.New("cart not found")

// Store persists carts. Concurrent writers for the same cart overwrite each
// other; the last Save wins.
type Store interface {
	Load(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, id string) error
}
