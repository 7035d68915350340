package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/xenking/kart-orders/internal/domain/cart"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

const (
	// SessionCookie carries the anonymous cart session.
	SessionCookie = "kart_session"
	// CustomerHeader carries the registered customer ID. It is trusted as
	// set by the upstream authentication proxy.
	CustomerHeader = "X-Customer-ID"

	sessionMaxAge = 30 * 24 * 60 * 60
)

// actor identifies the cart owner of r. A session cookie is issued when the
// request carries none.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (cart.Actor, error) {
	var a cart.Actor
	if v := r.Header.Get(CustomerHeader); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return a, fault.Validation("invalid customer id %q", v)
		}
		a.CustomerID = id
	}

	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			a.SessionID = c.Value
			return a, nil
		}
	}
	a.SessionID = uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    a.SessionID,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return a, nil
}

// ActorKey identifies the client of r for request throttling: the
// customer, else the session, else the remote IP. Values that actor would
// reject fall through to the IP.
func ActorKey(r *http.Request) string {
	if id, err := strconv.ParseInt(r.Header.Get(CustomerHeader), 10, 64); err == nil && id > 0 {
		return "customer:" + strconv.FormatInt(id, 10)
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return "session:" + id.String()
		}
	}
	return "ip:" + httpmiddleware.RemoteIP(r)
}
