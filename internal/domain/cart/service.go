package cart

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/message"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/shipping"
	"github.com/xenking/kart-orders/internal/domain/tax"
)

// Catalog resolves products added to a cart.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*product.Product, error)
}

// Customers resolves the customer acting on a cart.
type Customers interface {
	Current(ctx context.Context, id int64) (customer.Customer, error)
}

// Destination is the part of the shipping address that affects pricing.
type Destination struct {
	Country  string
	State    string
	Postcode string
}

// Service runs cart operations for an actor. Every mutation loads the
// cart, applies the change, re-prices coupons and shipping, and saves it
// back. A failed operation leaves the stored cart untouched.
type Service struct {
	store     Store
	catalog   Catalog
	customers Customers
	rates     tax.Rates
	shipping  *shipping.Registry
	coupons   coupon.Validator
	now       func() time.Time
}

// NewService creates a cart Service.
func NewService(
	store Store,
	catalog Catalog,
	customers Customers,
	rates tax.Rates,
	methods *shipping.Registry,
	coupons coupon.Validator,
) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		customers: customers,
		rates:     rates,
		shipping:  methods,
		coupons:   coupons,
		now:       time.Now,
	}
}

// Get returns the actor's cart, creating it on first access.
func (s *Service) Get(ctx context.Context, actor Actor) (*Cart, error) {
	if !actor.Valid() {
		return nil, fault.Validation("cart owner is unknown")
	}
	c, err := s.store.Load(ctx, actor.CartID())
	switch {
	case err == nil:
		return c, nil
	case !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "load cart")
	}

	cust, err := s.customers.Current(ctx, actor.CustomerID)
	if err != nil {
		if !fault.IsNotFound(err) {
			return nil, errors.Wrap(err, "resolve customer")
		}
		cust = customer.Guest()
	}
	c = New(actor.CartID(), cust)
	c.UpdatedAt = s.now()
	return c, nil
}

// AddProduct adds qty units of a product. Name, price and taxes are
// snapshotted from the catalog now.
func (s *Service) AddProduct(ctx context.Context, actor Actor, msgs message.Sink, productID int64, qty int, meta map[string]string) (*Cart, error) {
	if qty <= 0 {
		return nil, fault.Validation("quantity must be greater than 0, got %d", qty)
	}
	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &fault.ValidationError{
				Reason: fmt.Sprintf("product %d does not exist", productID),
				Err:    &fault.NotFoundError{Kind: "product", ID: strconv.FormatInt(productID, 10)},
			}
		}
		return nil, errors.Wrap(err, "get product")
	}

	typ := p.Type
	if typ == "" {
		typ = item.TypeProduct
	}
	it := &item.Item{
		Key:       item.KeyFor(p.ID, meta),
		ProductID: p.ID,
		Type:      typ,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  qty,
		Meta:      meta,
	}
	it.Taxes = s.rates.Calculate(p.TaxClasses, it.Subtotal())
	if err := it.Validate(); err != nil {
		return nil, err
	}

	return s.mutate(ctx, actor, msgs, func(c *Cart) error {
		line := c.Add(it)
		s.retax(line)
		msgs.Notice(fmt.Sprintf("%q was added to your cart.", p.Name))
		return nil
	})
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (s *Service) UpdateQuantity(ctx context.Context, actor Actor, msgs message.Sink, key string, qty int) (*Cart, error) {
	return s.mutate(ctx, actor, msgs, func(c *Cart) error {
		if err := c.UpdateQuantity(key, qty); err != nil {
			return err
		}
		if line, ok := c.Item(key); ok {
			s.retax(line)
		}
		msgs.Notice("Cart updated.")
		return nil
	})
}

// RemoveItem deletes a line.
func (s *Service) RemoveItem(ctx context.Context, actor Actor, msgs message.Sink, key string) (*Cart, error) {
	return s.mutate(ctx, actor, msgs, func(c *Cart) error {
		if err := c.Remove(key); err != nil {
			return err
		}
		msgs.Notice("Item removed from your cart.")
		return nil
	})
}

// SelectShipping picks a shipping method for the cart.
func (s *Service) SelectShipping(ctx context.Context, actor Actor, msgs message.Sink, methodID string) (*Cart, error) {
	return s.mutate(ctx, actor, msgs, func(c *Cart) error {
		m, err := s.shipping.Get(methodID)
		if err != nil {
			return &fault.ValidationError{Reason: err.Error(), Err: err}
		}
		subtotal := c.Subtotal()
		if !m.Available(subtotal) {
			return fault.Validation("shipping method %q is not available for this cart", m.Name())
		}
		c.Shipping = shipping.Select(m, subtotal)
		return nil
	})
}

// ChangeDestination updates the shipping destination and re-prices.
func (s *Service) ChangeDestination(ctx context.Context, actor Actor, msgs message.Sink, dst Destination) (*Cart, error) {
	country := strings.ToUpper(strings.TrimSpace(dst.Country))
	if len(country) != 2 {
		return nil, fault.Validation("country must be a two letter code, got %q", dst.Country)
	}
	return s.mutate(ctx, actor, msgs, func(c *Cart) error {
		c.Customer.Shipping.Country = country
		c.Customer.Shipping.State = strings.TrimSpace(dst.State)
		c.Customer.Shipping.Postcode = strings.TrimSpace(dst.Postcode)
		return nil
	})
}

// ApplyCoupon validates code against the cart and applies it.
func (s *Service) ApplyCoupon(ctx context.Context, actor Actor, msgs message.Sink, code string) (*Cart, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return s.mutate(ctx, actor, msgs, func(c *Cart) error {
		if c.HasCoupon(code) {
			return fault.Validation("coupon %q is already applied", code)
		}
		if _, err := s.coupons.Validate(ctx, code, c.CouponItems()); err != nil {
			if isCouponRejection(err) {
				return &fault.ValidationError{Reason: fmt.Sprintf("coupon %q: %v", code, err), Err: err}
			}
			return errors.Wrap(err, "validate coupon")
		}
		c.Coupons = append(c.Coupons, code)
		msgs.Notice(fmt.Sprintf("Coupon %q applied.", code))
		return nil
	})
}

// RemoveCoupon drops an applied coupon.
func (s *Service) RemoveCoupon(ctx context.Context, actor Actor, msgs message.Sink, code string) (*Cart, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return s.mutate(ctx, actor, msgs, func(c *Cart) error {
		for i, applied := range c.Coupons {
			if applied == code {
				c.Coupons = append(c.Coupons[:i], c.Coupons[i+1:]...)
				return nil
			}
		}
		return fault.Validation("coupon %q is not applied", code)
	})
}

// Clear discards the actor's cart.
func (s *Service) Clear(ctx context.Context, actor Actor) error {
	if err := s.store.Delete(ctx, actor.CartID()); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, actor Actor, msgs message.Sink, fn func(c *Cart) error) (*Cart, error) {
	c, err := s.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.reprice(ctx, c, msgs); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()
	if err := s.store.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// retax recomputes a line's taxes from its classes and current subtotal.
func (s *Service) retax(line *item.Item) {
	if line.Type != item.TypeProduct || len(line.Taxes) == 0 {
		return
	}
	line.Taxes = s.rates.Calculate(line.TaxClasses(), line.Subtotal())
}

func (s *Service) reprice(ctx context.Context, c *Cart, msgs message.Sink) error {
	if err := s.repriceCoupons(ctx, c, msgs); err != nil {
		return err
	}
	s.repriceShipping(c, msgs)
	return nil
}

func (s *Service) repriceCoupons(ctx context.Context, c *Cart, msgs message.Sink) error {
	total := decimal.Zero
	kept := c.Coupons[:0]
	items := c.CouponItems()
	for _, code := range c.Coupons {
		d, err := s.coupons.Validate(ctx, code, items)
		if err != nil {
			if !isCouponRejection(err) {
				return errors.Wrapf(err, "revalidate coupon %s", code)
			}
			msgs.Warning(fmt.Sprintf("Coupon %q was removed: %v.", code, err))
			continue
		}
		kept = append(kept, code)
		total = total.Add(d.Amount)
	}
	c.Coupons = kept
	c.Discount = decimal.Min(total, c.Subtotal())
	return nil
}

func (s *Service) repriceShipping(c *Cart, msgs message.Sink) {
	if c.IsEmpty() {
		c.Shipping = nil
		return
	}
	subtotal := c.Subtotal()
	if c.Shipping != nil {
		m, err := s.shipping.Get(c.Shipping.MethodID)
		if err == nil && m.Available(subtotal) {
			c.Shipping = shipping.Select(m, subtotal)
			return
		}
		msgs.Warning(fmt.Sprintf("Shipping method %q is no longer available.", c.Shipping.Name))
		c.Shipping = nil
	}
	if available := s.shipping.Available(subtotal); len(available) > 0 {
		c.Shipping = shipping.Select(available[0], subtotal)
	}
}

func isCouponRejection(err error) bool {
	return errors.Is(err, coupon.ErrInvalidCoupon) ||
		errors.Is(err, coupon.ErrCouponExpired) ||
		errors.Is(err, coupon.ErrCouponUsageLimitReached)
}
