package legacy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/fault"
	"github.com/xenking/kart-orders/internal/domain/item"
	"github.com/xenking/kart-orders/internal/domain/message"
	"github.com/xenking/kart-orders/internal/domain/money"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/shipping"
)

// DefaultTaxClass is used for exported lines without a tax class.
const DefaultTaxClass = "standard"

// Customers finds registered customers referenced by exported orders.
type Customers interface {
	Find(ctx context.Context, id int64) (*customer.Customer, error)
}

// Converter turns exported records into unsaved orders. Missing shipping
// or payment methods and unknown customers are reported to msgs and the
// order is converted without them.
type Converter struct {
	customers Customers
	shipping  order.ShippingMethods
	payments  order.PaymentMethods
	msgs      message.Sink
}

// NewConverter creates a Converter.
func NewConverter(
	customers Customers,
	shippingMethods order.ShippingMethods,
	payments order.PaymentMethods,
	msgs message.Sink,
) *Converter {
	return &Converter{
		customers: customers,
		shipping:  shippingMethods,
		payments:  payments,
		msgs:      msgs,
	}
}

// Convert builds the order for rec. The legacy ID becomes the order number.
func (c *Converter) Convert(ctx context.Context, rec Record) (*order.Order, error) {
	if rec.ID <= 0 {
		return nil, fault.Validation("legacy order has no id")
	}

	o := order.New()
	o.Number = rec.ID
	o.Status = order.ParseLegacyStatus(rec.Status)
	o.CustomerNote = strings.TrimSpace(rec.CustomerNote)
	o.Key = strings.TrimSpace(rec.Meta[MetaOrderKey])
	if o.Key == "" {
		o.Key = uuid.NewString()
	}

	var err error
	if o.CreatedAt, err = parseTime(rec.Date); err != nil {
		return nil, &fault.ValidationError{Reason: fmt.Sprintf("order %d: bad date", rec.ID), Err: err}
	}
	if o.CompletedAt, err = parseTime(rec.Meta[MetaCompletedDate]); err != nil {
		return nil, &fault.ValidationError{Reason: fmt.Sprintf("order %d: bad completion date", rec.ID), Err: err}
	}

	if o.Customer, err = c.customer(ctx, rec); err != nil {
		return nil, err
	}
	for _, l := range rec.Items {
		it, err := convertItem(l)
		if err != nil {
			return nil, &fault.ValidationError{Reason: fmt.Sprintf("order %d: item %q", rec.ID, l.Name), Err: err}
		}
		if err := o.AddItem(it); err != nil {
			return nil, errors.Wrapf(err, "order %d", rec.ID)
		}
	}

	if o.Shipping, err = c.shippingOf(rec); err != nil {
		return nil, err
	}
	o.PaymentMethod = c.paymentOf(rec)

	if v := rec.data("order_discount_coupons"); v != "" {
		for _, code := range strings.Split(v, ",") {
			if code = strings.TrimSpace(code); code != "" {
				o.Coupons = append(o.Coupons, code)
			}
		}
	}
	if o.Discount, err = rec.amount("order_discount"); err != nil {
		return nil, &fault.ValidationError{Reason: fmt.Sprintf("order %d: bad discount", rec.ID), Err: err}
	}

	if v := rec.data("order_total"); v != "" {
		if total, err := parseAmount(v); err == nil && !total.Equal(o.Total()) {
			c.msgs.Warning(fmt.Sprintf("Order with ID \"%d\" had total %s, it is %s now.",
				rec.ID, total.StringFixed(2), o.Total().StringFixed(2)))
		}
	}
	return o, nil
}

func (c *Converter) customer(ctx context.Context, rec Record) (customer.Customer, error) {
	cust := customer.Guest()
	cust.Billing = address(rec, "billing_", true)
	cust.Shipping = address(rec, "shipping_", false)

	v := strings.TrimSpace(rec.Meta[MetaCustomerUser])
	if v == "" || v == "0" {
		return cust, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return customer.Customer{}, &fault.ValidationError{
			Reason: fmt.Sprintf("order %d: bad customer_user %q", rec.ID, v),
			Err:    err,
		}
	}
	user, err := c.customers.Find(ctx, id)
	switch {
	case err == nil:
	case fault.IsNotFound(err):
		c.msgs.Warning(fmt.Sprintf("Customer \"%d\" not found. Order with ID \"%d\" is a guest order now.", id, rec.ID))
		return cust, nil
	default:
		return customer.Customer{}, errors.Wrapf(err, "find customer %d", id)
	}
	cust.ID = user.ID
	cust.Login = user.Login
	cust.Email = user.Email
	cust.Name = user.Name
	return cust, nil
}

func address(rec Record, prefix string, billing bool) customer.Address {
	a := customer.Address{
		FirstName: rec.data(prefix + "first_name"),
		LastName:  rec.data(prefix + "last_name"),
		Address:   strings.TrimSpace(rec.data(prefix+"address_1") + " " + rec.data(prefix+"address_2")),
		Country:   rec.data(prefix + "country"),
		State:     rec.data(prefix + "state"),
		Postcode:  rec.data(prefix + "postcode"),
	}
	if company := rec.data(prefix + "company"); company != "" {
		a.Company = &customer.Company{Name: company}
		if billing {
			a.Company.TaxID = rec.data("billing_euvatno")
		}
	}
	if billing {
		a.Phone = rec.data("billing_phone")
		a.Email = rec.data("billing_email")
	}
	return a
}

func (c *Converter) shippingOf(rec Record) (*shipping.Selection, error) {
	id := rec.data("shipping_method")
	if id == "" {
		return nil, nil
	}
	m, err := c.shipping.Get(id)
	if err != nil {
		c.msgs.Warning(fmt.Sprintf("Shipping method \"%s\" not found. Order with ID \"%d\" has no shipping method now.", id, rec.ID))
		return nil, nil
	}
	rate, err := rec.amount("order_shipping")
	if err != nil {
		return nil, &fault.ValidationError{Reason: fmt.Sprintf("order %d: bad shipping total", rec.ID), Err: err}
	}
	return &shipping.Selection{
		MethodID: m.ID(),
		Name:     m.Name(),
		Rate:     money.Round(rate),
		State:    m.State(),
	}, nil
}

func (c *Converter) paymentOf(rec Record) string {
	id := rec.data("payment_method")
	if id == "" {
		return ""
	}
	m, err := c.payments.Get(id)
	if err != nil {
		c.msgs.Warning(fmt.Sprintf("Payment method \"%s\" not found. Order with ID \"%d\" has no payment method now.", id, rec.ID))
		return ""
	}
	return m.ID
}

func convertItem(l Item) (*item.Item, error) {
	price, err := parseAmount(l.Cost)
	if err != nil {
		return nil, err
	}
	lineTax, err := parseAmount(l.Tax)
	if err != nil {
		return nil, err
	}
	it := &item.Item{
		ProductID: l.ProductID,
		Type:      item.TypeProduct,
		Name:      strings.TrimSpace(l.Name),
		Price:     money.Round(price),
		Quantity:  l.Quantity,
	}
	if !lineTax.IsZero() {
		class := strings.TrimSpace(l.TaxClass)
		if class == "" {
			class = DefaultTaxClass
		}
		it.Taxes = money.Taxes{class: money.Round(lineTax)}
	}
	return it, nil
}
