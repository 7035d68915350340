package handler

import (
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/fault"
)

const maxBodySize = 64 << 10

// decodeObject reads a JSON object body and hands every field to fn.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return &fault.ValidationError{Reason: "request body is too large or unreadable", Err: err}
	}
	if strings.TrimSpace(string(body)) == "" {
		return fault.Validation("request body is empty")
	}
	err = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	})
	if err != nil {
		if fault.IsValidation(err) {
			return err
		}
		return &fault.ValidationError{Reason: "invalid request body", Err: errors.Wrap(err, "decode")}
	}
	return nil
}

func decodeMeta(d *jx.Decoder) (map[string]string, error) {
	meta := make(map[string]string)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		meta[string(key)] = v
		return nil
	})
	return meta, err
}

func decodeAddress(d *jx.Decoder) (*customer.Address, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var a customer.Address
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var (
			v   string
			err error
		)
		switch string(key) {
		case "company":
			return decodeCompany(d, &a)
		case "first_name":
			v, err = d.Str()
			a.FirstName = v
		case "last_name":
			v, err = d.Str()
			a.LastName = v
		case "address":
			v, err = d.Str()
			a.Address = v
		case "country":
			v, err = d.Str()
			a.Country = strings.ToUpper(strings.TrimSpace(v))
		case "state":
			v, err = d.Str()
			a.State = v
		case "postcode":
			v, err = d.Str()
			a.Postcode = v
		case "phone":
			v, err = d.Str()
			a.Phone = v
		case "email":
			v, err = d.Str()
			a.Email = v
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func decodeCompany(d *jx.Decoder, a *customer.Address) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	var c customer.Company
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			c.Name, err = d.Str()
		case "tax_id":
			c.TaxID, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if c.Name != "" {
		a.Company = &c
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
