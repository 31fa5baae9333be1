// Package cartmeta encodes carts into the size-limited metadata of a payment
// transaction and decodes them back when the payment is confirmed.
package cartmeta

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-tours/internal/cart"
)

const (
	maxOptionTitle = 40
	maxAddOnTitle  = 30
)

// Entry is the compact wire form of a line item.
type Entry struct {
	I   int          `json:"i"`
	T   string       `json:"t"`
	A   int          `json:"a"`
	C   int          `json:"c,omitempty"`
	N   int          `json:"n,omitempty"`
	D   string       `json:"d,omitempty"`
	TM  string       `json:"tm,omitempty"`
	BP  Amount       `json:"bp"`
	BO  string       `json:"bo,omitempty"`
	BOT string       `json:"bot,omitempty"`
	AO  []AddOnEntry `json:"ao,omitempty"`
}

// AddOnEntry is the compact wire form of an add-on selection.
type AddOnEntry struct {
	ID string `json:"id"`
	Q  int    `json:"q"`
	P  Amount `json:"p"`
	PG bool   `json:"pg,omitempty"`
	T  string `json:"t,omitempty"`
}

// Amount is a price written as a bare JSON number with every digit kept.
type Amount struct {
	decimal.Decimal
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

// FromItems maps line items to entries, truncating free text.
func FromItems(items []cart.LineItem) []Entry {
	entries := make([]Entry, 0, len(items))
	for i, it := range items {
		e := Entry{
			I:  i,
			T:  it.TourID,
			A:  it.AdultQty,
			C:  it.ChildQty,
			N:  it.InfantQty,
			D:  it.SelectedDate,
			TM: it.SelectedTime,
			BP: Amount{it.BasePrice},
		}
		if it.BookingOption != nil {
			e.BO = it.BookingOption.ID
			e.BOT = Truncate(it.BookingOption.Title, maxOptionTitle)
		}
		for _, a := range it.AddOns {
			e.AO = append(e.AO, AddOnEntry{
				ID: a.ID,
				Q:  a.Quantity,
				P:  Amount{a.UnitPrice},
				PG: a.PerGuest,
				T:  Truncate(a.Title, maxAddOnTitle),
			})
		}
		entries = append(entries, e)
	}
	return entries
}

// ToItems rebuilds line items from entries. Quantities pass through the cart
// normaliser so they are read exactly as they were at checkout.
func ToItems(entries []Entry) ([]cart.LineItem, error) {
	raws := make([]cart.RawItem, 0, len(entries))
	for _, e := range entries {
		base := e.BP.Decimal
		raw := cart.RawItem{
			TourID:       e.T,
			ListPrice:    base,
			Adults:       cart.Count(e.A),
			Children:     cart.Count(e.C),
			Infants:      cart.Count(e.N),
			SelectedDate: e.D,
			SelectedTime: e.TM,
		}
		if e.BO != "" {
			raw.BookingOption = &cart.RawOption{ID: e.BO, Title: e.BOT, Price: base}
		}
		for _, a := range e.AO {
			raw.AddOns = append(raw.AddOns, cart.RawAddOn{
				ID:       a.ID,
				Quantity: cart.Count(a.Q),
				Price:    a.P.Decimal,
				PerGuest: a.PG,
				Title:    a.T,
			})
		}
		raws = append(raws, raw)
	}
	return cart.NormalizeAll(raws)
}

// Truncate shortens s to at most max characters.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
