// Package cart turns loosely-typed checkout payloads into canonical line items.
//
// Everything downstream (pricing, metadata encoding, booking reconciliation)
// reads LineItem values only; raw payload shapes never leave this package.
package cart

import "github.com/shopspring/decimal"

// LineItem is one normalised cart row.
type LineItem struct {
	TourID        string
	Title         string
	BasePrice     decimal.Decimal
	AdultQty      int
	ChildQty      int
	InfantQty     int
	SelectedDate  string
	SelectedTime  string
	BookingOption *BookingOption
	AddOns        []AddOn
}

// BookingOption is the variant of a tour selected by the shopper.
type BookingOption struct {
	ID    string
	Title string
	Price decimal.Decimal
}

// AddOn is an extra purchased alongside a tour.
type AddOn struct {
	ID        string
	Quantity  int
	UnitPrice decimal.Decimal
	PerGuest  bool
	Title     string
}

// Guests returns the number of paying guests (infants travel free).
func (it LineItem) Guests() int {
	return it.AdultQty + it.ChildQty
}
