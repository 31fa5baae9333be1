package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMissingTour is returned for rows that do not identify a tour.
var ErrMissingTour = errors.New("cart item is missing a tour id")

// RawItem is a cart row as submitted by a client, after lenient decoding.
// Prices here are untrusted until the caller replaces them from a price book.
type RawItem struct {
	TourID        string
	Title         string
	ListPrice     decimal.Decimal
	DiscountPrice decimal.Decimal
	Adults        Quantity
	Children      Quantity
	Infants       Quantity
	SelectedDate  string
	SelectedTime  string
	BookingOption *RawOption
	AddOns        []RawAddOn
}

// RawOption is the booking option as submitted.
type RawOption struct {
	ID    string
	Title string
	Price decimal.Decimal
}

// RawAddOn is one add-on selection as submitted, from either payload shape.
type RawAddOn struct {
	ID       string
	Quantity Quantity
	Price    decimal.Decimal
	PerGuest bool
	Title    string
}

type rawOptionJSON struct {
	ID    text   `json:"id"`
	Title string `json:"title"`
	Price Amount `json:"price"`
}

type addOnDetailJSON struct {
	ID        text   `json:"id"`
	AddOnID   text   `json:"addOnId"`
	Price     Amount `json:"price"`
	UnitPrice Amount `json:"unitPrice"`
	PerGuest  flag   `json:"perGuest"`
	PerPerson flag   `json:"perPerson"`
	Title     string `json:"title"`
	Name      string `json:"name"`
}

func (d addOnDetailJSON) id() string {
	if d.ID != "" {
		return string(d.ID)
	}
	return string(d.AddOnID)
}

func (d addOnDetailJSON) price() decimal.Decimal {
	if d.UnitPrice.IsPositive() {
		return d.UnitPrice.Decimal
	}
	return d.Price.Decimal
}

func (d addOnDetailJSON) title() string {
	if strings.TrimSpace(d.Title) != "" {
		return strings.TrimSpace(d.Title)
	}
	return strings.TrimSpace(d.Name)
}

// UnmarshalJSON accepts the field aliases emitted by the various client
// versions. Non-object rows decode to an empty item.
func (r *RawItem) UnmarshalJSON(data []byte) error {
	*r = RawItem{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	r.TourID = firstText(fields, "tourId", "id", "_id")
	r.Title = firstString(fields, "title", "tourTitle", "name")
	r.ListPrice = firstAmount(fields, "price", "basePrice", "originalPrice")
	r.DiscountPrice = firstAmount(fields, "discountPrice", "discountedPrice", "salePrice")
	r.Adults = firstQuantity(fields, "adultQty", "adults", "adultCount", "quantity")
	r.Children = firstQuantity(fields, "childQty", "children", "childCount")
	r.Infants = firstQuantity(fields, "infantQty", "infants", "infantCount")
	r.SelectedDate = firstString(fields, "selectedDate", "date")
	r.SelectedTime = firstString(fields, "selectedTime", "time")

	if raw, ok := firstRaw(fields, "bookingOption", "selectedBookingOption"); ok {
		var opt rawOptionJSON
		if err := json.Unmarshal(raw, &opt); err == nil && opt.ID != "" {
			r.BookingOption = &RawOption{ID: string(opt.ID), Title: strings.TrimSpace(opt.Title), Price: opt.Price.Decimal}
		}
	}

	details := map[string]addOnDetailJSON{}
	if raw, ok := firstRaw(fields, "addOnDetails", "selectedAddOnDetails"); ok {
		_ = json.Unmarshal(raw, &details)
	}
	if raw, ok := firstRaw(fields, "addOns", "selectedAddOns"); ok {
		r.AddOns = parseAddOns(raw, details)
	}
	return nil
}

func parseAddOns(raw json.RawMessage, details map[string]addOnDetailJSON) []RawAddOn {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil
		}
		out := make([]RawAddOn, 0, len(elems))
		for _, elem := range elems {
			var d addOnDetailJSON
			if err := json.Unmarshal(elem, &d); err != nil || d.id() == "" {
				continue
			}
			out = append(out, mergeAddOn(d.id(), parseQuantity(elem, 0), d, details))
		}
		return out
	case '{':
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil
		}
		ids := make([]string, 0, len(byID))
		for id := range byID {
			if strings.TrimSpace(id) != "" {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		out := make([]RawAddOn, 0, len(ids))
		for _, id := range ids {
			value := bytes.TrimSpace(byID[id])
			var d addOnDetailJSON
			if len(value) > 0 && value[0] == '{' {
				_ = json.Unmarshal(value, &d)
			}
			out = append(out, mergeAddOn(strings.TrimSpace(id), parseQuantity(value, 0), d, details))
		}
		return out
	default:
		return nil
	}
}

func mergeAddOn(id string, qty Quantity, own addOnDetailJSON, details map[string]addOnDetailJSON) RawAddOn {
	addOn := RawAddOn{
		ID:       id,
		Quantity: qty,
		Price:    own.price(),
		PerGuest: bool(own.PerGuest || own.PerPerson),
		Title:    own.title(),
	}
	if fallback, ok := details[id]; ok {
		if !addOn.Price.IsPositive() {
			addOn.Price = fallback.price()
		}
		if !addOn.PerGuest {
			addOn.PerGuest = bool(fallback.PerGuest || fallback.PerPerson)
		}
		if addOn.Title == "" {
			addOn.Title = fallback.title()
		}
	}
	return addOn
}

// Normalize converts a raw row into its canonical LineItem.
func Normalize(raw RawItem) (LineItem, error) {
	tourID := strings.TrimSpace(raw.TourID)
	if tourID == "" {
		return LineItem{}, ErrMissingTour
	}
	item := LineItem{
		TourID:       tourID,
		Title:        strings.TrimSpace(raw.Title),
		AdultQty:     raw.Adults.Int(),
		ChildQty:     raw.Children.Int(),
		InfantQty:    raw.Infants.Int(),
		SelectedDate: strings.TrimSpace(raw.SelectedDate),
		SelectedTime: strings.TrimSpace(raw.SelectedTime),
	}
	if item.AdultQty < 1 {
		item.AdultQty = 1
	}
	var optionPrice decimal.Decimal
	if raw.BookingOption != nil && strings.TrimSpace(raw.BookingOption.ID) != "" {
		optionPrice = nonNegative(raw.BookingOption.Price)
		item.BookingOption = &BookingOption{
			ID:    strings.TrimSpace(raw.BookingOption.ID),
			Title: strings.TrimSpace(raw.BookingOption.Title),
			Price: optionPrice,
		}
	}
	item.BasePrice = ResolveBasePrice(optionPrice, raw.DiscountPrice, raw.ListPrice)
	for _, a := range raw.AddOns {
		qty := a.Quantity.Int()
		id := strings.TrimSpace(a.ID)
		if qty <= 0 || id == "" {
			continue
		}
		item.AddOns = append(item.AddOns, AddOn{
			ID:        id,
			Quantity:  qty,
			UnitPrice: nonNegative(a.Price),
			PerGuest:  a.PerGuest,
			Title:     strings.TrimSpace(a.Title),
		})
	}
	return item, nil
}

// NormalizeAll normalises every row, reporting the index of the first bad one.
func NormalizeAll(raws []RawItem) ([]LineItem, error) {
	items := make([]LineItem, 0, len(raws))
	for i, raw := range raws {
		item, err := Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("cart item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// ResolveBasePrice picks the first positive of option, discounted and list price.
func ResolveBasePrice(option, discounted, list decimal.Decimal) decimal.Decimal {
	for _, candidate := range []decimal.Decimal{option, discounted, list} {
		if candidate.IsPositive() {
			return candidate
		}
	}
	return decimal.Zero
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func firstRaw(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if raw, ok := fields[key]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return raw, true
		}
	}
	return nil, false
}

func firstText(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var t text
		_ = t.UnmarshalJSON(raw)
		if t != "" {
			return string(t)
		}
	}
	return ""
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstAmount(fields map[string]json.RawMessage, keys ...string) decimal.Decimal {
	for _, key := range keys {
		if raw, ok := fields[key]; ok {
			if d := parseAmount(raw); d.IsPositive() {
				return d
			}
		}
	}
	return decimal.Zero
}

func firstQuantity(fields map[string]json.RawMessage, keys ...string) Quantity {
	for _, key := range keys {
		if raw, ok := fields[key]; ok {
			if q := parseQuantity(raw, 0); q.Kind != KindInvalid {
				return q
			}
		}
	}
	return Quantity{}
}
