// Package catalog holds the server-side price book for tours. When enabled,
// it replaces every client-supplied price before the cart is normalised.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-tours/internal/cart"
	"github.com/noah-isme/backend-tours/internal/common"
	"github.com/noah-isme/backend-tours/internal/db"
	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
)

// ErrUnknownTour reports a cart row for a tour missing from the price book.
var ErrUnknownTour = errors.New("unknown tour")

// TourLister is the query the price book needs.
type TourLister interface {
	ListActiveToursByIDs(ctx context.Context, ids []string) ([]dbgen.Tour, error)
}

// Tour is the cached price book entry.
type Tour struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	ListPrice     decimal.Decimal `json:"listPrice"`
	DiscountPrice decimal.Decimal `json:"discountPrice"`
	Options       []Option        `json:"options"`
	AddOns        []AddOn         `json:"addOns"`
}

// Option is a priced booking option.
type Option struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}

// AddOn is a priced extra.
type AddOn struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	PerGuest bool            `json:"perGuest"`
}

// TourFromModel decodes a tours row.
func TourFromModel(m dbgen.Tour) (Tour, error) {
	t := Tour{
		ID:            m.ID,
		Title:         m.Title,
		ListPrice:     db.Decimal(m.ListPrice),
		DiscountPrice: db.Decimal(m.DiscountPrice),
	}
	if len(m.Options) > 0 {
		if err := json.Unmarshal(m.Options, &t.Options); err != nil {
			return Tour{}, fmt.Errorf("tour %s options: %w", m.ID, err)
		}
	}
	if len(m.AddOns) > 0 {
		if err := json.Unmarshal(m.AddOns, &t.AddOns); err != nil {
			return Tour{}, fmt.Errorf("tour %s add-ons: %w", m.ID, err)
		}
	}
	return t, nil
}

func (t Tour) option(id string) (Option, bool) {
	for _, o := range t.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

func (t Tour) addOn(id string) (AddOn, bool) {
	for _, a := range t.AddOns {
		if a.ID == id {
			return a, true
		}
	}
	return AddOn{}, false
}

// PriceBook loads tours through the Redis cache, falling back to Postgres.
type PriceBook struct {
	Q      TourLister
	Cache  *Cache
	Logger zerolog.Logger
}

// Tours returns the active tours for ids keyed by id. Missing ids are absent.
func (p *PriceBook) Tours(ctx context.Context, ids []string) (map[string]Tour, error) {
	out, missing, err := p.Cache.Lookup(ctx, dedupe(ids))
	if err != nil {
		p.Logger.Warn().Err(err).Int("tours", len(missing)).Msg("catalog cache read failed")
	}
	if len(missing) == 0 {
		return out, nil
	}
	if p.Q == nil {
		return nil, errors.New("catalog: tour query not configured")
	}
	rows, err := p.Q.ListActiveToursByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("list tours: %w", err)
	}
	loaded := make([]Tour, 0, len(rows))
	for _, row := range rows {
		t, err := TourFromModel(row)
		if err != nil {
			return nil, err
		}
		out[t.ID] = t
		loaded = append(loaded, t)
	}
	if err := p.Cache.Store(ctx, loaded); err != nil {
		p.Logger.Warn().Err(err).Int("tours", len(loaded)).Msg("catalog cache write failed")
	}
	return out, nil
}

// Apply overwrites every price and title in raws with price book values.
// Unknown tours, options or add-ons are rejected as validation errors.
func (p *PriceBook) Apply(ctx context.Context, raws []cart.RawItem) ([]cart.RawItem, error) {
	ids := make([]string, 0, len(raws))
	for _, r := range raws {
		ids = append(ids, strings.TrimSpace(r.TourID))
	}
	tours, err := p.Tours(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]cart.RawItem, len(raws))
	for i, r := range raws {
		id := strings.TrimSpace(r.TourID)
		t, ok := tours[id]
		if !ok {
			return nil, common.Validation(fmt.Sprintf("tour %q is not available", id), ErrUnknownTour)
		}
		r.Title = t.Title
		r.ListPrice = t.ListPrice
		r.DiscountPrice = t.DiscountPrice
		if r.BookingOption != nil && strings.TrimSpace(r.BookingOption.ID) != "" {
			opt, ok := t.option(strings.TrimSpace(r.BookingOption.ID))
			if !ok {
				return nil, common.Validation(fmt.Sprintf("booking option %q is not offered for tour %q", r.BookingOption.ID, id), ErrUnknownTour)
			}
			r.BookingOption = &cart.RawOption{ID: opt.ID, Title: opt.Title, Price: opt.Price}
		}
		addOns := make([]cart.RawAddOn, 0, len(r.AddOns))
		for _, a := range r.AddOns {
			if a.Quantity.Int() <= 0 {
				continue
			}
			known, ok := t.addOn(strings.TrimSpace(a.ID))
			if !ok {
				return nil, common.Validation(fmt.Sprintf("add-on %q is not offered for tour %q", a.ID, id), ErrUnknownTour)
			}
			addOns = append(addOns, cart.RawAddOn{
				ID:       known.ID,
				Quantity: a.Quantity,
				Price:    known.Price,
				PerGuest: known.PerGuest,
				Title:    known.Title,
			})
		}
		r.AddOns = addOns
		out[i] = r
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
