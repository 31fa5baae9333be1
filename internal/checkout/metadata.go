package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/noah-isme/backend-tours/internal/cartmeta"
	"github.com/noah-isme/backend-tours/internal/discount"
)

// Per-field caps in runes.
const (
	maxName            = 100
	maxPhone           = 40
	maxPickupDetails   = 200
	maxPickupName      = 100
	maxPickupAddress   = 200
	maxSpecialRequests = 300
	maxTourSummary     = 200
)

// buildMetadata assembles the intent metadata bag. Empty optional values are
// omitted; every value is capped at the gateway's per-value limit.
func buildMetadata(req Request, q Quote, currency string, cartKeys map[string]string) (map[string]string, error) {
	c := req.Customer
	md := make(map[string]string, 24)
	put := func(key, value string, max int) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if max <= 0 || max > cartmeta.MaxValueLen {
			max = cartmeta.MaxValueLen
		}
		md[key] = cartmeta.Truncate(value, max)
	}

	put(cartmeta.KeyFirstName, c.FirstName, maxName)
	put(cartmeta.KeyLastName, c.LastName, maxName)
	put(cartmeta.KeyEmail, c.Email, 0)
	put(cartmeta.KeyPhone, c.Phone, maxPhone)
	put(cartmeta.KeySpecialRequests, c.SpecialRequests, maxSpecialRequests)
	put(cartmeta.KeyPickupDetails, c.HotelPickupDetails, maxPickupDetails)
	if !c.HotelPickupLocation.empty() {
		loc, err := pickupLocation(*c.HotelPickupLocation)
		if err != nil {
			return nil, err
		}
		md[cartmeta.KeyPickupLocation] = loc
	}

	titles := make([]string, 0, len(q.Items))
	for _, it := range q.Items {
		if it.Title != "" {
			titles = append(titles, it.Title)
		}
	}
	put(cartmeta.KeyTourSummary, strings.Join(titles, ", "), maxTourSummary)
	md[cartmeta.KeyItemCount] = strconv.Itoa(len(q.Items))

	cartmeta.PutBreakdown(md, q.Breakdown)
	md[cartmeta.KeyCurrency] = currency
	put(cartmeta.KeyDisplayCurrency, strings.ToLower(req.DisplayCurrency), 10)
	md[cartmeta.KeyDiscountCode] = discount.NoCode
	if q.Applied {
		md[cartmeta.KeyDiscountCode] = q.Rule.Code
	}

	for k, v := range cartKeys {
		md[k] = v
	}
	if len(md) > cartmeta.MaxKeys {
		return nil, fmt.Errorf("metadata has %d keys, limit is %d", len(md), cartmeta.MaxKeys)
	}
	for k, v := range md {
		if len(k) > cartmeta.MaxKeyLen {
			return nil, fmt.Errorf("metadata key %q exceeds %d characters", k, cartmeta.MaxKeyLen)
		}
		if len([]rune(v)) > cartmeta.MaxValueLen {
			return nil, fmt.Errorf("metadata value %q exceeds %d characters", k, cartmeta.MaxValueLen)
		}
	}
	return md, nil
}

// pickupLocation encodes p within the per-value limit. Text fields are cut
// before encoding so the JSON stays valid and coordinates always survive.
func pickupLocation(p PickupLocation) (string, error) {
	p.Name = cartmeta.Truncate(strings.TrimSpace(p.Name), maxPickupName)
	p.Address = cartmeta.Truncate(strings.TrimSpace(p.Address), maxPickupAddress)
	for {
		b, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("encode pickup location: %w", err)
		}
		if utf8.RuneCount(b) <= cartmeta.MaxValueLen {
			return string(b), nil
		}
		// Escaped characters can still overflow.
		switch {
		case p.Address != "":
			p.Address = cartmeta.Truncate(p.Address, utf8.RuneCountInString(p.Address)/2)
		case p.Name != "":
			p.Name = cartmeta.Truncate(p.Name, utf8.RuneCountInString(p.Name)/2)
		default:
			return string(b), nil
		}
	}
}
