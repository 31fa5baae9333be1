package cartmeta

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-tours/internal/pricing"
)

// Keys of the intent metadata bag written at checkout and read back by the
// reconciler.
const (
	KeyFirstName       = "customer_first_name"
	KeyLastName        = "customer_last_name"
	KeyEmail           = "customer_email"
	KeyPhone           = "customer_phone"
	KeySpecialRequests = "special_requests"
	KeyPickupDetails   = "pickup_details"
	KeyPickupLocation  = "pickup_location"
	KeyTourSummary     = "tour_summary"
	KeyItemCount       = "item_count"
	KeySubtotal        = "subtotal"
	KeyServiceFee      = "service_fee"
	KeyTax             = "tax"
	KeyDiscount        = "discount"
	KeyTotal           = "total"
	KeyCurrency        = "currency"
	KeyDisplayCurrency = "display_currency"
	KeyDiscountCode    = "discount_code"
)

// Gateway limits on the metadata bag itself.
const (
	MaxKeys   = 50
	MaxKeyLen = 40
)

// PutBreakdown records b as fixed two-decimal strings.
func PutBreakdown(md map[string]string, b pricing.Breakdown) {
	md[KeySubtotal] = b.Subtotal.StringFixed(2)
	md[KeyServiceFee] = b.ServiceFee.StringFixed(2)
	md[KeyTax] = b.Tax.StringFixed(2)
	md[KeyDiscount] = b.Discount.StringFixed(2)
	md[KeyTotal] = b.Total.StringFixed(2)
}

// ReadBreakdown parses the agreed breakdown. ok is false when any component
// is absent or malformed.
func ReadBreakdown(md map[string]string) (pricing.Breakdown, bool) {
	var (
		b   pricing.Breakdown
		err error
	)
	fields := []struct {
		key string
		dst *decimal.Decimal
	}{
		{KeySubtotal, &b.Subtotal},
		{KeyServiceFee, &b.ServiceFee},
		{KeyTax, &b.Tax},
		{KeyDiscount, &b.Discount},
		{KeyTotal, &b.Total},
	}
	for _, f := range fields {
		raw, ok := md[f.key]
		if !ok || raw == "" {
			return pricing.Breakdown{}, false
		}
		if *f.dst, err = decimal.NewFromString(raw); err != nil {
			return pricing.Breakdown{}, false
		}
	}
	return b, true
}
