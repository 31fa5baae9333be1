package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-tours/internal/cart"
	"github.com/noah-isme/backend-tours/internal/pricing"
)

// Customer is the shopper's contact block.
type Customer struct {
	FirstName           string          `json:"firstName" validate:"required"`
	LastName            string          `json:"lastName" validate:"required"`
	Email               string          `json:"email" validate:"required,email"`
	Phone               string          `json:"phone"`
	SpecialRequests     string          `json:"specialRequests"`
	HotelPickupDetails  string          `json:"hotelPickupDetails"`
	HotelPickupLocation *PickupLocation `json:"hotelPickupLocation,omitempty"`
}

// PickupLocation is where the guest is collected.
type PickupLocation struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Name    string   `json:"name,omitempty"`
	Address string   `json:"address,omitempty"`
}

func (p *PickupLocation) empty() bool {
	return p == nil || (p.Lat == nil && p.Lng == nil && p.Name == "" && p.Address == "")
}

// Request is the body of POST /api/v1/checkout.
type Request struct {
	Customer        Customer       `json:"customer"`
	Cart            []cart.RawItem `json:"cart"`
	DiscountCode    string         `json:"discountCode"`
	DisplayCurrency string         `json:"displayCurrency"`
}

// QuoteRequest is the body of POST /api/v1/checkout/quote.
type QuoteRequest struct {
	Cart         []cart.RawItem `json:"cart"`
	DiscountCode string         `json:"discountCode"`
}

// Pricing is the breakdown as returned to clients.
type Pricing struct {
	Subtotal   float64 `json:"subtotal"`
	ServiceFee float64 `json:"serviceFee"`
	Tax        float64 `json:"tax"`
	Discount   float64 `json:"discount"`
	Total      float64 `json:"total"`
	Currency   string  `json:"currency"`
}

func pricingView(b pricing.Breakdown, currency string) Pricing {
	f := func(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }
	return Pricing{
		Subtotal:   f(b.Subtotal),
		ServiceFee: f(b.ServiceFee),
		Tax:        f(b.Tax),
		Discount:   f(b.Discount),
		Total:      f(b.Total),
		Currency:   currency,
	}
}

// Result is the successful checkout response.
type Result struct {
	Success                 bool    `json:"success"`
	TransactionClientSecret string  `json:"transactionClientSecret"`
	TransactionID           string  `json:"transactionId"`
	Pricing                 Pricing `json:"pricing"`
}

// QuoteResult is the quote response.
type QuoteResult struct {
	Success      bool    `json:"success"`
	DiscountCode string  `json:"discountCode,omitempty"`
	Pricing      Pricing `json:"pricing"`
}
