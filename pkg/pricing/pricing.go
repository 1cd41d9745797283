package pricing

import (
	"fmt"
	"strings"

	"github.com/example/craftshop/pkg/models"
	"github.com/shopspring/decimal"
)

// Amounts are carried as float64 on the wire and in storage, rounded half-up
// to cents. Internally everything is decimal.
const centPlaces = 2

var tolerance = decimal.New(1, -centPlaces)

// Quote is the priced view of a cart.
type Quote struct {
	OfferCode string  `json:"offerCode,omitempty"`
	Subtotal  float64 `json:"subtotal"`
	Discount  float64 `json:"discount"`
	Total     float64 `json:"total"`
}

// Engine prices carts against an offer registry. It has no side effects.
type Engine struct {
	offers *Registry
}

func NewEngine(offers *Registry) *Engine {
	return &Engine{offers: offers}
}

// NormalizeCode trims and upper-cases an offer code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Quote computes subtotal, discount and total for items. An empty code means
// no discount; an unknown one fails with models.ErrInvalidOfferCode. Items
// that break the line item rules fail with models.ErrValidation.
func (e *Engine) Quote(items []models.LineItem, offerCode string) (Quote, error) {
	if err := models.ValidateItems(items); err != nil {
		return Quote{}, err
	}

	subtotal := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}

	subtotal = subtotal.Round(centPlaces)

	code := NormalizeCode(offerCode)
	discount := decimal.Zero
	if code != "" {
		rule, ok := e.offers.Lookup(code)
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", models.ErrInvalidOfferCode, code)
		}
		discount = decimal.Min(rule.Apply(subtotal).Round(centPlaces), subtotal)
	}

	// Both operands are already whole cents, so total == subtotal - discount exactly.
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		OfferCode: code,
		Subtotal:  toFloat(subtotal),
		Discount:  toFloat(discount),
		Total:     toFloat(total),
	}, nil
}

// Verify compares figures a client computed for itself with the server quote.
// Nil figures are not checked.
func (q Quote) Verify(subtotal, discount, total *float64) error {
	checks := []struct {
		name   string
		client *float64
		server float64
	}{
		{"subtotal", subtotal, q.Subtotal},
		{"discount", discount, q.Discount},
		{"total", total, q.Total},
	}
	for _, c := range checks {
		if c.client == nil {
			continue
		}
		diff := decimal.NewFromFloat(*c.client).Sub(decimal.NewFromFloat(c.server)).Abs()
		if diff.GreaterThan(tolerance) {
			return fmt.Errorf("%w: %s %.2f does not match %.2f",
				models.ErrValidation, c.name, *c.client, c.server)
		}
	}
	return nil
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(centPlaces).Float64()
	return f
}
