// Package pricing resolves unit prices from a campaign's tiered discount brackets.
package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/groupbuy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groupbuy-backend/pkg/errors"
)

// Quote is the pricing view of a quantity against a bracket table.
type Quote struct {
	Quantity    int
	Current     *models.DiscountBracket
	Next        *models.DiscountBracket
	UnitsToNext *int
}

// Priced reports whether a tier covers the quantity.
func (q Quote) Priced() bool {
	return q.Current != nil
}

// UnitPrice is the current tier's price, zero when unpriced.
func (q Quote) UnitPrice() decimal.Decimal {
	if q.Current == nil {
		return decimal.Zero
	}
	return q.Current.UnitPrice
}

// Total is UnitPrice times Quantity.
func (q Quote) Total() decimal.Decimal {
	return q.UnitPrice().Mul(decimal.NewFromInt(int64(q.Quantity)))
}

// Sorted returns a copy of brackets ordered by BracketOrder.
func Sorted(brackets []models.DiscountBracket) []models.DiscountBracket {
	out := make([]models.DiscountBracket, len(brackets))
	copy(out, brackets)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BracketOrder < out[j].BracketOrder
	})
	return out
}

// Validate checks that brackets partition [0, ∞): orders run 0..n-1, the
// first tier starts at 0, each tier starts one past the previous tier's max,
// only the last tier is unbounded, and prices never increase with order.
func Validate(brackets []models.DiscountBracket) error {
	if len(brackets) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one discount bracket is required")
	}

	sorted := Sorted(brackets)
	var errs error
	for i, b := range sorted {
		if b.BracketOrder != i {
			errs = multierr.Append(errs, fmt.Errorf("bracket %d: order %d breaks the 0-based sequence", i, b.BracketOrder))
		}
		if b.MinQuantity < 0 {
			errs = multierr.Append(errs, fmt.Errorf("bracket %d: min quantity is negative", i))
		}
		if b.MaxQuantity != nil && *b.MaxQuantity < b.MinQuantity {
			errs = multierr.Append(errs, fmt.Errorf("bracket %d: max %d is below min %d", i, *b.MaxQuantity, b.MinQuantity))
		}
		if b.UnitPrice.IsNegative() {
			errs = multierr.Append(errs, fmt.Errorf("bracket %d: unit price is negative", i))
		}

		last := i == len(sorted)-1
		if last && b.MaxQuantity != nil {
			errs = multierr.Append(errs, fmt.Errorf("bracket %d: final bracket must be unbounded", i))
		}
		if !last && b.MaxQuantity == nil {
			errs = multierr.Append(errs, fmt.Errorf("bracket %d: only the final bracket may be unbounded", i))
		}

		if i == 0 {
			if b.MinQuantity != 0 {
				errs = multierr.Append(errs, fmt.Errorf("bracket 0: must start at 0, starts at %d", b.MinQuantity))
			}
			continue
		}
		prev := sorted[i-1]
		if prev.MaxQuantity != nil && b.MinQuantity != *prev.MaxQuantity+1 {
			errs = multierr.Append(errs, fmt.Errorf("bracket %d: min %d does not follow previous max %d", i, b.MinQuantity, *prev.MaxQuantity))
		}
		if b.UnitPrice.GreaterThan(prev.UnitPrice) {
			errs = multierr.Append(errs, fmt.Errorf("bracket %d: price %s exceeds previous price %s", i, b.UnitPrice, prev.UnitPrice))
		}
	}

	if errs == nil {
		return nil
	}
	problems := make([]string, 0)
	for _, e := range multierr.Errors(errs) {
		problems = append(problems, e.Error())
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, errs, "discount brackets do not form a valid price table").
		WithDetails(map[string]any{"problems": problems})
}

// Current returns the tier containing qty. Boundary quantities belong to the
// tier whose min equals them.
func Current(brackets []models.DiscountBracket, qty int) *models.DiscountBracket {
	for _, b := range Sorted(brackets) {
		if qty < b.MinQuantity {
			continue
		}
		if b.MaxQuantity == nil || qty <= *b.MaxQuantity {
			found := b
			return &found
		}
	}
	return nil
}

// Next returns the first tier whose min exceeds qty, nil when qty is already in the top tier.
func Next(brackets []models.DiscountBracket, qty int) *models.DiscountBracket {
	for _, b := range Sorted(brackets) {
		if b.MinQuantity > qty {
			found := b
			return &found
		}
	}
	return nil
}

// Resolve builds the quote for qty.
func Resolve(brackets []models.DiscountBracket, qty int) Quote {
	q := Quote{
		Quantity: qty,
		Current:  Current(brackets, qty),
		Next:     Next(brackets, qty),
	}
	if q.Next != nil {
		units := q.Next.MinQuantity - qty
		q.UnitsToNext = &units
	}
	return q
}
