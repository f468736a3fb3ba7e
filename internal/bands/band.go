// Package bands implements the band algebra that drives order placement
// decisions: min/avg/max margin and amount ranges around a reference price,
// and the logic that classifies resting orders into bands and flags the
// ones that must be cancelled.
package bands

import (
	"fmt"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/domain"
)

// Band is the margin/amount envelope shared by buy and sell bands. Margins
// are expressed as ratios (0.01 == 1%). A buy band's amount fields are
// denominated in the pair's quote currency (what the band spends to
// acquire the base token); a sell band's are denominated in the base
// currency (what the band offers for sale).
type Band struct {
	MinMargin  decimal.Decimal
	AvgMargin  decimal.Decimal
	MaxMargin  decimal.Decimal
	MinAmount  decimal.Decimal
	AvgAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	DustCutoff decimal.Decimal
}

// Validate checks the band's internal ordering invariants: min <= avg <= max
// for both margin and amount.
func (b Band) Validate() error {
	if b.MinMargin.GreaterThan(b.AvgMargin) {
		return fmt.Errorf("bands: minMargin %s > avgMargin %s", b.MinMargin, b.AvgMargin)
	}
	if b.AvgMargin.GreaterThan(b.MaxMargin) {
		return fmt.Errorf("bands: avgMargin %s > maxMargin %s", b.AvgMargin, b.MaxMargin)
	}
	if b.MinAmount.GreaterThan(b.AvgAmount) {
		return fmt.Errorf("bands: minAmount %s > avgAmount %s", b.MinAmount, b.AvgAmount)
	}
	if b.AvgAmount.GreaterThan(b.MaxAmount) {
		return fmt.Errorf("bands: avgAmount %s > maxAmount %s", b.AvgAmount, b.MaxAmount)
	}
	return nil
}

// BuyBand quotes bids: price = referencePrice * (1 - margin). A larger
// margin means a lower, more conservative bid.
type BuyBand struct {
	Band
}

// PriceForMargin returns the bid price for the given margin at referencePrice.
func (b BuyBand) PriceForMargin(referencePrice, margin decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return referencePrice.Mul(one.Sub(margin))
}

// MarginOf returns the implied margin of a resting order's price relative
// to referencePrice.
func (b BuyBand) MarginOf(price, referencePrice decimal.Decimal) decimal.Decimal {
	if referencePrice.IsZero() {
		return decimal.Zero
	}
	return referencePrice.Sub(price).Div(referencePrice)
}

// Includes reports whether order's price falls within this band's margin
// range [minMargin, maxMargin): a price at exactly minMargin belongs to the
// band, a price that would require maxMargin exactly belongs to the next
// band up instead. This matches the original price-band algorithm, which
// compares prices rather than margins directly.
func (b BuyBand) Includes(order domain.Order, referencePrice decimal.Decimal) bool {
	margin := b.MarginOf(order.Price, referencePrice)
	return margin.GreaterThanOrEqual(b.MinMargin) && margin.LessThan(b.MaxMargin)
}

// SellBand quotes asks: price = referencePrice * (1 + margin).
type SellBand struct {
	Band
}

// PriceForMargin returns the ask price for the given margin at referencePrice.
func (b SellBand) PriceForMargin(referencePrice, margin decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return referencePrice.Mul(one.Add(margin))
}

// MarginOf returns the implied margin of a resting order's price relative
// to referencePrice.
func (b SellBand) MarginOf(price, referencePrice decimal.Decimal) decimal.Decimal {
	if referencePrice.IsZero() {
		return decimal.Zero
	}
	return price.Sub(referencePrice).Div(referencePrice)
}

// Includes reports whether order's price falls within this band's margin
// range (minMargin, maxMargin]: a price at exactly maxMargin belongs to the
// band, a price that would require minMargin exactly belongs to the band
// below instead. Margin increases with price for a sell band, so this is
// the mirror image of BuyBand.Includes's boundary convention.
func (b SellBand) Includes(order domain.Order, referencePrice decimal.Decimal) bool {
	margin := b.MarginOf(order.Price, referencePrice)
	return margin.GreaterThan(b.MinMargin) && margin.LessThanOrEqual(b.MaxMargin)
}

// TotalAmount sums each order's PayAmount: the quote amount spent for buy
// orders, the base amount offered for sell orders. This is the same
// currency the band's minAmount/avgAmount/maxAmount/dustCutoff fields are
// denominated in for that side.
func TotalAmount(orders []domain.Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.PayAmount())
	}
	return total
}
