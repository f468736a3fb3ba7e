package bands

import (
	"fmt"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/domain"
)

// BandSet is the full configuration for one pair: the buy bands and sell
// bands that partition the price space around a reference price.
type BandSet struct {
	Buy  []BuyBand
	Sell []SellBand
}

// Validate checks every band individually and verifies that no two bands on
// the same side overlap in margin range.
func (bs BandSet) Validate() error {
	for i, b := range bs.Buy {
		if err := b.Band.Validate(); err != nil {
			return fmt.Errorf("bands: buy band %d: %w", i, err)
		}
	}
	for i, b := range bs.Sell {
		if err := b.Band.Validate(); err != nil {
			return fmt.Errorf("bands: sell band %d: %w", i, err)
		}
	}
	for i := 0; i < len(bs.Buy); i++ {
		for j := i + 1; j < len(bs.Buy); j++ {
			if marginsOverlap(bs.Buy[i].Band, bs.Buy[j].Band) {
				return fmt.Errorf("bands: buy bands %d and %d overlap", i, j)
			}
		}
	}
	for i := 0; i < len(bs.Sell); i++ {
		for j := i + 1; j < len(bs.Sell); j++ {
			if marginsOverlap(bs.Sell[i].Band, bs.Sell[j].Band) {
				return fmt.Errorf("bands: sell bands %d and %d overlap", i, j)
			}
		}
	}
	return nil
}

// marginsOverlap reports whether two bands' margin ranges intersect.
// Touching ranges that only share a boundary (a.MinMargin == b.MaxMargin)
// are not considered an overlap, since each band's Includes treats that
// shared point as belonging to exactly one of the two bands.
func marginsOverlap(a, b Band) bool {
	return a.MinMargin.LessThan(b.MaxMargin) && b.MinMargin.LessThan(a.MaxMargin)
}

// AssignBuyBand returns the index of the buy band that includes order, or -1
// if the order's margin falls outside every configured band.
func (bs BandSet) AssignBuyBand(order domain.Order, referencePrice decimal.Decimal) int {
	for i, b := range bs.Buy {
		if b.Includes(order, referencePrice) {
			return i
		}
	}
	return -1
}

// AssignSellBand returns the index of the sell band that includes order, or
// -1 if none matches.
func (bs BandSet) AssignSellBand(order domain.Order, referencePrice decimal.Decimal) int {
	for i, b := range bs.Sell {
		if b.Includes(order, referencePrice) {
			return i
		}
	}
	return -1
}

// ExcessiveOrders returns the subset of ordersInBand that must be cancelled
// to bring the band's total resting amount back under maxAmount. When the
// band is not over its cap, it returns nil.
//
// It mirrors the original combinatorial selection: among all subsets of
// ordersInBand whose total amount does not exceed maxAmount, it first
// maximizes the number of orders kept (fewest cancellations, lowest gas
// spent resubmitting), and only among subsets tied on that count does it
// prefer the one with the greatest total amount. This is exponential in the
// number of orders per band, which is acceptable because a single band
// rarely holds more than a handful of resting orders; callers with
// pathologically large bands should cap ordersInBand before calling.
func ExcessiveOrders(ordersInBand []domain.Order, maxAmount decimal.Decimal) []domain.Order {
	if TotalAmount(ordersInBand).LessThanOrEqual(maxAmount) {
		return nil
	}

	n := len(ordersInBand)
	bestCount := -1
	bestKeep := decimal.Zero
	var bestMask uint64
	for mask := uint64(0); mask < uint64(1)<<uint(n); mask++ {
		total := decimal.Zero
		count := 0
		for i := 0; i < n; i++ {
			if mask&(uint64(1)<<uint(i)) != 0 {
				total = total.Add(ordersInBand[i].PayAmount())
				count++
			}
		}
		if total.GreaterThan(maxAmount) {
			continue
		}
		if count > bestCount || (count == bestCount && total.GreaterThan(bestKeep)) {
			bestCount = count
			bestKeep = total
			bestMask = mask
		}
	}

	excessive := make([]domain.Order, 0, n)
	for i := 0; i < n; i++ {
		if bestMask&(uint64(1)<<uint(i)) == 0 {
			excessive = append(excessive, ordersInBand[i])
		}
	}
	return excessive
}

// DustOrders returns the orders in ordersInBand whose pay amount is below
// the band's dust cutoff; these are always cancelled regardless of the
// band's total amount.
func DustOrders(ordersInBand []domain.Order, dustCutoff decimal.Decimal) []domain.Order {
	if dustCutoff.IsZero() {
		return nil
	}
	var dust []domain.Order
	for _, o := range ordersInBand {
		if o.PayAmount().LessThan(dustCutoff) {
			dust = append(dust, o)
		}
	}
	return dust
}
