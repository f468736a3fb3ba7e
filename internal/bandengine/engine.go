// Package bandengine synthesizes the cancel and place decisions for one
// control-loop cycle: given the current band configuration, the effective
// order book, a reference price, available balances, and rate limits, it
// decides which resting orders must go and which new orders should be
// placed to bring the book back in line with the bands.
package bandengine

import (
	"log/slog"
	"time"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/bands"
	"github.com/makerdao/market-maker-keeper/internal/domain"
	"github.com/makerdao/market-maker-keeper/internal/limits"
)

// Decision is the outcome of one synthesis pass.
type Decision struct {
	Cancel []domain.Order
	Place  []domain.NewOrderIntent
}

// Engine holds the band configuration for one pair.
type Engine struct {
	Bands  bands.BandSet
	logger *slog.Logger
}

// New creates an Engine over the given band configuration.
func New(bandSet bands.BandSet, logger *slog.Logger) *Engine {
	return &Engine{Bands: bandSet, logger: logger.With(slog.String("component", "bandengine"))}
}

// SetBands replaces the engine's band configuration, e.g. when a hot-reload
// of the bands document produces a new validated BandSet. Callers must not
// call this concurrently with Synthesize; the control loop calls it, single
// goroutine, at the top of a cycle, before Synthesize runs.
func (e *Engine) SetBands(bandSet bands.BandSet) {
	e.Bands = bandSet
}

// Inputs bundles everything the synthesis pass needs for one cycle.
type Inputs struct {
	Book           domain.OrderBookSnapshot
	ReferencePrice decimal.Decimal
	BaseBalance    decimal.Decimal // available base-currency balance (funds sell orders)
	QuoteBalance   decimal.Decimal // available quote-currency balance (funds buy orders)
	BuyLimits      *limits.Limits
	SellLimits     *limits.Limits
	Now            time.Time
}

// Synthesize runs one cycle of the cancel/place algorithm.
//
// Cancellation always precedes placement in the returned Decision, and
// callers must execute it in that order: an order that is simultaneously
// excessive and about to be replaced must be cancelled before its
// replacement is placed, or the band could briefly exceed maxAmount.
func (e *Engine) Synthesize(in Inputs) Decision {
	buys, sells := in.Book.BuySell()

	var dec Decision
	dec.Cancel = append(dec.Cancel, e.cancelOutOfBand(buys, true, in.ReferencePrice)...)
	dec.Cancel = append(dec.Cancel, e.cancelOutOfBand(sells, false, in.ReferencePrice)...)

	buyInBand := e.partitionByBuyBand(buys, in.ReferencePrice)
	sellInBand := e.partitionBySellBand(sells, in.ReferencePrice)

	for i, band := range e.Bands.Buy {
		dec.Cancel = append(dec.Cancel, bands.DustOrders(buyInBand[i], band.DustCutoff)...)
		dec.Cancel = append(dec.Cancel, bands.ExcessiveOrders(buyInBand[i], band.MaxAmount)...)
	}
	for i, band := range e.Bands.Sell {
		dec.Cancel = append(dec.Cancel, bands.DustOrders(sellInBand[i], band.DustCutoff)...)
		dec.Cancel = append(dec.Cancel, bands.ExcessiveOrders(sellInBand[i], band.MaxAmount)...)
	}

	cancelledIDs := make(map[string]bool, len(dec.Cancel))
	for _, o := range dec.Cancel {
		cancelledIDs[o.ID] = true
	}

	quoteAvail := in.QuoteBalance
	if in.BuyLimits != nil {
		if l := in.BuyLimits.AvailableLimit(in.Now); l.LessThan(quoteAvail) {
			quoteAvail = l
		}
	}
	baseAvail := in.BaseBalance
	if in.SellLimits != nil {
		if l := in.SellLimits.AvailableLimit(in.Now); l.LessThan(baseAvail) {
			baseAvail = l
		}
	}

	for i, band := range e.Bands.Buy {
		remaining := survivorsExcluding(buyInBand[i], cancelledIDs)
		intent, used := newBuyOrder(band, i, in.ReferencePrice, remaining, quoteAvail)
		if intent != nil {
			dec.Place = append(dec.Place, *intent)
			quoteAvail = quoteAvail.Sub(used)
		}
	}
	for i, band := range e.Bands.Sell {
		remaining := survivorsExcluding(sellInBand[i], cancelledIDs)
		intent, used := newSellOrder(band, i, in.ReferencePrice, remaining, baseAvail)
		if intent != nil {
			dec.Place = append(dec.Place, *intent)
			baseAvail = baseAvail.Sub(used)
		}
	}

	return dec
}

func survivorsExcluding(orders []domain.Order, cancelled map[string]bool) []domain.Order {
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if !cancelled[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

// cancelOutOfBand returns orders whose margin does not fall within any
// configured band on their side; such orders are always cancelled.
func (e *Engine) cancelOutOfBand(orders []domain.Order, isBuy bool, referencePrice decimal.Decimal) []domain.Order {
	var out []domain.Order
	for _, o := range orders {
		matched := false
		if isBuy {
			matched = e.Bands.AssignBuyBand(o, referencePrice) != -1
		} else {
			matched = e.Bands.AssignSellBand(o, referencePrice) != -1
		}
		if !matched {
			out = append(out, o)
		}
	}
	return out
}

func (e *Engine) partitionByBuyBand(orders []domain.Order, referencePrice decimal.Decimal) [][]domain.Order {
	buckets := make([][]domain.Order, len(e.Bands.Buy))
	for _, o := range orders {
		if idx := e.Bands.AssignBuyBand(o, referencePrice); idx != -1 {
			buckets[idx] = append(buckets[idx], o)
		}
	}
	return buckets
}

func (e *Engine) partitionBySellBand(orders []domain.Order, referencePrice decimal.Decimal) [][]domain.Order {
	buckets := make([][]domain.Order, len(e.Bands.Sell))
	for _, o := range orders {
		if idx := e.Bands.AssignSellBand(o, referencePrice); idx != -1 {
			buckets[idx] = append(buckets[idx], o)
		}
	}
	return buckets
}

// newBuyOrder computes the top-up order for a buy band. A buy band's
// minAmount/avgAmount/maxAmount/dustCutoff are all denominated in the
// buy-token (quote currency), since that is the side the band spends to
// acquire the base token. minAmount gates only whether a top-up is
// considered at all (totalAmount < minAmount): it is not a second floor
// applied to the clamped order once sizing has already happened.
// pay_amount = min(avgAmount - totalAmount, quoteAvail), and the order's
// base amount is derived from it as pay_amount / price.
func newBuyOrder(band bands.BuyBand, index int, referencePrice decimal.Decimal, existing []domain.Order, quoteAvail decimal.Decimal) (*domain.NewOrderIntent, decimal.Decimal) {
	total := bands.TotalAmount(existing)
	if !total.LessThan(band.MinAmount) {
		return nil, decimal.Zero
	}

	price := band.PriceForMargin(referencePrice, band.AvgMargin)
	if price.IsZero() || price.IsNegative() {
		return nil, decimal.Zero
	}

	payAmount := band.AvgAmount.Sub(total)
	if band.MaxAmount.Sub(total).LessThan(payAmount) {
		payAmount = band.MaxAmount.Sub(total)
	}
	if payAmount.GreaterThan(quoteAvail) {
		payAmount = quoteAvail
	}

	if !payAmount.IsPositive() {
		return nil, decimal.Zero
	}
	if payAmount.LessThan(band.DustCutoff) {
		return nil, decimal.Zero
	}

	amount := payAmount.Div(price)
	if !amount.IsPositive() {
		return nil, decimal.Zero
	}

	return &domain.NewOrderIntent{
		BandIndex: index,
		Side:      domain.OrderSideBuy,
		Price:     price,
		Amount:    amount,
	}, payAmount
}

// newSellOrder is newBuyOrder's mirror for sell bands: a sell band's
// amounts are already denominated in the sell-token (base currency), so no
// pay/price conversion is needed, and the constraining balance is the base
// balance rather than the quote balance. minAmount plays the same
// trigger-only role as in newBuyOrder.
func newSellOrder(band bands.SellBand, index int, referencePrice decimal.Decimal, existing []domain.Order, baseAvail decimal.Decimal) (*domain.NewOrderIntent, decimal.Decimal) {
	total := bands.TotalAmount(existing)
	if !total.LessThan(band.MinAmount) {
		return nil, decimal.Zero
	}

	price := band.PriceForMargin(referencePrice, band.AvgMargin)
	if price.IsZero() || price.IsNegative() {
		return nil, decimal.Zero
	}

	amount := band.AvgAmount.Sub(total)
	if band.MaxAmount.Sub(total).LessThan(amount) {
		amount = band.MaxAmount.Sub(total)
	}
	if amount.GreaterThan(baseAvail) {
		amount = baseAvail
	}

	if !amount.IsPositive() {
		return nil, decimal.Zero
	}
	if amount.LessThan(band.DustCutoff) {
		return nil, decimal.Zero
	}

	return &domain.NewOrderIntent{
		BandIndex: index,
		Side:      domain.OrderSideSell,
		Price:     price,
		Amount:    amount,
	}, amount
}
