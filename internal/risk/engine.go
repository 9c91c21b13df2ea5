// Package risk implements the gateway's pre-trade risk engine.
//
// The engine tracks, per instrument (listingId), the trader's resting
// exposure and computes a hypothetical worst-case position: the largest
// absolute position the trader could reach if every resting order on one
// side executed against the trader's current net position. A mutation
// (new order, cancel, quantity change, or trade) is accepted only if,
// after applying it, neither side's hypothetical worst case breaches the
// configured limit.
//
// Design decisions:
//
//  1. Tentative-then-commit: every Evaluate* method computes the
//     would-be ProductInfo, tests it against the limits, and only writes
//     it back to the map on ACCEPTED. A REJECTED evaluation leaves
//     ProductInfo bit-identical to its pre-call value.
//  2. Signed net position: NetPos is int64, not unsigned, to allow shorts
//     without underflow.
//  3. Listing map is lazily populated on first NewOrder and never
//     destroyed afterward, even if every order against it is later
//     cancelled.
package risk

import (
	"fmt"
	"math"
)

// Decision is the binary outcome of a risk evaluation.
type Decision int

const (
	Rejected Decision = iota
	Accepted
)

func (d Decision) String() string {
	if d == Accepted {
		return "ACCEPTED"
	}
	return "REJECTED"
}

// Side mirrors wire.Side without importing it, so this package has no wire
// dependency; callers translate at the boundary.
type Side byte

const (
	SideBuy  Side = 'B'
	SideSell Side = 'S'
)

// Limits bounds one listing's (or the process-wide default's) hypothetical
// worst-case exposure.
type Limits struct {
	BuyLimit  uint64
	SellLimit uint64

	// PriceBandPercent, if non-zero, rejects a NewOrder whose price
	// deviates from ProductInfo.ReferencePrice by more than this fraction
	// (0.10 = 10%). 0 (the default) disables the check entirely.
	PriceBandPercent float64
}

// ProductInfo is the per-listing exposure state.
type ProductInfo struct {
	NetPos     int64 // signed; realized position from executed trades
	BuyQty     uint64
	SellQty    uint64
	HypMaxBuy  uint64
	HypMaxSell uint64

	// ReferencePrice is the price (wire units, 4 implied decimals) of the
	// most recent accepted Trade on this listing, 0 if none yet.
	ReferencePrice uint64
}

// recompute derives HypMaxBuy/HypMaxSell from BuyQty/SellQty/NetPos:
// hypMaxBuy = max(buyQty, netPos+buyQty), hypMaxSell = max(sellQty, sellQty-netPos).
func (p *ProductInfo) recompute() {
	p.HypMaxBuy = maxU64Signed(int64(p.BuyQty), int64(p.NetPos)+int64(p.BuyQty))
	p.HypMaxSell = maxU64Signed(int64(p.SellQty), int64(p.SellQty)-int64(p.NetPos))
}

func maxU64Signed(a, b int64) uint64 {
	m := a
	if b > m {
		m = b
	}
	if m < 0 {
		m = 0
	}
	return uint64(m)
}

// breaches reports whether p violates lim: REJECT if hypMaxBuy > BuyLimit
// OR hypMaxSell > SellLimit.
func (p ProductInfo) breaches(lim Limits) bool {
	return p.HypMaxBuy > lim.BuyLimit || p.HypMaxSell > lim.SellLimit
}

// addSaturating adds b to a, saturating at math.MaxUint64 instead of
// wrapping. Overflow is treated as an always-rejectable state.
func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// Engine owns every listing's ProductInfo and the configured limits. It is
// shared across all connections but is only ever driven from the
// single-threaded reactor loop, so it needs no internal locking.
type Engine struct {
	defaultLimits Limits
	perListing    map[uint64]Limits
	products      map[uint64]*ProductInfo
}

// New creates a risk engine with the given process-wide default limits.
func New(defaultLimits Limits) *Engine {
	return &Engine{
		defaultLimits: defaultLimits,
		perListing:    make(map[uint64]Limits),
		products:      make(map[uint64]*ProductInfo),
	}
}

// SetListingLimits overrides the default limits for one listingId.
func (e *Engine) SetListingLimits(listingID uint64, lim Limits) {
	e.perListing[listingID] = lim
}

func (e *Engine) limitsFor(listingID uint64) Limits {
	if lim, ok := e.perListing[listingID]; ok {
		return lim
	}
	return e.defaultLimits
}

// Product returns a copy of the current ProductInfo for listingID, and
// whether one exists yet.
func (e *Engine) Product(listingID uint64) (ProductInfo, bool) {
	p, ok := e.products[listingID]
	if !ok {
		return ProductInfo{}, false
	}
	return *p, true
}

func (e *Engine) productOrInsert(listingID uint64) *ProductInfo {
	p, ok := e.products[listingID]
	if !ok {
		p = &ProductInfo{}
		e.products[listingID] = p
	}
	return p
}

func withinPriceBand(p ProductInfo, lim Limits, price uint64) bool {
	if lim.PriceBandPercent <= 0 || p.ReferencePrice == 0 {
		return true
	}
	band := float64(p.ReferencePrice) * lim.PriceBandPercent
	low := float64(p.ReferencePrice) - band
	high := float64(p.ReferencePrice) + band
	fp := float64(price)
	return fp >= low && fp <= high
}

// EvaluateNew evaluates a NewOrder: add quantity to the relevant side,
// recompute hypothetical worst-case, accept iff within limits (and, if
// configured, within the reference price band). Commits on ACCEPTED only.
//
// quantity == 0 and side not in {'B','S'} are codec-level malformed-message
// conditions and must never reach this method; callers reject those
// before invoking the engine.
func (e *Engine) EvaluateNew(listingID uint64, side Side, quantity uint64, price uint64) Decision {
	lim := e.limitsFor(listingID)
	candidate, _ := e.Product(listingID)

	if !withinPriceBand(candidate, lim, price) {
		return Rejected
	}

	switch side {
	case SideBuy:
		candidate.BuyQty = addSaturating(candidate.BuyQty, quantity)
	case SideSell:
		candidate.SellQty = addSaturating(candidate.SellQty, quantity)
	default:
		return Rejected
	}
	candidate.recompute()

	if candidate.breaches(lim) {
		return Rejected
	}
	*e.productOrInsert(listingID) = candidate
	return Accepted
}

// EvaluateDelete reverses a resting order's contribution to its listing's
// exposure. A delete can (implausibly) still be rejected if it would push
// the hypothetical worst case over a limit; deletes are not special-cased
// as always-safe.
func (e *Engine) EvaluateDelete(listingID uint64, side Side, quantity uint64) Decision {
	lim := e.limitsFor(listingID)
	candidate, _ := e.Product(listingID)

	switch side {
	case SideBuy:
		candidate.BuyQty = subSaturating(candidate.BuyQty, quantity)
	case SideSell:
		candidate.SellQty = subSaturating(candidate.SellQty, quantity)
	default:
		return Rejected
	}
	candidate.recompute()

	if candidate.breaches(lim) {
		return Rejected
	}
	*e.productOrInsert(listingID) = candidate
	return Accepted
}

func subSaturating(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// EvaluateModify is equivalent to deleting oldQuantity and adding
// newQuantity on the same side, atomically.
func (e *Engine) EvaluateModify(listingID uint64, side Side, oldQuantity, newQuantity uint64) Decision {
	lim := e.limitsFor(listingID)
	candidate, _ := e.Product(listingID)

	switch side {
	case SideBuy:
		candidate.BuyQty = addSaturating(subSaturating(candidate.BuyQty, oldQuantity), newQuantity)
	case SideSell:
		candidate.SellQty = addSaturating(subSaturating(candidate.SellQty, oldQuantity), newQuantity)
	default:
		return Rejected
	}
	candidate.recompute()

	if candidate.breaches(lim) {
		return Rejected
	}
	*e.productOrInsert(listingID) = candidate
	return Accepted
}

// EvaluateTrade applies an execution: netPos moves by +tradeQuantity for a
// buy-side order, -tradeQuantity for a sell-side order; the side's resting
// quantity is reduced by the same amount. Rejects if tradeQuantity exceeds
// the order's remaining quantity.
func (e *Engine) EvaluateTrade(listingID uint64, side Side, orderQuantity, tradeQuantity, tradePrice uint64) Decision {
	if tradeQuantity > orderQuantity {
		return Rejected
	}

	lim := e.limitsFor(listingID)
	candidate, _ := e.Product(listingID)

	switch side {
	case SideBuy:
		candidate.NetPos += int64(tradeQuantity)
		candidate.BuyQty = subSaturating(candidate.BuyQty, tradeQuantity)
	case SideSell:
		candidate.NetPos -= int64(tradeQuantity)
		candidate.SellQty = subSaturating(candidate.SellQty, tradeQuantity)
	default:
		return Rejected
	}
	candidate.recompute()

	if candidate.breaches(lim) {
		return Rejected
	}
	candidate.ReferencePrice = tradePrice
	*e.productOrInsert(listingID) = candidate
	return Accepted
}

func (p ProductInfo) String() string {
	return fmt.Sprintf("ProductInfo{net:%d buy:%d sell:%d hypBuy:%d hypSell:%d ref:%d}",
		p.NetPos, p.BuyQty, p.SellQty, p.HypMaxBuy, p.HypMaxSell, p.ReferencePrice)
}
