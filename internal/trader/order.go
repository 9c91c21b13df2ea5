// Package trader holds per-connection state: the map of a single trader's
// live orders, keyed by order id. Order ids are unique within a trader but
// are never compared across traders — there is no cross-trader visibility.
package trader

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rishav/risk-gateway/internal/wire"
)

// priceScale is the wire protocol's implied decimal count: a raw price of
// 100000000 represents 10000.0000.
var priceScale = decimal.New(1, -4)

// PriceFromWire converts a raw wire price (4 implied decimals) to a Decimal.
func PriceFromWire(raw uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(raw)).Mul(priceScale)
}

// Order is the in-memory record of one resting order for one trader.
type Order struct {
	OrderID   uint64
	ListingID uint64
	Quantity  uint64
	Price     decimal.Decimal
	Side      wire.Side
}

func (o Order) String() string {
	return fmt.Sprintf("Order{id:%d listing:%d qty:%d price:%s side:%s}",
		o.OrderID, o.ListingID, o.Quantity, o.Price, o.Side)
}

// Book is the set of live orders belonging to a single trader (connection).
// It is not safe for concurrent use — a Connection owns its Book exclusively
// and is only ever driven from the single-threaded reactor loop.
type Book struct {
	orders map[uint64]Order
}

// NewBook creates an empty order book for one trader.
func NewBook() *Book {
	return &Book{orders: make(map[uint64]Order)}
}

// Insert adds a new live order. It reports false without modifying the book
// if orderId is already live: order ids are unique per trader.
func (b *Book) Insert(o Order) bool {
	if _, exists := b.orders[o.OrderID]; exists {
		return false
	}
	b.orders[o.OrderID] = o
	return true
}

// Get looks up a live order by id.
func (b *Book) Get(orderID uint64) (Order, bool) {
	o, ok := b.orders[orderID]
	return o, ok
}

// Update overwrites a live order in place. The caller must have confirmed
// the order exists (e.g. via Get) before calling Update.
func (b *Book) Update(o Order) {
	b.orders[o.OrderID] = o
}

// Erase removes a live order.
func (b *Book) Erase(orderID uint64) {
	delete(b.orders, orderID)
}

// Len returns the number of live orders.
func (b *Book) Len() int {
	return len(b.orders)
}

// All returns a snapshot slice of every live order, used when a connection
// closes and its exposure must be unwound.
func (b *Book) All() []Order {
	out := make([]Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	return out
}
