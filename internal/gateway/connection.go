// Package gateway implements one accepted socket's request/response cycle:
// accumulate a framed message, decode it, apply it to the shared risk
// engine and this trader's order book, and write back an OrderResponse.
//
// A Connection is driven entirely by its owning reactor: OnReadable is
// called once per readiness event and never blocks past a single
// non-blocking read/write pair.
package gateway

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/rishav/risk-gateway/internal/risk"
	"github.com/rishav/risk-gateway/internal/trader"
	"github.com/rishav/risk-gateway/internal/wire"
)

// Outcome tells the reactor what happened on the last readiness event, so it
// knows whether to keep polling this Connection or tear it down.
type Outcome int

const (
	// Idle means the read would block (EAGAIN); nothing to do until the
	// next readiness event.
	Idle Outcome = iota
	// NeedMore means a partial frame was read; accumulation continues.
	NeedMore
	// Dispatched means exactly one request/response cycle completed.
	Dispatched
	// Closed means the connection transitioned to CLOSED and has already
	// released its socket and replayed its cleanup deletes.
	Closed
)

// bufferSize comfortably holds one NewOrder frame (51B) with headroom; it
// matches the codec's own minimum scratch requirement.
const bufferSize = wire.MinBufferSize

// Connection is one accepted socket's state: its framing buffer, its
// trader's live orders, and a borrowed Handle into the shared risk engine
// and sequence counter.
type Connection struct {
	fd     int
	remote string
	log    *zap.Logger
	handle *Handle

	book *trader.Book

	in     [bufferSize]byte
	have   int
	out    [bufferSize]byte
	closed bool
}

// New constructs a Connection around an already-accepted, non-blocking
// file descriptor.
func New(fd int, remote string, handle *Handle, log *zap.Logger) *Connection {
	if handle.Metrics != nil {
		handle.Metrics.ConnectionOpened()
	}
	return &Connection{
		fd:     fd,
		remote: remote,
		log:    log.With(zap.Int("fd", fd), zap.String("remote", remote)),
		handle: handle,
		book:   trader.NewBook(),
	}
}

// Fd returns the underlying file descriptor, for epoll registration.
func (c *Connection) Fd() int { return c.fd }

// Closed reports whether this connection has already torn itself down.
func (c *Connection) Closed() bool { return c.closed }

// OnReadable performs one non-blocking read and, if a full frame has now
// accumulated, one full request/response cycle. It never blocks.
func (c *Connection) OnReadable() Outcome {
	n, err := unix.Read(c.fd, c.in[c.have:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return Idle
		}
		c.log.Warn("read failed, closing", zap.Error(err))
		c.Close()
		return Closed
	}
	if n == 0 {
		c.log.Debug("peer closed connection")
		c.Close()
		return Closed
	}
	c.have += n
	return c.tryDispatch()
}

// tryDispatch decodes a header-first framed message from the accumulation
// buffer if one has fully arrived, applies it, writes the response, and
// compacts the buffer. Partial reads leave c.in untouched past c.have.
func (c *Connection) tryDispatch() Outcome {
	if c.have < wire.HeaderSize {
		return NeedMore
	}
	h := wire.DecodeHeader(c.in[:wire.HeaderSize])
	total := wire.HeaderSize + int(h.PayloadSize)
	if total > len(c.in) {
		c.log.Warn("frame exceeds buffer capacity, closing", zap.Int("total", total))
		c.Close()
		return Closed
	}
	if c.have < total {
		return NeedMore
	}

	body := c.in[wire.HeaderSize:total]
	payload, err := wire.DecodeHeaderFirst(h, body)
	if err != nil {
		if orderID, ok := wire.RecoverOrderID(body); ok {
			c.log.Debug("malformed payload, recovered order id", zap.Uint64("order_id", orderID))
			c.respond(orderID, wire.StatusRejected)
			c.recordMetric(0, risk.Rejected) // malformed payload: message type tag is unreliable, label as 0 (Unknown)
			if c.closed {
				return Closed
			}
			c.compact(total)
			return Dispatched
		}
		c.log.Warn("malformed payload, unrecoverable, closing", zap.Error(err))
		c.Close()
		return Closed
	}

	decision, orderID := c.apply(payload)
	if c.closed {
		return Closed
	}
	c.respond(orderID, statusFor(decision))
	c.recordMetric(messageTypeOf(payload), decision)
	if c.closed {
		return Closed
	}
	c.compact(total)
	return Dispatched
}

// messageTypeOf recovers the wire.MessageType tag a successfully decoded
// payload corresponds to, for metrics labeling.
func messageTypeOf(payload any) wire.MessageType {
	switch payload.(type) {
	case wire.NewOrder:
		return wire.TypeNewOrder
	case wire.DeleteOrder:
		return wire.TypeDeleteOrder
	case wire.ModifyOrderQuantity:
		return wire.TypeModifyQuantity
	case wire.Trade:
		return wire.TypeTrade
	default:
		return wire.TypeOrderResponse
	}
}

// recordMetric is a no-op when this Connection's Handle has no metrics
// registry attached (the ops side channel is optional).
func (c *Connection) recordMetric(msgType wire.MessageType, decision risk.Decision) {
	if c.handle.Metrics == nil {
		return
	}
	c.handle.Metrics.RecordMessage(msgType, statusFor(decision).String())
}

func statusFor(d risk.Decision) wire.Status {
	if d == risk.Accepted {
		return wire.StatusAccepted
	}
	return wire.StatusRejected
}

// compact discards the consumed frame and shifts any trailing bytes (the
// start of a pipelined next message) down to the front of the buffer.
func (c *Connection) compact(consumed int) {
	remaining := c.have - consumed
	copy(c.in[:remaining], c.in[consumed:c.have])
	c.have = remaining
}

// apply dispatches a decoded payload to the risk engine and trader state,
// returning the decision and the order/trade id the response should echo.
func (c *Connection) apply(payload any) (risk.Decision, uint64) {
	switch m := payload.(type) {
	case wire.NewOrder:
		return c.applyNewOrder(m)
	case wire.DeleteOrder:
		return c.applyDeleteOrder(m)
	case wire.ModifyOrderQuantity:
		return c.applyModify(m)
	case wire.Trade:
		return c.applyTrade(m)
	default:
		// DecodeHeaderFirst also decodes OrderResponse frames, which only
		// the gateway itself sends; a trader that sends one is closed
		// rather than answered.
		c.log.Error("unrecognized decoded payload type", zap.Any("payload", payload))
		c.Close()
		return risk.Rejected, 0
	}
}

func (c *Connection) applyNewOrder(m wire.NewOrder) (risk.Decision, uint64) {
	if _, exists := c.book.Get(m.OrderID); exists {
		// orderId must be unique per trader; a collision is a
		// straight reject, the risk engine is never consulted.
		return risk.Rejected, m.OrderID
	}
	side := risk.Side(m.Side)
	decision := c.handle.Risk.EvaluateNew(m.ListingID, side, m.Quantity, m.Price)
	if decision == risk.Accepted {
		c.book.Insert(trader.Order{
			OrderID:   m.OrderID,
			ListingID: m.ListingID,
			Quantity:  m.Quantity,
			Price:     trader.PriceFromWire(m.Price),
			Side:      m.Side,
		})
	}
	return decision, m.OrderID
}

func (c *Connection) applyDeleteOrder(m wire.DeleteOrder) (risk.Decision, uint64) {
	o, exists := c.book.Get(m.OrderID)
	if !exists {
		return risk.Rejected, m.OrderID
	}
	decision := c.handle.Risk.EvaluateDelete(o.ListingID, risk.Side(o.Side), o.Quantity)
	if decision == risk.Accepted {
		c.book.Erase(m.OrderID)
	}
	return decision, m.OrderID
}

func (c *Connection) applyModify(m wire.ModifyOrderQuantity) (risk.Decision, uint64) {
	o, exists := c.book.Get(m.OrderID)
	if !exists {
		return risk.Rejected, m.OrderID
	}
	decision := c.handle.Risk.EvaluateModify(o.ListingID, risk.Side(o.Side), o.Quantity, m.NewQuantity)
	if decision == risk.Accepted {
		o.Quantity = m.NewQuantity
		c.book.Update(o)
	}
	return decision, m.OrderID
}

func (c *Connection) applyTrade(m wire.Trade) (risk.Decision, uint64) {
	// m.TradeID identifies the original resting order the execution is
	// reported against (original_source/include/orders.h: "Order id that
	// refers to the original order id").
	o, exists := c.book.Get(m.TradeID)
	if !exists {
		return risk.Rejected, m.TradeID
	}
	decision := c.handle.Risk.EvaluateTrade(o.ListingID, risk.Side(o.Side), o.Quantity, m.Quantity, m.Price)
	if decision == risk.Accepted {
		if m.Quantity == o.Quantity {
			c.book.Erase(m.TradeID)
		} else {
			o.Quantity -= m.Quantity
			c.book.Update(o)
		}
	}
	return decision, m.TradeID
}

// respond composes and writes exactly one OrderResponse frame. A short
// write is fatal for the connection.
func (c *Connection) respond(orderID uint64, status wire.Status) {
	h := wire.Header{
		Version:        1,
		SequenceNumber: c.handle.nextSequence(),
		Timestamp:      uint64(time.Now().UnixNano()),
	}
	n, err := wire.EncodeMessage(c.out[:], h, wire.OrderResponse{OrderID: orderID, Status: status})
	if err != nil {
		c.log.Error("failed to encode response", zap.Error(err))
		c.Close()
		return
	}
	written, err := unix.Write(c.fd, c.out[:n])
	if err != nil || written != n {
		c.log.Warn("short or failed response write, closing",
			zap.Int("wrote", written), zap.Int("want", n), zap.Error(err))
		c.Close()
		return
	}
}

// Close unwinds this trader's exposure and releases the socket. Every live
// order is replayed as a DeleteOrder against the shared risk engine before
// the book is dropped, so a disconnect never permanently inflates
// ProductInfo for a listing.
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	for _, o := range c.book.All() {
		c.handle.Risk.EvaluateDelete(o.ListingID, risk.Side(o.Side), o.Quantity)
	}
	if err := unix.Close(c.fd); err != nil {
		c.log.Debug("close syscall failed", zap.Error(err))
	}
	if c.handle.Metrics != nil {
		c.handle.Metrics.ConnectionClosed()
	}
}

func (c *Connection) String() string {
	return fmt.Sprintf("Connection{fd:%d remote:%s orders:%d}", c.fd, c.remote, c.book.Len())
}
