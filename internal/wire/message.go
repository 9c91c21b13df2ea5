// Package wire implements the gateway's binary request/response protocol.
//
// Every message on the wire is a fixed-layout, network-byte-order byte run:
// a 16-byte Header followed by one of five payload shapes, discriminated by
// a messageType tag that also happens to make every payload a distinct
// length (see DecodeByLength). Fields are packed with no padding; nothing
// here ever allocates beyond the caller-supplied buffer.
//
// Layout (all multi-byte fields big-endian):
//
//	Header               : version u16, payloadSize u16, sequenceNumber u32, timestamp u64   (16B)
//	NewOrder             : messageType u16, listingId u64, orderId u64, quantity u64, price u64, side u8  (35B)
//	DeleteOrder          : messageType u16, orderId u64                                        (10B)
//	ModifyOrderQuantity  : messageType u16, orderId u64, newQuantity u64                        (18B)
//	Trade                : messageType u16, listingId u64, tradeId u64, quantity u64, price u64 (34B)
//	OrderResponse        : messageType u16, orderId u64, status u16                             (12B)
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MessageType discriminates the payload that follows a Header.
type MessageType uint16

const (
	TypeNewOrder       MessageType = 1
	TypeDeleteOrder    MessageType = 2
	TypeModifyQuantity MessageType = 3
	TypeTrade          MessageType = 4
	TypeOrderResponse  MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case TypeNewOrder:
		return "NewOrder"
	case TypeDeleteOrder:
		return "DeleteOrder"
	case TypeModifyQuantity:
		return "ModifyOrderQuantity"
	case TypeTrade:
		return "Trade"
	case TypeOrderResponse:
		return "OrderResponse"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(t))
	}
}

// Status is the outcome carried in an OrderResponse.
type Status uint16

const (
	StatusAccepted Status = 0
	StatusRejected Status = 1
)

func (s Status) String() string {
	if s == StatusAccepted {
		return "ACCEPTED"
	}
	return "REJECTED"
}

// Side is the side of a NewOrder. Unlike every other field it is a single
// byte and is never endian-swapped.
type Side byte

const (
	SideBuy  Side = 'B'
	SideSell Side = 'S'
)

// Valid reports whether s is one of the two wire-legal sides.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "INVALID"
	}
}

// Byte sizes. HeaderSize is the frame prefix; the *Size constants
// are payload-only; the *MsgSize constants are Header+payload (what actually
// crosses the wire in one request/response).
const (
	HeaderSize = 16

	NewOrderSize      = 35
	DeleteOrderSize   = 10
	ModifyQtySize     = 18
	TradeSize         = 34
	OrderResponseSize = 12

	NewOrderMsgSize      = HeaderSize + NewOrderSize      // 51
	DeleteOrderMsgSize   = HeaderSize + DeleteOrderSize   // 26
	ModifyQtyMsgSize     = HeaderSize + ModifyQtySize     // 34
	TradeMsgSize         = HeaderSize + TradeSize         // 50
	OrderResponseMsgSize = HeaderSize + OrderResponseSize // 28

	// MinBufferSize is the minimum scratch buffer the codec requires from
	// callers; it never allocates beyond what it's given.
	MinBufferSize = 256
)

// ErrMalformedMessage is returned (optionally wrapped with more context) for
// any frame that fails layout, length, or tag validation.
var ErrMalformedMessage = errors.New("wire: malformed message")

// Header is the 16-byte frame prefix common to every message.
type Header struct {
	Version        uint16
	PayloadSize    uint16
	SequenceNumber uint32
	Timestamp      uint64
}

// NewOrder requests a new resting order on listingId.
type NewOrder struct {
	ListingID uint64
	OrderID   uint64
	Quantity  uint64
	Price     uint64 // 4 implied decimals: wire value / 10000
	Side      Side
}

// DeleteOrder cancels a previously accepted order by id.
type DeleteOrder struct {
	OrderID uint64
}

// ModifyOrderQuantity changes the resting quantity of an existing order.
type ModifyOrderQuantity struct {
	OrderID     uint64
	NewQuantity uint64
}

// Trade reports an execution against a previously accepted order.
type Trade struct {
	ListingID uint64
	TradeID   uint64
	Quantity  uint64
	Price     uint64
}

// OrderResponse is the gateway's answer to any inbound message.
type OrderResponse struct {
	OrderID uint64
	Status  Status
}

func putU16(buf []byte, v uint16) { binary.BigEndian.PutUint16(buf, v) }
func putU32(buf []byte, v uint32) { binary.BigEndian.PutUint32(buf, v) }
func putU64(buf []byte, v uint64) { binary.BigEndian.PutUint64(buf, v) }

func getU16(buf []byte) uint16 { return binary.BigEndian.Uint16(buf) }
func getU32(buf []byte) uint32 { return binary.BigEndian.Uint32(buf) }
func getU64(buf []byte) uint64 { return binary.BigEndian.Uint64(buf) }
