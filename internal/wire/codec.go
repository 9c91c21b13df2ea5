package wire

import "fmt"

// EncodeHeader writes h into buf[0:16] big-endian. buf must have len >= 16.
func EncodeHeader(buf []byte, h Header) {
	putU16(buf[0:2], h.Version)
	putU16(buf[2:4], h.PayloadSize)
	putU32(buf[4:8], h.SequenceNumber)
	putU64(buf[8:16], h.Timestamp)
}

// DecodeHeader reads a Header from buf[0:16]. buf must have len >= 16.
func DecodeHeader(buf []byte) Header {
	return Header{
		Version:        getU16(buf[0:2]),
		PayloadSize:    getU16(buf[2:4]),
		SequenceNumber: getU32(buf[4:8]),
		Timestamp:      getU64(buf[8:16]),
	}
}

// EncodeNewOrder writes the NewOrder payload (35 bytes) into buf[0:35].
// The side byte is written verbatim; it is never endian-swapped.
func EncodeNewOrder(buf []byte, o NewOrder) {
	putU16(buf[0:2], uint16(TypeNewOrder))
	putU64(buf[2:10], o.ListingID)
	putU64(buf[10:18], o.OrderID)
	putU64(buf[18:26], o.Quantity)
	putU64(buf[26:34], o.Price)
	buf[34] = byte(o.Side)
}

// DecodeNewOrder reads a NewOrder payload from buf[0:35]. It does not
// validate messageType or side; callers use DecodeByLength/DecodeHeaderFirst
// for that.
func DecodeNewOrder(buf []byte) NewOrder {
	return NewOrder{
		ListingID: getU64(buf[2:10]),
		OrderID:   getU64(buf[10:18]),
		Quantity:  getU64(buf[18:26]),
		Price:     getU64(buf[26:34]),
		Side:      Side(buf[34]),
	}
}

// EncodeDeleteOrder writes the DeleteOrder payload (10 bytes) into buf[0:10].
func EncodeDeleteOrder(buf []byte, o DeleteOrder) {
	putU16(buf[0:2], uint16(TypeDeleteOrder))
	putU64(buf[2:10], o.OrderID)
}

// DecodeDeleteOrder reads a DeleteOrder payload from buf[0:10].
func DecodeDeleteOrder(buf []byte) DeleteOrder {
	return DeleteOrder{OrderID: getU64(buf[2:10])}
}

// EncodeModifyOrderQuantity writes the payload (18 bytes) into buf[0:18].
func EncodeModifyOrderQuantity(buf []byte, o ModifyOrderQuantity) {
	putU16(buf[0:2], uint16(TypeModifyQuantity))
	putU64(buf[2:10], o.OrderID)
	putU64(buf[10:18], o.NewQuantity)
}

// DecodeModifyOrderQuantity reads the payload from buf[0:18].
func DecodeModifyOrderQuantity(buf []byte) ModifyOrderQuantity {
	return ModifyOrderQuantity{
		OrderID:     getU64(buf[2:10]),
		NewQuantity: getU64(buf[10:18]),
	}
}

// EncodeTrade writes the Trade payload (34 bytes) into buf[0:34].
func EncodeTrade(buf []byte, t Trade) {
	putU16(buf[0:2], uint16(TypeTrade))
	putU64(buf[2:10], t.ListingID)
	putU64(buf[10:18], t.TradeID)
	putU64(buf[18:26], t.Quantity)
	putU64(buf[26:34], t.Price)
}

// DecodeTrade reads a Trade payload from buf[0:34].
func DecodeTrade(buf []byte) Trade {
	return Trade{
		ListingID: getU64(buf[2:10]),
		TradeID:   getU64(buf[10:18]),
		Quantity:  getU64(buf[18:26]),
		Price:     getU64(buf[26:34]),
	}
}

// EncodeOrderResponse writes the OrderResponse payload (12 bytes) into
// buf[0:12]. Status is stored as a u16 and endian-swapped like any other
// integer field.
func EncodeOrderResponse(buf []byte, r OrderResponse) {
	putU16(buf[0:2], uint16(TypeOrderResponse))
	putU64(buf[2:10], r.OrderID)
	putU16(buf[10:12], uint16(r.Status))
}

// DecodeOrderResponse reads an OrderResponse payload from buf[0:12].
func DecodeOrderResponse(buf []byte) OrderResponse {
	return OrderResponse{
		OrderID: getU64(buf[2:10]),
		Status:  Status(getU16(buf[10:12])),
	}
}

// EncodeMessage writes a full Header+payload message for one of the five
// known payload types into buf, and returns the number of bytes written.
// buf must be at least MinBufferSize long.
func EncodeMessage(buf []byte, h Header, payload any) (int, error) {
	if len(buf) < MinBufferSize {
		return 0, fmt.Errorf("wire: buffer too small (%d < %d)", len(buf), MinBufferSize)
	}
	var total int
	switch p := payload.(type) {
	case NewOrder:
		h.PayloadSize = NewOrderSize
		EncodeHeader(buf, h)
		EncodeNewOrder(buf[HeaderSize:], p)
		total = NewOrderMsgSize
	case DeleteOrder:
		h.PayloadSize = DeleteOrderSize
		EncodeHeader(buf, h)
		EncodeDeleteOrder(buf[HeaderSize:], p)
		total = DeleteOrderMsgSize
	case ModifyOrderQuantity:
		h.PayloadSize = ModifyQtySize
		EncodeHeader(buf, h)
		EncodeModifyOrderQuantity(buf[HeaderSize:], p)
		total = ModifyQtyMsgSize
	case Trade:
		h.PayloadSize = TradeSize
		EncodeHeader(buf, h)
		EncodeTrade(buf[HeaderSize:], p)
		total = TradeMsgSize
	case OrderResponse:
		h.PayloadSize = OrderResponseSize
		EncodeHeader(buf, h)
		EncodeOrderResponse(buf[HeaderSize:], p)
		total = OrderResponseMsgSize
	default:
		return 0, fmt.Errorf("wire: %w: unsupported payload type %T", ErrMalformedMessage, payload)
	}
	return total, nil
}

// DecodeByLength implements the legacy length-typed dispatch: the byte
// count alone selects the variant. It additionally validates that the
// decoded messageType tag agrees with the length-implied variant and that
// the header's PayloadSize matches n-16. Treat this as a compatibility
// path only — DecodeHeaderFirst is what the reactor uses.
func DecodeByLength(buf []byte) (Header, any, error) {
	n := len(buf)
	if n < HeaderSize {
		return Header{}, nil, fmt.Errorf("wire: %w: frame too short (%d bytes)", ErrMalformedMessage, n)
	}
	h := DecodeHeader(buf)
	if int(h.PayloadSize) != n-HeaderSize {
		return Header{}, nil, fmt.Errorf("wire: %w: payloadSize %d does not match %d received bytes", ErrMalformedMessage, h.PayloadSize, n-HeaderSize)
	}
	payload := buf[HeaderSize:]

	switch n {
	case NewOrderMsgSize:
		if MessageType(getU16(payload)) != TypeNewOrder {
			return Header{}, nil, fmt.Errorf("wire: %w: length implies NewOrder but tag differs", ErrMalformedMessage)
		}
		o := DecodeNewOrder(payload)
		if !o.Side.Valid() {
			return Header{}, nil, fmt.Errorf("wire: %w: invalid side %q", ErrMalformedMessage, byte(o.Side))
		}
		if o.Quantity == 0 {
			return Header{}, nil, fmt.Errorf("wire: %w: zero quantity", ErrMalformedMessage)
		}
		return h, o, nil
	case DeleteOrderMsgSize:
		if MessageType(getU16(payload)) != TypeDeleteOrder {
			return Header{}, nil, fmt.Errorf("wire: %w: length implies DeleteOrder but tag differs", ErrMalformedMessage)
		}
		return h, DecodeDeleteOrder(payload), nil
	case ModifyQtyMsgSize:
		if MessageType(getU16(payload)) != TypeModifyQuantity {
			return Header{}, nil, fmt.Errorf("wire: %w: length implies ModifyOrderQuantity but tag differs", ErrMalformedMessage)
		}
		m := DecodeModifyOrderQuantity(payload)
		if m.NewQuantity == 0 {
			return Header{}, nil, fmt.Errorf("wire: %w: zero quantity", ErrMalformedMessage)
		}
		return h, m, nil
	case TradeMsgSize:
		if MessageType(getU16(payload)) != TypeTrade {
			return Header{}, nil, fmt.Errorf("wire: %w: length implies Trade but tag differs", ErrMalformedMessage)
		}
		t := DecodeTrade(payload)
		if t.Quantity == 0 {
			return Header{}, nil, fmt.Errorf("wire: %w: zero quantity", ErrMalformedMessage)
		}
		return h, t, nil
	case OrderResponseMsgSize:
		if MessageType(getU16(payload)) != TypeOrderResponse {
			return Header{}, nil, fmt.Errorf("wire: %w: length implies OrderResponse but tag differs", ErrMalformedMessage)
		}
		return h, DecodeOrderResponse(payload), nil
	default:
		return Header{}, nil, fmt.Errorf("wire: %w: unrecognized frame length %d", ErrMalformedMessage, n)
	}
}

// DecodeHeaderFirst decodes a frame whose header has already been parsed
// out of buf[0:16], dispatching on h.PayloadSize+messageType rather than
// on the legacy total-length table. payload must be exactly h.PayloadSize
// bytes (the caller is expected to have accumulated that many).
func DecodeHeaderFirst(h Header, payload []byte) (any, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("wire: %w: payload too short for messageType tag", ErrMalformedMessage)
	}
	if int(h.PayloadSize) != len(payload) {
		return nil, fmt.Errorf("wire: %w: payloadSize %d does not match %d accumulated bytes", ErrMalformedMessage, h.PayloadSize, len(payload))
	}
	msgType := MessageType(getU16(payload))

	switch msgType {
	case TypeNewOrder:
		if len(payload) != NewOrderSize {
			return nil, fmt.Errorf("wire: %w: NewOrder payload must be %d bytes, got %d", ErrMalformedMessage, NewOrderSize, len(payload))
		}
		o := DecodeNewOrder(payload)
		if !o.Side.Valid() {
			return nil, fmt.Errorf("wire: %w: invalid side %q", ErrMalformedMessage, byte(o.Side))
		}
		if o.Quantity == 0 {
			return nil, fmt.Errorf("wire: %w: zero quantity", ErrMalformedMessage)
		}
		return o, nil
	case TypeDeleteOrder:
		if len(payload) != DeleteOrderSize {
			return nil, fmt.Errorf("wire: %w: DeleteOrder payload must be %d bytes, got %d", ErrMalformedMessage, DeleteOrderSize, len(payload))
		}
		return DecodeDeleteOrder(payload), nil
	case TypeModifyQuantity:
		if len(payload) != ModifyQtySize {
			return nil, fmt.Errorf("wire: %w: ModifyOrderQuantity payload must be %d bytes, got %d", ErrMalformedMessage, ModifyQtySize, len(payload))
		}
		m := DecodeModifyOrderQuantity(payload)
		if m.NewQuantity == 0 {
			return nil, fmt.Errorf("wire: %w: zero quantity", ErrMalformedMessage)
		}
		return m, nil
	case TypeTrade:
		if len(payload) != TradeSize {
			return nil, fmt.Errorf("wire: %w: Trade payload must be %d bytes, got %d", ErrMalformedMessage, TradeSize, len(payload))
		}
		t := DecodeTrade(payload)
		if t.Quantity == 0 {
			return nil, fmt.Errorf("wire: %w: zero quantity", ErrMalformedMessage)
		}
		return t, nil
	case TypeOrderResponse:
		if len(payload) != OrderResponseSize {
			return nil, fmt.Errorf("wire: %w: OrderResponse payload must be %d bytes, got %d", ErrMalformedMessage, OrderResponseSize, len(payload))
		}
		return DecodeOrderResponse(payload), nil
	default:
		return nil, fmt.Errorf("wire: %w: unknown messageType %d", ErrMalformedMessage, msgType)
	}
}

// RecoverOrderID best-effort extracts the order/trade id a malformed
// message was about, so the connection can still emit a REJECTED response
// instead of closing. payload starts after the 16-byte header. For a
// NewOrder or Trade tag the id follows the listingId (payload[10:18]); for
// any other tag it is the first u64 after the messageType (payload[2:10]).
// It reports false when too few bytes are present to hold that id.
func RecoverOrderID(payload []byte) (uint64, bool) {
	if len(payload) < 10 {
		return 0, false
	}
	switch MessageType(getU16(payload)) {
	case TypeNewOrder, TypeTrade:
		if len(payload) < 18 {
			return 0, false
		}
		return getU64(payload[10:18]), true
	default:
		return getU64(payload[2:10]), true
	}
}
