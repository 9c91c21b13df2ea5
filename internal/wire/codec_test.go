package wire

import (
	"bytes"
	"testing"
)

// fixture vectors pin the byte-exact wire layout.
func TestEncodeNewOrder_FixtureVector(t *testing.T) {
	buf := make([]byte, MinBufferSize)
	h := Header{Version: 1, SequenceNumber: 7, Timestamp: 0x0102030405060708}
	n, err := EncodeMessage(buf, h, NewOrder{
		ListingID: 1, OrderID: 10, Quantity: 60, Price: 100000000, Side: SideBuy,
	})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if n != NewOrderMsgSize {
		t.Fatalf("n = %d, want %d", n, NewOrderMsgSize)
	}

	want := []byte{
		0x00, 0x01, // version
		0x00, 0x23, // payloadSize = 35
		0x00, 0x00, 0x00, 0x07, // sequenceNumber
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, // timestamp
		0x00, 0x01, // messageType = 1
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, // listingId = 1
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0a, // orderId = 10
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x3c, // quantity = 60
		0x00, 0x00, 0x00, 0x00, 0x05, 0xf5, 0xe1, 0x00, // price = 100000000
		'B',
	}
	if !bytes.Equal(buf[:n], want) {
		t.Fatalf("got  % x\nwant % x", buf[:n], want)
	}
}

func TestRoundTrip_AllVariants(t *testing.T) {
	buf := make([]byte, MinBufferSize)
	h := Header{Version: 1, SequenceNumber: 42, Timestamp: 123456789}

	cases := []struct {
		name    string
		payload any
		size    int
	}{
		{"NewOrder", NewOrder{ListingID: 1, OrderID: 2, Quantity: 3, Price: 40000, Side: SideSell}, NewOrderMsgSize},
		{"DeleteOrder", DeleteOrder{OrderID: 999}, DeleteOrderMsgSize},
		{"ModifyOrderQuantity", ModifyOrderQuantity{OrderID: 5, NewQuantity: 77}, ModifyQtyMsgSize},
		{"Trade", Trade{ListingID: 1, TradeID: 10, Quantity: 60, Price: 100000000}, TradeMsgSize},
		{"OrderResponse", OrderResponse{OrderID: 11, Status: StatusRejected}, OrderResponseMsgSize},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := EncodeMessage(buf, h, tc.payload)
			if err != nil {
				t.Fatalf("EncodeMessage: %v", err)
			}
			if n != tc.size {
				t.Fatalf("n = %d, want %d", n, tc.size)
			}

			gotH, gotPayload, err := DecodeByLength(buf[:n])
			if err != nil {
				t.Fatalf("DecodeByLength: %v", err)
			}
			if gotH.SequenceNumber != h.SequenceNumber || gotH.Timestamp != h.Timestamp {
				t.Fatalf("header mismatch: got %+v", gotH)
			}
			if gotPayload != tc.payload {
				t.Fatalf("payload mismatch: got %+v, want %+v", gotPayload, tc.payload)
			}

			// Header-first framing must agree with the legacy length table.
			hf, err := DecodeHeaderFirst(gotH, buf[HeaderSize:n])
			if err != nil {
				t.Fatalf("DecodeHeaderFirst: %v", err)
			}
			if hf != tc.payload {
				t.Fatalf("header-first payload mismatch: got %+v, want %+v", hf, tc.payload)
			}
		})
	}
}

func TestDecodeByLength_RejectsTagLengthMismatch(t *testing.T) {
	buf := make([]byte, MinBufferSize)
	h := Header{Version: 1}
	n, _ := EncodeMessage(buf, h, DeleteOrder{OrderID: 1})
	// Corrupt the messageType tag so it no longer matches the length-implied variant.
	buf[HeaderSize+1] = byte(TypeTrade)
	if _, _, err := DecodeByLength(buf[:n]); err == nil {
		t.Fatal("expected error for tag/length mismatch")
	}
}

func TestDecodeByLength_RejectsPayloadSizeMismatch(t *testing.T) {
	buf := make([]byte, MinBufferSize)
	h := Header{Version: 1}
	n, _ := EncodeMessage(buf, h, DeleteOrder{OrderID: 1})
	putU16(buf[2:4], 9999) // wrong payloadSize
	if _, _, err := DecodeByLength(buf[:n]); err == nil {
		t.Fatal("expected error for payloadSize mismatch")
	}
}

func TestDecodeByLength_RejectsZeroQuantity(t *testing.T) {
	buf := make([]byte, MinBufferSize)
	n, _ := EncodeMessage(buf, Header{Version: 1}, NewOrder{ListingID: 1, OrderID: 1, Quantity: 0, Price: 1, Side: SideBuy})
	if _, _, err := DecodeByLength(buf[:n]); err == nil {
		t.Fatal("expected error for zero quantity")
	}
}

func TestDecodeByLength_RejectsInvalidSide(t *testing.T) {
	buf := make([]byte, MinBufferSize)
	n, _ := EncodeMessage(buf, Header{Version: 1}, NewOrder{ListingID: 1, OrderID: 1, Quantity: 1, Price: 1, Side: 'X'})
	if _, _, err := DecodeByLength(buf[:n]); err == nil {
		t.Fatal("expected error for invalid side")
	}
}

func TestRecoverOrderID(t *testing.T) {
	buf := make([]byte, MinBufferSize)
	n, _ := EncodeMessage(buf, Header{Version: 1}, DeleteOrder{OrderID: 0xdeadbeef})
	id, ok := RecoverOrderID(buf[HeaderSize:n])
	if !ok || id != 0xdeadbeef {
		t.Fatalf("RecoverOrderID = %d, %v, want 0xdeadbeef, true", id, ok)
	}
}
