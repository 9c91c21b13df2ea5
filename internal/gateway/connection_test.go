package gateway

import (
	"testing"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/rishav/risk-gateway/internal/risk"
	"github.com/rishav/risk-gateway/internal/wire"
)

// socketpair returns two connected file descriptors standing in for a TCP
// socket: the non-blocking one is handed to the Connection under test, the
// other (left blocking) plays the role of the remote peer driving it from
// the test.
func socketpair(t *testing.T) (connFd, peerFd int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[1]) })
	return fds[0], fds[1]
}

func newTestConnection(t *testing.T) (*Connection, int, *Handle) {
	connFd, peerFd := socketpair(t)
	handle := NewHandle(risk.New(risk.Limits{BuyLimit: 100, SellLimit: 100}))
	c := New(connFd, "test", handle, zap.NewNop())
	return c, peerFd, handle
}

func sendFrame(t *testing.T, fd int, h wire.Header, payload any) {
	t.Helper()
	var buf [wire.MinBufferSize]byte
	n, err := wire.EncodeMessage(buf[:], h, payload)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if _, err := unix.Write(fd, buf[:n]); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func readResponse(t *testing.T, fd int) wire.OrderResponse {
	t.Helper()
	var buf [wire.OrderResponseMsgSize]byte
	got := 0
	for got < len(buf) {
		n, err := unix.Read(fd, buf[got:])
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got += n
	}
	h, payload, err := wire.DecodeByLength(buf[:])
	if err != nil {
		t.Fatalf("DecodeByLength: %v", err)
	}
	if h.Version != 1 {
		t.Fatalf("response version = %d, want 1", h.Version)
	}
	resp, ok := payload.(wire.OrderResponse)
	if !ok {
		t.Fatalf("payload type = %T, want wire.OrderResponse", payload)
	}
	return resp
}

func TestConnection_NewOrderAcceptedAndRejected(t *testing.T) {
	c, peerFd, _ := newTestConnection(t)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.NewOrder{
		ListingID: 1, OrderID: 10, Quantity: 60, Price: 100000000, Side: wire.SideBuy,
	})
	if outcome := c.OnReadable(); outcome != Dispatched {
		t.Fatalf("outcome = %v, want Dispatched", outcome)
	}
	resp := readResponse(t, peerFd)
	if resp.Status != wire.StatusAccepted || resp.OrderID != 10 {
		t.Fatalf("resp = %+v, want accepted order 10", resp)
	}

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.NewOrder{
		ListingID: 1, OrderID: 11, Quantity: 50, Price: 100000000, Side: wire.SideBuy,
	})
	c.OnReadable()
	resp = readResponse(t, peerFd)
	if resp.Status != wire.StatusRejected || resp.OrderID != 11 {
		t.Fatalf("resp = %+v, want rejected order 11 (hypMaxBuy would be 110 > 100)", resp)
	}
}

func TestConnection_DuplicateOrderIDRejectedWithoutTouchingRisk(t *testing.T) {
	c, peerFd, handle := newTestConnection(t)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.NewOrder{
		ListingID: 1, OrderID: 10, Quantity: 60, Price: 1, Side: wire.SideBuy,
	})
	c.OnReadable()
	readResponse(t, peerFd)
	before, _ := handle.Risk.Product(1)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.NewOrder{
		ListingID: 1, OrderID: 10, Quantity: 5, Price: 1, Side: wire.SideBuy,
	})
	c.OnReadable()
	resp := readResponse(t, peerFd)
	if resp.Status != wire.StatusRejected {
		t.Fatalf("resp.Status = %v, want Rejected for duplicate order id", resp.Status)
	}
	after, _ := handle.Risk.Product(1)
	if after != before {
		t.Fatalf("risk state changed on duplicate-id reject: before=%+v after=%+v", before, after)
	}
}

func TestConnection_DeleteUnknownOrderRejected(t *testing.T) {
	c, peerFd, _ := newTestConnection(t)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.DeleteOrder{OrderID: 999})
	c.OnReadable()
	resp := readResponse(t, peerFd)
	if resp.Status != wire.StatusRejected || resp.OrderID != 999 {
		t.Fatalf("resp = %+v, want rejected order 999", resp)
	}
}

func TestConnection_DeleteLiveOrderAccepted(t *testing.T) {
	c, peerFd, handle := newTestConnection(t)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.NewOrder{
		ListingID: 1, OrderID: 12, Quantity: 40, Price: 1, Side: wire.SideSell,
	})
	c.OnReadable()
	readResponse(t, peerFd)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.DeleteOrder{OrderID: 12})
	c.OnReadable()
	resp := readResponse(t, peerFd)
	if resp.Status != wire.StatusAccepted {
		t.Fatalf("resp.Status = %v, want Accepted", resp.Status)
	}
	p, _ := handle.Risk.Product(1)
	if p.SellQty != 0 {
		t.Fatalf("p.SellQty = %d, want 0", p.SellQty)
	}
	if _, exists := c.book.Get(12); exists {
		t.Fatal("order 12 should be gone from trader state")
	}
}

func TestConnection_TradeOnNonexistentOrderRejected(t *testing.T) {
	c, peerFd, handle := newTestConnection(t)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.Trade{
		ListingID: 1, TradeID: 10, Quantity: 60, Price: 100000000,
	})
	c.OnReadable()
	resp := readResponse(t, peerFd)
	if resp.Status != wire.StatusRejected {
		t.Fatalf("resp.Status = %v, want Rejected", resp.Status)
	}
	if _, ok := handle.Risk.Product(1); ok {
		t.Fatal("expected no committed ProductInfo for listing 1")
	}
}

func TestConnection_CloseReplaysDeletesForLiveOrders(t *testing.T) {
	c, peerFd, handle := newTestConnection(t)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.NewOrder{
		ListingID: 7, OrderID: 1, Quantity: 80, Price: 1, Side: wire.SideBuy,
	})
	c.OnReadable()
	readResponse(t, peerFd)

	p, _ := handle.Risk.Product(7)
	if p.BuyQty != 80 {
		t.Fatalf("p.BuyQty = %d, want 80", p.BuyQty)
	}

	c.Close()

	p, _ = handle.Risk.Product(7)
	if p.BuyQty != 0 || p.HypMaxBuy != 0 {
		t.Fatalf("disconnect cleanup did not unwind exposure: p = %+v", p)
	}
}

func TestConnection_SequenceNumbersStrictlyIncrease(t *testing.T) {
	c, peerFd, _ := newTestConnection(t)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.NewOrder{
		ListingID: 1, OrderID: 1, Quantity: 1, Price: 1, Side: wire.SideBuy,
	})
	c.OnReadable()
	first := readResponseHeader(t, peerFd)

	sendFrame(t, peerFd, wire.Header{Version: 1}, wire.DeleteOrder{OrderID: 1})
	c.OnReadable()
	second := readResponseHeader(t, peerFd)

	if second.SequenceNumber <= first.SequenceNumber {
		t.Fatalf("sequence did not strictly increase: first=%d second=%d", first.SequenceNumber, second.SequenceNumber)
	}
}

func readResponseHeader(t *testing.T, fd int) wire.Header {
	t.Helper()
	var buf [wire.OrderResponseMsgSize]byte
	got := 0
	for got < len(buf) {
		n, err := unix.Read(fd, buf[got:])
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got += n
	}
	h, _, err := wire.DecodeByLength(buf[:])
	if err != nil {
		t.Fatalf("DecodeByLength: %v", err)
	}
	return h
}
