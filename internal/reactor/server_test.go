package reactor

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rishav/risk-gateway/internal/risk"
	"github.com/rishav/risk-gateway/internal/wire"
)

func TestServer_AcceptsAndRoundTripsNewOrder(t *testing.T) {
	engine := risk.New(risk.Limits{BuyLimit: 100, SellLimit: 100})
	srv, err := New("127.0.0.1", 0, engine, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	addr, err := srv.Addr()
	if err != nil {
		t.Fatalf("Addr: %v", err)
	}

	conn, err := dialWithRetry(addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var buf [wire.MinBufferSize]byte
	n, err := wire.EncodeMessage(buf[:], wire.Header{Version: 1}, wire.NewOrder{
		ListingID: 1, OrderID: 10, Quantity: 60, Price: 100000000, Side: wire.SideBuy,
	})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if _, err := conn.Write(buf[:n]); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var resp [wire.OrderResponseMsgSize]byte
	if err := readFull(conn, resp[:], 2*time.Second); err != nil {
		t.Fatalf("readFull: %v", err)
	}
	_, payload, err := wire.DecodeByLength(resp[:])
	if err != nil {
		t.Fatalf("DecodeByLength: %v", err)
	}
	r, ok := payload.(wire.OrderResponse)
	if !ok || r.Status != wire.StatusAccepted || r.OrderID != 10 {
		t.Fatalf("response = %+v, want accepted order 10", payload)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after context cancellation")
	}
}

func dialWithRetry(addr string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	return nil, lastErr
}

func readFull(conn net.Conn, buf []byte, timeout time.Duration) error {
	conn.SetReadDeadline(time.Now().Add(timeout))
	got := 0
	for got < len(buf) {
		n, err := conn.Read(buf[got:])
		if err != nil {
			return err
		}
		got += n
	}
	return nil
}
