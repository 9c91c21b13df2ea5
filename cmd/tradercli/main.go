// Command tradercli is a companion client that speaks the gateway's raw
// binary protocol directly (no HTTP/JSON layer), one flag.NewFlagSet per
// verb. It is a convenience tool for exercising a running gateway by
// hand; it carries no invariants of its own and is not part of the
// risk-engine core.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rishav/risk-gateway/internal/wire"
)

func main() {
	server := flag.String("server", "127.0.0.1:4000", "gateway address")

	newCmd := flag.NewFlagSet("new", flag.ExitOnError)
	newListing := newCmd.Uint64("listing", 1, "listing id")
	newOrderID := newCmd.Uint64("order-id", 1, "order id")
	newQty := newCmd.Uint64("qty", 10, "quantity")
	newPrice := newCmd.Uint64("price", 10000, "price (4 implied decimals)")
	newSide := newCmd.String("side", "B", "side: B or S")

	deleteCmd := flag.NewFlagSet("delete", flag.ExitOnError)
	deleteOrderID := deleteCmd.Uint64("order-id", 1, "order id")

	modifyCmd := flag.NewFlagSet("modify", flag.ExitOnError)
	modifyOrderID := modifyCmd.Uint64("order-id", 1, "order id")
	modifyQty := modifyCmd.Uint64("qty", 10, "new quantity")

	tradeCmd := flag.NewFlagSet("trade", flag.ExitOnError)
	tradeListing := tradeCmd.Uint64("listing", 1, "listing id")
	tradeOrderID := tradeCmd.Uint64("order-id", 1, "order id traded against")
	tradeQty := tradeCmd.Uint64("qty", 10, "trade quantity")
	tradePrice := tradeCmd.Uint64("price", 10000, "trade price (4 implied decimals)")

	flag.Parse() // picks up --server when given before the subcommand name
	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	args := flag.Args()[1:]

	switch flag.Arg(0) {
	case "new":
		newCmd.Parse(args)
		send(*server, wire.NewOrder{
			ListingID: *newListing, OrderID: *newOrderID, Quantity: *newQty,
			Price: *newPrice, Side: wire.Side((*newSide)[0]),
		})
	case "delete":
		deleteCmd.Parse(args)
		send(*server, wire.DeleteOrder{OrderID: *deleteOrderID})
	case "modify":
		modifyCmd.Parse(args)
		send(*server, wire.ModifyOrderQuantity{OrderID: *modifyOrderID, NewQuantity: *modifyQty})
	case "trade":
		tradeCmd.Parse(args)
		send(*server, wire.Trade{ListingID: *tradeListing, TradeID: *tradeOrderID, Quantity: *tradeQty, Price: *tradePrice})
	case "demo":
		runDemo(*server)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Risk Gateway Trader CLI

Usage: tradercli <command> [flags]

Commands:
  new     --listing --order-id --qty --price --side   submit a NewOrder
  delete  --order-id                                   submit a DeleteOrder
  modify  --order-id --qty                             submit a ModifyOrderQuantity
  trade   --listing --order-id --qty --price           submit a Trade
  demo                                                  run a fixed accept/reject scenario

Global flags:
  --server  gateway address (default 127.0.0.1:4000)`)
}

func send(addr string, payload any) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	var buf [wire.MinBufferSize]byte
	n, err := wire.EncodeMessage(buf[:], wire.Header{Version: 1}, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	if _, err := conn.Write(buf[:n]); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp [wire.OrderResponseMsgSize]byte
	got := 0
	for got < len(resp) {
		n, err := conn.Read(resp[got:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "read response: %v\n", err)
			os.Exit(1)
		}
		got += n
	}
	_, decoded, err := wire.DecodeByLength(resp[:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode response: %v\n", err)
		os.Exit(1)
	}
	r := decoded.(wire.OrderResponse)
	fmt.Printf("orderId=%d status=%s\n", r.OrderID, r.Status)
}

// runDemo exercises the concrete accept/reject scenario pinned in this
// gateway's risk engine tests, end to end against a live server.
func runDemo(addr string) {
	fmt.Println("1. NewOrder listing=1 orderId=10 qty=60 side=B (expect ACCEPTED)")
	send(addr, wire.NewOrder{ListingID: 1, OrderID: 10, Quantity: 60, Price: 100000000, Side: wire.SideBuy})

	fmt.Println("2. NewOrder listing=1 orderId=11 qty=50 side=B (expect REJECTED, over limit)")
	send(addr, wire.NewOrder{ListingID: 1, OrderID: 11, Quantity: 50, Price: 100000000, Side: wire.SideBuy})

	fmt.Println("3. NewOrder listing=1 orderId=12 qty=40 side=S (expect ACCEPTED)")
	send(addr, wire.NewOrder{ListingID: 1, OrderID: 12, Quantity: 40, Price: 100000000, Side: wire.SideSell})

	fmt.Println("4. DeleteOrder orderId=12 (expect ACCEPTED)")
	send(addr, wire.DeleteOrder{OrderID: 12})

	fmt.Println("5. DeleteOrder orderId=999 (expect REJECTED, unknown order)")
	send(addr, wire.DeleteOrder{OrderID: 999})
}
