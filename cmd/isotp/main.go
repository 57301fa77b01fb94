// Command isotp sends or receives one ISO-TP message over SocketCAN or
// the in-process virtual CAN bus, for manual testing against real or
// simulated hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vehiclecomms/isotp"
	can "github.com/vehiclecomms/isotp/pkg/can"
	_ "github.com/vehiclecomms/isotp/pkg/can/socketcan"
	"github.com/vehiclecomms/isotp/pkg/can/virtual"
)

const defaultChannel = "vcan0"

func main() {
	log.SetLevel(log.DebugLevel)

	mode := flag.String("op", "recv", "operation: send or recv")
	iface := flag.String("iface", "socketcan", "bus interface: socketcan or virtual")
	channel := flag.String("channel", defaultChannel, "bus channel, e.g. vcan0 or localhost:18000")
	profilePath := flag.String("profile", "", "optional INI profile path")
	payload := flag.String("data", "", "payload to send (send mode only)")
	timeoutMs := flag.Int("timeout", 1000, "per-frame transport timeout, milliseconds")
	flag.Parse()

	timeout := time.Duration(*timeoutMs) * time.Millisecond

	var bus can.Bus
	var err error
	if *iface == "virtual" || *iface == "virtualcan" {
		bus, err = virtual.NewVirtualCanBusWithTimeout(*channel, timeout, timeout)
	} else {
		bus, err = can.NewBus(*iface, *channel, 500000)
	}
	if err != nil {
		log.Fatalf("new bus: %v", err)
	}
	if err := bus.Connect(); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer bus.Disconnect()

	transport, err := isotp.NewBusTransport(bus)
	if err != nil {
		log.Fatalf("new transport: %v", err)
	}

	var cfg isotp.Config
	if *profilePath != "" {
		profile, err := isotp.LoadProfile(*profilePath)
		if err != nil {
			log.Fatalf("load profile: %v", err)
		}
		cfg = profile.Config(transport, nil)
	} else {
		cfg = isotp.Config{
			Format:    can.Classic,
			Mode:      isotp.Normal,
			Transport: transport,
		}
	}

	ctx, err := isotp.NewContext(cfg)
	if err != nil {
		log.Fatalf("new context: %v", err)
	}

	switch *mode {
	case "send":
		n, err := ctx.Send(context.Background(), []byte(*payload), timeout)
		if err != nil {
			log.Fatalf("send: %v", err)
		}
		fmt.Printf("sent %d bytes\n", n)
	case "recv":
		buf := make([]byte, 1<<20)
		n, err := ctx.Recv(context.Background(), buf, 0, 0, timeout)
		if err != nil {
			log.Fatalf("recv: %v", err)
		}
		fmt.Printf("received %d bytes: %q\n", n, buf[:n])
	default:
		fmt.Fprintf(os.Stderr, "unknown -op %q, want send or recv\n", *mode)
		os.Exit(2)
	}
}
