// Package socketcan wraps github.com/brutella/can to provide a Linux
// SocketCAN can.Bus, used as the real-hardware isotp.Transport outside
// of tests.
package socketcan

import (
	"errors"

	sockcan "github.com/brutella/can"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

func init() {
	can.RegisterInterface("socketcan", NewSocketCanBus)
}

var errFDUnsupported = errors.New("socketcan: CAN-FD frames not supported by this binding")

type SocketcanBus struct {
	bus        *sockcan.Bus
	rxCallback can.FrameListener
}

// Connect implements can.Bus.
func (s *SocketcanBus) Connect(...any) error {
	go s.bus.ConnectAndPublish()
	return nil
}

// Disconnect implements can.Bus.
func (s *SocketcanBus) Disconnect() error {
	return s.bus.Disconnect()
}

// Send implements can.Bus. brutella/can only carries classic 8-byte
// frames; CAN-FD frames are rejected here rather than silently
// truncated.
func (s *SocketcanBus) Send(frame can.Frame) error {
	if frame.Format == can.FD {
		return errFDUnsupported
	}
	var data [8]byte
	copy(data[:], frame.Data[:frame.Datalen()])
	return s.bus.Publish(sockcan.Frame{
		ID:     frame.ID,
		Length: frame.DLC,
		Flags:  frame.Flags,
		Data:   data,
	})
}

// Subscribe implements can.Bus.
func (s *SocketcanBus) Subscribe(rxCallback can.FrameListener) error {
	s.rxCallback = rxCallback
	s.bus.Subscribe(s)
	return nil
}

// Handle implements brutella/can's frame handler interface.
func (s *SocketcanBus) Handle(frame sockcan.Frame) {
	out := can.Frame{ID: frame.ID, DLC: frame.Length, Flags: frame.Flags, Format: can.Classic}
	copy(out.Data[:], frame.Data[:])
	s.rxCallback.Handle(out)
}

func NewSocketCanBus(name string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	return &SocketcanBus{bus: bus}, err
}
