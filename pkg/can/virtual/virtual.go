// Package virtual implements an in-process TCP virtual CAN bus, used
// as the loopback isotp.Transport for tests and for the CLI's
// loopback mode. A peer (or this module's own test harness) runs a
// small broker that relays frames between connected clients; see
// https://github.com/windelbouwman/virtualcan for the protocol this
// mirrors.
package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

func init() {
	can.RegisterInterface("virtual", NewVirtualCanBus)
	can.RegisterInterface("virtualcan", NewVirtualCanBus)
}

// defaultReadTimeout/defaultWriteTimeout match a classic ISO-TP N_As/
// N_Cr default of one second with headroom to spare: the broker's poll
// granularity only needs to be finer than whatever protocol timer is
// racing it. A conversation tuned to tighter timers (automotive test
// benches commonly run N_Cr in the tens of milliseconds) should tune
// these to match via NewVirtualCanBusWithTimeout, since a read
// deadline coarser than N_Cr adds shutdown and responsiveness lag the
// protocol timer was never meant to absorb.
const (
	defaultReadTimeout  = 200 * time.Millisecond
	defaultWriteTimeout = 10 * time.Millisecond
)

type Bus struct {
	mu            sync.Mutex
	channel       string
	conn          net.Conn
	receiveOwn    bool
	frameHandler  can.FrameListener
	stopChan      chan bool
	wg            sync.WaitGroup
	isRunning     bool
	errSubscriber bool
	readTimeout   time.Duration
	writeTimeout  time.Duration
}

// NewVirtualCanBus builds a bus with the default read/write deadlines,
// for use through the can.RegisterInterface registry where no
// per-instance tuning is possible.
func NewVirtualCanBus(channel string) (can.Bus, error) {
	return NewVirtualCanBusWithTimeout(channel, defaultReadTimeout, defaultWriteTimeout)
}

// NewVirtualCanBusWithTimeout builds a bus whose broker poll deadlines
// are tuned to the caller's own protocol timers, rather than the
// defaults. Pass <= 0 for either argument to keep its default.
func NewVirtualCanBusWithTimeout(channel string, readTimeout, writeTimeout time.Duration) (can.Bus, error) {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Bus{
		channel:      channel,
		stopChan:     make(chan bool),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}, nil
}

// serializeFrame encodes a frame as a 4-byte big-endian length prefix
// followed by the fixed-size frame struct.
func serializeFrame(frame can.Frame) ([]byte, error) {
	buffer := new(bytes.Buffer)
	if err := binary.Write(buffer, binary.BigEndian, frame); err != nil {
		return nil, err
	}
	dataBytes := buffer.Bytes()
	frameBytes := make([]byte, 4, 4+len(dataBytes))
	binary.BigEndian.PutUint32(frameBytes, uint32(len(dataBytes)))
	return append(frameBytes, dataBytes...), nil
}

func deserializeFrame(buffer []byte) (*can.Frame, error) {
	var frame can.Frame
	buf := bytes.NewBuffer(buffer)
	if err := binary.Read(buf, binary.BigEndian, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// Connect dials the broker, e.g. "localhost:18000".
func (b *Bus) Connect(...any) error {
	conn, err := net.Dial("tcp", b.channel)
	if err != nil {
		return err
	}
	b.conn = conn
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.errSubscriber && b.isRunning {
		b.stopChan <- true
		b.wg.Wait()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Send implements can.Bus.
func (b *Bus) Send(frame can.Frame) error {
	if b.receiveOwn && b.frameHandler != nil {
		b.frameHandler.Handle(frame)
	} else if b.conn == nil {
		return errors.New("virtual: no active connection, abort send")
	}
	if b.conn != nil {
		frameBytes, err := serializeFrame(frame)
		if err != nil {
			return err
		}
		_ = b.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		_, err = b.conn.Write(frameBytes)
		return err
	}
	return nil
}

// Subscribe implements can.Bus, starting a background goroutine that
// relays inbound frames to callback.
func (b *Bus) Subscribe(callback can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameHandler = callback
	if b.isRunning {
		return nil
	}
	b.wg.Add(1)
	b.isRunning = true
	b.errSubscriber = false
	go b.handleReception()
	return nil
}

// Recv reads exactly one frame off the wire, blocking up to the bus's
// configured read timeout.
func (b *Bus) Recv() (*can.Frame, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("virtual: no active connection, abort receive")
	}
	_ = b.conn.SetReadDeadline(time.Now().Add(b.readTimeout))
	headerBytes := make([]byte, 4)
	n, err := b.conn.Read(headerBytes)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n < 4 || err != nil {
		return nil, fmt.Errorf("virtual: error deserializing header: expected 4, got %v, err: %v", n, err)
	}
	length := binary.BigEndian.Uint32(headerBytes)
	frameBytes := make([]byte, length)
	_ = b.conn.SetReadDeadline(time.Now().Add(b.readTimeout))
	n, err = b.conn.Read(frameBytes)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n != int(length) || err != nil {
		return nil, fmt.Errorf("virtual: error deserializing body: expected %v, got %v", length, n)
	}
	return deserializeFrame(frameBytes)
}

func (b *Bus) handleReception() {
	defer func() {
		b.isRunning = false
		b.wg.Done()
	}()
	for {
		select {
		case <-b.stopChan:
			return
		default:
			if !b.mu.TryLock() {
				continue
			}
			frame, err := b.Recv()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// no frame pending, not an error
			} else if err != nil {
				log.WithError(err).Error("[VIRTUAL] listening routine closed")
				b.errSubscriber = true
				b.mu.Unlock()
				return
			} else if b.frameHandler != nil {
				b.frameHandler.Handle(*frame)
			}
			b.mu.Unlock()
		}
	}
}

// SetReceiveOwn enables local loopback delivery of frames this bus
// itself sends, used by tests that run both ends of a conversation
// against a single bus instance.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.receiveOwn = receiveOwn
}
