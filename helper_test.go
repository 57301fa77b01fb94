package isotp

import (
	"sync"
	"time"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake: timed out" }
func (fakeTimeoutErr) Timeout() bool { return true }

// scriptedTransport is a Transport double: every SendFrame call is
// recorded, and RecvFrame drains a preset queue of inbound frames,
// reporting a timeout once the queue is empty.
type scriptedTransport struct {
	mu      sync.Mutex
	sent    []can.Frame
	toRecv  []can.Frame
	onEmpty error
}

func (s *scriptedTransport) SendFrame(frame can.Frame, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, frame)
	return nil
}

func (s *scriptedTransport) RecvFrame(_ time.Duration) (can.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.toRecv) == 0 {
		time.Sleep(time.Millisecond)
		if s.onEmpty != nil {
			return can.Frame{}, s.onEmpty
		}
		return can.Frame{}, fakeTimeoutErr{}
	}
	f := s.toRecv[0]
	s.toRecv = s.toRecv[1:]
	return f, nil
}

func (s *scriptedTransport) queue(frame can.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toRecv = append(s.toRecv, frame)
}

func (s *scriptedTransport) sentFrames() []can.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]can.Frame, len(s.sent))
	copy(out, s.sent)
	return out
}

// channelTransport connects two Contexts directly for end-to-end
// tests, without a real CAN bus.
type channelTransport struct {
	tx chan can.Frame
	rx chan can.Frame
}

func newChannelPair() (a, b Transport) {
	ab := make(chan can.Frame, 64)
	ba := make(chan can.Frame, 64)
	return &channelTransport{tx: ab, rx: ba}, &channelTransport{tx: ba, rx: ab}
}

func (c *channelTransport) SendFrame(frame can.Frame, timeout time.Duration) error {
	select {
	case c.tx <- frame:
		return nil
	case <-time.After(timeout):
		return fakeTimeoutErr{}
	}
}

func (c *channelTransport) RecvFrame(timeout time.Duration) (can.Frame, error) {
	select {
	case f := <-c.rx:
		return f, nil
	case <-time.After(timeout):
		return can.Frame{}, fakeTimeoutErr{}
	}
}

func frameBytes(f can.Frame) []byte {
	return f.Data[:f.Datalen()]
}

// tapTransport records every frame successfully handed to SendFrame,
// so a test can assert on the exact wire sequence one side produced.
type tapTransport struct {
	inner Transport
	mu    sync.Mutex
	sent  []can.Frame
}

func (t *tapTransport) SendFrame(frame can.Frame, timeout time.Duration) error {
	err := t.inner.SendFrame(frame, timeout)
	if err == nil {
		t.mu.Lock()
		t.sent = append(t.sent, frame)
		t.mu.Unlock()
	}
	return err
}

func (t *tapTransport) RecvFrame(timeout time.Duration) (can.Frame, error) {
	return t.inner.RecvFrame(timeout)
}

func (t *tapTransport) sentFrames() []can.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]can.Frame, len(t.sent))
	copy(out, t.sent)
	return out
}

func buildFrame(format can.Format, data []byte) can.Frame {
	f := can.Frame{Format: format}
	f.SetData(data)
	f.Pad()
	return f
}

