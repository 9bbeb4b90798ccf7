package plclink

import (
	"context"
	"sync"
)

// StubLink is an in-memory PlcLink backed by register maps, used by task
// and property tests that need a PLC without a socket.
type StubLink struct {
	mu        sync.Mutex
	connected bool
	bools     map[string]bool
	floats    map[string]float32
	failNext  error
}

// NewStubLink returns a disconnected stub with empty register maps.
func NewStubLink() *StubLink {
	return &StubLink{
		bools:  make(map[string]bool),
		floats: make(map[string]float32),
	}
}

func (s *StubLink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *StubLink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *StubLink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// FailNext makes the next operation return err instead of touching the
// register maps, then clears itself.
func (s *StubLink) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *StubLink) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// SeedBool/SeedFloat preload a register value, as though the target PLC
// already holds it. addr carries the same one-byte prefix a real caller
// would pass to ReadBool/ReadF32.
func (s *StubLink) SeedBool(addr string, v bool) {
	wire, err := stripPrefix(addr)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.bools[wire] = v
	s.mu.Unlock()
}

func (s *StubLink) SeedFloat(addr string, v float32) {
	wire, err := stripPrefix(addr)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.floats[wire] = v
	s.mu.Unlock()
}

func (s *StubLink) ReadBool(ctx context.Context, addr string) (bool, error) {
	wire, err := stripPrefix(addr)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return false, err
	}
	return s.bools[wire], nil
}

func (s *StubLink) WriteBool(ctx context.Context, addr string, v bool) error {
	wire, err := stripPrefix(addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.bools[wire] = v
	return nil
}

func (s *StubLink) ReadF32(ctx context.Context, addr string) (float32, error) {
	wire, err := stripPrefix(addr)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}
	return s.floats[wire], nil
}

func (s *StubLink) WriteF32(ctx context.Context, addr string, v float32) error {
	wire, err := stripPrefix(addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.floats[wire] = v
	return nil
}

var _ PlcLink = (*StubLink)(nil)
var _ PlcLink = (*TCPLink)(nil)
