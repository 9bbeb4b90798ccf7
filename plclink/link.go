// Package plclink talks to a single Modbus/TCP-style PLC connection.
package plclink

import "context"

// PlcLink is capability over one {host, port, unit} PLC connection.
// Implementations serialize concurrent operations internally; callers may
// submit requests from multiple goroutines but get no ordering guarantee
// beyond that.
type PlcLink interface {
	Connect(ctx context.Context) error
	IsConnected() bool

	ReadBool(ctx context.Context, addr string) (bool, error)
	WriteBool(ctx context.Context, addr string, v bool) error

	ReadF32(ctx context.Context, addr string) (float32, error)
	WriteF32(ctx context.Context, addr string, v float32) error

	Close() error
}

// stripPrefix removes the one-byte opaque prefix every address string
// carries before it reaches the wire.
func stripPrefix(addr string) (string, error) {
	if len(addr) < 2 {
		return "", newError(KindAddressInvalid, "address %q is too short to carry a prefix byte", addr)
	}
	return addr[1:], nil
}
