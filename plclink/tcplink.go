package plclink

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// wireRequest/wireResponse frame the actual Modbus/TCP codec, which is out
// of scope here — TCPLink only needs to get bytes to and from whatever
// process terminates the real protocol. Framing is newline-delimited
// JSON.
type wireRequest struct {
	Op   string  `json:"op"`
	Addr string  `json:"addr"`
	Bool bool    `json:"bool,omitempty"`
	F32  float32 `json:"f32,omitempty"`
}

type wireResponse struct {
	OK    bool    `json:"ok"`
	Bool  bool    `json:"bool,omitempty"`
	F32   float32 `json:"f32,omitempty"`
	Error string  `json:"error,omitempty"`
}

// TCPLink is a raw TCP PlcLink, dialing a single persistent connection on
// Connect and serializing every call over it with a mutex.
type TCPLink struct {
	address string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCPLink returns a link that dials address (host:port) lazily on the
// first Connect call.
func NewTCPLink(address string, timeout time.Duration) *TCPLink {
	return &TCPLink{address: address, timeout: timeout}
}

func (l *TCPLink) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: l.timeout}
	conn, err := d.DialContext(ctx, "tcp", l.address)
	if err != nil {
		return newError(KindConnectFailed, "dialing %s: %v", l.address, err)
	}
	l.conn = conn
	l.reader = bufio.NewReader(conn)
	return nil
}

func (l *TCPLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

func (l *TCPLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	l.reader = nil
	return err
}

func (l *TCPLink) roundTrip(ctx context.Context, req wireRequest) (wireResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return wireResponse{}, newError(KindConnectFailed, "link to %s is not connected", l.address)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(l.timeout)
	}
	if err := l.conn.SetDeadline(deadline); err != nil {
		return wireResponse{}, newError(KindProtocolError, "setting deadline: %v", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return wireResponse{}, newError(KindProtocolError, "encoding request: %v", err)
	}
	payload = append(payload, '\n')
	if _, err := l.conn.Write(payload); err != nil {
		return wireResponse{}, classifyIOError(err)
	}

	line, err := l.reader.ReadBytes('\n')
	if err != nil {
		return wireResponse{}, classifyIOError(err)
	}
	var resp wireResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return wireResponse{}, newError(KindProtocolError, "decoding response: %v", err)
	}
	if !resp.OK {
		return wireResponse{}, newError(KindProtocolError, "plc rejected %s %s: %s", req.Op, req.Addr, resp.Error)
	}
	return resp, nil
}

func classifyIOError(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return newError(KindTimeout, "%v", err)
	}
	return newError(KindProtocolError, "%v", err)
}

func (l *TCPLink) ReadBool(ctx context.Context, addr string) (bool, error) {
	wire, err := stripPrefix(addr)
	if err != nil {
		return false, err
	}
	resp, err := l.roundTrip(ctx, wireRequest{Op: "read_bool", Addr: wire})
	if err != nil {
		return false, err
	}
	return resp.Bool, nil
}

func (l *TCPLink) WriteBool(ctx context.Context, addr string, v bool) error {
	wire, err := stripPrefix(addr)
	if err != nil {
		return err
	}
	_, err = l.roundTrip(ctx, wireRequest{Op: "write_bool", Addr: wire, Bool: v})
	return err
}

func (l *TCPLink) ReadF32(ctx context.Context, addr string) (float32, error) {
	wire, err := stripPrefix(addr)
	if err != nil {
		return 0, err
	}
	resp, err := l.roundTrip(ctx, wireRequest{Op: "read_f32", Addr: wire})
	if err != nil {
		return 0, err
	}
	return resp.F32, nil
}

func (l *TCPLink) WriteF32(ctx context.Context, addr string, v float32) error {
	wire, err := stripPrefix(addr)
	if err != nil {
		return err
	}
	_, err = l.roundTrip(ctx, wireRequest{Op: "write_f32", Addr: wire, F32: v})
	return err
}

var _ fmt.Stringer = ErrorKind(0)
