package wire

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/hyperfold/pkg/client"
	"github.com/cuemby/hyperfold/pkg/types"
)

// Dialer opens a connection to the daemon backing server, reused across
// every virtual server id hosted there.
type Dialer func(server types.ServerID) (net.Conn, error)

// daemonConn guards one daemon connection's writes; multiple goroutines
// may call Transport.Send concurrently against the same server.
type daemonConn struct {
	mu sync.Mutex
	nc net.Conn
}

// Transport is the pkg/client.Transport implementation that speaks the
// wire-framed protocol over net.Conn, replacing the teacher's generated
// gRPC client stub. One Transport multiplexes every daemon connection a
// Client needs; Recv drains a single shared channel fed by one reader
// goroutine per connection.
type Transport struct {
	dial          Dialer
	configVersion func() uint64

	mu    sync.Mutex
	conns map[types.ServerID]*daemonConn

	nonce  uint64
	recvCh chan client.Message
	errCh  chan error
}

// NewTransport builds a Transport. configVersion supplies the
// configuration version stamped into every outbound request header, per
// spec §6; callers typically pass (*coordinator.Coordinator).Configuration
// narrowed to its Version field.
func NewTransport(dial Dialer, configVersion func() uint64) *Transport {
	return &Transport{
		dial:          dial,
		configVersion: configVersion,
		conns:         make(map[types.ServerID]*daemonConn),
		recvCh:        make(chan client.Message, 256),
		errCh:         make(chan error, 16),
	}
}

func (t *Transport) connFor(server types.ServerID) (*daemonConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if dc, ok := t.conns[server]; ok {
		return dc, nil
	}
	nc, err := t.dial(server)
	if err != nil {
		return nil, err
	}
	dc := &daemonConn{nc: nc}
	t.conns[server] = dc
	go t.readLoop(server, dc)
	return dc, nil
}

// readLoop decodes frames from one daemon connection until it errors,
// pushing each as a client.Message onto the shared receive channel.
func (t *Transport) readLoop(server types.ServerID, dc *daemonConn) {
	for {
		raw, err := ReadFrame(dc.nc)
		if err != nil {
			t.mu.Lock()
			if t.conns[server] == dc {
				delete(t.conns, server)
			}
			t.mu.Unlock()
			select {
			case t.errCh <- fmt.Errorf("wire: connection to server %d failed: %w", server, err):
			default:
			}
			return
		}
		if len(raw) < responseHeaderSize {
			continue
		}
		header, err := ReadResponseHeader(bytes.NewReader(raw[:responseHeaderSize]))
		if err != nil {
			continue
		}
		kind, payload, err := DecodeReplyPayload(header.Type, raw[responseHeaderSize:])
		if err != nil {
			continue
		}
		t.recvCh <- client.Message{
			Nonce:   header.Nonce,
			Server:  server,
			Virtual: header.Virtual,
			Kind:    kind,
			Payload: payload,
		}
	}
}

// Send encodes msg's payload, assigns it a fresh nonce, and writes it to
// the connection serving server.
func (t *Transport) Send(server types.ServerID, virtual types.VirtualServerID, msg client.Message) (uint64, error) {
	nonce := atomic.AddUint64(&t.nonce, 1)

	msgType, body, err := EncodeRequestBody(msg.Kind, msg.Payload)
	if err != nil {
		return 0, err
	}

	dc, err := t.connFor(server)
	if err != nil {
		return 0, err
	}

	header := RequestHeader{Type: msgType, ConfigVersion: t.configVersion(), Virtual: virtual, Nonce: nonce}
	hb, _ := header.MarshalBinary()

	dc.mu.Lock()
	defer dc.mu.Unlock()
	if err := WriteFrame(dc.nc, append(hb, body...)); err != nil {
		return 0, err
	}
	return nonce, nil
}

// Recv blocks for up to timeout for the next reply, or a connection
// failure, whichever comes first.
func (t *Transport) Recv(timeout time.Duration) (client.Message, error) {
	select {
	case msg := <-t.recvCh:
		return msg, nil
	case err := <-t.errCh:
		return client.Message{}, err
	case <-time.After(timeout):
		return client.Message{}, client.ErrTimeout
	}
}
