package wire

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hyperfold/pkg/client"
	"github.com/cuemby/hyperfold/pkg/types"
)

// TestTransportSendRecvRoundTrip wires a Transport to one end of an
// in-memory net.Pipe, plays the role of the daemon on the other end by
// hand-decoding the request frame and writing back a reply frame, and
// confirms Recv reconstructs the client.Message pkg/client expects.
func TestTransportSendRecvRoundTrip(t *testing.T) {
	clientSide, daemonSide := net.Pipe()
	defer clientSide.Close()
	defer daemonSide.Close()

	dialed := false
	dial := func(server types.ServerID) (net.Conn, error) {
		dialed = true
		return clientSide, nil
	}
	tr := NewTransport(dial, func() uint64 { return 3 })

	go func() {
		raw, err := ReadFrame(daemonSide)
		if err != nil {
			return
		}
		header, err := ReadRequestHeader(bytes.NewReader(raw[:requestHeaderSize]))
		if err != nil {
			return
		}
		body, err := DecodeKeyedBody(raw[requestHeaderSize:])
		if err != nil {
			return
		}
		if string(body.Key) != "hello" {
			return
		}

		respHeader := ResponseHeader{Type: MsgReply, Virtual: header.Virtual, Nonce: header.Nonce}
		hb, _ := respHeader.MarshalBinary()
		replyBody, _ := ReplyBody{Code: types.RSuccess, Value: []byte("world")}.MarshalBinary()
		_ = WriteFrame(daemonSide, append(hb, replyBody...))
	}()

	nonce, err := tr.Send(1, 10, client.Message{
		Kind:    "GET",
		Payload: client.KeyedRequest{Key: []byte("hello")},
	})
	require.NoError(t, err)
	assert.True(t, dialed)

	msg, err := tr.Recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, nonce, msg.Nonce)
	assert.Equal(t, types.ServerID(1), msg.Server)
	assert.Equal(t, types.VirtualServerID(10), msg.Virtual)

	reply, ok := msg.Payload.(client.KeyedReply)
	require.True(t, ok)
	assert.Equal(t, []byte("world"), reply.Value)
	assert.Equal(t, types.RSuccess, reply.Code)
}
