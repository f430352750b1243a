package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/hyperfold/pkg/types"
)

// MessageType is the one-byte tag leading every request/response frame.
type MessageType byte

const (
	MsgGet            MessageType = 1
	MsgPut            MessageType = 2
	MsgCondPut        MessageType = 3
	MsgDel            MessageType = 4
	MsgSearchStart    MessageType = 5
	MsgSearchItem     MessageType = 6
	MsgSearchNext     MessageType = 7
	MsgSearchDone     MessageType = 8
	MsgSearchDescribe MessageType = 9
	MsgSortedSearch   MessageType = 10
	MsgCount          MessageType = 11
	MsgSum            MessageType = 12
	MsgGroupDel       MessageType = 13
	MsgGroupAtomic    MessageType = 14
	MsgReply          MessageType = 15

	// Aggregation reply tags: one per shape handleAggregationReply expects
	// (int for count/group, raw bytes for sum/sorted, text for describe).
	MsgCountReply          MessageType = 16
	MsgSumReply            MessageType = 17
	MsgSortedItemReply     MessageType = 18
	MsgSearchDescribeReply MessageType = 19
	MsgGroupReply          MessageType = 20
)

// Request flag bits, per spec §6's keyed request body layout.
const (
	FlagFailIfNotFound byte = 1 << 0
	FlagFailIfFound    byte = 1 << 1
	FlagAuthWallet     byte = 1 << 6
	FlagWrite          byte = 1 << 7
)

// RequestHeader is the fixed 26-byte prefix of every outbound request:
// type (1) ‖ flags (1) ‖ configuration version (8) ‖ destination virtual
// server id (8) ‖ nonce (8).
type RequestHeader struct {
	Type          MessageType
	Flags         byte
	ConfigVersion uint64
	Virtual       types.VirtualServerID
	Nonce         uint64
}

const requestHeaderSize = 1 + 1 + 8 + 8 + 8

// MarshalBinary encodes h into its fixed-width wire form.
func (h RequestHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, requestHeaderSize)
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.BigEndian.PutUint64(buf[2:10], h.ConfigVersion)
	binary.BigEndian.PutUint64(buf[10:18], uint64(h.Virtual))
	binary.BigEndian.PutUint64(buf[18:26], h.Nonce)
	return buf, nil
}

// ReadRequestHeader decodes a RequestHeader from r.
func ReadRequestHeader(r io.Reader) (RequestHeader, error) {
	buf := make([]byte, requestHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return RequestHeader{}, err
	}
	return RequestHeader{
		Type:          MessageType(buf[0]),
		Flags:         buf[1],
		ConfigVersion: binary.BigEndian.Uint64(buf[2:10]),
		Virtual:       types.VirtualServerID(binary.BigEndian.Uint64(buf[10:18])),
		Nonce:         binary.BigEndian.Uint64(buf[18:26]),
	}, nil
}

// ResponseHeader is the fixed 17-byte prefix of every inbound reply: type
// (1) ‖ destination virtual server id (8) ‖ nonce (8).
type ResponseHeader struct {
	Type    MessageType
	Virtual types.VirtualServerID
	Nonce   uint64
}

const responseHeaderSize = 1 + 8 + 8

// MarshalBinary encodes h into its fixed-width wire form.
func (h ResponseHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, responseHeaderSize)
	buf[0] = byte(h.Type)
	binary.BigEndian.PutUint64(buf[1:9], uint64(h.Virtual))
	binary.BigEndian.PutUint64(buf[9:17], h.Nonce)
	return buf, nil
}

// ReadResponseHeader decodes a ResponseHeader from r.
func ReadResponseHeader(r io.Reader) (ResponseHeader, error) {
	buf := make([]byte, responseHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ResponseHeader{}, err
	}
	return ResponseHeader{
		Type:    MessageType(buf[0]),
		Virtual: types.VirtualServerID(binary.BigEndian.Uint64(buf[1:9])),
		Nonce:   binary.BigEndian.Uint64(buf[9:17]),
	}, nil
}

// WriteFrame and ReadFrame move a length-prefixed envelope: a uint32
// big-endian byte count followed by the payload, so a reader never has to
// parse a body without knowing where it ends. Both client and daemon
// sides of the wire use these directly.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	const maxFrame = 64 << 20
	if n > maxFrame {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds maximum %d", n, maxFrame)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
