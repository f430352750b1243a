package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/hyperfold/pkg/client"
	"github.com/cuemby/hyperfold/pkg/types"
)

// kindToType maps a client.Message's Kind (chosen by pkg/client when
// issuing a request) to the wire message type tagging its frame.
var kindToType = map[string]MessageType{
	"GET":             MsgGet,
	"PUT":             MsgPut,
	"COND_PUT":        MsgCondPut,
	"DEL":             MsgDel,
	"search":          MsgSearchStart,
	"count":           MsgCount,
	"sum":             MsgSum,
	"search_describe": MsgSearchDescribe,
	"sorted_search":   MsgSortedSearch,
	"group_del":       MsgGroupDel,
	"group_atomic":    MsgGroupAtomic,
}

// EncodeRequestBody translates a client.Message's Kind/Payload into the
// wire message type and byte body Conn writes to the daemon.
func EncodeRequestBody(kind string, payload interface{}) (MessageType, []byte, error) {
	msgType, ok := kindToType[kind]
	if !ok {
		return 0, nil, fmt.Errorf("wire: unknown request kind %q", kind)
	}

	switch p := payload.(type) {
	case client.KeyedRequest:
		flags := byte(0)
		if kind == "PUT" || kind == "COND_PUT" {
			flags |= FlagWrite
		}
		if len(p.Wallet.Tokens) > 0 {
			flags |= FlagAuthWallet
		}
		body := KeyedBody{Key: p.Key, Flags: flags, Selection: p.Selection, Funcalls: p.Funcalls, Wallet: p.Wallet}
		raw, err := body.MarshalBinary()
		return msgType, raw, err

	case client.AggregateRequest:
		if kind == "sorted_search" {
			body := SortedSearchBody{
				Selection: p.Selection,
				Limit:     uint32(p.Limit),
				SortAttr:  uint32(p.Attr),
				Maximize:  !p.Min,
			}
			raw, err := body.MarshalBinary()
			return msgType, raw, err
		}
		body := AggregateBody{Selection: p.Selection, Funcalls: p.Funcalls}
		raw, err := body.MarshalBinary()
		return msgType, raw, err

	default:
		return 0, nil, fmt.Errorf("wire: unsupported request payload type %T", payload)
	}
}

// ReplyBody is a keyed operation's reply payload: result code ‖ value.
type ReplyBody struct {
	Code  types.ResultCode
	Value []byte
}

func (b ReplyBody) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, []byte(b.Code))
	writeString(&buf, b.Value)
	return buf.Bytes(), nil
}

func DecodeReplyBody(raw []byte) (ReplyBody, error) {
	r := bytes.NewReader(raw)
	code, err := readString(r)
	if err != nil {
		return ReplyBody{}, err
	}
	value, err := readString(r)
	if err != nil {
		return ReplyBody{}, err
	}
	return ReplyBody{Code: types.ResultCode(code), Value: value}, nil
}

// DecodeReplyPayload turns one response frame into the client.Message
// Kind/Payload pair pkg/client's handleMessage closures expect: a
// client.KeyedReply for keyed ops, a Go int for count/group replies, raw
// bytes for sum/sorted-search replies, a decoded search item for search,
// and a bare "SEARCH_DONE" sentinel with no payload.
func DecodeReplyPayload(msgType MessageType, raw []byte) (kind string, payload interface{}, err error) {
	switch msgType {
	case MsgReply:
		body, err := DecodeReplyBody(raw)
		if err != nil {
			return "", nil, err
		}
		return "", client.KeyedReply{Value: body.Value, Code: body.Code}, nil

	case MsgCountReply:
		n, err := decodeUint64(raw)
		if err != nil {
			return "", nil, err
		}
		return "count", int(n), nil

	case MsgGroupReply:
		n, err := decodeUint64(raw)
		if err != nil {
			return "", nil, err
		}
		return "group", int(n), nil

	case MsgSumReply:
		return "sum", raw, nil

	case MsgSortedItemReply:
		return "sorted_search", raw, nil

	case MsgSearchDescribeReply:
		return "search_describe", string(raw), nil

	case MsgSearchItem:
		item, err := DecodeSearchItemBody(raw)
		if err != nil {
			return "", nil, err
		}
		return "search", item, nil

	case MsgSearchDone:
		return "SEARCH_DONE", nil, nil

	default:
		return "", nil, fmt.Errorf("wire: unknown reply message type %d", msgType)
	}
}

// EncodeReplyPayload is DecodeReplyPayload's inverse, used by a daemon to
// frame its reply to a dispatched request.
func EncodeReplyPayload(kind string, payload interface{}) (MessageType, []byte, error) {
	switch kind {
	case "keyed":
		reply, ok := payload.(client.KeyedReply)
		if !ok {
			return 0, nil, fmt.Errorf("wire: keyed reply payload has wrong type %T", payload)
		}
		raw, err := ReplyBody{Code: reply.Code, Value: reply.Value}.MarshalBinary()
		return MsgReply, raw, err

	case "count":
		n, ok := payload.(int)
		if !ok {
			return 0, nil, fmt.Errorf("wire: count reply payload has wrong type %T", payload)
		}
		return MsgCountReply, encodeUint64(uint64(n)), nil

	case "group":
		n, ok := payload.(int)
		if !ok {
			return 0, nil, fmt.Errorf("wire: group reply payload has wrong type %T", payload)
		}
		return MsgGroupReply, encodeUint64(uint64(n)), nil

	case "sum":
		raw, ok := payload.([]byte)
		if !ok {
			return 0, nil, fmt.Errorf("wire: sum reply payload has wrong type %T", payload)
		}
		return MsgSumReply, raw, nil

	case "sorted_search":
		raw, ok := payload.([]byte)
		if !ok {
			return 0, nil, fmt.Errorf("wire: sorted_search reply payload has wrong type %T", payload)
		}
		return MsgSortedItemReply, raw, nil

	case "search_describe":
		text, ok := payload.(string)
		if !ok {
			return 0, nil, fmt.Errorf("wire: search_describe reply payload has wrong type %T", payload)
		}
		return MsgSearchDescribeReply, []byte(text), nil

	case "search_item":
		item, ok := payload.(SearchItemBody)
		if !ok {
			return 0, nil, fmt.Errorf("wire: search item reply payload has wrong type %T", payload)
		}
		return marshalSearchItem(item)

	case "search_done":
		return MsgSearchDone, nil, nil

	default:
		return 0, nil, fmt.Errorf("wire: unknown reply kind %q", kind)
	}
}

func marshalSearchItem(body SearchItemBody) (MessageType, []byte, error) {
	raw, err := body.MarshalBinary()
	return MsgSearchItem, raw, err
}

func decodeUint64(raw []byte) (uint64, error) {
	if len(raw) < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	return binary.BigEndian.Uint64(raw[:8]), nil
}

func encodeUint64(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}
