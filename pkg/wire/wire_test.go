package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hyperfold/pkg/types"
)

func TestRequestHeaderRoundTrip(t *testing.T) {
	h := RequestHeader{Type: MsgGet, Flags: FlagWrite, ConfigVersion: 7, Virtual: 42, Nonce: 99}
	raw, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, requestHeaderSize)

	got, err := ReadRequestHeader(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestResponseHeaderRoundTrip(t *testing.T) {
	h := ResponseHeader{Type: MsgReply, Virtual: 10, Nonce: 5}
	raw, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, responseHeaderSize)

	got, err := ReadResponseHeader(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestKeyedBodyRoundTrip(t *testing.T) {
	body := KeyedBody{
		Key:   []byte("k1"),
		Flags: FlagWrite,
		Selection: []types.AttributeCheck{
			{Attr: 1, DataType: "string", Predicate: types.PredicateEquals, Value: []byte("v")},
		},
		Funcalls: []types.Funcall{
			{Attr: 1, Name: types.FuncSet, Arg1: []byte("hello"), Arg1Type: "string"},
		},
		Wallet: types.AuthWallet{Tokens: [][]byte{[]byte("tok1")}},
	}
	raw, err := body.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodeKeyedBody(raw)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestSortedSearchBodyRoundTrip(t *testing.T) {
	body := SortedSearchBody{
		Selection: []types.AttributeCheck{{Attr: 2, DataType: "int64", Predicate: types.PredicateGreaterThan, Value: []byte{1}}},
		Limit:     10,
		SortAttr:  2,
		Maximize:  true,
	}
	raw, err := body.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodeSortedSearchBody(raw)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestAggregateBodyRoundTrip(t *testing.T) {
	body := AggregateBody{
		Selection: []types.AttributeCheck{{Attr: 1, DataType: "string", Predicate: types.PredicateEquals, Value: []byte("x")}},
		Funcalls:  []types.Funcall{{Attr: 2, Name: types.FuncNumAdd, Arg1: []byte{1}, Arg1Type: "int64"}},
	}
	raw, err := body.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodeAggregateBody(raw)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestSearchItemBodyRoundTrip(t *testing.T) {
	body := SearchItemBody{Key: []byte("k"), Values: [][]byte{[]byte("a"), []byte("b")}}
	raw, err := body.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodeSearchItemBody(raw)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestReplyBodyRoundTrip(t *testing.T) {
	body := ReplyBody{Code: types.RSuccess, Value: []byte("world")}
	raw, err := body.MarshalBinary()
	require.NoError(t, err)

	got, err := DecodeReplyBody(raw)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello world")))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
}
