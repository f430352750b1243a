package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cuemby/hyperfold/pkg/types"
)

// writeString writes a length-prefixed (big-endian uint32) string, the
// same framing a header field uses for variable-length data embedded in a
// request body (distinct from the little-endian container layout
// pkg/datatype uses for list/set/map element encoding).
func writeString(buf *bytes.Buffer, s []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.Write(s)
}

func readString(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeAttributeCheck(buf *bytes.Buffer, c types.AttributeCheck) {
	var attrBuf [4]byte
	binary.BigEndian.PutUint32(attrBuf[:], uint32(c.Attr))
	buf.Write(attrBuf[:])
	writeString(buf, []byte(c.DataType))
	writeString(buf, []byte(c.Predicate))
	writeString(buf, c.Value)
}

func readAttributeCheck(r *bytes.Reader) (types.AttributeCheck, error) {
	var attrBuf [4]byte
	if _, err := io.ReadFull(r, attrBuf[:]); err != nil {
		return types.AttributeCheck{}, err
	}
	dtype, err := readString(r)
	if err != nil {
		return types.AttributeCheck{}, err
	}
	pred, err := readString(r)
	if err != nil {
		return types.AttributeCheck{}, err
	}
	val, err := readString(r)
	if err != nil {
		return types.AttributeCheck{}, err
	}
	return types.AttributeCheck{
		Attr:      int(binary.BigEndian.Uint32(attrBuf[:])),
		DataType:  string(dtype),
		Predicate: types.Predicate(pred),
		Value:     val,
	}, nil
}

func writeAttributeChecks(buf *bytes.Buffer, checks []types.AttributeCheck) {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(checks)))
	buf.Write(countBuf[:])
	for _, c := range checks {
		writeAttributeCheck(buf, c)
	}
}

func readAttributeChecks(r *bytes.Reader) ([]types.AttributeCheck, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(countBuf[:])
	checks := make([]types.AttributeCheck, n)
	for i := range checks {
		c, err := readAttributeCheck(r)
		if err != nil {
			return nil, err
		}
		checks[i] = c
	}
	return checks, nil
}

func writeFuncall(buf *bytes.Buffer, f types.Funcall) {
	var attrBuf [4]byte
	binary.BigEndian.PutUint32(attrBuf[:], uint32(f.Attr))
	buf.Write(attrBuf[:])
	writeString(buf, []byte(f.Name))
	writeString(buf, []byte(f.Arg1Type))
	writeString(buf, f.Arg1)
	writeString(buf, []byte(f.Arg2Type))
	writeString(buf, f.Arg2)
}

func readFuncall(r *bytes.Reader) (types.Funcall, error) {
	var attrBuf [4]byte
	if _, err := io.ReadFull(r, attrBuf[:]); err != nil {
		return types.Funcall{}, err
	}
	name, err := readString(r)
	if err != nil {
		return types.Funcall{}, err
	}
	arg1Type, err := readString(r)
	if err != nil {
		return types.Funcall{}, err
	}
	arg1, err := readString(r)
	if err != nil {
		return types.Funcall{}, err
	}
	arg2Type, err := readString(r)
	if err != nil {
		return types.Funcall{}, err
	}
	arg2, err := readString(r)
	if err != nil {
		return types.Funcall{}, err
	}
	return types.Funcall{
		Attr:     int(binary.BigEndian.Uint32(attrBuf[:])),
		Name:     types.FuncallName(name),
		Arg1Type: string(arg1Type),
		Arg1:     arg1,
		Arg2Type: string(arg2Type),
		Arg2:     arg2,
	}, nil
}

func writeFuncalls(buf *bytes.Buffer, funcs []types.Funcall) {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(funcs)))
	buf.Write(countBuf[:])
	for _, f := range funcs {
		writeFuncall(buf, f)
	}
}

func readFuncalls(r *bytes.Reader) ([]types.Funcall, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(countBuf[:])
	funcs := make([]types.Funcall, n)
	for i := range funcs {
		f, err := readFuncall(r)
		if err != nil {
			return nil, err
		}
		funcs[i] = f
	}
	return funcs, nil
}

func writeWallet(buf *bytes.Buffer, w types.AuthWallet) {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(w.Tokens)))
	buf.Write(countBuf[:])
	for _, tok := range w.Tokens {
		writeString(buf, tok)
	}
}

func readWallet(r *bytes.Reader) (types.AuthWallet, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return types.AuthWallet{}, err
	}
	n := binary.BigEndian.Uint32(countBuf[:])
	tokens := make([][]byte, n)
	for i := range tokens {
		tok, err := readString(r)
		if err != nil {
			return types.AuthWallet{}, err
		}
		tokens[i] = tok
	}
	return types.AuthWallet{Tokens: tokens}, nil
}

// KeyedBody is a keyed request's body: key ‖ flags ‖ attribute_check[] ‖
// funcall[] ‖ auth_wallet, per spec §6. FlagAuthWallet in Flags marks a
// wallet that carries tokens; the wallet itself is always encoded (see
// MarshalBinary).
type KeyedBody struct {
	Key       []byte
	Flags     byte
	Selection []types.AttributeCheck
	Funcalls  []types.Funcall
	Wallet    types.AuthWallet
}

// MarshalBinary encodes b. The wallet is always written; callers that
// don't use one pass a zero-value AuthWallet, which encodes as a single
// zero count and costs 4 bytes.
func (b KeyedBody) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, b.Key)
	buf.WriteByte(b.Flags)
	writeAttributeChecks(&buf, b.Selection)
	writeFuncalls(&buf, b.Funcalls)
	writeWallet(&buf, b.Wallet)
	return buf.Bytes(), nil
}

// DecodeKeyedBody decodes a KeyedBody from raw.
func DecodeKeyedBody(raw []byte) (KeyedBody, error) {
	r := bytes.NewReader(raw)
	key, err := readString(r)
	if err != nil {
		return KeyedBody{}, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return KeyedBody{}, err
	}
	checks, err := readAttributeChecks(r)
	if err != nil {
		return KeyedBody{}, err
	}
	funcs, err := readFuncalls(r)
	if err != nil {
		return KeyedBody{}, err
	}
	wallet, err := readWallet(r)
	if err != nil {
		return KeyedBody{}, err
	}
	return KeyedBody{Key: key, Flags: flags, Selection: checks, Funcalls: funcs, Wallet: wallet}, nil
}

// SearchBody is a search request's body: client_id ‖ attribute_check[].
type SearchBody struct {
	ClientID  uint64
	Selection []types.AttributeCheck
}

func (b SearchBody) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], b.ClientID)
	buf.Write(idBuf[:])
	writeAttributeChecks(&buf, b.Selection)
	return buf.Bytes(), nil
}

func DecodeSearchBody(raw []byte) (SearchBody, error) {
	r := bytes.NewReader(raw)
	var idBuf [8]byte
	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return SearchBody{}, err
	}
	checks, err := readAttributeChecks(r)
	if err != nil {
		return SearchBody{}, err
	}
	return SearchBody{ClientID: binary.BigEndian.Uint64(idBuf[:]), Selection: checks}, nil
}

// SortedSearchBody is a sorted-search request's body: attribute_check[] ‖
// limit ‖ sort_attr ‖ maximize.
type SortedSearchBody struct {
	Selection []types.AttributeCheck
	Limit     uint32
	SortAttr  uint32
	Maximize  bool
}

func (b SortedSearchBody) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writeAttributeChecks(&buf, b.Selection)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], b.Limit)
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], b.SortAttr)
	buf.Write(u32[:])
	if b.Maximize {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

func DecodeSortedSearchBody(raw []byte) (SortedSearchBody, error) {
	r := bytes.NewReader(raw)
	checks, err := readAttributeChecks(r)
	if err != nil {
		return SortedSearchBody{}, err
	}
	var u32 [4]byte
	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return SortedSearchBody{}, err
	}
	limit := binary.BigEndian.Uint32(u32[:])
	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return SortedSearchBody{}, err
	}
	sortAttr := binary.BigEndian.Uint32(u32[:])
	maxByte, err := r.ReadByte()
	if err != nil {
		return SortedSearchBody{}, err
	}
	return SortedSearchBody{Selection: checks, Limit: limit, SortAttr: sortAttr, Maximize: maxByte != 0}, nil
}

// AggregateBody is the body shared by count/sum/group-del/group-atomic:
// attribute_check[] (+ for atomic: flags ‖ funcall[]).
type AggregateBody struct {
	Selection []types.AttributeCheck
	Flags     byte
	Funcalls  []types.Funcall // group-atomic only
}

func (b AggregateBody) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writeAttributeChecks(&buf, b.Selection)
	buf.WriteByte(b.Flags)
	writeFuncalls(&buf, b.Funcalls)
	return buf.Bytes(), nil
}

func DecodeAggregateBody(raw []byte) (AggregateBody, error) {
	r := bytes.NewReader(raw)
	checks, err := readAttributeChecks(r)
	if err != nil {
		return AggregateBody{}, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return AggregateBody{}, err
	}
	funcs, err := readFuncalls(r)
	if err != nil {
		return AggregateBody{}, err
	}
	return AggregateBody{Selection: checks, Flags: flags, Funcalls: funcs}, nil
}

// SearchItemBody is one SEARCH_ITEM frame's payload: key ‖ value[], one
// length-prefixed value per non-key attribute in schema order.
type SearchItemBody struct {
	Key    []byte
	Values [][]byte
}

func (b SearchItemBody) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, b.Key)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(b.Values)))
	buf.Write(countBuf[:])
	for _, v := range b.Values {
		writeString(&buf, v)
	}
	return buf.Bytes(), nil
}

func DecodeSearchItemBody(raw []byte) (SearchItemBody, error) {
	r := bytes.NewReader(raw)
	key, err := readString(r)
	if err != nil {
		return SearchItemBody{}, err
	}
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return SearchItemBody{}, err
	}
	n := binary.BigEndian.Uint32(countBuf[:])
	values := make([][]byte, n)
	for i := range values {
		v, err := readString(r)
		if err != nil {
			return SearchItemBody{}, err
		}
		values[i] = v
	}
	return SearchItemBody{Key: key, Values: values}, nil
}
