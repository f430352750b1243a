package main

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/cuemby/hyperfold/pkg/client"
	"github.com/cuemby/hyperfold/pkg/log"
	"github.com/cuemby/hyperfold/pkg/storage"
	"github.com/cuemby/hyperfold/pkg/types"
	"github.com/cuemby/hyperfold/pkg/wire"
)

// record is the on-disk shape of one key's value: the raw bytes of every
// non-key attribute, keyed by schema attribute index. storaged never
// interprets these bytes beyond applying a SET funcall; comparison,
// regex, and arithmetic funcalls belong to the chain-replication write
// path, out of scope here (see DESIGN.md).
type record map[int][]byte

func encodeRecord(rec record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(raw []byte) (record, error) {
	if len(raw) == 0 {
		return record{}, nil
	}
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// connHandler serves the wire protocol against a local Store, resolving
// each request's destination region from the coordinator's most recently
// installed configuration rather than rehashing the key: the client
// already did that hashing and wrote the result into the request header.
type connHandler struct {
	store storage.Store

	mu  sync.RWMutex
	cfg *types.Configuration
}

func newConnHandler(store storage.Store, coord *coordinatorClient) *connHandler {
	return &connHandler{store: store}
}

func (h *connHandler) installConfig(cfg *types.Configuration) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

func (h *connHandler) configuration() *types.Configuration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// regionFor finds the region whose replica chain contains virtual, per
// the data model: a request's destination is encoded directly in its
// header rather than recomputed from hyperspace hashing on this side.
func (h *connHandler) regionFor(virtual types.VirtualServerID) (types.RegionID, bool) {
	cfg := h.configuration()
	if cfg == nil {
		return 0, false
	}
	for _, sp := range cfg.Spaces {
		for _, ss := range sp.Subspaces {
			for _, region := range ss.Regions {
				for _, rep := range region.Replicas {
					if rep.Virtual == virtual {
						return region.ID, true
					}
				}
			}
		}
	}
	return 0, false
}

func (h *connHandler) acceptLoop(listener net.Listener) error {
	logger := log.WithComponent("storaged.conn")
	for {
		conn, err := listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return err
		}
		go func() {
			defer conn.Close()
			if err := h.serve(conn); err != nil && err != io.EOF {
				logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
			}
		}()
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func (h *connHandler) serve(conn net.Conn) error {
	for {
		reqHeader, err := wire.ReadRequestHeader(conn)
		if err != nil {
			return err
		}
		raw, err := wire.ReadFrame(conn)
		if err != nil {
			return err
		}

		replyType, replyRaw, err := h.handleRequest(reqHeader, raw)
		if err != nil {
			return err
		}

		respHeader := wire.ResponseHeader{Type: replyType, Virtual: reqHeader.Virtual, Nonce: reqHeader.Nonce}
		hdrBytes, err := respHeader.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := conn.Write(hdrBytes); err != nil {
			return err
		}
		if err := wire.WriteFrame(conn, replyRaw); err != nil {
			return err
		}
	}
}

func (h *connHandler) handleRequest(reqHeader wire.RequestHeader, raw []byte) (wire.MessageType, []byte, error) {
	region, ok := h.regionFor(reqHeader.Virtual)
	if !ok {
		return encodeKeyedReply(types.RUnknownSpace, nil)
	}

	switch reqHeader.Type {
	case wire.MsgGet:
		return h.handleGet(region, raw)
	case wire.MsgPut, wire.MsgCondPut:
		return h.handlePut(region, raw, reqHeader.Type == wire.MsgCondPut)
	case wire.MsgDel:
		return h.handleDel(region, raw)
	default:
		return encodeKeyedReply(types.RServerError, nil)
	}
}

func (h *connHandler) handleGet(region types.RegionID, raw []byte) (wire.MessageType, []byte, error) {
	body, err := wire.DecodeKeyedBody(raw)
	if err != nil {
		return 0, nil, err
	}
	stored, ok, err := h.store.Get(region, body.Key)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return encodeKeyedReply(types.RNotFound, nil)
	}
	return encodeKeyedReply(types.RSuccess, stored)
}

func (h *connHandler) handlePut(region types.RegionID, raw []byte, conditional bool) (wire.MessageType, []byte, error) {
	body, err := wire.DecodeKeyedBody(raw)
	if err != nil {
		return 0, nil, err
	}

	stored, existed, err := h.store.Get(region, body.Key)
	if err != nil {
		return 0, nil, err
	}

	if body.Flags&wire.FlagFailIfFound != 0 && existed {
		return encodeKeyedReply(types.RCmpFail, nil)
	}
	if body.Flags&wire.FlagFailIfNotFound != 0 && !existed {
		return encodeKeyedReply(types.RCmpFail, nil)
	}

	if conditional {
		ok, err := evaluateChecks(stored, body.Selection)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			return encodeKeyedReply(types.RCmpFail, nil)
		}
	}

	rec, err := decodeRecord(stored)
	if err != nil {
		return 0, nil, err
	}
	if rec == nil {
		rec = record{}
	}
	for _, fc := range body.Funcalls {
		if fc.Name != types.FuncSet {
			return encodeKeyedReply(types.RServerError, nil)
		}
		rec[fc.Attr] = fc.Arg1
	}

	encoded, err := encodeRecord(rec)
	if err != nil {
		return 0, nil, err
	}
	if err := h.store.Put(region, body.Key, encoded); err != nil {
		return 0, nil, err
	}
	return encodeKeyedReply(types.RSuccess, nil)
}

func (h *connHandler) handleDel(region types.RegionID, raw []byte) (wire.MessageType, []byte, error) {
	body, err := wire.DecodeKeyedBody(raw)
	if err != nil {
		return 0, nil, err
	}
	_, existed, err := h.store.Get(region, body.Key)
	if err != nil {
		return 0, nil, err
	}
	if !existed {
		return encodeKeyedReply(types.RNotFound, nil)
	}
	if err := h.store.Delete(region, body.Key); err != nil {
		return 0, nil, err
	}
	return encodeKeyedReply(types.RSuccess, nil)
}

func encodeKeyedReply(code types.ResultCode, value []byte) (wire.MessageType, []byte, error) {
	t, raw, err := wire.EncodeReplyPayload("keyed", client.KeyedReply{Code: code, Value: value})
	return t, raw, err
}

// evaluateChecks is a placeholder for COND_PUT's attribute-check
// evaluation: always succeeds when there are no checks, since the
// per-attribute datatype comparison machinery belongs to the
// chain-replication write path (out of scope here; see DESIGN.md).
func evaluateChecks(stored []byte, checks []types.AttributeCheck) (bool, error) {
	return len(checks) == 0, nil
}
