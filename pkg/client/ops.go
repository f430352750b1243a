package client

import (
	"fmt"

	"github.com/cuemby/hyperfold/pkg/datatype"
	"github.com/cuemby/hyperfold/pkg/types"
)

// KeyedReply is the payload a daemon's reply to a keyed operation
// carries: the stored value (for reads) and the operation's result code.
type KeyedReply struct {
	Value []byte
	Code  types.ResultCode
}

// KeyedRequest is the payload sent to a region's point leader for a
// keyed operation.
type KeyedRequest struct {
	Key       []byte
	Selection []types.AttributeCheck
	Funcalls  []types.Funcall
	Wallet    types.AuthWallet
}

// dispatchKeyed prepares and sends one keyed request, installing a
// pending op that yields as soon as the leader replies. Preparation
// failures (UNKNOWNSPACE, WRONGTYPE, ...) are reported synchronously with
// no pending op created, since they never reach the wire.
func (c *Client) dispatchKeyed(kind string, spaceName string, key interface{}, selection []FieldValue, funcs []FuncallValue) (string, types.ResultCode) {
	cfg := c.Configuration()
	sp := cfg.SpaceByName(spaceName)
	if sp == nil {
		return "", types.RUnknownSpace
	}

	rawKey, code := keyBytes(sp.Schema, key)
	if code != types.RSuccess {
		return "", code
	}

	checks, code := prepareChecks(sp.Schema, selection)
	if code != types.RSuccess {
		return "", code
	}
	attrChecks := make([]types.AttributeCheck, len(checks))
	for i, pc := range checks {
		attrChecks[i] = pc.AttributeCheck
	}

	fcs, code := prepareFuncalls(sp.Schema, funcs)
	if code != types.RSuccess {
		return "", code
	}

	l, ok := keyedTarget(sp)
	if !ok {
		return "", types.ROffline
	}

	req := KeyedRequest{Key: rawKey, Selection: attrChecks, Funcalls: fcs}
	nonce, err := c.transport.Send(l.server, l.virtual, Message{Kind: kind, Payload: req})
	if err != nil {
		return "", types.RServerError
	}

	legs := map[uint64]leg{nonce: l}
	id := c.register(kind, legs, func(op *pendingOp) {
		op.canYield = func() bool { return false } // cleared by handleMessage once the reply lands
		op.handleMessage = func(msg Message) error {
			reply, ok := msg.Payload.(KeyedReply)
			if !ok {
				return fmt.Errorf("client: %s reply payload has wrong type", kind)
			}
			op.result, op.resultCode = reply.Value, reply.Code
			op.canYield = func() bool { return true }
			return nil
		}
	})
	return id, types.RSuccess
}

// Get retrieves the value stored at key in space. Call Loop to drain the
// reply, then Result(id) for the value and result code.
func (c *Client) Get(space string, key interface{}) (string, types.ResultCode) {
	return c.dispatchKeyed("GET", space, key, nil, nil)
}

// Put unconditionally applies funcs to key's attributes in space,
// creating the key if absent.
func (c *Client) Put(space string, key interface{}, funcs []FuncallValue) (string, types.ResultCode) {
	return c.dispatchKeyed("PUT", space, key, nil, funcs)
}

// CondPut applies funcs to key's attributes only if the current stored
// value satisfies every check in selection; otherwise the operation
// yields CMPFAIL.
func (c *Client) CondPut(space string, key interface{}, selection []FieldValue, funcs []FuncallValue) (string, types.ResultCode) {
	return c.dispatchKeyed("COND_PUT", space, key, selection, funcs)
}

// Del removes key from space.
func (c *Client) Del(space string, key interface{}) (string, types.ResultCode) {
	return c.dispatchKeyed("DEL", space, key, nil, nil)
}

// Search dispatches a search across every region whose hashing
// coordinates can satisfy selection, streaming matched items until every
// leg reports SEARCHDONE.
func (c *Client) Search(space string, selection []FieldValue) (string, types.ResultCode) {
	return c.dispatchAggregate("search", space, selection, 0, "", false)
}

// Count sums each target region's matching item count.
func (c *Client) Count(space string, selection []FieldValue) (string, types.ResultCode) {
	return c.dispatchAggregate("count", space, selection, 0, "", false)
}

// Sum sums attrName across every matching item, filtered to numeric
// datatypes.
func (c *Client) Sum(space string, selection []FieldValue, attrName string) (string, types.ResultCode) {
	return c.dispatchAggregate("sum", space, selection, 0, attrName, false)
}

// SearchDescribe asks every targeted server for a textual description of
// the plan it would use to answer selection, concatenated in virtual
// server id order.
func (c *Client) SearchDescribe(space string, selection []FieldValue) (string, types.ResultCode) {
	return c.dispatchAggregate("search_describe", space, selection, 0, "", false)
}

// SortedSearch returns the top-limit items matching selection, ordered by
// attrName under the min (ascending) or max (descending) comparator.
func (c *Client) SortedSearch(space string, selection []FieldValue, attrName string, limit int, min bool) (string, types.ResultCode) {
	return c.dispatchAggregate("sorted_search", space, selection, limit, attrName, min)
}

// GroupDel deletes every item matching selection, yielding the count of
// items affected once every leg confirms.
func (c *Client) GroupDel(space string, selection []FieldValue) (string, types.ResultCode) {
	return c.dispatchAggregate("group_del", space, selection, 0, "", false)
}

// GroupAtomic applies funcs to every item matching selection, yielding
// the count of items affected once every leg confirms.
func (c *Client) GroupAtomic(space string, selection []FieldValue, funcs []FuncallValue) (string, types.ResultCode) {
	return c.dispatchGroupAtomic(space, selection, funcs)
}

// dispatchAggregate prepares selection, plans its targets, and installs a
// pending aggregation of kind across them.
func (c *Client) dispatchAggregate(kind, space string, selection []FieldValue, limit int, attrName string, min bool) (string, types.ResultCode) {
	cfg := c.Configuration()
	sp := cfg.SpaceByName(space)
	if sp == nil {
		return "", types.RUnknownSpace
	}

	checks, code := prepareChecks(sp.Schema, selection)
	if code != types.RSuccess {
		return "", code
	}
	attrChecks := make([]types.AttributeCheck, len(checks))
	for i, pc := range checks {
		attrChecks[i] = pc.AttributeCheck
	}

	targets := searchPlan(sp, sp.Schema, attrChecks)
	if targets == nil {
		return "", types.RSearchDone
	}

	req := AggregateRequest{Selection: attrChecks, Limit: limit, Min: min}
	st := &aggState{limit: limit, min: min}
	if attrName != "" {
		idx := sp.Schema.AttrIndex(attrName)
		if idx < 0 {
			return "", types.RUnknownAttr
		}
		req.Attr = idx
		st.attr = idx
		st.dtype = datatype.Type(sp.Schema.Attributes[idx].Type)
	}

	id := c.newAggregation(kind, targets, req, st)
	return id, types.RSuccess
}

// dispatchGroupAtomic is dispatchAggregate's group_atomic variant: it
// additionally validates and attaches the mutation list every matching
// item will have applied.
func (c *Client) dispatchGroupAtomic(space string, selection []FieldValue, funcs []FuncallValue) (string, types.ResultCode) {
	cfg := c.Configuration()
	sp := cfg.SpaceByName(space)
	if sp == nil {
		return "", types.RUnknownSpace
	}
	fcs, code := prepareFuncalls(sp.Schema, funcs)
	if code != types.RSuccess {
		return "", code
	}

	checks, code := prepareChecks(sp.Schema, selection)
	if code != types.RSuccess {
		return "", code
	}
	attrChecks := make([]types.AttributeCheck, len(checks))
	for i, pc := range checks {
		attrChecks[i] = pc.AttributeCheck
	}

	targets := searchPlan(sp, sp.Schema, attrChecks)
	if targets == nil {
		return "", types.RSearchDone
	}

	req := AggregateRequest{Selection: attrChecks, Funcalls: fcs}
	st := &aggState{}
	id := c.newAggregation("group_atomic", targets, req, st)
	return id, types.RSuccess
}
