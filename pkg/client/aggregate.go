package client

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/cuemby/hyperfold/pkg/datatype"
	"github.com/cuemby/hyperfold/pkg/types"
)

// aggState accumulates one aggregation's partial results across its legs.
// The concrete reducer (count/sum/search/...) is selected by kind and
// drives handleMessage/canYield/finalResult.
type aggState struct {
	kind    string
	legs    map[uint64]leg // remaining in-flight legs; emptied as replies/failures arrive
	total   int
	legText map[uint64]string   // search_describe: one entry per virtual server id, keyed by nonce
	virtual map[uint64]uint64   // nonce -> virtual server id, for search_describe's deterministic order
	items   []interface{}       // search: streamed items
	limit   int                 // sorted_search: heap capacity
	attr    int                 // sorted_search/sum: attribute position
	min     bool                // sorted_search: true picks the `limit` smallest, false the `limit` largest
	dtype   datatype.Type       // sorted_search/sum: attribute's datatype
	heapRef *sortedHeap         // sorted_search: the bounded top-k heap
	sum     *sumAccumulator     // sum: running total by datatype
	err     error
}

// AggregateRequest is the payload sent to every leg of a search or
// aggregation, carrying the predicates every leg evaluates independently
// plus whatever parameters the specific aggregator needs.
type AggregateRequest struct {
	Selection []types.AttributeCheck
	Funcalls  []types.Funcall // group_atomic only
	Attr      int             // sum/sorted_search: attribute position
	Limit     int             // sorted_search only
	Min       bool            // sorted_search only
}

// newAggregation registers a pending aggregation op across targets and
// returns its client-visible id. req is sent verbatim to every leg.
func (c *Client) newAggregation(kind string, targets []searchTarget, req AggregateRequest, st *aggState) string {
	st.kind = kind
	st.legs = make(map[uint64]leg, len(targets))
	st.legText = make(map[uint64]string, len(targets))
	st.virtual = make(map[uint64]uint64, len(targets))

	legs := make(map[uint64]leg, len(targets))
	for _, t := range targets {
		nonce, err := c.transport.Send(t.leg.server, t.leg.virtual, Message{Kind: kind, Payload: req})
		if err != nil {
			continue
		}
		legs[nonce] = t.leg
		st.legs[nonce] = t.leg
		st.virtual[nonce] = uint64(t.leg.virtual)
	}

	return c.register(kind, legs, func(op *pendingOp) {
		op.canYield = func() bool { return len(st.legs) == 0 }
		op.handleMessage = func(msg Message) error {
			if err := handleAggregationReply(st, msg); err != nil {
				return err
			}
			if len(st.legs) == 0 {
				op.result, op.resultCode = st.finalResult(), types.RSuccess
			}
			return nil
		}
	})
}

// handleAggregationReply removes msg's leg from the outstanding set and
// folds its payload into st, per aggregation's per-reply accounting rule.
// A search leg streams many items and stays outstanding until its
// SEARCH_DONE arrives.
func handleAggregationReply(st *aggState, msg Message) error {
	if st.kind != "search" || msg.Kind == "SEARCH_DONE" {
		delete(st.legs, msg.Nonce)
	}

	switch st.kind {
	case "count":
		n, ok := msg.Payload.(int)
		if !ok {
			return fmt.Errorf("client: count reply payload is not an int")
		}
		st.total += n

	case "sum":
		raw, ok := msg.Payload.([]byte)
		if !ok {
			return fmt.Errorf("client: sum reply payload is not bytes")
		}
		if st.sum == nil {
			st.sum = newSumAccumulator(st.dtype)
		}
		st.sum.add(raw)

	case "search":
		if msg.Kind == "SEARCH_DONE" {
			return nil
		}
		st.items = append(st.items, msg.Payload)

	case "search_describe":
		text, _ := msg.Payload.(string)
		st.legText[msg.Nonce] = text

	case "sorted_search":
		raw, ok := msg.Payload.([]byte)
		if !ok {
			return fmt.Errorf("client: sorted_search reply payload is not bytes")
		}
		if st.heapRef == nil {
			h, ok := datatype.Lookup(st.dtype)
			if !ok {
				return fmt.Errorf("client: sorted_search: unregistered datatype %q", st.dtype)
			}
			st.heapRef = newSortedHeap(st.limit, st.min, h)
		}
		st.heapRef.offer(raw)

	case "group_del", "group_atomic":
		n, ok := msg.Payload.(int)
		if !ok {
			return fmt.Errorf("client: group reply payload is not an int")
		}
		st.total += n

	default:
		return fmt.Errorf("client: unknown aggregation kind %q", st.kind)
	}
	return nil
}

// finalResult produces the value Result should hand back for a completed
// aggregation.
func (st *aggState) finalResult() interface{} {
	switch st.kind {
	case "count", "group_del", "group_atomic":
		return st.total
	case "sum":
		if st.sum == nil {
			return nil
		}
		return st.sum.value()
	case "search":
		return st.items
	case "search_describe":
		return st.describeText()
	case "sorted_search":
		if st.heapRef == nil {
			return nil
		}
		return st.heapRef.sortedOutput()
	default:
		return nil
	}
}

// describeText concatenates each leg's description text in ascending
// virtual server id order, per search_describe's deterministic-order
// rule.
func (st *aggState) describeText() string {
	nonces := make([]uint64, 0, len(st.legText))
	for n := range st.legText {
		nonces = append(nonces, n)
	}
	sort.Slice(nonces, func(i, j int) bool { return st.virtual[nonces[i]] < st.virtual[nonces[j]] })

	out := ""
	for _, n := range nonces {
		out += st.legText[n]
	}
	return out
}

// sumAccumulator folds sum reply payloads of one datatype into a running
// total, filtered to the datatypes sum is meaningful against (int64,
// float).
type sumAccumulator struct {
	dtype datatype.Type
	i64   int64
	f64   float64
}

func newSumAccumulator(dtype datatype.Type) *sumAccumulator {
	return &sumAccumulator{dtype: dtype}
}

func (s *sumAccumulator) add(raw []byte) {
	h, ok := datatype.Lookup(s.dtype)
	if !ok {
		return
	}
	v, err := h.Decode(raw)
	if err != nil {
		return
	}
	switch n := v.(type) {
	case int64:
		s.i64 += n
	case float64:
		s.f64 += n
	}
}

func (s *sumAccumulator) value() interface{} {
	if s.dtype == datatype.TypeFloat {
		return s.f64
	}
	return s.i64
}

// sortedHeap is sorted_search's bounded top-limit accumulator: a heap
// sized to exactly limit, where offering a new element beyond capacity
// evicts the current worst element, per the aggregation rule "the heap
// is sized to exactly limit - pushing a new item and popping the worst
// preserves the invariant."
type sortedHeap struct {
	items []sortedItem
	limit int
	min   bool
	h     datatype.Handler
}

type sortedItem struct{ raw []byte }

func newSortedHeap(limit int, min bool, h datatype.Handler) *sortedHeap {
	return &sortedHeap{limit: limit, min: min, h: h}
}

// offer inserts raw into the heap, evicting the current worst element if
// the heap is already at capacity and raw is better than it.
func (s *sortedHeap) offer(raw []byte) {
	if len(s.items) < s.limit {
		heap.Push(s, sortedItem{raw})
		return
	}
	if len(s.items) == 0 {
		return
	}
	worst := s.items[0].raw
	if s.better(raw, worst) {
		s.items[0] = sortedItem{raw}
		heap.Fix(s, 0)
	}
}

// better reports whether a should survive over b: for a `min` heap
// sorted_search keeps the limit smallest values, so the heap's root is
// the current largest kept value (the first to evict); for `max` it is
// the opposite.
func (s *sortedHeap) better(a, b []byte) bool {
	if s.min {
		return s.h.Compare(a, b) < 0
	}
	return s.h.Compare(a, b) > 0
}

// heap.Interface: ordered so the root is the worst-kept element (the one
// offer evicts first when a better candidate arrives).
func (s *sortedHeap) Len() int { return len(s.items) }
func (s *sortedHeap) Less(i, j int) bool {
	if s.min {
		return s.h.Compare(s.items[i].raw, s.items[j].raw) > 0
	}
	return s.h.Compare(s.items[i].raw, s.items[j].raw) < 0
}
func (s *sortedHeap) Swap(i, j int) { s.items[i], s.items[j] = s.items[j], s.items[i] }
func (s *sortedHeap) Push(x interface{}) {
	s.items = append(s.items, x.(sortedItem))
}
func (s *sortedHeap) Pop() interface{} {
	old := s.items
	n := len(old)
	item := old[n-1]
	s.items = old[:n-1]
	return item
}

// sortedOutput returns the kept items sorted opposite to the heap's
// internal (worst-first) order, per sorted_search's "final output is
// sorted opposite to the heap" rule.
func (s *sortedHeap) sortedOutput() [][]byte {
	out := make([][]byte, len(s.items))
	for i, it := range s.items {
		out[i] = it.raw
	}
	sort.Slice(out, func(i, j int) bool {
		if s.min {
			return s.h.Compare(out[i], out[j]) < 0
		}
		return s.h.Compare(out[i], out[j]) > 0
	})
	return out
}
