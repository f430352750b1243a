// Package client implements the request pipeline of a hyperspace-hashed
// key-value store's caller-facing library: configuration tracking,
// request preparation, dispatch, and the single-threaded cooperative
// loop that yields completed operations one at a time.
//
// Grounded on pkg/client/client.go's one-method-per-operation surface,
// restructured away from a single blocking RPC per call into a
// prepare/dispatch/yield pipeline: every public operation installs a
// pending entry and returns immediately; Loop is the only place that
// blocks.
package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/hyperfold/pkg/metrics"
	"github.com/cuemby/hyperfold/pkg/types"
)

// ConfigSource is the coordinator-facing surface a Client needs: the
// current configuration snapshot and a feed of version bumps. Satisfied
// by *coordinator.Coordinator without this package importing it
// directly, the same decoupling the teacher's Client gets for free from
// talking to a generated gRPC stub instead of a concrete server type.
type ConfigSource interface {
	Configuration() *types.Configuration
	SubscribeConfig() <-chan uint64
}

// Message is one frame exchanged with a daemon: an outbound request or an
// inbound reply, keyed by the nonce the client assigned when sending.
type Message struct {
	Nonce   uint64
	Server  types.ServerID
	Virtual types.VirtualServerID
	Kind    string
	Payload interface{}
}

// Transport is the wire-level collaborator a Client dispatches requests
// through and draws replies from. pkg/wire provides the real
// implementation; tests substitute a fake.
type Transport interface {
	Send(server types.ServerID, virtual types.VirtualServerID, msg Message) (nonce uint64, err error)
	Recv(timeout time.Duration) (Message, error)
}

// ErrTimeout is returned by Loop when the wall-clock budget passed to it
// elapses with no pending op becoming yieldable.
var ErrTimeout = fmt.Errorf("client: loop timed out")

// leg is one outstanding message of a pending op: the server/virtual pair
// the client expects a reply to match, so a later configuration can tell
// whether the mapping still holds.
type leg struct {
	server  types.ServerID
	virtual types.VirtualServerID
}

// pendingOp is one in-flight operation: either a single keyed request or
// a multi-leg aggregation. canYield/handleMessage close over the op's
// kind-specific state (see dispatch.go/aggregate.go).
type pendingOp struct {
	id            string
	kind          string
	legs          map[uint64]leg // nonce -> leg, so a stale reply can be matched and dropped on reconfiguration
	result        interface{}
	resultCode    types.ResultCode
	handleMessage func(msg Message) error
	canYield      func() bool
}

// Client is a single caller's view of the store: a cached configuration,
// a table of pending operations keyed by server nonce, and the transport
// used to reach daemons. Preparing/dispatching new ops from other
// goroutines while Loop blocks is safe (state mutation is guarded by
// mu); Loop itself is the pipeline's sole suspension point and is not
// meant to be called concurrently with itself, per the yield contract's
// single-threaded cooperative design.
type Client struct {
	mu sync.Mutex

	configSource ConfigSource
	config       *types.Configuration
	configCh     <-chan uint64

	transport Transport

	byNonce map[uint64]*pendingOp // nonce -> owning op, for reply routing
	byID    map[string]*pendingOp
	failed  []*pendingOp

	results     map[string]interface{}
	resultCodes map[string]types.ResultCode
}

// New builds a Client against configSource (typically a Coordinator) and
// transport (typically pkg/wire).
func New(configSource ConfigSource, transport Transport) *Client {
	return &Client{
		configSource: configSource,
		config:       configSource.Configuration(),
		configCh:     configSource.SubscribeConfig(),
		transport:    transport,
		byNonce:      make(map[uint64]*pendingOp),
		byID:         make(map[string]*pendingOp),
		results:      make(map[string]interface{}),
		resultCodes:  make(map[string]types.ResultCode),
	}
}

// Configuration returns the client's currently cached configuration.
func (c *Client) Configuration() *types.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// refreshConfig drains any pending version bumps from the coordinator's
// config feed without blocking, replacing the cached configuration when
// a newer one is available, and relocates any pending op whose recorded
// server mapping no longer holds into the failure queue. Callers must
// hold c.mu.
func (c *Client) refreshConfig() {
	for {
		select {
		case <-c.configCh:
			cfg := c.configSource.Configuration()
			if cfg != nil && (c.config == nil || cfg.Version > c.config.Version) {
				c.config = cfg
				c.reconcilePending()
			}
		default:
			return
		}
	}
}

// reconcilePending fails every pending op whose legs no longer map to the
// server the op expects, per the yield contract's reconfigure rule.
func (c *Client) reconcilePending() {
	for nonce, op := range c.byNonce {
		l, ok := op.legs[nonce]
		if !ok {
			continue
		}
		if !c.virtualStillMapsTo(l) {
			c.failOp(op, types.RReconfigure)
			metrics.ClientReconfigureEventsTotal.Inc()
		}
	}
}

// virtualStillMapsTo reports whether the current configuration still
// places l.virtual on l.server anywhere in the hyperspace.
func (c *Client) virtualStillMapsTo(l leg) bool {
	if c.config == nil {
		return false
	}
	for _, sp := range c.config.Spaces {
		for _, sub := range sp.Subspaces {
			for _, r := range sub.Regions {
				for _, rep := range r.Replicas {
					if rep.Virtual == l.virtual {
						return rep.Server == l.server
					}
				}
			}
		}
	}
	return true // virtual id not found anywhere: nothing to contradict the mapping
}

// failOp removes every leg of op from byNonce, marks it with code, and
// queues it for draining on the next Loop iteration. Callers must hold
// c.mu.
func (c *Client) failOp(op *pendingOp, code types.ResultCode) {
	for nonce := range op.legs {
		delete(c.byNonce, nonce)
	}
	delete(c.byID, op.id)
	op.resultCode = code
	c.failed = append(c.failed, op)
}

// register installs a new pending op under a fresh client-visible id and
// indexes every leg by its nonce. build attaches the op's canYield and
// handleMessage closures; it receives the op itself so those closures can
// write their outcome into op.result/op.resultCode directly.
func (c *Client) register(kind string, legs map[uint64]leg, build func(op *pendingOp)) string {
	id := uuid.New().String()
	op := &pendingOp{id: id, kind: kind, legs: legs}
	build(op)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = op
	for nonce := range legs {
		c.byNonce[nonce] = op
	}
	metrics.ClientPendingOps.Set(float64(len(c.byID)))
	return id
}

// Loop draws messages from the transport, dispatches each to its pending
// op, and returns as soon as one op becomes yieldable or timeout elapses.
// It is the sole suspension point in the pipeline (spec's yield
// contract); cancellation is by timeout only.
func (c *Client) Loop(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		c.mu.Lock()
		c.refreshConfig()
		if id, ok := c.popFailed(); ok {
			c.mu.Unlock()
			return id, nil
		}
		if id, ok := c.popYieldable(); ok {
			c.mu.Unlock()
			return id, nil
		}
		c.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrTimeout
		}

		msg, err := c.transport.Recv(remaining)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.dispatchMessage(msg)
		c.mu.Unlock()
	}
}

// popFailed pops one op off the failure queue, if any, returning its id.
// Callers must hold c.mu.
func (c *Client) popFailed() (string, bool) {
	if len(c.failed) == 0 {
		return "", false
	}
	op := c.failed[0]
	c.failed = c.failed[1:]
	c.results[op.id] = op.result
	c.resultCodes[op.id] = op.resultCode
	return op.id, true
}

// popYieldable returns the id of the first pending op whose canYield
// reports true, removing it from the pending tables. Callers must hold
// c.mu.
func (c *Client) popYieldable() (string, bool) {
	for id, op := range c.byID {
		if op.canYield != nil && op.canYield() {
			delete(c.byID, id)
			for nonce := range op.legs {
				delete(c.byNonce, nonce)
			}
			c.results[id] = op.result
			c.resultCodes[id] = op.resultCode
			return id, true
		}
	}
	return "", false
}

// dispatchMessage routes one transport message to its owning op by
// nonce, per the reply-parsing rule: a reply whose server/virtual
// doesn't match the pending leg's record fails with SERVERERROR. Callers
// must hold c.mu.
func (c *Client) dispatchMessage(msg Message) {
	op, ok := c.byNonce[msg.Nonce]
	if !ok {
		return // unmatched reply: drop silently, no pending op to blame
	}
	l, ok := op.legs[msg.Nonce]
	if !ok || l.server != msg.Server || l.virtual != msg.Virtual {
		c.failOp(op, types.RServerError)
		return
	}
	if err := op.handleMessage(msg); err != nil {
		c.failOp(op, types.RServerError)
	}
}

// Result returns the final value and result code an op produced, valid
// only once Loop has yielded its id.
func (c *Client) Result(id string) (interface{}, types.ResultCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[id], c.resultCodes[id]
}
