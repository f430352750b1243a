package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hyperfold/pkg/types"
)

// fakeConfigSource is a ConfigSource test double backed by a plain value
// and a broadcast channel, standing in for *coordinator.Coordinator.
type fakeConfigSource struct {
	mu  sync.Mutex
	cfg *types.Configuration
	ch  chan uint64
}

func newFakeConfigSource(cfg *types.Configuration) *fakeConfigSource {
	return &fakeConfigSource{cfg: cfg, ch: make(chan uint64, 8)}
}

func (f *fakeConfigSource) Configuration() *types.Configuration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeConfigSource) SubscribeConfig() <-chan uint64 { return f.ch }

func (f *fakeConfigSource) set(cfg *types.Configuration) {
	f.mu.Lock()
	f.cfg = cfg
	f.mu.Unlock()
	f.ch <- cfg.Version
}

// fakeTransport is a Transport test double: Send records the call and
// assigns an incrementing nonce; queued replies are handed back by Recv in
// FIFO order, blocking until one is queued or the timeout elapses.
type fakeTransport struct {
	mu      sync.Mutex
	nonce   uint64
	sent    []Message
	replies chan Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{replies: make(chan Message, 32)}
}

func (f *fakeTransport) Send(server types.ServerID, virtual types.VirtualServerID, msg Message) (uint64, error) {
	f.mu.Lock()
	f.nonce++
	nonce := f.nonce
	f.mu.Unlock()

	msg.Nonce, msg.Server, msg.Virtual = nonce, server, virtual
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nonce, nil
}

func (f *fakeTransport) Recv(timeout time.Duration) (Message, error) {
	select {
	case m := <-f.replies:
		return m, nil
	case <-time.After(timeout):
		return Message{}, ErrTimeout
	}
}

func (f *fakeTransport) reply(m Message) { f.replies <- m }

func kvSchema() types.Schema {
	return types.Schema{Attributes: []types.Attribute{
		{Name: "key", Type: "string"},
		{Name: "value", Type: "string"},
	}}
}

func oneReplicaConfig(version uint64, server types.ServerID, virtual types.VirtualServerID) *types.Configuration {
	sp := &types.Space{
		Name:           "kv",
		Schema:         kvSchema(),
		FaultTolerance: 1,
		Subspaces: []*types.Subspace{{
			Regions: []*types.Region{{
				Replicas: []types.Replica{{Server: server, Virtual: virtual}},
			}},
		}},
	}
	return &types.Configuration{
		Version: version,
		Servers: []types.Server{{ID: server, State: types.ServerAvailable}},
		Spaces:  []*types.Space{sp},
	}
}

func TestGetUnknownSpaceFailsSynchronously(t *testing.T) {
	cfg := &types.Configuration{Version: 1}
	c := New(newFakeConfigSource(cfg), newFakeTransport())

	id, code := c.Get("nope", "k")
	assert.Empty(t, id)
	assert.Equal(t, types.RUnknownSpace, code)
}

func TestGetRoundTripYieldsValue(t *testing.T) {
	cfg := oneReplicaConfig(1, 1, 10)
	transport := newFakeTransport()
	c := New(newFakeConfigSource(cfg), transport)

	id, code := c.Get("kv", "hello")
	require.Equal(t, types.RSuccess, code)
	require.NotEmpty(t, id)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, types.ServerID(1), transport.sent[0].Server)
	assert.Equal(t, types.VirtualServerID(10), transport.sent[0].Virtual)

	transport.reply(Message{
		Nonce: transport.sent[0].Nonce, Server: 1, Virtual: 10,
		Kind: "GET", Payload: KeyedReply{Value: []byte("world"), Code: types.RSuccess},
	})

	ready, err := c.Loop(time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, ready)

	value, code := c.Result(ready)
	assert.Equal(t, []byte("world"), value)
	assert.Equal(t, types.RSuccess, code)
}

func TestLoopTimesOutWithNoReply(t *testing.T) {
	cfg := oneReplicaConfig(1, 1, 10)
	c := New(newFakeConfigSource(cfg), newFakeTransport())

	_, code := c.Get("kv", "hello")
	require.Equal(t, types.RSuccess, code)

	_, err := c.Loop(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReplyWithMismatchedServerFailsWithServerError(t *testing.T) {
	cfg := oneReplicaConfig(1, 1, 10)
	transport := newFakeTransport()
	c := New(newFakeConfigSource(cfg), transport)

	id, _ := c.Get("kv", "hello")
	transport.reply(Message{Nonce: transport.sent[0].Nonce, Server: 99, Virtual: 10, Kind: "GET"})

	ready, err := c.Loop(time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, ready)

	_, code := c.Result(ready)
	assert.Equal(t, types.RServerError, code)
}

func TestReconfigurationFailsPendingOpWhoseMappingMoved(t *testing.T) {
	cfg := oneReplicaConfig(1, 1, 10)
	source := newFakeConfigSource(cfg)
	transport := newFakeTransport()
	c := New(source, transport)

	id, _ := c.Get("kv", "hello")

	moved := oneReplicaConfig(2, 2, 10) // virtual 10 now maps to server 2, not 1
	source.set(moved)

	ready, err := c.Loop(time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, ready)

	_, code := c.Result(ready)
	assert.Equal(t, types.RReconfigure, code)
}

func TestPutPreparesFuncallsAndKeepsOrderPerAttribute(t *testing.T) {
	cfg := oneReplicaConfig(1, 1, 10)
	transport := newFakeTransport()
	c := New(newFakeConfigSource(cfg), transport)

	_, code := c.Put("kv", "hello", []FuncallValue{
		{Name: "value", Func: types.FuncStringAppend, Arg1: "a"},
		{Name: "value", Func: types.FuncStringAppend, Arg1: "b"},
	})
	require.Equal(t, types.RSuccess, code)

	req := transport.sent[0].Payload.(KeyedRequest)
	require.Len(t, req.Funcalls, 2)
	assert.Equal(t, []byte("a"), req.Funcalls[0].Arg1)
	assert.Equal(t, []byte("b"), req.Funcalls[1].Arg1)
}

func TestPutRejectsFuncallOnKeyAttribute(t *testing.T) {
	cfg := oneReplicaConfig(1, 1, 10)
	c := New(newFakeConfigSource(cfg), newFakeTransport())

	_, code := c.Put("kv", "hello", []FuncallValue{{Name: "key", Func: types.FuncSet, Arg1: "x"}})
	assert.Equal(t, types.RDontUseKey, code)
}

func TestCountAggregatesAcrossLegs(t *testing.T) {
	sp := &types.Space{
		Name: "kv", Schema: kvSchema(), FaultTolerance: 1,
		Subspaces: []*types.Subspace{
			{}, // implicit key subspace, unused by search
			{
				Attrs: []int{1},
				Regions: []*types.Region{
					{LowerCoord: []uint64{0}, UpperCoord: []uint64{1 << 62}, Replicas: []types.Replica{{Server: 1, Virtual: 10}}},
					{LowerCoord: []uint64{1<<62 + 1}, UpperCoord: []uint64{^uint64(0)}, Replicas: []types.Replica{{Server: 2, Virtual: 20}}},
				},
			},
		},
	}
	cfg := &types.Configuration{Version: 1, Spaces: []*types.Space{sp}}
	transport := newFakeTransport()
	c := New(newFakeConfigSource(cfg), transport)

	id, code := c.Count("kv", nil)
	require.Equal(t, types.RSuccess, code)
	require.Len(t, transport.sent, 2)

	transport.reply(Message{Nonce: transport.sent[0].Nonce, Server: transport.sent[0].Server, Virtual: transport.sent[0].Virtual, Kind: "count", Payload: 3})
	transport.reply(Message{Nonce: transport.sent[1].Nonce, Server: transport.sent[1].Server, Virtual: transport.sent[1].Virtual, Kind: "count", Payload: 4})

	first, err := c.Loop(time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, first)

	total, code := c.Result(id)
	assert.Equal(t, 7, total)
	assert.Equal(t, types.RSuccess, code)
}
