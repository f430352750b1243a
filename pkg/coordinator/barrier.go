package coordinator

import (
	"sync"

	"github.com/cuemby/hyperfold/pkg/types"
)

// barrier tracks, for each configuration version, the set of servers still
// expected to acknowledge that version. Advancing the minimum uncompleted
// version triggers exactly one broadcast per crossed version. State is
// append-only per version; a server is removed by passing, never by an
// explicit clear. Grounded on the shape of pkg/events's publish/subscribe
// broker, narrowed from a generic event feed to a per-version completion
// count the way config_ack/config_stable/checkpoint_stable track
// acknowledgment.
type barrier struct {
	mu       sync.Mutex
	pending  map[uint64]map[types.ServerID]bool
	complete map[uint64]bool
	minOpen  uint64
	cond     *sync.Cond
}

func newBarrier() *barrier {
	b := &barrier{
		pending:  make(map[uint64]map[types.ServerID]bool),
		complete: make(map[uint64]bool),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// open registers a new version with the given membership; it becomes
// immediately complete if membership is empty.
func (b *barrier) open(version uint64, members []types.ServerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := make(map[types.ServerID]bool, len(members))
	for _, m := range members {
		set[m] = true
	}
	b.pending[version] = set
	if len(set) == 0 {
		b.complete[version] = true
	}
	if b.minOpen == 0 {
		b.minOpen = version
	}
}

// pass records that server has acknowledged version. Returns true if this
// call caused the minimum-uncompleted version to advance (so the caller
// should broadcast).
func (b *barrier) pass(version uint64, server types.ServerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.pending[version]
	if !ok {
		return false
	}
	delete(set, server)
	if len(set) == 0 {
		b.complete[version] = true
	}

	advanced := false
	for b.complete[b.minOpen] {
		delete(b.pending, b.minOpen)
		advanced = true
		b.minOpen++
	}
	if advanced {
		b.cond.Broadcast()
	}
	return advanced
}

// wait blocks until the barrier's minimum-uncompleted version is at least
// version.
func (b *barrier) wait(version uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.minOpen < version {
		b.cond.Wait()
	}
}

// condVars bundles the broadcast channels the state machine exposes:
// config, checkpoint, and the config_ack/config_stable/checkpoint_stable
// barrier group. Each subscriber gets its own channel with a buffer of
// one; a broadcast does a non-blocking send of the version number to every
// current subscriber and drops it for any whose buffer is already full.
// Channels are never closed or replaced by a broadcast.
type condVars struct {
	mu               sync.Mutex
	configSubs       []chan uint64
	checkpSubs       []chan uint64
	ackSubs          []chan uint64
	stableSubs       []chan uint64
	checkpStableSubs []chan uint64
}

func newCondVars() *condVars {
	return &condVars{}
}

func (c *condVars) subscribeConfig() <-chan uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan uint64, 1)
	c.configSubs = append(c.configSubs, ch)
	return ch
}

func (c *condVars) subscribeCheckpoint() <-chan uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan uint64, 1)
	c.checkpSubs = append(c.checkpSubs, ch)
	return ch
}

// subscribeAck delivers the configuration version each time the
// config_ack_barrier's minimum-uncompleted version advances.
func (c *condVars) subscribeAck() <-chan uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan uint64, 1)
	c.ackSubs = append(c.ackSubs, ch)
	return ch
}

// subscribeStable is subscribeAck's counterpart for config_stable_barrier.
func (c *condVars) subscribeStable() <-chan uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan uint64, 1)
	c.stableSubs = append(c.stableSubs, ch)
	return ch
}

// subscribeCheckpointStable delivers the checkpoint number each time the
// checkpoint_stable barrier's minimum-uncompleted checkpoint advances.
func (c *condVars) subscribeCheckpointStable() <-chan uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan uint64, 1)
	c.checkpStableSubs = append(c.checkpStableSubs, ch)
	return ch
}

func (c *condVars) broadcastConfig(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.configSubs {
		select {
		case ch <- version:
		default:
		}
	}
}

func (c *condVars) broadcastCheckpoint(number uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.checkpSubs {
		select {
		case ch <- number:
		default:
		}
	}
}

func (c *condVars) broadcastAck(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.ackSubs {
		select {
		case ch <- version:
		default:
		}
	}
}

func (c *condVars) broadcastStable(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.stableSubs {
		select {
		case ch <- version:
		default:
		}
	}
}

func (c *condVars) broadcastCheckpointStable(number uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.checkpStableSubs {
		select {
		case ch <- number:
		default:
		}
	}
}
