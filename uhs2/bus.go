package uhs2

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-uhs2/tlp"
)

// Bus tracks the devices attached through a Host, keyed by node ID.
//
// Attach is serialized because DEVICE_INIT and ENUMERATE address every device
// without a node ID. Operations on attached nodes are serialized per node by
// Exclusive, so different devices can be driven concurrently.
type Bus struct {
	host     *Host
	attachMu sync.Mutex
	nodes    *xsync.MapOf[tlp.NodeID, *Node]
}

// NewBus creates an empty Bus driven by host.
func NewBus(host *Host) *Bus {
	return &Bus{
		host:  host,
		nodes: xsync.NewMapOf[tlp.NodeID, *Node](),
	}
}

// Host returns the host driving the bus.
func (b *Bus) Host() *Host {
	return b.host
}

// Attach discovers, enumerates and reads the capabilities of the next device
// without a node ID, and registers it. The capabilities are kept on the
// returned node.
//
// Returns ErrNodeIDConflict if the device reports a node ID that is already
// attached; the existing registration is kept.
func (b *Bus) Attach(ctx context.Context) (*Node, error) {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()

	if err := b.host.DeviceInit(ctx); err != nil {
		return nil, err
	}

	node := NewNode()
	id, err := b.host.Enumerate(ctx, node)
	if err != nil {
		return nil, err
	}

	if _, loaded := b.nodes.LoadOrStore(id, node); loaded {
		return nil, fmt.Errorf("%w: %d", ErrNodeIDConflict, id)
	}

	node.mu.Lock()
	_, err = b.host.ReadCapabilities(ctx, node)
	node.mu.Unlock()

	if err != nil {
		b.nodes.Delete(id)
		return nil, err
	}

	return node, nil
}

// Node returns the attached node with the given node ID.
func (b *Bus) Node(id tlp.NodeID) (*Node, bool) {
	return b.nodes.Load(id)
}

// Nodes returns the attached nodes ordered by node ID.
func (b *Bus) Nodes() []*Node {
	nodes := make([]*Node, 0, b.nodes.Size())
	b.nodes.Range(func(_ tlp.NodeID, n *Node) bool {
		nodes = append(nodes, n)
		return true
	})

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })

	return nodes
}

// Len returns the number of attached nodes.
func (b *Bus) Len() int {
	return b.nodes.Size()
}

// Detach removes the node with the given node ID from the bus.
func (b *Bus) Detach(id tlp.NodeID) bool {
	_, ok := b.nodes.LoadAndDelete(id)
	return ok
}

// Exclusive runs fn with exclusive access to the attached node id.
func (b *Bus) Exclusive(id tlp.NodeID, fn func(*Node) error) error {
	node, ok := b.nodes.Load(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}

	node.mu.Lock()
	defer node.mu.Unlock()

	return fn(node)
}

// Sleep sends the attached node id to the dormant or hibernate state.
func (b *Bus) Sleep(ctx context.Context, id tlp.NodeID, hibernate bool) error {
	return b.Exclusive(id, func(n *Node) error {
		return b.host.GoDormant(ctx, n, hibernate)
	})
}

// Reset fully resets the attached node id and detaches it.
func (b *Bus) Reset(ctx context.Context, id tlp.NodeID) error {
	err := b.Exclusive(id, func(n *Node) error {
		return b.host.FullReset(ctx, n)
	})
	if err != nil {
		return err
	}

	b.nodes.Delete(id)

	return nil
}
