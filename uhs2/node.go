package uhs2

import (
	"sync"

	"github.com/arloliu/go-uhs2/tlp"
)

// Node is the host-side record of one device.
//
// The node ID is valid only after a successful enumeration. The lane mode is
// learned from the capabilities register and consulted when encoding
// multi-block data commands.
//
// Node is not goroutine-safe: operations against one device must be serialized.
type Node struct {
	mu sync.Mutex // held by Bus.Exclusive

	id         tlp.NodeID
	enumerated bool
	laneMode   tlp.LaneMode
	caps       Capabilities
	hasCaps    bool
}

// NewNode creates a record for a device that has not been enumerated yet.
func NewNode() *Node {
	return &Node{}
}

// NewEnumeratedNode creates a record for a device whose node ID is already known,
// for example one restored after the host was restarted.
func NewEnumeratedNode(id tlp.NodeID, laneMode tlp.LaneMode) *Node {
	return &Node{id: id & tlp.MaxNodeID, enumerated: true, laneMode: laneMode}
}

// ID returns the node ID and whether the node has been enumerated.
func (n *Node) ID() (tlp.NodeID, bool) {
	return n.id, n.enumerated
}

// Enumerated reports whether the node has a node ID.
func (n *Node) Enumerated() bool {
	return n.enumerated
}

// LaneMode returns the lane capability bits of the device.
func (n *Node) LaneMode() tlp.LaneMode {
	return n.laneMode
}

// SetLaneMode records the lane capability bits of the device.
func (n *Node) SetLaneMode(mode tlp.LaneMode) {
	n.laneMode = mode
}

// Capabilities returns the capabilities last read from the device and whether
// they have been read.
func (n *Node) Capabilities() (Capabilities, bool) {
	return n.caps, n.hasCaps
}

func (n *Node) setCapabilities(caps Capabilities) {
	n.caps = caps
	n.hasCaps = true
	n.laneMode = caps.LaneMode
}

func (n *Node) assign(id tlp.NodeID) {
	n.id = id
	n.enumerated = true
}

func (n *Node) reset() {
	n.id = tlp.UnassignedNode
	n.enumerated = false
}

func (n *Node) dest() (tlp.NodeID, error) {
	if !n.enumerated {
		return 0, ErrNotEnumerated
	}

	return n.id, nil
}
