// Package devsim emulates a UHS-II device at the transaction layer.
//
// A Device answers native CCMDs (DEVICE_INIT, ENUMERATE, GO_DORMANT_STATE,
// FULL_RESET, TRANS_ABORT and register access in every address space) as well
// as SD-TRAN CCMDs and DCMDs. It is used as a loop-back transport in tests and
// served over a stream by the uhs2ctl command.
package devsim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/go-uhs2/logger"
	"github.com/arloliu/go-uhs2/tlp"
	"github.com/arloliu/go-uhs2/uhs2"
)

var (
	// ErrNoResponse indicates that the device does not answer the packet:
	// it is dormant, or the packet is addressed at another node.
	ErrNoResponse = errors.New("devsim: no response")

	// ErrUnsupported indicates a packet the device does not implement.
	ErrUnsupported = errors.New("devsim: unsupported packet")
)

// DefaultCardStatus is the status word returned for SD-TRAN and data commands.
const DefaultCardStatus uint32 = 0x00000900

// ContentionFunc decides the DEVICE_INIT outcome of a round. round starts at 1
// and gd is the discriminator sent by the host. It returns whether the device
// sets CF and the gap it reports.
type ContentionFunc func(round int, gd uint8) (cf bool, gap uint8)

// ResolveAfter returns a ContentionFunc that sets CF on round k and reports gap
// on every earlier round.
func ResolveAfter(k int, gap uint8) ContentionFunc {
	return func(round int, _ uint8) (bool, uint8) {
		return round >= k, gap
	}
}

// Option configures a Device.
type Option func(*Device)

// WithNodeID sets the node ID the device reports on ENUMERATE.
func WithNodeID(id tlp.NodeID) Option {
	return func(d *Device) { d.assignID = id & tlp.MaxNodeID }
}

// WithCapabilities sets the lane mode and application type advertised in the
// generic capabilities register.
func WithCapabilities(mode tlp.LaneMode, app uhs2.AppType) Option {
	return func(d *Device) { d.space(tlp.SpaceConfig)[uhs2.RegGenCapL] = uhs2.GenCapPayload(mode, app) }
}

// WithContention sets the DEVICE_INIT behavior. The default sets CF on the first round.
func WithContention(fn ContentionFunc) Option {
	return func(d *Device) { d.contention = fn }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// Device is an emulated UHS-II device. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	assignID   tlp.NodeID
	nodeID     tlp.NodeID
	enumerated bool
	initDone   bool
	rounds     int

	dormant   bool
	hibernate bool

	spaces     map[tlp.Space]*[tlp.SpaceWords]uint32
	contention ContentionFunc
	logger     logger.Logger
	received   int
}

// New creates a Device with node ID 1, 2L-HD SD memory capabilities and
// immediate DEVICE_INIT completion.
func New(opts ...Option) *Device {
	d := &Device{
		assignID:   1,
		spaces:     make(map[tlp.Space]*[tlp.SpaceWords]uint32),
		contention: func(_ int, _ uint8) (bool, uint8) { return true, 0 },
		logger:     logger.GetLogger(),
	}
	d.space(tlp.SpaceConfig)[uhs2.RegGenCapL] = uhs2.GenCapPayload(tlp.Lane2LHD, uhs2.AppSDMemory)

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Submit implements uhs2.Transport as a loop-back link. The request and the
// response both go through the wire codec.
func (d *Device) Submit(ctx context.Context, env *tlp.Envelope) (*tlp.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if env == nil || env.Send == nil {
		return nil, errors.New("devsim: empty envelope")
	}
	if !env.Kind.Valid() {
		return nil, fmt.Errorf("devsim: invalid command kind %s", env.Kind)
	}

	req, err := tlp.ParsePacket(env.Send.Pack())
	if err != nil {
		return nil, err
	}

	rsp, err := d.Handle(req)
	if err != nil {
		return nil, err
	}

	return tlp.ParsePacket(rsp.Pack())
}

// Handle answers one request packet.
func (d *Device) Handle(req *tlp.Packet) (*tlp.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.received++

	if d.dormant {
		return nil, ErrNoResponse
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Type() == tlp.TypeControl && req.Native() {
		return d.handleNative(req)
	}

	if !d.addressed(req) {
		return nil, ErrNoResponse
	}

	switch req.Type() {
	case tlp.TypeControl, tlp.TypeData:
		d.logger.Debug("devsim: command", "packet", req)
		return tlp.EncodeResponse(req, []uint32{DefaultCardStatus})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, req)
	}
}

func (d *Device) handleNative(req *tlp.Packet) (*tlp.Packet, error) {
	if req.Space() == tlp.SpaceCommand {
		switch req.Offset() {
		case uhs2.RegDeviceInit:
			return d.deviceInit(req)
		case uhs2.RegEnumerate:
			return d.enumerate(req)
		}
	}

	if !d.addressed(req) {
		return nil, ErrNoResponse
	}

	if req.Space() == tlp.SpaceCommand {
		return d.command(req)
	}

	regs := d.space(req.Space())
	off := int(req.Offset())
	n := req.PayloadLen()
	if off+n > tlp.SpaceWords {
		return nil, fmt.Errorf("%w: access past the end of space 0x%X", ErrUnsupported, uint8(req.Space()))
	}

	if req.IsWrite() {
		copy(regs[off:off+n], req.Payload)
		return tlp.EncodeResponse(req, nil)
	}

	return tlp.EncodeResponse(req, regs[off:off+n])
}

func (d *Device) deviceInit(req *tlp.Packet) (*tlp.Packet, error) {
	if d.enumerated || d.initDone {
		return nil, ErrNoResponse
	}

	word, ok := req.Word(0)
	if !ok {
		return nil, fmt.Errorf("%w: DEVICE_INIT without payload", ErrUnsupported)
	}

	d.rounds++
	gd := uhs2.DeviceInitGD(word)
	cf, gap := d.contention(d.rounds, gd)
	d.initDone = cf

	d.logger.Debug("devsim: device init", "round", d.rounds, "gd", gd, "gap", gap, "cf", cf)

	return tlp.EncodeResponse(req, []uint32{uhs2.DeviceInitPayload(gd, gap, uhs2.DeviceInitDap(word), cf)})
}

func (d *Device) enumerate(req *tlp.Packet) (*tlp.Packet, error) {
	if d.enumerated || !d.initDone {
		return nil, ErrNoResponse
	}

	d.nodeID = d.assignID
	d.enumerated = true

	d.logger.Debug("devsim: enumerated", "nodeID", d.nodeID)

	return tlp.EncodeResponse(req, []uint32{uhs2.EnumeratePayload(d.nodeID)})
}

func (d *Device) command(req *tlp.Packet) (*tlp.Packet, error) {
	if !req.IsWrite() {
		return nil, fmt.Errorf("%w: command register read", ErrUnsupported)
	}

	word, _ := req.Word(0)

	switch req.Offset() {
	case uhs2.RegGoDormantState:
		d.dormant = true
		d.hibernate = word&uhs2.DormantHibernate != 0
	case uhs2.RegFullReset:
		d.enumerated = false
		d.initDone = false
		d.rounds = 0
		d.nodeID = tlp.UnassignedNode
	case uhs2.RegTransAbort:
	default:
		return nil, fmt.Errorf("%w: command register 0x%02X", ErrUnsupported, req.Offset())
	}

	return tlp.EncodeResponse(req, nil)
}

func (d *Device) addressed(req *tlp.Packet) bool {
	return d.enumerated && req.DestID() == d.nodeID
}

func (d *Device) space(s tlp.Space) *[tlp.SpaceWords]uint32 {
	regs, ok := d.spaces[s]
	if !ok {
		regs = &[tlp.SpaceWords]uint32{}
		d.spaces[s] = regs
	}

	return regs
}

// Wake brings the device out of the dormant state. The wake handshake itself
// is not emulated.
func (d *Device) Wake() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dormant = false
	d.hibernate = false
}

// Dormant reports whether the device is dormant and whether it hibernates.
func (d *Device) Dormant() (dormant, hibernate bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dormant, d.hibernate
}

// NodeID returns the node ID of the device and whether it has been enumerated.
func (d *Device) NodeID() (tlp.NodeID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.nodeID, d.enumerated
}

// Register returns the register at offset of the given address space.
func (d *Device) Register(s tlp.Space, offset uint8) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.space(s)[offset]
}

// Received returns the number of packets handled so far.
func (d *Device) Received() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.received
}
