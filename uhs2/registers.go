package uhs2

import (
	"github.com/arloliu/go-uhs2/internal/util"
	"github.com/arloliu/go-uhs2/tlp"
)

// Command register offsets in the command address space.
const (
	RegFullReset      uint8 = 0x00
	RegGoDormantState uint8 = 0x01
	RegDeviceInit     uint8 = 0x02
	RegEnumerate      uint8 = 0x03
	RegTransAbort     uint8 = 0x04
)

// Configuration register offsets (double words) in the configuration address space.
const (
	RegGenCapL  uint8 = 0x00
	RegGenCapH  uint8 = 0x01
	RegPhyCapL  uint8 = 0x02
	RegPhyCapH  uint8 = 0x03
	RegLinkCapL uint8 = 0x04
	RegLinkCapH uint8 = 0x05
	RegGenSetL  uint8 = 0x08
	RegGenSetH  uint8 = 0x09
	RegPhySetL  uint8 = 0x0A
	RegPhySetH  uint8 = 0x0B
	RegLinkSetL uint8 = 0x0C
	RegLinkSetH uint8 = 0x0D
)

// DEVICE_INIT payload fields.
const (
	DeviceInitCF uint32 = 0x80000 // completion flag

	gdShift  = 28
	gdMask   = uint32(0x0F) << gdShift
	gapShift = 24
	gapMask  = uint32(0x0F) << gapShift
	dapShift = 20
	dapMask  = uint32(0x0F) << dapShift

	// MaxDiscriminator is the largest discriminator value; it wraps to 0.
	MaxDiscriminator uint8 = 0x0F
)

// ENUMERATE response field holding the node ID.
const (
	idlShift = 24
	idlMask  = uint32(0x0F) << idlShift
)

// GO_DORMANT_STATE payload flag requesting hibernate.
const DormantHibernate uint32 = 0x80000000

// Generic capabilities register fields.
const (
	laneModeShift = 8
	laneModeMask  = uint32(0x3F) << laneModeShift
	appTypeMask   = uint32(0x07)
)

// Generic settings register fields.
const (
	GenSetConfigComplete uint32 = 0x80000000 // high word
	GenSetLowPowerMode   uint32 = 0x01       // low word
)

// AppType is the application type advertised in the generic capabilities register.
type AppType uint8

const (
	AppSDMemory AppType = 0x01
	AppSDIO     AppType = 0x02
	AppEmbedded AppType = 0x04
)

// DeviceInitPayload packs a DEVICE_INIT payload word.
func DeviceInitPayload(gd, gap, dap uint8, cf bool) uint32 {
	v := util.PutField(0, gdMask, gdShift, uint32(gd))
	v = util.PutField(v, gapMask, gapShift, uint32(gap))
	v = util.PutField(v, dapMask, dapShift, uint32(dap))
	if cf {
		v |= DeviceInitCF
	}

	return v
}

// DeviceInitGD returns the discriminator of a DEVICE_INIT payload.
func DeviceInitGD(v uint32) uint8 {
	return uint8(util.Field(v, gdMask, gdShift))
}

// DeviceInitGap returns the gap of a DEVICE_INIT payload.
func DeviceInitGap(v uint32) uint8 {
	return uint8(util.Field(v, gapMask, gapShift))
}

// DeviceInitDap returns the dap of a DEVICE_INIT payload.
func DeviceInitDap(v uint32) uint8 {
	return uint8(util.Field(v, dapMask, dapShift))
}

// EnumeratePayload packs a node ID into an ENUMERATE response word.
func EnumeratePayload(id tlp.NodeID) uint32 {
	return util.PutField(0, idlMask, idlShift, uint32(id))
}

// EnumerateNodeID extracts the node ID from an ENUMERATE response word.
func EnumerateNodeID(v uint32) tlp.NodeID {
	return tlp.NodeID(util.Field(v, idlMask, idlShift))
}

// GenCapPayload packs the low word of the generic capabilities register.
func GenCapPayload(mode tlp.LaneMode, app AppType) uint32 {
	return util.PutField(0, laneModeMask, laneModeShift, uint32(mode)) | uint32(app)&appTypeMask
}

// Capabilities is the decoded generic capabilities register.
type Capabilities struct {
	LaneMode tlp.LaneMode
	AppType  AppType
	Raw      [2]uint32
}

func decodeCapabilities(words []uint32) Capabilities {
	caps := Capabilities{
		LaneMode: tlp.LaneMode(util.Field(words[0], laneModeMask, laneModeShift)),
		AppType:  AppType(words[0] & appTypeMask),
	}
	copy(caps.Raw[:], words)

	return caps
}
