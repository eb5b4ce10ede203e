// Package tlp implements the UHS-II transaction layer packet (TLP) model.
//
// A TLP is the unit exchanged between a host and an addressed device over the
// point-to-point serial link. It consists of a 16-bit header, a 32-bit argument
// and up to 31 32-bit payload words:
//
//	Header   [15:14] TYP  [13] NP  [7] NATIVE  [3:0] DID
//	Argument [31] DIR  [30:26] PLEN  [25:24] TMODE  [23] APP  [11:0] IOADR / [5:0] CMD index
//
// Two request kinds are produced by this package:
//
//   - CCMD (control command): native CCMDs address the IOADR space (configuration,
//     interrupt/status, command and vendor registers). SD-TRAN CCMDs carry a legacy
//     command index and a single argument word.
//   - DCMD (data command): a command index, argument word and transfer length word,
//     with the transfer mode derived from the device lane mode.
//
// # Payload length
//
// The PLEN field always equals the number of payload words carried by the packet,
// with one exception: for a native read CCMD, PLEN is the number of words requested
// from the device and the request itself carries no payload. [Packet.WireWords]
// reports the effective count and [ParsePacket] never reads beyond it.
//
// # Envelope
//
// An [Envelope] pairs an outgoing packet with a [CommandKind] tag and a retry budget.
// It is built per exchange and handed to a transport exactly once per attempt.
package tlp
