// Package streamlink carries transaction layer packets over a byte stream
// such as a TCP connection or a serial line.
//
// Each packet travels in a frame:
//
//	[Length(1)][Header(2)][Argument(4)][Payload(4n)][Checksum_Hi(1)][Checksum_Lo(1)]
//
// The Length byte counts the header, argument and payload bytes (6 + 4n). The
// checksum is the arithmetic sum of those bytes truncated to 16 bits.
//
// A Link is the host side and implements uhs2.Transport. It sends one frame per
// Submit and waits for the response frame, applying the timeout and retry
// policy selected by the envelope's command kind:
//
//   - tlp.CommandNormal waits for the response timeout and retransmits up to
//     min(Envelope.Retries, RetryLimit) times.
//   - tlp.CommandGoDormant waits for the dormant timeout and is never
//     retransmitted, because a device entering the dormant state may stop
//     responding after the acknowledgement.
//
// Serve is the device side: it reads request frames and writes the frames
// returned by a Handler.
package streamlink
