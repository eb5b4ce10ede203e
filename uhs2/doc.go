// Package uhs2 implements the UHS-II transaction-layer handshakes a host drives
// to bring a device from "unknown, possibly contending with peers" to
// "enumerated, addressable, ready for data transactions or dormant".
//
// # Operations
//
// All operations run on a [Host], which funnels packets built by package tlp
// through a caller-supplied [Transport]:
//
//   - [Host.DeviceInit] resolves contention among devices without a node ID
//     using the DEVICE_INIT discriminator backoff.
//   - [Host.Enumerate] reads back the node ID of the resolved device and
//     records it on the [Node].
//   - [Host.ReadConfig] and [Host.WriteConfig] access the configuration
//     register space.
//   - [Host.GoDormant] requests the dormant (or hibernate) state.
//   - [Host.Command] and [Host.DataCommand] carry legacy and data commands
//     in CCMD and DCMD packets.
//
// Every operation performs at most one outstanding exchange at a time and is
// single-shot, except DeviceInit which retries within its bounded backoff loop.
// Transport errors are returned unchanged. Responses that do not match their
// request are reported as [ErrProtocolViolation].
//
// # Concurrency
//
// A Host holds no per-device state and can be shared. Operations against the
// same device must be serialized by the caller; [Bus] does this with a per-node
// lock for devices it has attached.
package uhs2
