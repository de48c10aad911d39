// Package bus provides the message transport underneath collective calls.
//
// # Overview
//
// The MessageBus interface is a minimal pub/sub contract: every subscriber of
// a subject receives every message published to it, in publish order per
// publisher. Delivery is lossless. When a subscriber's buffer is full,
// Publish blocks until the subscriber drains it, the subscription ends, or
// the publish context is done.
//
// # Available Implementations
//
//   - MemoryBus: channels in one process; every rank runs as a goroutine
//   - NATSBus: one OS process per rank connected through a NATS server
//
// # Usage
//
//	mb := bus.NewMemoryBus(bus.DefaultConfig())
//	defer mb.Close()
//
//	sub, _ := mb.Subscribe("rectopt.bcast")
//	_ = mb.Publish(ctx, "rectopt.bcast", payload)
//	msg := <-sub.Messages()
//
// Message payloads are shared between subscribers and must be treated as
// read-only.
package bus
