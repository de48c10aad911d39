// Package collective implements lockstep collective calls (broadcast,
// allgather, barrier) for a fixed set of ranks over a bus.MessageBus.
//
// # Model
//
// A run has Size ranks numbered 0..Size-1. Every rank must issue the same
// sequence of collective calls; each call is numbered locally and the number
// travels with every contribution, so a rank that skips or reorders a call
// is detected as a COORDINATION error instead of silently mixing rounds.
// A call blocks until every contribution it needs has arrived. There is no
// retry: a failed call aborts the run.
//
// All traffic for one communicator set travels on "<subject>.coll". Each
// contribution is a JSON envelope {seq, rank, op, data}; contributions for a
// later call that arrive early are held back until that call is issued.
//
// # In-process groups
//
//	g, _ := collective.NewLocalGroup(4, collective.Config{})
//	defer g.Close()
//	err := collective.Run(ctx, g.Comms(), func(ctx context.Context, c collective.Communicator) error {
//	    data, err := c.Broadcast(ctx, 0, payload)
//	    ...
//	})
//
// # Multi-process runs
//
// Each process connects its own bus and calls Dial with its rank. Dial
// subscribes first and then runs a join handshake: non-root ranks announce
// themselves on "<subject>.join" until rank 0 has heard every peer and
// publishes "<subject>.start". No collective traffic flows before that, so
// no rank can miss a contribution published before it subscribed.
package collective
