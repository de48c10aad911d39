// Package optimize searches a rectangular domain for the minimum of a
// two-argument function by repeated quadrant subdivision.
//
// The pool starts as one region spanning the domain. Each round every
// region is scored as Penalty*diagonal - f(center), the first region
// with the strictly greatest score is removed, and its four quadrants are
// appended. After the last round the answer is the smallest f over all
// region centers. After k rounds the pool holds 1+3k regions.
//
// # Sequential and distributed runs
//
// Minimize is the single-process reference. Engine runs the same search
// across the ranks of a collective.Communicator: each round rank 0
// broadcasts its pool, every rank scores a contiguous block of it (see
// Plan), and an allgather of local candidates picks the global winner.
// Ties go to the lowest pool index, so both paths split the same regions
// and agree on the result.
//
//	out, err := optimize.MinimizeLocal(ctx, 4, optimize.DefaultOptions(), collective.Config{})
//
// # Wire format
//
// Pool sizes are 8 little-endian bytes. Regions are four little-endian
// float64 (lowX, highX, lowY, highY); score caches are never sent.
// Candidates are the score's float64 bits followed by an int64 index.
//
// # Lifecycle
//
// SequentialTask and DistributedTask wrap the engines in tasks.Task so a
// harness can drive them through Validate, Prepare, Execute and Finalize.
package optimize
