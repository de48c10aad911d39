package collective

import (
	"context"
	"time"

	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/logging"
)

// Communicator is one rank's handle on a fixed group of ranks.
type Communicator interface {
	// Rank returns this communicator's rank in [0, Size).
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Broadcast returns root's data on every rank. Non-root ranks pass nil.
	Broadcast(ctx context.Context, root int, data []byte) ([]byte, error)

	// Allgather returns every rank's data ordered by rank.
	Allgather(ctx context.Context, data []byte) ([][]byte, error)

	// Barrier returns once every rank has entered it.
	Barrier(ctx context.Context) error

	// Close releases the communicator's subscriptions.
	Close() error
}

// Op names a collective call on the wire.
type Op string

const (
	OpBroadcast Op = "bcast"
	OpAllgather Op = "allgather"
	OpBarrier   Op = "barrier"
)

// Config configures a communicator.
type Config struct {
	// Subject prefix for all traffic of this group.
	// Default: "collective"
	Subject string

	// Rank of this communicator. Ignored by group constructors.
	Rank int

	// Size of the group. Ignored by group constructors.
	Size int

	// PeerTimeout bounds each collective call. Zero waits forever.
	PeerTimeout time.Duration

	// JoinInterval is how often non-root ranks re-announce during Dial.
	// Default: 100ms
	JoinInterval time.Duration

	// Logger for collective failures. Default: discard.
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Subject:      "collective",
		Size:         1,
		JoinInterval: 100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Subject == "" {
		c.Subject = d.Subject
	}
	if c.JoinInterval <= 0 {
		c.JoinInterval = d.JoinInterval
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
	return c
}

// Validate checks rank and size.
func (c Config) Validate() error {
	if c.Size < 1 {
		return errors.InvalidInput("group size must be at least 1")
	}
	if c.Rank < 0 || c.Rank >= c.Size {
		return errors.Newf(errors.ErrCodeInvalidInput, "rank %d outside group of %d", c.Rank, c.Size)
	}
	if c.PeerTimeout < 0 {
		return errors.InvalidInput("peer timeout must not be negative")
	}
	return nil
}

func (c Config) collSubject() string  { return c.Subject + ".coll" }
func (c Config) joinSubject() string  { return c.Subject + ".join" }
func (c Config) startSubject() string { return c.Subject + ".start" }
