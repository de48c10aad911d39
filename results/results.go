package results

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/rectopt/errors"
)

// Status represents the state of a run.
type Status string

const (
	// StatusRunning indicates the run has started.
	StatusRunning Status = "running"

	// StatusSucceeded indicates the run produced a minimum.
	StatusSucceeded Status = "succeeded"

	// StatusFailed indicates the run failed.
	StatusFailed Status = "failed"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Result describes one run.
type Result struct {
	RunID     string            `json:"run_id"`
	Status    Status            `json:"status"`
	Mode      string            `json:"mode"`
	Objective string            `json:"objective,omitempty"`
	Minimum   float64           `json:"minimum"`
	Rounds    int               `json:"rounds"`
	Workers   int               `json:"workers"`
	PoolSize  int               `json:"pool_size"`
	Error     *errors.Error     `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Clone returns a deep copy of the result. Errors are immutable and shared.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}

	clone := *r
	if r.Metadata != nil {
		clone.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Validate checks that r can be published.
func (r Result) Validate() error {
	if r.RunID == "" {
		return errors.InvalidInput("result has no run ID")
	}
	if !r.Status.Valid() {
		return errors.InvalidInput("invalid result status " + string(r.Status))
	}
	if math.IsNaN(r.Minimum) || math.IsInf(r.Minimum, 0) {
		return errors.InvalidInput("result minimum must be finite")
	}
	return nil
}

// Filter specifies criteria for listing results.
type Filter struct {
	// Status filters by status. Empty means all.
	Status Status

	// Mode filters by run mode. Empty means all.
	Mode string

	// Limit caps the number of results returned. 0 means no limit.
	Limit int

	// Metadata filters by metadata key-value pairs (all must match).
	Metadata map[string]string
}

// Matches returns true if the result matches the filter criteria.
func (f Filter) Matches(r *Result) bool {
	if r == nil {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Mode != "" && r.Mode != f.Mode {
		return false
	}
	for k, v := range f.Metadata {
		if r.Metadata[k] != v {
			return false
		}
	}
	return true
}

// Publisher stores run results and notifies subscribers.
type Publisher interface {
	// Publish stores or updates the result for r.RunID.
	Publish(ctx context.Context, r Result) error

	// Get retrieves a result by run ID. Returns NOT_FOUND if unknown.
	Get(ctx context.Context, runID string) (*Result, error)

	// List returns matching results, oldest first.
	List(filter Filter) ([]*Result, error)

	// Subscribe delivers every update for runID. If a result already
	// exists it is delivered first. The channel closes after a terminal
	// result or on Cancel.
	Subscribe(runID string) (Subscription, error)

	// Close shuts down the publisher and ends every subscription.
	Close() error
}

// Subscription represents an active result subscription.
type Subscription interface {
	// Results returns the channel for incoming result updates.
	Results() <-chan *Result

	// Cancel ends the subscription.
	Cancel() error
}

func errClosed() error {
	return errors.New(errors.ErrCodeUnavailable, "publisher closed")
}

// store is the run table shared by both publishers.
type store struct {
	mu      sync.RWMutex
	results map[string]*Result
	closed  bool
}

func newStore() *store {
	return &store{results: make(map[string]*Result)}
}

// put stamps and stores r, keeping the original creation time.
func (s *store) put(r Result) (*Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed()
	}

	now := time.Now()
	r.CreatedAt = now
	if existing, ok := s.results[r.RunID]; ok {
		r.CreatedAt = existing.CreatedAt
	}
	r.UpdatedAt = now

	stored := r.Clone()
	s.results[r.RunID] = stored
	return stored.Clone(), nil
}

// cache records a result received from elsewhere without restamping it.
func (s *store) cache(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.results[r.RunID] = r.Clone()
	}
}

func (s *store) get(runID string) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}
	r, ok := s.results[runID]
	if !ok {
		return nil, errors.NotFound("no result for run " + runID)
	}
	return r.Clone(), nil
}

func (s *store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// peek returns the stored result or nil.
func (s *store) peek(runID string) *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results[runID].Clone()
}

func (s *store) list(filter Filter) ([]*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	var out []*Result
	for _, r := range s.results {
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// close marks the store closed. It reports false if already closed.
func (s *store) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.results = nil
	return true
}

// resultSub is a buffered subscription channel that is safe to close from
// several goroutines.
type resultSub struct {
	runID  string
	mu     sync.Mutex
	ch     chan *Result
	closed bool

	// onCancel detaches the subscription from its publisher.
	onCancel func()
}

func newResultSub(runID string, buffer int) *resultSub {
	return &resultSub{runID: runID, ch: make(chan *Result, buffer)}
}

// send queues r without blocking. Updates beyond the buffer are dropped;
// a terminal result closes the channel after queueing.
func (s *resultSub) send(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
	}
	if r.Status.IsTerminal() {
		s.closed = true
		close(s.ch)
	}
}

func (s *resultSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *resultSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Results returns the subscription channel.
func (s *resultSub) Results() <-chan *Result {
	return s.ch
}

// Cancel ends the subscription.
func (s *resultSub) Cancel() error {
	if s.onCancel != nil {
		s.onCancel()
	}
	s.close()
	return nil
}
