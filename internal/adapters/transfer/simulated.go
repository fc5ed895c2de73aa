package transfer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/metrics"
)

const (
	defaultMinLatency = 80 * time.Millisecond
	defaultMaxLatency = 150 * time.Millisecond
	defaultRandomSeed = 42
)

// Simulated confirms every transfer after a random latency. It stands in for
// the signer in development and tests.
type Simulated struct {
	minLatency time.Duration
	maxLatency time.Duration
	failAfter  int

	mu    sync.Mutex
	rng   *rand.Rand
	calls int
}

// NewSimulated creates a simulated transfer client.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		failAfter:  -1,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic latency
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transfer waits for the simulated confirmation and returns a random reference.
func (s *Simulated) Transfer(ctx context.Context, to string, amount int64) (string, error) {
	if err := validate(to, amount); err != nil {
		return "", err
	}
	latency, fail := s.next()
	start := time.Now()
	select {
	case <-ctx.Done():
		metrics.RecordTransferFailure(ModeSimulated)
		return "", unconfirmed(ctx.Err())
	case <-time.After(latency):
	}
	metrics.RecordTransferLatency(ModeSimulated, float64(time.Since(start).Milliseconds()))
	if fail {
		metrics.RecordTransferFailure(ModeSimulated)
		return "", fmt.Errorf("%w: simulated rejection", model.ErrTransferFailed)
	}
	return "sim-" + uuid.NewString(), nil
}

// Calls returns how many transfers were attempted.
func (s *Simulated) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Simulated) next() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	latency := s.minLatency
	if s.maxLatency > s.minLatency {
		latency += time.Duration(s.rng.Int63n(int64(s.maxLatency - s.minLatency)))
	}
	return latency, s.failAfter >= 0 && s.calls > s.failAfter
}
