package credential

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// Engine is what a Credential needs to hash and verify secrets.
type Engine interface {
	Hash(ctx context.Context, plaintext []byte) (string, error)
	Compare(ctx context.Context, encoded string, candidate []byte) bool
}

// Pool bounds how many hash evaluations run at once so that bursts of
// logins cannot starve unrelated work of CPU.
type Pool struct {
	hasher   Hasher
	slots    *semaphore.Weighted
	duration *prometheus.HistogramVec
}

// NewPool wraps hasher with a limit of size concurrent evaluations. A size
// of zero or less uses GOMAXPROCS. When registerer is nil no metrics are
// recorded.
func NewPool(hasher Hasher, size int, registerer prometheus.Registerer) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	p := &Pool{hasher: hasher, slots: semaphore.NewWeighted(int64(size))}
	if registerer != nil {
		p.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lumen_credential_hash_duration_seconds",
			Help:    "Duration of credential hash and compare operations.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"})
		registerer.MustRegister(p.duration)
	}
	return p
}

// Hash waits for a free slot and hashes plaintext.
func (p *Pool) Hash(ctx context.Context, plaintext []byte) (string, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.slots.Release(1)

	defer p.observe("hash", time.Now())
	return p.hasher.Hash(plaintext)
}

// Compare waits for a free slot and verifies candidate against encoded.
// A cancelled wait counts as a mismatch.
func (p *Pool) Compare(ctx context.Context, encoded string, candidate []byte) bool {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer p.slots.Release(1)

	defer p.observe("compare", time.Now())
	return p.hasher.Compare(encoded, candidate)
}

// Hasher exposes the underlying hasher.
func (p *Pool) Hasher() Hasher {
	return p.hasher
}

func (p *Pool) observe(op string, start time.Time) {
	if p.duration == nil {
		return
	}
	p.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

var _ Engine = (*Pool)(nil)
