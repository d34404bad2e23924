package touch

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Mock is a Sampler for development without touch hardware. Queued
// samples are returned first; after that it reports a random press every
// Every calls, or nothing when Every is 0.
type Mock struct {
	mu    sync.Mutex
	queue []Sample
	rnd   *rand.Rand
	calls int

	W, H  int
	Every int
}

// NewMock returns a mock reporting in a w×h pixel space.
func NewMock(w, h int) *Mock {
	return &Mock{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		W:   w,
		H:   h,
	}
}

// Push queues samples.
func (m *Mock) Push(s ...Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, s...)
}

func (m *Mock) Sample(_ context.Context) (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		s := m.queue[0]
		m.queue = m.queue[1:]
		return s, nil
	}
	m.calls++
	if m.Every <= 0 || m.calls%m.Every != 0 || m.W <= 0 || m.H <= 0 {
		return Sample{}, nil
	}
	return Sample{X: m.rnd.Intn(m.W), Y: m.rnd.Intn(m.H), Z: 1000, Pressed: true}, nil
}
