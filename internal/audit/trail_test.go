package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]Event
}

func (s *memStorage) WriteBatch(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Event, len(events))
	copy(cp, events)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *memStorage) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestTrailFlushesOnBatchSize(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, zap.NewNop(), Options{
		BufferSize:    100,
		BatchSize:     3,
		FlushInterval: time.Hour, // таймер не должен сработать в тесте
	})
	trail.Start()

	for i := 0; i < 3; i++ {
		trail.Log(Event{OperatorID: "op-1", Entity: "level", Op: "create"})
	}

	require.Eventually(t, func() bool { return store.total() == 3 },
		2*time.Second, 10*time.Millisecond)
	trail.Stop()
}

func TestTrailDrainsOnStop(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, zap.NewNop(), Options{
		BufferSize:    100,
		BatchSize:     50,
		FlushInterval: time.Hour,
	})
	trail.Start()

	for i := 0; i < 7; i++ {
		trail.Log(Event{Entity: "approver_group", Op: "update"})
	}
	trail.Stop() // Final Flush обязан дописать все 7

	assert.Equal(t, 7, store.total())
}

func TestTrailDropsAfterStop(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, zap.NewNop(), Options{BufferSize: 10, BatchSize: 5, FlushInterval: time.Hour})
	trail.Start()
	trail.Stop()

	// Не должно паниковать и не должно ничего записать
	trail.Log(Event{Entity: "document", Op: "create"})
	assert.Equal(t, 0, store.total())
}

type fakeGauge struct {
	mu   sync.Mutex
	last float64
	sets int
}

func (g *fakeGauge) Set(v float64) {
	g.mu.Lock()
	g.last = v
	g.sets++
	g.mu.Unlock()
}

func (g *fakeGauge) snapshot() (float64, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.sets
}

func TestTrailReportsBufferFill(t *testing.T) {
	store := &memStorage{}
	gauge := &fakeGauge{}
	trail := NewTrail(store, zap.NewNop(), Options{
		BufferSize:    100,
		BatchSize:     2,
		FlushInterval: time.Hour,
		BufferGauge:   gauge,
	})
	trail.Start()

	trail.Log(Event{Entity: "document", Op: "create"})
	trail.Log(Event{Entity: "document", Op: "update"})

	// Воркер вычитал оба события — датчик вернулся к пустому буферу
	require.Eventually(t, func() bool { return store.total() == 2 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		last, sets := gauge.snapshot()
		return sets >= 2 && last == 0
	}, 2*time.Second, 10*time.Millisecond)
	trail.Stop()
}

func TestTrailStampsTimestamp(t *testing.T) {
	store := &memStorage{}
	trail := NewTrail(store, zap.NewNop(), Options{BufferSize: 10, BatchSize: 1, FlushInterval: time.Hour})
	trail.Start()

	trail.Log(Event{Entity: "level", Op: "delete"})
	require.Eventually(t, func() bool { return store.total() == 1 },
		2*time.Second, 10*time.Millisecond)
	trail.Stop()

	assert.False(t, store.batches[0][0].Timestamp.IsZero())
}
