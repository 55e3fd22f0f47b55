package maintenance

import (
	"sync"
	"testing"
	"time"

	"fqsim/internal/persistence"
)

type recordingPersister struct {
	mu      sync.Mutex
	batches [][]persistence.BucketSnapshot
}

func (r *recordingPersister) CommitBatch(snapshots []persistence.BucketSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, snapshots)
	return nil
}

func (r *recordingPersister) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestWorkerSnapshotsPeriodically(t *testing.T) {
	p := &recordingPersister{}
	src := BucketSource{
		Discipline: "sfq",
		Collect: func() []persistence.BucketSnapshot {
			return []persistence.BucketSnapshot{{Discipline: "sfq", Bucket: 1, BacklogBytes: 42}}
		},
		Prune: func() int { return 0 },
	}
	w := NewWorker([]BucketSource{src}, p, 10*time.Millisecond, time.Hour)
	w.Start()
	time.Sleep(35 * time.Millisecond)
	w.Stop()

	if p.count() < 2 {
		t.Fatalf("expected at least 2 snapshot batches committed, got %d", p.count())
	}
}

func TestWorkerPrunesPeriodically(t *testing.T) {
	pruned := make(chan int, 10)
	src := BucketSource{
		Discipline: "fqcodel",
		Collect:    func() []persistence.BucketSnapshot { return nil },
		Prune: func() int {
			pruned <- 1
			return 1
		},
	}
	w := NewWorker([]BucketSource{src}, &recordingPersister{}, time.Hour, 10*time.Millisecond)
	w.Start()
	time.Sleep(25 * time.Millisecond)
	w.Stop()

	select {
	case <-pruned:
	default:
		t.Fatal("expected Prune to have been called at least once")
	}
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	w := NewWorker(nil, &recordingPersister{}, time.Hour, time.Hour)
	w.Start()
	w.Stop()
	w.Stop()
}
