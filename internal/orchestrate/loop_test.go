// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/curator/internal/classify"
	"github.com/tomtom215/curator/internal/inference"
	"github.com/tomtom215/curator/internal/logging"
	"github.com/tomtom215/curator/internal/modelproxy"
	"github.com/tomtom215/curator/internal/store"
	"github.com/tomtom215/curator/internal/strategy"
)

// fakeData is an in-memory corpus with a mutable label set.
type fakeData struct {
	items  []classify.Item
	labels map[string]bool
}

func newFakeData(n, labeled int) *fakeData {
	d := &fakeData{labels: make(map[string]bool)}
	for i := 0; i < n; i++ {
		d.items = append(d.items, classify.Item{
			ID:   fmt.Sprintf("doc-%03d", i),
			Text: fmt.Sprintf("document number %d", i),
		})
	}
	for i := 0; i < labeled && i < n; i++ {
		d.labels[d.items[i].ID] = i%2 == 0
	}
	return d
}

func (d *fakeData) SampleUnlabeled(_ context.Context, _, _, _ string, maxCount int) ([]classify.Item, error) {
	out := make([]classify.Item, 0, maxCount)
	for _, it := range d.items {
		if _, ok := d.labels[it.ID]; ok {
			continue
		}
		out = append(out, it)
		if len(out) == maxCount {
			break
		}
	}
	return out, nil
}

func (d *fakeData) SampleLabeled(_ context.Context, _, _, _ string, maxCount int) ([]classify.LabeledItem, error) {
	out := make([]classify.LabeledItem, 0, maxCount)
	for _, it := range d.items {
		label, ok := d.labels[it.ID]
		if !ok {
			continue
		}
		out = append(out, classify.LabeledItem{Item: it, Label: label})
		if len(out) == maxCount {
			break
		}
	}
	return out, nil
}

func (d *fakeData) LabelCounts(context.Context, string, string, string) (classify.LabelCounts, error) {
	var counts classify.LabelCounts
	for _, label := range d.labels {
		if label {
			counts.Positive++
		} else {
			counts.Negative++
		}
	}
	return counts, nil
}

var _ classify.DataAccess = (*fakeData)(nil)

type fixture struct {
	store   *store.Store
	data    *fakeData
	backend *modelproxy.MemoryBackend
	cache   *inference.Cache
	trigger *Trigger
	loop    *Loop
}

func newFixture(t *testing.T, trainDelay time.Duration, loopCfg LoopConfig) *fixture {
	t.Helper()

	st, err := store.Open(t.TempDir(), logging.Logger())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("badger.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backend := modelproxy.NewMemoryBackend(trainDelay)
	cache := inference.New(backend, db, 10000, logging.Logger())
	data := newFakeData(40, 10)

	trigger := NewTrigger(st, data, cache, TriggerConfig{MinPositive: 2, MinChanges: 2}, logging.Logger())
	loop := NewLoop(st, data, cache, &strategy.HardMining{}, loopCfg, logging.Logger())

	return &fixture{store: st, data: data, backend: backend, cache: cache, trigger: trigger, loop: loop}
}

func setupCategory(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	if err := f.store.CreateWorkspace(ctx, "ws", "corpus"); err != nil {
		t.Fatalf("CreateWorkspace() error = %v", err)
	}
	if err := f.store.AddCategory(ctx, "ws", "urgent", "urgent messages"); err != nil {
		t.Fatalf("AddCategory() error = %v", err)
	}
}

func TestLoopEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, LoopConfig{BatchSize: 5})
	setupCategory(t, f)

	modelID, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true)
	if err != nil {
		t.Fatalf("MaybeStartTraining() error = %v", err)
	}
	if modelID == "" {
		t.Fatal("MaybeStartTraining() returned no-op, want a model id")
	}

	cat, err := f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if got := cat.Iterations[0].Status; got != classify.IterationTraining {
		t.Fatalf("iteration status = %s, want TRAINING", got)
	}

	f.loop.Cycle(ctx)

	cat, err = f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	iter := cat.Iterations[0]
	if iter.Status != classify.IterationReady {
		t.Fatalf("iteration status = %s, want READY after one cycle", iter.Status)
	}
	if iter.Model.Status != classify.ModelReady {
		t.Errorf("model status = %s, want READY", iter.Model.Status)
	}
	if len(iter.Recommendations) != 5 {
		t.Errorf("got %d recommendations, want 5", len(iter.Recommendations))
	}
	if _, ok := iter.Statistics["positive_fraction"]; !ok {
		t.Errorf("statistics missing positive_fraction: %v", iter.Statistics)
	}
	if _, ok := iter.Statistics["corpus_size"]; !ok {
		t.Errorf("statistics missing corpus_size: %v", iter.Statistics)
	}

	recs, err := f.store.CurrentRecommendations(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("CurrentRecommendations() error = %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("CurrentRecommendations() returned %d, want 5", len(recs))
	}

	// Recommended items come from the unlabeled pool.
	unlabeled, _ := f.data.SampleUnlabeled(ctx, "ws", "corpus", "urgent", 1000)
	pool := make(map[string]bool, len(unlabeled))
	for _, it := range unlabeled {
		pool[it.ID] = true
	}
	for _, id := range recs {
		if !pool[id] {
			t.Errorf("recommendation %q is not an unlabeled item", id)
		}
	}
}

func TestLoopIdempotentOnReRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, LoopConfig{BatchSize: 3})
	setupCategory(t, f)

	if _, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true); err != nil {
		t.Fatalf("MaybeStartTraining() error = %v", err)
	}
	f.loop.Cycle(ctx)

	before, err := f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}

	f.loop.Cycle(ctx)
	f.loop.Cycle(ctx)

	after, err := f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if len(after.Iterations) != len(before.Iterations) {
		t.Fatalf("re-running cycles changed iteration count: %d -> %d", len(before.Iterations), len(after.Iterations))
	}
	if after.Iterations[0].Status != before.Iterations[0].Status {
		t.Errorf("re-running cycles changed status: %s -> %s", before.Iterations[0].Status, after.Iterations[0].Status)
	}
}

func TestLoopFlipFractionAgainstPreviousModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, LoopConfig{BatchSize: 3, RetainReady: 5})
	setupCategory(t, f)

	for round := 0; round < 2; round++ {
		if _, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true); err != nil {
			t.Fatalf("round %d MaybeStartTraining() error = %v", round, err)
		}
		f.loop.Cycle(ctx)
	}

	cat, err := f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if len(cat.Iterations) != 2 {
		t.Fatalf("got %d iterations, want 2", len(cat.Iterations))
	}
	if _, ok := cat.Iterations[0].Statistics["flip_fraction"]; ok {
		t.Error("first iteration has flip_fraction but no predecessor exists")
	}
	if _, ok := cat.Iterations[1].Statistics["flip_fraction"]; !ok {
		t.Errorf("second iteration missing flip_fraction: %v", cat.Iterations[1].Statistics)
	}
}

func TestRetentionKeepsNewestReady(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, LoopConfig{BatchSize: 3, RetainReady: 1})
	setupCategory(t, f)

	for round := 0; round < 3; round++ {
		if _, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true); err != nil {
			t.Fatalf("round %d MaybeStartTraining() error = %v", round, err)
		}
		f.loop.Cycle(ctx)
	}

	cat, err := f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if len(cat.Iterations) != 3 {
		t.Fatalf("got %d iterations, want 3 (history is append-only)", len(cat.Iterations))
	}

	ready, deleted := 0, 0
	for i, iter := range cat.Iterations {
		switch iter.Status {
		case classify.IterationReady:
			ready++
			if i != 2 {
				t.Errorf("iteration %d is READY, want only the newest", i)
			}
		case classify.IterationModelDeleted:
			deleted++
			if iter.Model.Status != classify.ModelDeleted {
				t.Errorf("iteration %d status MODEL_DELETED but model status %s", i, iter.Model.Status)
			}
			if _, err := f.backend.GetStatus(ctx, iter.Model.ID); !errors.Is(err, classify.ErrNotFound) {
				t.Errorf("iteration %d model still exists in backend", i)
			}
		default:
			t.Errorf("iteration %d in unexpected status %s", i, iter.Status)
		}
	}
	if ready != 1 || deleted != 2 {
		t.Fatalf("ready=%d deleted=%d, want 1 READY and 2 MODEL_DELETED", ready, deleted)
	}
}

func TestTriggerNoOverlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour, LoopConfig{})
	setupCategory(t, f)

	first, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true)
	if err != nil {
		t.Fatalf("MaybeStartTraining() error = %v", err)
	}
	if first == "" {
		t.Fatal("first MaybeStartTraining() returned no-op")
	}

	second, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true)
	if err != nil {
		t.Fatalf("second MaybeStartTraining() error = %v", err)
	}
	if second != "" {
		t.Fatalf("second MaybeStartTraining() = %q, want no-op while a model is training", second)
	}
}

// slowTrainBackend stretches Train so concurrent callers overlap inside it.
type slowTrainBackend struct {
	*modelproxy.MemoryBackend
	delay time.Duration
}

func (b *slowTrainBackend) Train(ctx context.Context, set []classify.LabeledItem, params classify.TrainParams) (string, error) {
	time.Sleep(b.delay)
	return b.MemoryBackend.Train(ctx, set, params)
}

func TestTriggerConcurrentCallsStartOneRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Hour, LoopConfig{})
	setupCategory(t, f)

	backend := &slowTrainBackend{MemoryBackend: f.backend, delay: 50 * time.Millisecond}
	trigger := NewTrigger(f.store, f.data, backend, TriggerConfig{}, logging.Logger())

	const callers = 4
	var wg sync.WaitGroup
	started := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := trigger.MaybeStartTraining(ctx, "ws", "urgent", true)
			if err != nil {
				t.Errorf("MaybeStartTraining() error = %v", err)
				return
			}
			if id != "" {
				started <- id
			}
		}()
	}
	wg.Wait()
	close(started)

	var ids []string
	for id := range started {
		ids = append(ids, id)
	}
	if len(ids) != 1 {
		t.Fatalf("%d concurrent calls started %d rounds, want exactly 1", callers, len(ids))
	}

	cat, err := f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if len(cat.Iterations) != 1 {
		t.Fatalf("got %d iterations, want 1", len(cat.Iterations))
	}
	if cat.Iterations[0].Model.ID != ids[0] {
		t.Errorf("persisted model %q, want %q", cat.Iterations[0].Model.ID, ids[0])
	}
}

func TestTriggerThresholds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, LoopConfig{})
	setupCategory(t, f)

	// Fresh category: zero label changes, thresholds unmet.
	id, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", false)
	if err != nil {
		t.Fatalf("MaybeStartTraining() error = %v", err)
	}
	if id != "" {
		t.Fatalf("MaybeStartTraining() = %q, want no-op below thresholds", id)
	}

	if _, err := f.store.IncrementLabelChange(ctx, "ws", "urgent", 3); err != nil {
		t.Fatalf("IncrementLabelChange() error = %v", err)
	}

	id, err = f.trigger.MaybeStartTraining(ctx, "ws", "urgent", false)
	if err != nil {
		t.Fatalf("MaybeStartTraining() error = %v", err)
	}
	if id == "" {
		t.Fatal("MaybeStartTraining() returned no-op with thresholds met")
	}

	cat, err := f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if cat.LabelChangeCount != 0 {
		t.Errorf("label change count = %d, want 0 after training start", cat.LabelChangeCount)
	}
}

// failingStrategy always errors, simulating a broken selection.
type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }

func (failingStrategy) Score(context.Context, strategy.Request) ([]float64, error) {
	return nil, errors.New("selection exploded")
}

func (failingStrategy) Select(context.Context, strategy.Request) ([]classify.Item, error) {
	return nil, errors.New("selection exploded")
}

func TestLoopActiveLearningFailureMarksIterationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, LoopConfig{BatchSize: 3})
	f.loop.strat = failingStrategy{}
	setupCategory(t, f)

	if _, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true); err != nil {
		t.Fatalf("MaybeStartTraining() error = %v", err)
	}
	f.loop.Cycle(ctx)

	cat, err := f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	iter := cat.Iterations[0]
	if iter.Status != classify.IterationError {
		t.Fatalf("iteration status = %s, want ERROR after selection failure", iter.Status)
	}
	if iter.Model.Status != classify.ModelReady {
		t.Errorf("model status = %s, want READY (the artifact survived)", iter.Model.Status)
	}

	// A failed round unblocks the trigger for a retry.
	id, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true)
	if err != nil {
		t.Fatalf("MaybeStartTraining() after failure error = %v", err)
	}
	if id == "" {
		t.Fatal("MaybeStartTraining() blocked by an ERROR iteration")
	}
}

func TestRetentionCascadeDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, LoopConfig{BatchSize: 3})
	setupCategory(t, f)

	if _, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true); err != nil {
		t.Fatalf("MaybeStartTraining() error = %v", err)
	}
	f.loop.Cycle(ctx)

	cat, err := f.store.GetCategory(ctx, "ws", "urgent")
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	modelID := cat.Iterations[0].Model.ID

	if err := f.loop.retention.DeleteWorkspace(ctx, "ws"); err != nil {
		t.Fatalf("DeleteWorkspace() error = %v", err)
	}

	if _, err := f.store.GetWorkspace(ctx, "ws"); !errors.Is(err, classify.ErrNotFound) {
		t.Fatalf("GetWorkspace() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := f.backend.GetStatus(ctx, modelID); !errors.Is(err, classify.ErrNotFound) {
		t.Fatalf("model %s still exists after cascade delete", modelID)
	}
}

func TestTriggerBlocksWhileRoundInFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, LoopConfig{})
	setupCategory(t, f)

	if _, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true); err != nil {
		t.Fatalf("MaybeStartTraining() error = %v", err)
	}

	// The model is READY (zero delay) but the iteration has not finished its
	// active-learning round, so a new training must not start.
	id, err := f.trigger.MaybeStartTraining(ctx, "ws", "urgent", true)
	if err != nil {
		t.Fatalf("second MaybeStartTraining() error = %v", err)
	}
	if id != "" {
		t.Fatalf("MaybeStartTraining() = %q, want no-op while round in flight", id)
	}
}
