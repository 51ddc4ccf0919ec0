// Package progress computes and throttles batch progress snapshots.
// The tracker is the single writer of a batch's snapshot; everything
// downstream sees immutable copies.
package progress

import (
	"sync"
	"time"

	"github.com/condenserhq/condenser/pkg/models"
)

const (
	// durationWindow is the ring size for segment completion durations.
	durationWindow = 20

	// etaOverheadFactor pads the estimate for merge and finalize work.
	etaOverheadFactor = 1.1

	// Emission thresholds. A new snapshot is published only when the stage
	// changes, overall moves by a full percent, the ETA shifts by 5%, or
	// the update interval has elapsed.
	overallEmitDelta = 1.0
	etaEmitDelta     = 0.05
)

// Sink receives published snapshots. The notifier implements this.
type Sink interface {
	PublishProgress(snapshot models.ProgressSnapshot)
}

// stageWeights maps each stage to its slice of the overall percentage.
type stageWeight struct {
	offset float64
	weight float64
}

var stageWeights = map[models.Stage]stageWeight{
	models.StageInitializing:    {0, 5},
	models.StageSegmenting:      {5, 10},
	models.StageBatchProcessing: {15, 70},
	models.StageMerging:         {85, 10},
	models.StageFinalizing:      {95, 5},
	models.StageCompleted:       {100, 0},
}

// Tracker maintains per-batch progress state and publishes throttled
// snapshots to a sink.
type Tracker struct {
	mu             sync.Mutex
	batches        map[string]*batchState
	sink           Sink
	updateInterval time.Duration
	now            func() time.Time
}

type batchState struct {
	batchID      string
	total        int
	completed    int
	failed       int
	active       int
	currentIndex int
	stage        models.Stage
	startedAt    time.Time

	durations [durationWindow]time.Duration
	durCount  int
	durNext   int

	charsProcessed int

	maxOverall  float64
	lastEmitted *models.ProgressSnapshot
	lastEmitAt  time.Time
}

// NewTracker creates a tracker publishing to the given sink. A nil sink
// disables publishing; snapshots remain queryable.
func NewTracker(sink Sink, updateInterval time.Duration) *Tracker {
	if updateInterval <= 0 {
		updateInterval = 2 * time.Second
	}
	return &Tracker{
		batches:        make(map[string]*batchState),
		sink:           sink,
		updateInterval: updateInterval,
		now:            time.Now,
	}
}

// StartBatch registers a batch with its segment count.
func (t *Tracker) StartBatch(batchID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches[batchID] = &batchState{
		batchID:   batchID,
		total:     total,
		stage:     models.StageInitializing,
		startedAt: t.now(),
	}
}

// SetStage records a stage transition. Stage changes always publish.
func (t *Tracker) SetStage(batchID string, stage models.Stage) {
	t.mu.Lock()
	b, ok := t.batches[batchID]
	if !ok || b.stage == stage {
		t.mu.Unlock()
		return
	}
	b.stage = stage
	snap := t.snapshotLocked(b)
	b.lastEmitted = &snap
	b.lastEmitAt = t.now()
	t.mu.Unlock()

	t.publish(snap)
}

// SegmentStarted records a worker picking up a segment.
func (t *Tracker) SegmentStarted(batchID string, index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.batches[batchID]; ok {
		b.active++
		b.currentIndex = index
	}
}

// SegmentFinished records a segment reaching a terminal task state and
// publishes a snapshot if the throttle allows.
func (t *Tracker) SegmentFinished(batchID string, duration time.Duration, chars int, failed bool) {
	t.mu.Lock()
	b, ok := t.batches[batchID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if b.active > 0 {
		b.active--
	}
	if failed {
		b.failed++
	} else {
		b.completed++
		b.durations[b.durNext] = duration
		b.durNext = (b.durNext + 1) % durationWindow
		if b.durCount < durationWindow {
			b.durCount++
		}
		b.charsProcessed += chars
	}

	snap := t.snapshotLocked(b)
	emit := t.shouldEmitLocked(b, snap)
	if emit {
		b.lastEmitted = &snap
		b.lastEmitAt = t.now()
	}
	t.mu.Unlock()

	if emit {
		t.publish(snap)
	}
}

// Snapshot returns the current snapshot for a batch.
func (t *Tracker) Snapshot(batchID string) (models.ProgressSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return models.ProgressSnapshot{}, false
	}
	return t.snapshotLocked(b), true
}

// Remove drops a batch's tracking state.
func (t *Tracker) Remove(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.batches, batchID)
}

func (t *Tracker) publish(snap models.ProgressSnapshot) {
	if t.sink != nil {
		t.sink.PublishProgress(snap)
	}
}

// shouldEmitLocked applies the throttle rules.
func (t *Tracker) shouldEmitLocked(b *batchState, snap models.ProgressSnapshot) bool {
	prev := b.lastEmitted
	if prev == nil {
		return true
	}
	if snap.Stage != prev.Stage {
		return true
	}
	if snap.OverallPct-prev.OverallPct >= overallEmitDelta {
		return true
	}
	if etaShifted(prev.EtaMs, snap.EtaMs) {
		return true
	}
	return t.now().Sub(b.lastEmitAt) >= t.updateInterval
}

func etaShifted(prev, cur *int64) bool {
	if prev == nil || cur == nil {
		return prev != cur
	}
	if *prev == 0 {
		return *cur != 0
	}
	delta := float64(*cur-*prev) / float64(*prev)
	if delta < 0 {
		delta = -delta
	}
	return delta >= etaEmitDelta
}

// snapshotLocked computes the current snapshot. Overall percentage is
// clamped monotone while the batch is live; failed and cancelled batches
// freeze at whatever was reached.
func (t *Tracker) snapshotLocked(b *batchState) models.ProgressSnapshot {
	now := t.now()
	elapsed := now.Sub(b.startedAt)

	stagePct := t.stagePctLocked(b)
	overall := overallPct(b.stage, stagePct)
	if b.stage == models.StageFailed || b.stage == models.StageCancelled {
		overall = b.maxOverall
	} else if overall < b.maxOverall {
		overall = b.maxOverall
	} else {
		b.maxOverall = overall
	}

	snap := models.ProgressSnapshot{
		BatchID:      b.batchID,
		Total:        b.total,
		Completed:    b.completed,
		Failed:       b.failed,
		CurrentIndex: b.currentIndex,
		Stage:        b.stage,
		OverallPct:   overall,
		StagePct:     stagePct,
		ElapsedMs:    elapsed.Milliseconds(),
		AvgSegmentMs: b.avgSegmentMs(),
		LastUpdated:  now,
	}

	if remaining := b.total - b.completed - b.failed; remaining > 0 && b.durCount > 0 {
		workers := b.active
		if workers < 1 {
			workers = 1
		}
		eta := int64(snap.AvgSegmentMs * float64(remaining) / float64(workers) * etaOverheadFactor)
		snap.EtaMs = &eta
	}

	if secs := elapsed.Seconds(); secs > 0 {
		snap.SegmentsPerMin = float64(b.completed) / secs * 60
		snap.CharsPerSec = float64(b.charsProcessed) / secs
	}
	return snap
}

func (t *Tracker) stagePctLocked(b *batchState) float64 {
	if b.stage != models.StageBatchProcessing {
		return 0
	}
	if b.total == 0 {
		return 100
	}
	return float64(b.completed+b.failed) / float64(b.total) * 100
}

// overallPct combines the stage offset with the stage's internal progress.
func overallPct(stage models.Stage, stagePct float64) float64 {
	w, ok := stageWeights[stage]
	if !ok {
		return 0
	}
	return w.offset + w.weight*stagePct/100
}

func (b *batchState) avgSegmentMs() float64 {
	if b.durCount == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < b.durCount; i++ {
		sum += b.durations[i]
	}
	return float64(sum.Milliseconds()) / float64(b.durCount)
}
