package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condenserhq/condenser/pkg/models"
)

type captureSink struct {
	mu    sync.Mutex
	snaps []models.ProgressSnapshot
}

func (c *captureSink) PublishProgress(snap models.ProgressSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, snap)
}

func (c *captureSink) all() []models.ProgressSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ProgressSnapshot(nil), c.snaps...)
}

// fakeClock drives the tracker's notion of time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = f.cur.Add(d)
}

func newTestTracker(sink Sink) (*Tracker, *fakeClock) {
	clock := &fakeClock{cur: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(sink, 2*time.Second)
	tr.now = clock.now
	return tr, clock
}

func TestTracker_StageTransitionsAlwaysPublish(t *testing.T) {
	sink := &captureSink{}
	tr, _ := newTestTracker(sink)

	tr.StartBatch("b1", 10)
	tr.SetStage("b1", models.StageSegmenting)
	tr.SetStage("b1", models.StageBatchProcessing)

	snaps := sink.all()
	require.Len(t, snaps, 2)
	assert.Equal(t, models.StageSegmenting, snaps[0].Stage)
	assert.InDelta(t, 5.0, snaps[0].OverallPct, 0.001)
	assert.Equal(t, models.StageBatchProcessing, snaps[1].Stage)
	assert.InDelta(t, 15.0, snaps[1].OverallPct, 0.001)
}

func TestTracker_OverallPctWeights(t *testing.T) {
	tr, clock := newTestTracker(nil)
	tr.StartBatch("b1", 4)
	tr.SetStage("b1", models.StageBatchProcessing)

	for i := 0; i < 2; i++ {
		tr.SegmentStarted("b1", i)
		clock.advance(100 * time.Millisecond)
		tr.SegmentFinished("b1", 100*time.Millisecond, 500, false)
	}

	snap, ok := tr.Snapshot("b1")
	require.True(t, ok)
	assert.Equal(t, 2, snap.Completed)
	assert.InDelta(t, 50.0, snap.StagePct, 0.001)
	// 15 offset + 70 weight * 50%.
	assert.InDelta(t, 50.0, snap.OverallPct, 0.001)

	tr.SetStage("b1", models.StageCompleted)
	snap, _ = tr.Snapshot("b1")
	assert.InDelta(t, 100.0, snap.OverallPct, 0.001)
}

func TestTracker_OverallPctMonotone(t *testing.T) {
	tr, clock := newTestTracker(nil)
	tr.StartBatch("b1", 10)
	tr.SetStage("b1", models.StageBatchProcessing)

	var last float64
	for i := 0; i < 10; i++ {
		tr.SegmentStarted("b1", i)
		clock.advance(50 * time.Millisecond)
		tr.SegmentFinished("b1", 50*time.Millisecond, 100, i%3 == 0)
		snap, ok := tr.Snapshot("b1")
		require.True(t, ok)
		assert.GreaterOrEqual(t, snap.OverallPct, last)
		last = snap.OverallPct
	}
}

func TestTracker_EtaUsesWorkerCount(t *testing.T) {
	tr, clock := newTestTracker(nil)
	tr.StartBatch("b1", 10)
	tr.SetStage("b1", models.StageBatchProcessing)

	// Two workers active, one completion of 1s.
	tr.SegmentStarted("b1", 0)
	tr.SegmentStarted("b1", 1)
	clock.advance(time.Second)
	tr.SegmentFinished("b1", time.Second, 1000, false)

	snap, ok := tr.Snapshot("b1")
	require.True(t, ok)
	require.NotNil(t, snap.EtaMs)
	// avg 1000ms * 9 remaining / 1 active worker * 1.1 overhead.
	assert.InDelta(t, 9900, float64(*snap.EtaMs), 1)
	assert.InDelta(t, 1000, snap.AvgSegmentMs, 0.001)
}

func TestTracker_ThrottlesEmissions(t *testing.T) {
	sink := &captureSink{}
	tr, clock := newTestTracker(sink)

	tr.StartBatch("b1", 1000)
	tr.SetStage("b1", models.StageBatchProcessing)
	base := len(sink.all())

	// The first completion emits because the ETA appears.
	tr.SegmentStarted("b1", 0)
	tr.SegmentFinished("b1", 10*time.Millisecond, 10, false)
	require.Len(t, sink.all(), base+1)

	// Each further completion moves overall by 0.07%, far below the 1%
	// threshold, and barely shifts the ETA, so nothing is emitted.
	for i := 1; i < 5; i++ {
		tr.SegmentStarted("b1", i)
		tr.SegmentFinished("b1", 10*time.Millisecond, 10, false)
	}
	assert.Len(t, sink.all(), base+1)

	// Crossing the update interval forces an emission.
	clock.advance(3 * time.Second)
	tr.SegmentStarted("b1", 5)
	tr.SegmentFinished("b1", 10*time.Millisecond, 10, false)
	assert.Len(t, sink.all(), base+2)
}

func TestTracker_CompletedPlusFailedBounded(t *testing.T) {
	tr, clock := newTestTracker(nil)
	tr.StartBatch("b1", 3)
	tr.SetStage("b1", models.StageBatchProcessing)

	for i := 0; i < 3; i++ {
		tr.SegmentStarted("b1", i)
		clock.advance(10 * time.Millisecond)
		tr.SegmentFinished("b1", 10*time.Millisecond, 10, i == 2)
	}

	snap, ok := tr.Snapshot("b1")
	require.True(t, ok)
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, snap.Total, snap.Completed+snap.Failed)
	assert.Nil(t, snap.EtaMs)
}

func TestTracker_RemoveAndUnknownBatch(t *testing.T) {
	tr, _ := newTestTracker(nil)
	tr.StartBatch("b1", 1)
	tr.Remove("b1")

	_, ok := tr.Snapshot("b1")
	assert.False(t, ok)

	// Operations on unknown batches are no-ops.
	tr.SetStage("nope", models.StageMerging)
	tr.SegmentFinished("nope", time.Second, 10, false)
}
