package cancellation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/notifier"
)

type recordingSink struct {
	mu     sync.Mutex
	events []notifier.EventType
}

func (r *recordingSink) Publish(_ string, eventType notifier.EventType, _ interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingSink) types() []notifier.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifier.EventType(nil), r.events...)
}

type fakePartials struct {
	mu     sync.Mutex
	calls  int
	result *models.PartialResult
	err    error
}

func (f *fakePartials) CapturePartial(batchID string) (*models.PartialResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.PartialResult{BatchID: batchID, MergedSummary: "partial"}, nil
}

func (f *fakePartials) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func userCancel(batchID string, force, savePartial bool) models.CancellationRequest {
	return models.CancellationRequest{
		BatchID:     batchID,
		RequestedBy: "tester",
		Reason:      models.CancelReasonUser,
		Force:       force,
		SavePartial: savePartial,
	}
}

func TestCancel_UnknownBatchIsIdempotent(t *testing.T) {
	c := NewController(nil, 0, nil)

	res := c.Cancel(userCancel("nope", false, false))
	assert.True(t, res.IsSuccessful)
	assert.Contains(t, res.Message, "not active")
	assert.False(t, res.PartialSaved)
}

func TestCancel_ForcedSignalsImmediately(t *testing.T) {
	sink := &recordingSink{}
	partials := &fakePartials{}
	c := NewController(sink, 0, nil)
	c.SetPartialHandler(partials)

	ctx := c.Register("b1", context.Background())
	c.SetSafeCheckpoint("b1", false) // mid-segment

	res := c.Cancel(userCancel("b1", true, true))
	assert.True(t, res.IsSuccessful)
	assert.Equal(t, "forced", res.Message)
	// Forced cancellation never captures partials, even when asked.
	assert.False(t, res.PartialSaved)
	assert.Equal(t, 0, partials.callCount())

	assert.True(t, c.IsCancelled("b1"))
	select {
	case <-ctx.Done():
	default:
		t.Fatal("token not signalled")
	}
	assert.Equal(t, []notifier.EventType{notifier.EventCancellationRequested}, sink.types())
}

func TestCancel_GracefulAtCheckpointSavesPartial(t *testing.T) {
	partials := &fakePartials{}
	c := NewController(nil, 0, nil)
	c.SetPartialHandler(partials)

	ctx := c.Register("b1", context.Background())

	res := c.Cancel(userCancel("b1", false, true))
	assert.True(t, res.IsSuccessful)
	assert.Equal(t, "graceful", res.Message)
	assert.True(t, res.PartialSaved)
	assert.Equal(t, 1, partials.callCount())
	assert.Error(t, ctx.Err())
}

func TestCancel_PendingFiresAtNextCheckpoint(t *testing.T) {
	partials := &fakePartials{}
	c := NewController(nil, time.Minute, nil)
	c.SetPartialHandler(partials)

	ctx := c.Register("b1", context.Background())
	c.SetSafeCheckpoint("b1", false)

	res := c.Cancel(userCancel("b1", false, true))
	assert.Equal(t, "pending", res.Message)
	assert.False(t, c.IsCancelled("b1"))
	assert.NoError(t, ctx.Err())

	c.SetSafeCheckpoint("b1", true)
	assert.True(t, c.IsCancelled("b1"))
	assert.Error(t, ctx.Err())
	assert.Equal(t, 1, partials.callCount())
}

func TestCancel_PendingEscalatesAfterTimeout(t *testing.T) {
	partials := &fakePartials{}
	c := NewController(nil, 20*time.Millisecond, nil)
	c.SetPartialHandler(partials)

	ctx := c.Register("b1", context.Background())
	c.SetSafeCheckpoint("b1", false)

	res := c.Cancel(userCancel("b1", false, true))
	assert.Equal(t, "pending", res.Message)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("escalation never fired")
	}
	assert.True(t, c.IsCancelled("b1"))
	// The requested partial is still captured before the token fires.
	assert.Equal(t, 1, partials.callCount())
}

func TestCancel_PendingEscalationSkipsUnrequestedPartial(t *testing.T) {
	partials := &fakePartials{}
	c := NewController(nil, 20*time.Millisecond, nil)
	c.SetPartialHandler(partials)

	ctx := c.Register("b1", context.Background())
	c.SetSafeCheckpoint("b1", false)

	res := c.Cancel(userCancel("b1", false, false))
	assert.Equal(t, "pending", res.Message)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("escalation never fired")
	}
	assert.True(t, c.IsCancelled("b1"))
	assert.Equal(t, 0, partials.callCount())
}

func TestCancel_Idempotent(t *testing.T) {
	c := NewController(nil, 0, nil)
	c.Register("b1", context.Background())

	first := c.Cancel(userCancel("b1", true, false))
	second := c.Cancel(userCancel("b1", false, true))

	assert.True(t, first.IsSuccessful)
	assert.True(t, second.IsSuccessful)
	assert.Contains(t, second.Message, "already in progress")
}

func TestUnregisterReleasesToken(t *testing.T) {
	c := NewController(nil, 0, nil)
	ctx := c.Register("b1", context.Background())

	c.Unregister("b1")
	assert.Error(t, ctx.Err())
	_, ok := c.Token("b1")
	assert.False(t, ok)
	assert.False(t, c.IsCancelled("b1"))
}

func completedTask(i int, title string) *models.SegmentTask {
	return &models.SegmentTask{
		Segment: models.Segment{Index: i, Title: title},
		Status:  models.TaskCompleted,
		Result:  "summary",
	}
}

func pendingTask(i int, title string) *models.SegmentTask {
	return &models.SegmentTask{Segment: models.Segment{Index: i, Title: title}, Status: models.TaskPending}
}

func TestAssessPartialQuality(t *testing.T) {
	// 4 of 10 completed in one contiguous prefix.
	tasks := []*models.SegmentTask{
		completedTask(0, "a"), completedTask(1, "b"), completedTask(2, "c"), completedTask(3, "d"),
	}
	for i := 4; i < 10; i++ {
		tasks = append(tasks, pendingTask(i, "rest"))
	}

	q := AssessPartialQuality(tasks)
	assert.InDelta(t, 0.4, q.Completeness, 0.001)
	assert.InDelta(t, 1.0, q.Coherence, 0.001)
	assert.Equal(t, models.QualityAcceptable, q.Level)
	assert.Equal(t, models.ActionReviewRequired, q.RecommendedAction)
	assert.Len(t, q.MissingTopics, 6)
}

func TestAssessPartialQuality_Levels(t *testing.T) {
	all := func(n, completed int) []*models.SegmentTask {
		var tasks []*models.SegmentTask
		for i := 0; i < n; i++ {
			if i < completed {
				tasks = append(tasks, completedTask(i, "t"))
			} else {
				tasks = append(tasks, pendingTask(i, "t"))
			}
		}
		return tasks
	}

	assert.Equal(t, models.QualityExcellent, AssessPartialQuality(all(10, 10)).Level)
	assert.Equal(t, models.QualityGood, AssessPartialQuality(all(10, 8)).Level)
	assert.Equal(t, models.QualityUnusable, AssessPartialQuality(all(10, 0)).Level)
	assert.Equal(t, models.ActionDiscard, AssessPartialQuality(nil).RecommendedAction)

	require.NotPanics(t, func() { AssessPartialQuality(all(0, 0)) })
}

func TestAssessPartialQuality_ScatteredCompletionScoresLower(t *testing.T) {
	scattered := []*models.SegmentTask{
		completedTask(0, "a"), pendingTask(1, "b"), completedTask(2, "c"),
		pendingTask(3, "d"), completedTask(4, "e"), pendingTask(5, "f"),
	}
	contiguous := []*models.SegmentTask{
		completedTask(0, "a"), completedTask(1, "b"), completedTask(2, "c"),
		pendingTask(3, "d"), pendingTask(4, "e"), pendingTask(5, "f"),
	}

	assert.Less(t, AssessPartialQuality(scattered).Score, AssessPartialQuality(contiguous).Score)
}
