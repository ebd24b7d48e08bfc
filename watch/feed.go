package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/intercept"
	"github.com/xraph/stepflow/run"
)

// Compile-time interface checks.
var (
	_ intercept.Interceptor       = (*Feed)(nil)
	_ intercept.BeforeStep        = (*Feed)(nil)
	_ intercept.AfterStep         = (*Feed)(nil)
	_ intercept.StepError         = (*Feed)(nil)
	_ intercept.WorkflowStarted   = (*Feed)(nil)
	_ intercept.WorkflowCompleted = (*Feed)(nil)
	_ intercept.WorkflowFailed    = (*Feed)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Feed is the live run feed. It observes engine lifecycle hooks and fans
// the events out to subscribers. Register it with
// engine.WithInterceptors or AddInterceptor.
type Feed struct {
	topics *topicRegistry
	logger *slog.Logger

	// subscribers maps subscriberID → *Subscriber.
	subscribers sync.Map

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize int
}

// Option configures a Feed.
type Option func(*Feed)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) Option {
	return func(f *Feed) {
		if size > 0 {
			f.bufferSize = size
		}
	}
}

// NewFeed creates a run feed. A nil logger falls back to slog.Default.
func NewFeed(logger *slog.Logger, opts ...Option) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Feed{
		topics:     newTopicRegistry(),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements intercept.Interceptor.
func (f *Feed) Name() string { return "watch" }

// Subscribe creates a new subscriber on the given topics. A subscriber
// with the same id replaces the previous one, which is closed.
func (f *Feed) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := newSubscriber(subscriberID, f.bufferSize)
	if prev, loaded := f.subscribers.Swap(subscriberID, sub); loaded {
		old := prev.(*Subscriber)
		f.topics.unsubscribeAll(subscriberID)
		old.Close()
	}
	for _, topic := range topics {
		f.topics.subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (f *Feed) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := f.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber)
	for _, topic := range topics {
		f.topics.subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (f *Feed) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		f.topics.unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (f *Feed) RemoveSubscriber(subscriberID string) {
	f.topics.unsubscribeAll(subscriberID)
	if val, ok := f.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close()
	}
}

// Close removes and closes every subscriber. The feed stays usable as an
// interceptor; later events simply have no receivers.
func (f *Feed) Close() {
	f.subscribers.Range(func(key, value any) bool {
		f.topics.unsubscribeAll(key.(string))
		value.(*Subscriber).Close()
		f.subscribers.Delete(key)
		return true
	})
	f.logger.Debug("run feed closed")
}

// Stats contains feed counters.
type Stats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Stats returns a snapshot of the feed counters.
func (f *Feed) Stats() Stats {
	count := 0
	f.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return Stats{
		TopicCount:      f.topics.topicCount(),
		SubscriberCount: count,
		TotalPublished:  f.totalPublished.Load(),
		TotalDropped:    f.totalDropped.Load(),
	}
}

// publish broadcasts an event to its per-run topic and the global runs
// topic.
func (f *Feed) publish(evt *Event) {
	delivered, dropped := f.topics.broadcast([]string{TopicRuns, evt.Topic}, evt)
	f.totalPublished.Add(int64(delivered))
	f.totalDropped.Add(int64(dropped))
}

func runEvent(typ EventType, r *run.Run) *Event {
	rid := r.ID.String()
	return &Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(rid),
		RunID:     rid,
		Workflow:  r.Workflow,
	}
}

func stepEvent(typ EventType, sc *intercept.StepContext) *Event {
	evt := runEvent(typ, sc.Run)
	evt.Step = sc.Step.Name
	evt.Entry = sc.Entry
	evt.Attempt = sc.Attempt
	return evt
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnWorkflowStarted implements intercept.WorkflowStarted.
func (f *Feed) OnWorkflowStarted(_ context.Context, r *run.Run) error {
	f.publish(runEvent(EventRunStarted, r))
	return nil
}

// OnBeforeStep implements intercept.BeforeStep.
func (f *Feed) OnBeforeStep(_ context.Context, sc *intercept.StepContext) error {
	f.publish(stepEvent(EventStepStarted, sc))
	return nil
}

// OnAfterStep implements intercept.AfterStep.
func (f *Feed) OnAfterStep(_ context.Context, sc *intercept.StepContext, _ graph.Result, elapsed time.Duration) error {
	evt := stepEvent(EventStepCompleted, sc)
	evt.ElapsedMs = elapsed.Milliseconds()
	f.publish(evt)
	return nil
}

// OnStepError implements intercept.StepError.
func (f *Feed) OnStepError(_ context.Context, sc *intercept.StepContext, stepErr error, elapsed time.Duration) error {
	evt := stepEvent(EventStepFailed, sc)
	evt.ElapsedMs = elapsed.Milliseconds()
	evt.Error = stepErr.Error()
	f.publish(evt)
	return nil
}

// OnWorkflowCompleted implements intercept.WorkflowCompleted.
func (f *Feed) OnWorkflowCompleted(_ context.Context, r *run.Run, elapsed time.Duration) error {
	evt := runEvent(EventRunCompleted, r)
	evt.ElapsedMs = elapsed.Milliseconds()
	f.publish(evt)
	return nil
}

// OnWorkflowFailed implements intercept.WorkflowFailed. Cancelled runs
// publish run.cancelled; everything else publishes run.failed.
func (f *Feed) OnWorkflowFailed(_ context.Context, r *run.Run, runErr error) error {
	typ := EventRunFailed
	if r.Status == run.StatusCancelled {
		typ = EventRunCancelled
	}
	evt := runEvent(typ, r)
	evt.Error = runErr.Error()
	f.publish(evt)
	return nil
}
