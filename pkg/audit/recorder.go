package audit

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/clock"
	"github.com/platinummonkey/warden/pkg/observability"
)

const defaultWriteTimeout = 5 * time.Second

// Failure describes an entry that could not be written
type Failure struct {
	Entry *Entry
	Err   error
}

// Recorder builds entries and writes them to a Sink. Write failures are
// logged, counted and published on Failures; they never reach the caller.
type Recorder struct {
	sink         Sink
	clock        clock.Clock
	logger       *observability.Logger
	metrics      *observability.Metrics
	writeTimeout time.Duration
	failures     chan Failure

	entropyMu sync.Mutex
	entropy   io.Reader
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithClock sets the time source for entry timestamps
func WithClock(c clock.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = clock.OrReal(c) }
}

// WithLogger sets the logger used to report write failures
func WithLogger(l *observability.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = observability.OrNop(l) }
}

// WithMetrics sets the metrics the recorder reports to
func WithMetrics(m *observability.Metrics) RecorderOption {
	return func(r *Recorder) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithWriteTimeout bounds each sink write
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithFailureBuffer sets the capacity of the Failures channel
func WithFailureBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n >= 0 {
			r.failures = make(chan Failure, n)
		}
	}
}

// NewRecorder creates a recorder writing to sink
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sink:         sink,
		clock:        clock.Real{},
		logger:       observability.NewNopLogger(),
		metrics:      observability.NewUnregisteredMetrics(),
		writeTimeout: defaultWriteTimeout,
		failures:     make(chan Failure, 64),
		entropy:      ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Failures publishes entries that could not be written. Sends never block:
// when nobody drains the channel and it is full, the failure is only logged
// and counted.
func (r *Recorder) Failures() <-chan Failure {
	return r.failures
}

// Record writes one entry. It is safe for concurrent use and never panics
// into the caller.
func (r *Recorder) Record(ctx context.Context, actorUserID string, action Action, entityType EntityType, entityID string, details map[string]interface{}, severity Severity) {
	entry := r.newEntry(ctx, actorUserID, action, entityType, entityID, details, severity)

	// The mutation already happened; its audit record must not be lost to
	// the caller's cancellation.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	if err := r.write(writeCtx, entry); err != nil {
		r.fail(entry, err)
		return
	}
	r.metrics.AuditRecordsTotal.WithLabelValues(string(action)).Inc()
}

func (r *Recorder) newEntry(ctx context.Context, actorUserID string, action Action, entityType EntityType, entityID string, details map[string]interface{}, severity Severity) *Entry {
	now := r.clock.Now().UTC()
	if !severity.Valid() {
		severity = SeverityInfo
	}
	if actorUserID == "" {
		actorUserID = SystemActor
	}

	copied := make(map[string]interface{}, len(details))
	for k, v := range details {
		copied[k] = v
	}

	info := ClientInfoFromContext(ctx)
	return &Entry{
		ID:            r.newID(now),
		ActorUserID:   actorUserID,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Details:       copied,
		Severity:      severity,
		CreatedAt:     now,
		IPAddress:     info.IPAddress,
		ClientContext: info.ClientContext,
	}
}

func (r *Recorder) newID(now time.Time) string {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), r.entropy).String()
}

func (r *Recorder) write(ctx context.Context, entry *Entry) (err error) {
	defer func() {
		if p := observability.MustRecover(recover()); p != nil {
			err = p
		}
	}()
	if r.sink == nil {
		return errors.New("no audit sink configured")
	}
	return r.sink.Write(ctx, entry)
}

func (r *Recorder) fail(entry *Entry, err error) {
	sinkName := "unknown"
	var sinkErr *SinkError
	if errors.As(err, &sinkErr) {
		sinkName = sinkErr.Sink
	} else if r.sink != nil {
		sinkName = r.sink.Name()
	}

	wrapped := apperrors.Wrap(apperrors.KindAuditWriteFailed, "audit.Recorder.Record", err, "audit write failed")

	r.metrics.AuditWriteFailuresTotal.WithLabelValues(sinkName).Inc()
	r.logger.WithError(wrapped).WithFields(map[string]interface{}{
		"audit_id":    entry.ID,
		"action":      string(entry.Action),
		"entity_type": string(entry.EntityType),
		"entity_id":   entry.EntityID,
		"actor":       entry.ActorUserID,
		"sink":        sinkName,
	}).Error("audit write failed")

	select {
	case r.failures <- Failure{Entry: entry, Err: wrapped}:
	default:
	}
}

// Close closes the underlying sink
func (r *Recorder) Close() error {
	if r.sink == nil {
		return nil
	}
	return r.sink.Close()
}
