package audit

import (
	"context"
	"fmt"
	"time"
)

// Emitter records security-relevant mutations. Implementations never fail
// the caller: write errors are handled out of band.
type Emitter interface {
	Record(ctx context.Context, actorUserID string, action Action, entityType EntityType, entityID string, details map[string]interface{}, severity Severity)
}

// Sink is a destination for audit entries
type Sink interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// Write persists a single entry
	Write(ctx context.Context, entry *Entry) error

	// Close flushes and releases resources
	Close() error
}

// Store is the queryable side of the audit trail
type Store interface {
	// ListAuditLogs returns one page of entries matching filter, newest first
	ListAuditLogs(ctx context.Context, filter Filter) (*Page, error)

	// Get retrieves a single entry by ID
	Get(ctx context.Context, id string) (*Entry, error)

	// Stats summarizes entries in the optional time range
	Stats(ctx context.Context, start, end *time.Time) (*Stats, error)
}

// SinkError attributes a write failure to a sink
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("audit sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// contextKey is the type for context keys
type contextKey string

const clientInfoKey contextKey = "audit_client_info"

// ClientInfo describes where a request came from
type ClientInfo struct {
	IPAddress     string
	ClientContext string // e.g. user agent or "wardenctl"
}

// WithClientInfo attaches client details that Record copies onto entries
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey, info)
}

// ClientInfoFromContext returns the client details attached to ctx, if any
func ClientInfoFromContext(ctx context.Context) ClientInfo {
	if info, ok := ctx.Value(clientInfoKey).(ClientInfo); ok {
		return info
	}
	return ClientInfo{}
}

// NopEmitter discards every record
type NopEmitter struct{}

func (NopEmitter) Record(context.Context, string, Action, EntityType, string, map[string]interface{}, Severity) {
}
