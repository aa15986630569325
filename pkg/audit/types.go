package audit

import (
	"encoding/json"
	"time"
)

// Action is the verb recorded for a security-relevant mutation
type Action string

const (
	// Role events
	ActionRoleCreate           Action = "ROLE_CREATE"
	ActionRoleUpdate           Action = "ROLE_UPDATE"
	ActionRolePermissionChange Action = "ROLE_PERMISSION_CHANGE"
	ActionRoleDelete           Action = "ROLE_DELETE"

	// User events
	ActionUserCreate           Action = "USER_CREATE"
	ActionUserRoleChange       Action = "USER_ROLE_CHANGE"
	ActionUserStatusChange     Action = "USER_STATUS_CHANGE"
	ActionUserPermissionGrant  Action = "USER_PERMISSION_GRANT"
	ActionUserPermissionRevoke Action = "USER_PERMISSION_REVOKE"

	// Invitation events
	ActionInvitationSend   Action = "INVITATION_SEND"
	ActionInvitationResend Action = "INVITATION_RESEND"
	ActionInvitationAccept Action = "INVITATION_ACCEPT"
	ActionInvitationCancel Action = "INVITATION_CANCEL"
	ActionInvitationExpire Action = "INVITATION_EXPIRE"
)

// Severity grades an entry
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// EntityType names the kind of record an entry is about
type EntityType string

const (
	EntityRole       EntityType = "role"
	EntityUser       EntityType = "user"
	EntityInvitation EntityType = "invitation"
)

// SystemActor is the actor recorded for unattended transitions such as expiry sweeps
const SystemActor = "system"

// Entry is a single write-once audit record
type Entry struct {
	ID            string                 `json:"id"` // ULID, sorts by creation time
	ActorUserID   string                 `json:"actor_user_id"`
	Action        Action                 `json:"action"`
	EntityType    EntityType             `json:"entity_type"`
	EntityID      string                 `json:"entity_id"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Severity      Severity               `json:"severity"`
	CreatedAt     time.Time              `json:"created_at"`
	IPAddress     string                 `json:"ip_address,omitempty"`
	ClientContext string                 `json:"client_context,omitempty"`
}

// ToJSON converts the entry to JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an entry from JSON
func FromJSON(data []byte) (*Entry, error) {
	var entry Entry
	err := json.Unmarshal(data, &entry)
	return &entry, err
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Filter selects audit entries. Zero values match everything.
type Filter struct {
	ActorUserID string
	Actions     []Action
	EntityType  EntityType
	EntityID    string
	Severity    Severity

	// Time range, inclusive
	Start *time.Time
	End   *time.Time

	// Pagination
	Limit  int
	Offset int
}

// Normalize clamps pagination to the allowed range
func (f Filter) Normalize() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether e satisfies the filter's predicates
func (f Filter) Matches(e *Entry) bool {
	if f.ActorUserID != "" && e.ActorUserID != f.ActorUserID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.Start != nil && e.CreatedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.CreatedAt.After(*f.End) {
		return false
	}
	return true
}

// Page is one page of query results, newest first
type Page struct {
	Entries []*Entry `json:"entries"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// HasMore reports whether another page follows
func (p *Page) HasMore() bool {
	return p.Offset+len(p.Entries) < p.Total
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// Stats summarizes audit entries over a time range
type Stats struct {
	TotalEntries int64              `json:"total_entries"`
	ByAction     map[Action]int64   `json:"by_action"`
	BySeverity   map[Severity]int64 `json:"by_severity"`
	UniqueActors int64              `json:"unique_actors"`
}
