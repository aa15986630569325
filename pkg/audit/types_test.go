package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_JSONRoundTrip(t *testing.T) {
	entry := &Entry{
		ID:          "01J0000000000000000000000A",
		ActorUserID: "user-1",
		Action:      ActionRoleUpdate,
		EntityType:  EntityRole,
		EntityID:    "role-1",
		Details:     map[string]interface{}{"changed_fields": []interface{}{"name"}},
		Severity:    SeverityWarning,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := entry.ToJSON()
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, entry, parsed)
}

func TestSeverity_Valid(t *testing.T) {
	assert.True(t, SeverityInfo.Valid())
	assert.True(t, SeverityWarning.Valid())
	assert.True(t, SeverityError.Valid())
	assert.False(t, Severity("DEBUG").Valid())
	assert.False(t, Severity("").Valid())
}

func TestFilter_Normalize(t *testing.T) {
	tests := []struct {
		name       string
		in         Filter
		wantLimit  int
		wantOffset int
	}{
		{"defaults", Filter{}, DefaultPageSize, 0},
		{"clamped", Filter{Limit: 10_000, Offset: -3}, MaxPageSize, 0},
		{"kept", Filter{Limit: 20, Offset: 40}, 20, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.Equal(t, tt.wantLimit, got.Limit)
			assert.Equal(t, tt.wantOffset, got.Offset)
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := at.Add(-time.Hour)
	after := at.Add(time.Hour)
	entry := &Entry{
		ActorUserID: "owner",
		Action:      ActionInvitationSend,
		EntityType:  EntityInvitation,
		EntityID:    "inv-1",
		Severity:    SeverityInfo,
		CreatedAt:   at,
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"actor", Filter{ActorUserID: "owner"}, true},
		{"other actor", Filter{ActorUserID: "someone"}, false},
		{"action in list", Filter{Actions: []Action{ActionRoleCreate, ActionInvitationSend}}, true},
		{"action not in list", Filter{Actions: []Action{ActionRoleCreate}}, false},
		{"entity", Filter{EntityType: EntityInvitation, EntityID: "inv-1"}, true},
		{"other entity", Filter{EntityType: EntityRole}, false},
		{"severity", Filter{Severity: SeverityWarning}, false},
		{"range inclusive", Filter{Start: &at, End: &at}, true},
		{"before start", Filter{Start: &after}, false},
		{"after end", Filter{End: &before}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(entry))
		})
	}
}

func TestPage_HasMore(t *testing.T) {
	assert.True(t, (&Page{Entries: make([]*Entry, 2), Total: 5, Offset: 0}).HasMore())
	assert.False(t, (&Page{Entries: make([]*Entry, 2), Total: 5, Offset: 3}).HasMore())
	assert.False(t, (&Page{Total: 0}).HasMore())
}
