package rbac

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	list := c.List()
	require.NotEmpty(t, list)
	assert.True(t, sort.SliceIsSorted(list, func(i, j int) bool { return list[i].Name < list[j].Name }))

	for _, name := range []string{"properties:delete", "leases:renew", "invitations:send", "audit_logs:read", "settings:update"} {
		assert.True(t, c.Exists(name), name)
	}
	assert.False(t, c.Exists("properties:fly"))

	p, ok := c.Get("maintenance:assign")
	require.True(t, ok)
	assert.Equal(t, "maintenance", p.Resource)
	assert.Equal(t, "assign", p.Action)
	assert.Equal(t, "Assign maintenance requests", p.Description)

	groups := c.GroupByResource()
	assert.Len(t, groups, 13)
	assert.Len(t, groups["properties"], 4)
}

func TestCatalog_Validate(t *testing.T) {
	c := DefaultCatalog()

	assert.NoError(t, c.Validate(nil))
	assert.NoError(t, c.Validate([]string{"units:read", "units:update"}))

	err := c.Validate([]string{"units:read", "units:explode", "nope:nope"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidPermission))
	assert.Contains(t, err.Error(), "units:explode")
	assert.NotContains(t, err.Error(), "nope:nope")
}

func TestNewCatalog_Rejects(t *testing.T) {
	_, err := NewCatalog([]Permission{
		{Resource: "units", Action: "read"},
		{Resource: "units", Action: "read"},
	})
	assert.ErrorContains(t, err, "duplicate permission")

	_, err = NewCatalog([]Permission{{Resource: "Units", Action: "read"}})
	assert.ErrorContains(t, err, "invalid permission")

	_, err = NewCatalog([]Permission{{Name: "units:write", Resource: "units", Action: "read"}})
	assert.ErrorContains(t, err, "does not match")
}

func TestLoadCatalog(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		c, err := LoadCatalog(strings.NewReader(`
resources:
  parking:
    actions:
      read: View parking spots
      assign: Assign parking spots
  storage_units:
    actions:
      read: View storage units
`))
		require.NoError(t, err)
		assert.Len(t, c.List(), 3)
		p, ok := c.Get("parking:assign")
		require.True(t, ok)
		assert.Equal(t, "Assign parking spots", p.Description)
	})

	tests := []struct {
		name string
		yaml string
	}{
		{"empty", `resources: {}`},
		{"no actions", "resources:\n  parking:\n    actions: {}\n"},
		{"malformed action", "resources:\n  parking:\n    actions:\n      Read-All: x\n"},
		{"duplicate resource", "resources:\n  parking:\n    actions:\n      read: a\n  parking:\n    actions:\n      read: b\n"},
		{"unknown field", "resources:\n  parking:\n    verbs:\n      read: a\n"},
		{"not yaml", "::::"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}
