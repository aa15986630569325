package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

func TestExport(t *testing.T) {
	entry := testEntry("01HZZZZZZZZZZZZZZZZZZZZZA1", testNow, ActionRoleUpdate, "owner")
	entry.Details = map[string]interface{}{"changed_fields": []string{"name"}}
	entries := []*Entry{entry}

	t.Run("json", func(t *testing.T) {
		data, err := Export(entries, ExportFormatJSON)
		require.NoError(t, err)
		var parsed []*Entry
		require.NoError(t, json.Unmarshal(data, &parsed))
		require.Len(t, parsed, 1)
		assert.Equal(t, entry.ID, parsed[0].ID)
	})

	t.Run("json empty", func(t *testing.T) {
		data, err := Export(nil, ExportFormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})

	t.Run("ndjson", func(t *testing.T) {
		data, err := Export([]*Entry{entry, entry}, ExportFormatNDJSON)
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
	})

	t.Run("csv", func(t *testing.T) {
		data, err := Export(entries, ExportFormatCSV)
		require.NoError(t, err)
		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "ID", records[0][0])
		assert.Equal(t, entry.ID, records[1][0])
		assert.Equal(t, "2026-05-01T09:30:00Z", records[1][1])
		assert.Equal(t, `{"changed_fields":["name"]}`, records[1][7])
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Export(entries, ExportFormat("xml"))
		assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidInput))
	})
}

func TestExportStore(t *testing.T) {
	store := seedMemory(t, 3)

	data, err := ExportStore(context.Background(), store, Filter{}, ExportFormatNDJSON)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}
