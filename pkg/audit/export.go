package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

// Export renders entries in the requested format
func Export(entries []*Entry, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatJSON, "":
		return exportJSON(entries)
	case ExportFormatCSV:
		return exportCSV(entries)
	case ExportFormatNDJSON:
		return exportNDJSON(entries)
	default:
		return nil, apperrors.New(apperrors.KindInvalidInput, "audit.Export", "unsupported export format %q", format)
	}
}

// exportJSON exports audit entries as a JSON array
func exportJSON(entries []*Entry) ([]byte, error) {
	if entries == nil {
		entries = []*Entry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}

// exportNDJSON exports audit entries as newline-delimited JSON
func exportNDJSON(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return nil, fmt.Errorf("failed to encode entry: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// exportCSV exports audit entries as CSV; details are embedded as JSON
func exportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID",
		"CreatedAt",
		"ActorUserID",
		"Action",
		"EntityType",
		"EntityID",
		"Severity",
		"Details",
		"IPAddress",
		"ClientContext",
	}

	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		details := ""
		if len(entry.Details) > 0 {
			raw, err := json.Marshal(entry.Details)
			if err != nil {
				return nil, fmt.Errorf("failed to encode details for %s: %w", entry.ID, err)
			}
			details = string(raw)
		}

		row := []string{
			entry.ID,
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.ActorUserID,
			string(entry.Action),
			string(entry.EntityType),
			entry.EntityID,
			string(entry.Severity),
			details,
			entry.IPAddress,
			entry.ClientContext,
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
