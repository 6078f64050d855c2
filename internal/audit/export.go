package audit

import (
	"bytes"
	"encoding/csv"
	"time"
)

var csvHeader = []string{"occurred_at", "workflow_id", "entity_type", "entity_id", "action", "from_state", "to_state", "principal_id"}

// WriteCSV renders timeline rows as a CSV document.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.OccurredAt.UTC().Format(time.RFC3339),
			row.WorkflowID,
			row.EntityType,
			row.EntityID,
			row.Action,
			row.FromState,
			row.ToState,
			row.PrincipalID,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
