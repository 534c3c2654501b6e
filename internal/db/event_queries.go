package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Execer is satisfied by both Pool and Tx so events can be written inside or
// outside a pipeline transaction.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
}

// InsertPipelineEvent appends one row to the audit trail. Event writes are
// best-effort observability: callers log failures but never abort a
// transition over them.
func InsertPipelineEvent(ctx context.Context, execer Execer, level, message, functionName string, eventContext map[string]any) error {
	var contextJSON []byte
	if len(eventContext) > 0 {
		encoded, err := json.Marshal(eventContext)
		if err != nil {
			return fmt.Errorf("encode event context: %w", err)
		}
		contextJSON = encoded
	}

	const q = `
INSERT INTO mill.pipeline_events (level, message, context, function_name, created_at)
VALUES ($1, $2, $3::jsonb, $4, now())
`
	if _, err := execer.Exec(ctx, q, level, message, contextJSON, functionName); err != nil {
		return fmt.Errorf("insert pipeline event: %w", err)
	}
	return nil
}

// PipelineEventItem is used by the events CLI command and the HTTP API.
type PipelineEventItem struct {
	PipelineEventID int64           `json:"pipeline_event_id"`
	Level           string          `json:"level"`
	Message         string          `json:"message"`
	Context         json.RawMessage `json:"context,omitempty"`
	FunctionName    string          `json:"function_name"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ListPipelineEvents returns the newest events first.
func (p *Pool) ListPipelineEvents(ctx context.Context, limit int) ([]PipelineEventItem, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	e.pipeline_event_id,
	e.level,
	e.message,
	e.context,
	e.function_name,
	e.created_at
FROM mill.pipeline_events e
ORDER BY e.pipeline_event_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query pipeline events: %w", err)
	}
	defer rows.Close()

	items := make([]PipelineEventItem, 0, limit)
	for rows.Next() {
		var row PipelineEventItem
		var rawContext []byte
		if err := rows.Scan(
			&row.PipelineEventID,
			&row.Level,
			&row.Message,
			&rawContext,
			&row.FunctionName,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pipeline event row: %w", err)
		}
		if len(rawContext) > 0 {
			row.Context = json.RawMessage(rawContext)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline event rows: %w", err)
	}

	return items, nil
}
