package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"panelmerge/internal/audit"
)

// Store implements audit.Store on PostgreSQL via database/sql (pgx stdlib
// driver). The audit_events table is append-only: this store exposes no
// update or delete path.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema is the DDL for the audit_events table. Applied by deploy tooling;
// exported so integration tests can create the table themselves.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id            UUID PRIMARY KEY,
	actor_id      BIGINT,
	actor_name    TEXT,
	action        TEXT NOT NULL,
	description   TEXT NOT NULL,
	client_ip     TEXT,
	user_agent    TEXT,
	session_id    TEXT,
	request_id    TEXT,
	resource_type TEXT,
	resource_id   TEXT,
	old_values    JSONB,
	new_values    JSONB,
	details       JSONB,
	timestamp     TIMESTAMPTZ NOT NULL,
	success       BOOLEAN NOT NULL DEFAULT TRUE,
	error_message TEXT,
	duration_ms   BIGINT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events (action, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events (actor_id, timestamp DESC);
`

// Append inserts one audit event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, actor_id, actor_name, action, description,
			client_ip, user_agent, session_id, request_id,
			resource_type, resource_id,
			old_values, new_values, details,
			timestamp, success, error_message, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.ActorID,
		nullString(event.ActorName),
		string(event.Action),
		event.Description,
		nullString(event.ClientIP),
		nullString(event.UserAgent),
		nullString(event.SessionID),
		nullString(event.RequestID),
		nullString(event.ResourceType),
		nullString(event.ResourceID),
		nullBytes(event.OldValues),
		nullBytes(event.NewValues),
		nullBytes(event.Details),
		event.Timestamp,
		event.Success,
		nullString(event.ErrorMessage),
		event.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns events matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Action != "" {
		conds = append(conds, "action = "+arg(string(filter.Action)))
	}
	if filter.ActorID != nil {
		conds = append(conds, "actor_id = "+arg(*filter.ActorID))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= "+arg(filter.Since))
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "timestamp <= "+arg(filter.Until))
	}

	query := `
		SELECT id, actor_id, actor_name, action, description,
		       client_ip, user_agent, session_id, request_id,
		       resource_type, resource_id,
		       old_values, new_values, details,
		       timestamp, success, error_message, duration_ms
		FROM audit_events
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event        audit.Event
			actorName    sql.NullString
			clientIP     sql.NullString
			userAgent    sql.NullString
			sessionID    sql.NullString
			requestID    sql.NullString
			resourceType sql.NullString
			resourceID   sql.NullString
			errorMessage sql.NullString
			action       string
		)

		err := rows.Scan(
			&event.ID,
			&event.ActorID,
			&actorName,
			&action,
			&event.Description,
			&clientIP,
			&userAgent,
			&sessionID,
			&requestID,
			&resourceType,
			&resourceID,
			&event.OldValues,
			&event.NewValues,
			&event.Details,
			&event.Timestamp,
			&event.Success,
			&errorMessage,
			&event.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Action = audit.Action(action)
		event.ActorName = actorName.String
		event.ClientIP = clientIP.String
		event.UserAgent = userAgent.String
		event.SessionID = sessionID.String
		event.RequestID = requestID.String
		event.ResourceType = resourceType.String
		event.ResourceID = resourceID.String
		event.ErrorMessage = errorMessage.String

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
