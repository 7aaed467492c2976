package repo

import (
	"context"
	"database/sql"
	"strings"

	"syncline/internal/domain"
)

// InsertAuditEntry appends one audit row. The table is append-only; there is
// deliberately no update or delete counterpart.
func (r Repo) InsertAuditEntry(ctx context.Context, e domain.AuditLogEntry) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO audit_log(id,action,action_category,entity_type,entity_id,details_json,actor_id,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.Action, e.ActionCategory, e.EntityType, nullable(e.EntityID), nullable(e.Details), e.ActorID, e.CreatedAt)
	return err
}

type AuditFilters struct {
	Action          string
	Category        string
	EntityType      string
	EntityID        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListAuditEntries(ctx context.Context, f AuditFilters) ([]domain.AuditLogEntry, error) {
	var clauses []string
	var args []any
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.Category != "" {
		clauses = append(clauses, "action_category=?")
		args = append(args, f.Category)
	}
	if f.EntityType != "" {
		clauses = append(clauses, "entity_type=?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,action,action_category,entity_type,entity_id,details_json,actor_id,created_at FROM audit_log ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		var entityID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.ActionCategory, &e.EntityType, &entityID, &details, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if details.Valid {
			e.Details = details.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// AuditEntriesAfter returns entries created strictly after the cursor row,
// oldest first. Used by the webhook dispatcher.
func (r Repo) AuditEntriesAfter(ctx context.Context, limit int, cursorCreatedAt, cursorID string) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if cursorCreatedAt != "" && cursorID != "" {
		clauses = append(clauses, "(created_at > ? OR (created_at = ? AND id > ?))")
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,action,action_category,entity_type,entity_id,details_json,actor_id,created_at FROM audit_log ` + where + ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		var entityID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.ActionCategory, &e.EntityType, &entityID, &details, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if details.Valid {
			e.Details = details.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestAuditCursor returns the newest (created_at, id) pair, or empty strings
// when the log is empty.
func (r Repo) LatestAuditCursor(ctx context.Context) (string, string, error) {
	var createdAt, id string
	err := r.DB.QueryRowContext(ctx, `SELECT created_at, id FROM audit_log ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&createdAt, &id)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return createdAt, id, nil
}
