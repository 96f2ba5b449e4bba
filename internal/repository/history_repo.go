package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/confluence-stream/backend/internal/model"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// HistoryRepository provides data access for session history records.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create inserts the opening record of a session.
func (r *HistoryRepository) Create(ctx context.Context, rec *model.SessionRecord) error {
	query := `
		INSERT INTO session_history (id, user_id, confluence_count, analyses, connected_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		nullString(rec.UserID),
		rec.ConfluenceCount,
		rec.Analyses,
		rec.ConnectedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}

	return nil
}

// RecordInit stores the user id and rule count announced by an init message.
func (r *HistoryRepository) RecordInit(ctx context.Context, id, userID string, confluenceCount int) error {
	query := `
		UPDATE session_history
		SET user_id = ?, confluence_count = ?
		WHERE id = ?
	`
	return r.execOne(ctx, "record init", query, nullString(userID), confluenceCount, id)
}

// UpdateConfluenceCount stores the size of a replaced rule set.
func (r *HistoryRepository) UpdateConfluenceCount(ctx context.Context, id string, confluenceCount int) error {
	query := `UPDATE session_history SET confluence_count = ? WHERE id = ?`
	return r.execOne(ctx, "update confluence count", query, confluenceCount, id)
}

// IncrementAnalyses bumps the number of analyses served to a session.
func (r *HistoryRepository) IncrementAnalyses(ctx context.Context, id string) error {
	query := `UPDATE session_history SET analyses = analyses + 1 WHERE id = ?`
	return r.execOne(ctx, "increment analyses", query, id)
}

// Close marks a session as ended. Closing an already closed record keeps
// the first close time and reason.
func (r *HistoryRepository) Close(ctx context.Context, id string, closedAt time.Time, reason model.CloseReason) error {
	query := `
		UPDATE session_history
		SET closed_at = ?, close_reason = ?
		WHERE id = ? AND closed_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, closedAt.UTC(), string(reason), id)
	if err != nil {
		return fmt.Errorf("failed to close session record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	exists, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrSessionNotFound
	}
	return nil
}

// CloseAllOpen closes every record that has no close time, returning how
// many were touched. Used at startup for rows left open by an unclean exit.
func (r *HistoryRepository) CloseAllOpen(ctx context.Context, closedAt time.Time, reason model.CloseReason) (int, error) {
	query := `
		UPDATE session_history
		SET closed_at = ?, close_reason = ?
		WHERE closed_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, closedAt.UTC(), string(reason))
	if err != nil {
		return 0, fmt.Errorf("failed to close open session records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

// GetByID retrieves a session record by its ID.
func (r *HistoryRepository) GetByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	query := `
		SELECT id, user_id, confluence_count, analyses, connected_at, closed_at, close_reason
		FROM session_history
		WHERE id = ?
	`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session record: %w", err)
	}
	return rec, nil
}

// List returns up to limit records, most recently connected first.
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]*model.SessionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, user_id, confluence_count, analyses, connected_at, closed_at, close_reason
		FROM session_history
		ORDER BY connected_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	defer rows.Close()

	records := make([]*model.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session records: %w", err)
	}

	return records, nil
}

// Exists checks if a session record exists.
func (r *HistoryRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT 1 FROM session_history WHERE id = ? LIMIT 1`

	var exists int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session record existence: %w", err)
	}

	return true, nil
}

func (r *HistoryRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.SessionRecord, error) {
	rec := &model.SessionRecord{}
	var userID sql.NullString
	var closedAt sql.NullTime
	var closeReason sql.NullString

	err := row.Scan(
		&rec.ID,
		&userID,
		&rec.ConfluenceCount,
		&rec.Analyses,
		&rec.ConnectedAt,
		&closedAt,
		&closeReason,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		rec.UserID = userID.String
	}

	if closedAt.Valid {
		t := closedAt.Time
		rec.ClosedAt = &t
	}

	if closeReason.Valid {
		rec.CloseReason = model.CloseReason(closeReason.String)
	}

	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
