package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recscribe/internal/models"
)

// RecordEdit appends an entry to the edit log.
func RecordEdit(ctx context.Context, db *sql.DB, userID int64, transcriptKey string, segments int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO edit_log (user_id, transcript_key, segments, created_at) VALUES (?, ?, ?, ?)`,
		userID, transcriptKey, segments, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record edit: %w", err)
	}
	return nil
}

// ListEdits returns the edit history of a transcript, newest first.
func ListEdits(ctx context.Context, db *sql.DB, transcriptKey string) ([]*models.EditRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, transcript_key, segments, created_at FROM edit_log WHERE transcript_key = ? ORDER BY id DESC`,
		transcriptKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}
	defer rows.Close()

	var edits []*models.EditRecord
	for rows.Next() {
		var e models.EditRecord
		if err := rows.Scan(&e.ID, &e.UserID, &e.TranscriptKey, &e.Segments, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		edits = append(edits, &e)
	}
	return edits, rows.Err()
}
