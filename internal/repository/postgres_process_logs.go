package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"workflow-engine/backend/pkg/models"
)

const processLogColumns = `id, app_id, ttable, user_id, source_id, workflow_id, edge_id, status,
	action_date, finish_date, data, notes, processing_time`

func (s *PostgresStore) InsertLog(ctx context.Context, entry *models.ProcessLogEntry) error {
	data, err := encodeData(entry.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO process_logs (`+processLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID, entry.AppID, entry.TTable, entry.UserID, entry.SourceID, entry.WorkflowID, entry.EdgeID,
		entry.Status, entry.ActionDate, entry.FinishDate, data, entry.Notes, entry.ProcessingTime)
	return err
}

func (s *PostgresStore) UpdateLogStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	data, err := encodeData(update.Data)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE process_logs
		SET status = $1, user_id = $2, finish_date = $3, processing_time = $3, data = data || $4::jsonb
		WHERE id = $5`,
		update.Status, update.UserID, update.FinishDate, data, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LatestLogByAppID(ctx context.Context, appID string) (*models.ProcessLogEntry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+processLogColumns+` FROM process_logs
		WHERE app_id = $1
		ORDER BY processing_time DESC, id DESC
		LIMIT 1`, appID)
	entry, err := scanProcessLog(row)
	if err != nil {
		return nil, pgNotFound(err)
	}
	return entry, nil
}

func (s *PostgresStore) LatestLogBySource(ctx context.Context, appID string, workflowID int, sourceID string) (*models.ProcessLogEntry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+processLogColumns+` FROM process_logs
		WHERE app_id = $1 AND workflow_id = $2 AND lower(source_id) = lower($3)
		ORDER BY id DESC
		LIMIT 1`, appID, workflowID, sourceID)
	entry, err := scanProcessLog(row)
	if err != nil {
		return nil, pgNotFound(err)
	}
	return entry, nil
}

func (s *PostgresStore) DistinctSources(ctx context.Context, appID string) ([]string, error) {
	rows, err := s.db.Query(ctx, "SELECT DISTINCT source_id FROM process_logs WHERE app_id = $1 ORDER BY source_id", appID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) ListLogsByAppID(ctx context.Context, appID string) ([]*models.ProcessLogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+processLogColumns+` FROM process_logs
		WHERE app_id = $1
		ORDER BY id DESC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ProcessLogEntry
	for rows.Next() {
		entry, err := scanProcessLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) DeleteLog(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM process_logs WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProcessLog(row pgx.Row) (*models.ProcessLogEntry, error) {
	var (
		entry models.ProcessLogEntry
		data  []byte
	)
	err := row.Scan(&entry.ID, &entry.AppID, &entry.TTable, &entry.UserID, &entry.SourceID, &entry.WorkflowID,
		&entry.EdgeID, &entry.Status, &entry.ActionDate, &entry.FinishDate, &data, &entry.Notes, &entry.ProcessingTime)
	if err != nil {
		return nil, err
	}
	if entry.Data, err = decodeData(data); err != nil {
		return nil, err
	}
	return &entry, nil
}

// encodeData renders a data payload as a JSON object, never null.
func encodeData(data map[string]interface{}) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}
	return raw, nil
}

func decodeData(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}
