package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"workflow-engine/backend/pkg/models"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteStore is an embedded Repository for local runs and tests.
// Uses SQLite with WAL mode; documents are stored as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, code string) (*models.WorkflowGraph, error) {
	var (
		doc   string
		ptime time.Time
	)
	err := s.db.QueryRowContext(ctx, "SELECT document, processing_time FROM workflows WHERE flows_code = ?", code).
		Scan(&doc, &ptime)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	var graph models.WorkflowGraph
	if err := json.Unmarshal([]byte(doc), &graph); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", code, err)
	}
	graph.FlowsCode = code
	graph.ProcessingTime = ptime.UTC()
	return &graph, nil
}

func (s *SQLiteStore) UpsertWorkflow(ctx context.Context, graph *models.WorkflowGraph) error {
	doc, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to encode workflow: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (flows_code, document, processing_time)
		VALUES (?, ?, ?)
		ON CONFLICT(flows_code) DO UPDATE
		SET document = excluded.document, processing_time = excluded.processing_time`,
		graph.FlowsCode, string(doc), graph.ProcessingTime.UTC())
	return err
}

func (s *SQLiteStore) GetTTable(ctx context.Context, appID string) (*models.TTable, error) {
	var (
		doc   string
		ptime time.Time
	)
	err := s.db.QueryRowContext(ctx, "SELECT document, processing_time FROM ttables WHERE app_id = ?", appID).
		Scan(&doc, &ptime)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	var t models.TTable
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("failed to decode ttable %s: %w", appID, err)
	}
	t.AppID = appID
	t.ProcessingTime = ptime.UTC()
	return &t, nil
}

func (s *SQLiteStore) UpsertTTable(ctx context.Context, ttable *models.TTable) error {
	doc, err := json.Marshal(ttable)
	if err != nil {
		return fmt.Errorf("failed to encode ttable: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ttables (app_id, document, processing_time)
		VALUES (?, ?, ?)
		ON CONFLICT(app_id) DO UPDATE
		SET document = excluded.document, processing_time = excluded.processing_time`,
		ttable.AppID, string(doc), ttable.ProcessingTime.UTC())
	return err
}

func (s *SQLiteStore) InsertLog(ctx context.Context, entry *models.ProcessLogEntry) error {
	data, err := encodeData(entry.Data)
	if err != nil {
		return err
	}
	var finish interface{}
	if entry.FinishDate != nil {
		finish = entry.FinishDate.UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO process_logs (`+processLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AppID, entry.TTable, entry.UserID, entry.SourceID, entry.WorkflowID, entry.EdgeID,
		entry.Status, entry.ActionDate.UTC(), finish, string(data), entry.Notes, entry.ProcessingTime.UTC())
	return err
}

// UpdateLogStatus merges data in Go inside a transaction; SQLite's
// json_patch is recursive and would not match the shallow merge of the
// other stores.
func (s *SQLiteStore) UpdateLogStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx, "SELECT data FROM process_logs WHERE id = ?", id).Scan(&raw); err != nil {
		return sqlNotFound(err)
	}
	data, err := decodeData([]byte(raw))
	if err != nil {
		return err
	}
	if data == nil {
		data = make(map[string]interface{}, len(update.Data))
	}
	for k, v := range update.Data {
		data[k] = v
	}
	encoded, err := encodeData(data)
	if err != nil {
		return err
	}

	finish := update.FinishDate.UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE process_logs
		SET status = ?, user_id = ?, finish_date = ?, processing_time = ?, data = ?
		WHERE id = ?`,
		update.Status, update.UserID, finish, finish, string(encoded), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) LatestLogByAppID(ctx context.Context, appID string) (*models.ProcessLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+processLogColumns+` FROM process_logs
		WHERE app_id = ?
		ORDER BY processing_time DESC, id DESC
		LIMIT 1`, appID)
	entry, err := scanSQLiteLog(row)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	return entry, nil
}

func (s *SQLiteStore) LatestLogBySource(ctx context.Context, appID string, workflowID int, sourceID string) (*models.ProcessLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+processLogColumns+` FROM process_logs
		WHERE app_id = ? AND workflow_id = ? AND source_id = ? COLLATE NOCASE
		ORDER BY id DESC
		LIMIT 1`, appID, workflowID, sourceID)
	entry, err := scanSQLiteLog(row)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	return entry, nil
}

func (s *SQLiteStore) DistinctSources(ctx context.Context, appID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT source_id FROM process_logs WHERE app_id = ? ORDER BY source_id", appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (s *SQLiteStore) ListLogsByAppID(ctx context.Context, appID string) ([]*models.ProcessLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+processLogColumns+` FROM process_logs
		WHERE app_id = ?
		ORDER BY id DESC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ProcessLogEntry
	for rows.Next() {
		entry, err := scanSQLiteLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) DeleteLog(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM process_logs WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLog(row rowScanner) (*models.ProcessLogEntry, error) {
	var (
		entry  models.ProcessLogEntry
		finish sql.NullTime
		data   string
	)
	err := row.Scan(&entry.ID, &entry.AppID, &entry.TTable, &entry.UserID, &entry.SourceID, &entry.WorkflowID,
		&entry.EdgeID, &entry.Status, &entry.ActionDate, &finish, &data, &entry.Notes, &entry.ProcessingTime)
	if err != nil {
		return nil, err
	}
	entry.ActionDate = entry.ActionDate.UTC()
	entry.ProcessingTime = entry.ProcessingTime.UTC()
	if finish.Valid {
		t := finish.Time.UTC()
		entry.FinishDate = &t
	}
	if entry.Data, err = decodeData([]byte(data)); err != nil {
		return nil, err
	}
	return &entry, nil
}

func sqlNotFound(err error) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}
