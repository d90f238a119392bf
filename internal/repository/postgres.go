package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workflow-engine/backend/pkg/models"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore is a PostgreSQL implementation of Repository. Graphs and
// TTables are kept as JSONB documents next to their key columns.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables and indexes if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply postgres schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, code string) (*models.WorkflowGraph, error) {
	var (
		doc   []byte
		graph models.WorkflowGraph
	)
	err := s.db.QueryRow(ctx, "SELECT document, processing_time FROM workflows WHERE flows_code = $1", code).
		Scan(&doc, &graph.ProcessingTime)
	if err != nil {
		return nil, pgNotFound(err)
	}
	processingTime := graph.ProcessingTime
	if err := json.Unmarshal(doc, &graph); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", code, err)
	}
	graph.FlowsCode = code
	graph.ProcessingTime = processingTime
	return &graph, nil
}

func (s *PostgresStore) UpsertWorkflow(ctx context.Context, graph *models.WorkflowGraph) error {
	doc, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to encode workflow: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO workflows (flows_code, document, processing_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (flows_code) DO UPDATE
		SET document = EXCLUDED.document, processing_time = EXCLUDED.processing_time`,
		graph.FlowsCode, doc, graph.ProcessingTime)
	return err
}

func (s *PostgresStore) GetTTable(ctx context.Context, appID string) (*models.TTable, error) {
	var (
		doc []byte
		t   models.TTable
	)
	err := s.db.QueryRow(ctx, "SELECT document, processing_time FROM ttables WHERE app_id = $1", appID).
		Scan(&doc, &t.ProcessingTime)
	if err != nil {
		return nil, pgNotFound(err)
	}
	processingTime := t.ProcessingTime
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("failed to decode ttable %s: %w", appID, err)
	}
	t.AppID = appID
	t.ProcessingTime = processingTime
	return &t, nil
}

func (s *PostgresStore) UpsertTTable(ctx context.Context, ttable *models.TTable) error {
	doc, err := json.Marshal(ttable)
	if err != nil {
		return fmt.Errorf("failed to encode ttable: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO ttables (app_id, document, processing_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (app_id) DO UPDATE
		SET document = EXCLUDED.document, processing_time = EXCLUDED.processing_time`,
		ttable.AppID, doc, ttable.ProcessingTime)
	return err
}

func pgNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
