// Package store persists pipeline snapshots to PostgreSQL. It is a pure
// collaborator: the engine never imports it; cmd hands it the engine's
// snapshot accessors after a run.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can mock the database.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is the PostgreSQL snapshot repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a Store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// SaveSnapshot writes one research session's graph, context and stage
// results in a single transaction.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID string, export schemas.GraphExport, rc *schemas.ResearchContext, results []*schemas.StageResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && rollbackErr != pgx.ErrTxClosed {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.persistSession(ctx, tx, sessionID, export, rc); err != nil {
		return err
	}
	if len(export.Nodes) > 0 {
		if err := s.persistNodes(ctx, tx, sessionID, export.Nodes); err != nil {
			return err
		}
	}
	if len(export.Edges) > 0 {
		if err := s.persistEdges(ctx, tx, sessionID, export.Edges); err != nil {
			return err
		}
	}
	if len(results) > 0 {
		if err := s.persistStageResults(ctx, tx, sessionID, results); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Saved snapshot",
		zap.String("session_id", sessionID),
		zap.Int("nodes", len(export.Nodes)),
		zap.Int("edges", len(export.Edges)),
		zap.Int("stage_results", len(results)))
	return nil
}

func (s *Store) persistSession(ctx context.Context, tx pgx.Tx, sessionID string, export schemas.GraphExport, rc *schemas.ResearchContext) error {
	rcJSON, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("failed to encode research context: %w", err)
	}
	metaJSON, err := json.Marshal(export.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode graph metadata: %w", err)
	}

	sql := `
        INSERT INTO research_sessions (id, research_context, graph_metadata, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET
            research_context = EXCLUDED.research_context,
            graph_metadata = EXCLUDED.graph_metadata,
            updated_at = EXCLUDED.updated_at;
    `
	if _, err := tx.Exec(ctx, sql, sessionID, rcJSON, metaJSON, time.Now()); err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sessionID, err)
	}
	return nil
}

// persistNodes bulk-loads with CopyFrom; the session's previous rows are
// cleared first so the snapshot is authoritative.
func (s *Store) persistNodes(ctx context.Context, tx pgx.Tx, sessionID string, nodes []*schemas.Node) error {
	if _, err := tx.Exec(ctx, `DELETE FROM graph_nodes WHERE session_id = $1;`, sessionID); err != nil {
		return fmt.Errorf("failed to clear previous nodes: %w", err)
	}

	rows := make([][]interface{}, len(nodes))
	for i, n := range nodes {
		metaJSON, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for node %s: %w", n.ID, err)
		}
		confJSON, err := json.Marshal(n.Confidence)
		if err != nil {
			return fmt.Errorf("failed to encode confidence for node %s: %w", n.ID, err)
		}
		rows[i] = []interface{}{
			sessionID, n.ID, n.Label, string(n.Type),
			confJSON, n.Stage, n.Pruned, metaJSON,
			n.CreatedAt, n.UpdatedAt,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"graph_nodes"},
		[]string{"session_id", "id", "label", "type", "confidence", "stage", "pruned", "metadata", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy nodes: %w", err)
	}
	if int(copyCount) != len(nodes) {
		return fmt.Errorf("mismatch in copied node count: expected %d, got %d", len(nodes), copyCount)
	}
	return nil
}

func (s *Store) persistEdges(ctx context.Context, tx pgx.Tx, sessionID string, edges []*schemas.Edge) error {
	sql := `
        INSERT INTO graph_edges (session_id, id, source_id, target_id, type, confidence, stage, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (session_id, id) DO UPDATE SET
            type = EXCLUDED.type,
            confidence = EXCLUDED.confidence;
    `
	for _, e := range edges {
		if _, err := tx.Exec(ctx, sql, sessionID, e.ID, e.SourceID, e.TargetID, string(e.Type), e.Confidence, e.Stage, e.CreatedAt); err != nil {
			return fmt.Errorf("failed to upsert edge %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *Store) persistStageResults(ctx context.Context, tx pgx.Tx, sessionID string, results []*schemas.StageResult) error {
	sql := `
        INSERT INTO stage_results (session_id, stage, name, content, status, metadata, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (session_id, stage) DO UPDATE SET
            content = EXCLUDED.content,
            status = EXCLUDED.status,
            metadata = EXCLUDED.metadata,
            completed_at = EXCLUDED.completed_at;
    `
	for _, r := range results {
		metaJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for stage %d: %w", r.Stage, err)
		}
		if _, err := tx.Exec(ctx, sql, sessionID, r.Stage, r.Name, r.Content, string(r.Status), metaJSON, r.Timestamp); err != nil {
			return fmt.Errorf("failed to upsert stage result %d: %w", r.Stage, err)
		}
	}
	return nil
}

// StageResultsBySession reads back the stored results for one session.
func (s *Store) StageResultsBySession(ctx context.Context, sessionID string) ([]*schemas.StageResult, error) {
	query := `
        SELECT stage, name, content, status, metadata, completed_at
        FROM stage_results
        WHERE session_id = $1
        ORDER BY stage ASC;
    `
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage results: %w", err)
	}
	defer rows.Close()

	var results []*schemas.StageResult
	for rows.Next() {
		var r schemas.StageResult
		var status string
		var metaJSON []byte
		if err := rows.Scan(&r.Stage, &r.Name, &r.Content, &status, &metaJSON, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan stage result row: %w", err)
		}
		r.Status = schemas.StageStatus(status)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for stage %d: %w", r.Stage, err)
			}
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}
