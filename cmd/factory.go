package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/config"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/engine"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/graph"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/guardrail"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/llmclient"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/observability"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/searchclient"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/store"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/taskqueue"
)

// Components holds the initialized services for one pipeline run and
// centralizes their lifecycle.
type Components struct {
	Graph     *graph.Graph
	Guardrail *guardrail.Guardrail
	Queue     *taskqueue.Queue
	Engine    *engine.Engine
	Store     *store.Store
	DBPool    *pgxpool.Pool

	queueCancel context.CancelFunc
}

// Shutdown closes components in dependency order: stop producing work, drain
// the queue, then release the database pool.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Queue != nil && c.queueCancel != nil {
		c.queueCancel()
		c.Queue.Stop()
		logger.Debug("Task queue stopped.")
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}
	logger.Info("All components shut down.")
}

// NewComponents wires the full dependency graph from config. The snapshot
// store is optional: without a database URL the pipeline runs in-memory only.
func NewComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	logger := observability.GetLogger()
	components := &Components{}

	var initErr error
	defer func() {
		if initErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initErr))
			components.Shutdown()
		}
	}()

	components.Graph = graph.New(logger)
	components.Guardrail = guardrail.New(cfg.Guardrail, logger)

	components.Queue = taskqueue.New(cfg.Queue, logger)
	queueCtx, cancel := context.WithCancel(context.Background())
	components.queueCancel = cancel
	components.Queue.Start(queueCtx)
	logger.Debug("Task queue started.")

	llm := llmclient.New(cfg.LLM, logger)
	search := searchclient.New(cfg.Search, logger)

	components.Engine = engine.New(cfg.Engine, engine.Deps{
		Graph:     components.Graph,
		Guardrail: components.Guardrail,
		Queue:     components.Queue,
		Reasoner:  llm,
		Searcher:  search,
		Credentials: schemas.Credentials{
			ReasoningAPIKey: cfg.LLM.APIKey,
			SearchAPIKey:    cfg.Search.APIKey,
		},
		Logger: logger,
	})
	logger.Debug("Stage engine initialized.")

	if cfg.Postgres.URL != "" {
		poolCtx, cancelPool := context.WithTimeout(ctx, 10*time.Second)
		defer cancelPool()

		dbPool, err := pgxpool.New(poolCtx, cfg.Postgres.URL)
		if err != nil {
			initErr = fmt.Errorf("failed to create database connection pool: %w", err)
			return nil, initErr
		}
		components.DBPool = dbPool

		dbStore, err := store.New(poolCtx, dbPool, logger)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize snapshot store: %w", err)
			return nil, initErr
		}
		components.Store = dbStore
		logger.Debug("Snapshot store initialized.")
	} else {
		logger.Debug("No database URL configured, snapshots stay in memory.")
	}

	logger.Info("All components initialized successfully.")
	return components, nil
}
