package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS activity_events (
	id             BIGSERIAL PRIMARY KEY,
	execution_id   TEXT NOT NULL,
	execution_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	content        TEXT NOT NULL,
	agent_context  JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS activity_events_execution_idx
	ON activity_events (execution_id, execution_type, created_at);
`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects, verifies the connection and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure activity schema: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, event Event) error {
	agentContext, err := json.Marshal(event.AgentContext)
	if err != nil {
		return err
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO activity_events (execution_id, execution_type, event_type, content, agent_context, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		event.ExecutionID, event.ExecutionType, event.Type, event.Content, agentContext, createdAt)
	if err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByExecution(ctx context.Context, executionID, executionType string) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT execution_id, execution_type, event_type, content, agent_context, created_at
		 FROM activity_events
		 WHERE execution_id = $1 AND execution_type = $2
		 ORDER BY created_at, id`,
		executionID, executionType)
	if err != nil {
		return nil, fmt.Errorf("query activity events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var agentContext []byte
		if err := rows.Scan(&event.ExecutionID, &event.ExecutionType, &event.Type, &event.Content, &agentContext, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		if err := json.Unmarshal(agentContext, &event.AgentContext); err != nil {
			s.logger.Warn("skipping malformed agent context", "execution", executionID, "error", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
