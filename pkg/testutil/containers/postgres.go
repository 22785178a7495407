//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance with the
// paflow schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS pafs (
	id                   BIGSERIAL PRIMARY KEY,
	display_identifier   TEXT NOT NULL DEFAULT '',
	licensee_scope_id    BIGINT NOT NULL,
	creator_id           BIGINT NOT NULL,
	agent_id             BIGINT NOT NULL DEFAULT 0,
	jurisdiction         TEXT NOT NULL,
	status               TEXT NOT NULL,
	paf_type             TEXT NOT NULL,
	frequency_code       TEXT NOT NULL,
	list_owner_naics     TEXT NOT NULL,
	agent_signature      JSONB NOT NULL DEFAULT '{}',
	list_owner_signature JSONB NOT NULL DEFAULT '{}',
	licensee_signature   JSONB NOT NULL DEFAULT '{}',
	effective_date       TIMESTAMPTZ,
	expiration_date      TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pafs_scope_status ON pafs (licensee_scope_id, status);
CREATE INDEX IF NOT EXISTS idx_pafs_parties ON pafs (creator_id, agent_id);

CREATE TABLE IF NOT EXISTS paf_status_history (
	id         BIGSERIAL PRIMARY KEY,
	paf_id     BIGINT NOT NULL REFERENCES pafs (id),
	status     TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	actor_id   BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_paf ON paf_status_history (paf_id);

CREATE TABLE IF NOT EXISTS paf_outbox (
	id           BIGSERIAL PRIMARY KEY,
	paf_id       BIGINT NOT NULL,
	event_type   TEXT NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON paf_outbox (id) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS accounts (
	id            BIGSERIAL PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	full_name     TEXT NOT NULL,
	role          TEXT NOT NULL,
	scope_id      BIGINT NOT NULL,
	identifier    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
`

// NewPostgresContainer starts a PostgreSQL container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("paflow_test"),
		tcpostgres.WithUsername("paflow"),
		tcpostgres.WithPassword("paflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	// No t.Cleanup: the container is shared through the singleton Manager
	// and reaped by Ryuk.
	return &PostgresContainer{Container: container, DSN: dsn, DB: db}
}

// TruncateTables empties the given tables and resets their sequences.
// Use between tests to ensure isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("TRUNCATE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
