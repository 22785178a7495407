package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"paflow/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the account and writes its identifier, derived from the
// generated primary key, inside the same transaction.
func (s *PostgresStore) Create(ctx context.Context, acct *Account, assignIdentifier func(id int64) string) (*Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create account: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	cp := *acct
	err = tx.QueryRowContext(ctx, `
		INSERT INTO accounts (email, password_hash, full_name, role, scope_id, identifier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', $6, $7)
		RETURNING id
	`, cp.Email, cp.PasswordHash, cp.FullName, cp.Role, cp.ScopeID, cp.CreatedAt, cp.UpdatedAt).Scan(&cp.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	cp.Identifier = assignIdentifier(cp.ID)
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET identifier = $2 WHERE id = $1`, cp.ID, cp.Identifier); err != nil {
		return nil, fmt.Errorf("assign account identifier: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create account: %w", err)
	}
	return &cp, nil
}

const accountColumns = `id, email, password_hash, full_name, role, scope_id, identifier, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
	return scanAccount(row)
}

func (s *PostgresStore) ListByScope(ctx context.Context, scopeID int64) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE scope_id = $1 ORDER BY id`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]*Account, 0)
	for rows.Next() {
		var acct Account
		if err := rows.Scan(&acct.ID, &acct.Email, &acct.PasswordHash, &acct.FullName,
			&acct.Role, &acct.ScopeID, &acct.Identifier, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, &acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func scanAccount(row *sql.Row) (*Account, error) {
	var acct Account
	err := row.Scan(&acct.ID, &acct.Email, &acct.PasswordHash, &acct.FullName,
		&acct.Role, &acct.ScopeID, &acct.Identifier, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &acct, nil
}
