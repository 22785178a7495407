package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paflow/internal/paf/models"
	"paflow/pkg/platform/sentinel"
	platformtx "paflow/pkg/platform/tx"
)

// PostgresStore persists PAFs, their history ledger and the transition outbox
// in PostgreSQL. The store is pure I/O; transition rules live in the
// lifecycle package.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed PAF store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer returns the context transaction when one is open, otherwise the
// pool. Internal helpers all go through this so ExecuteTransition can reuse
// them inside its own transaction.
func (s *PostgresStore) execer(ctx context.Context) dbtx {
	if tx, ok := platformtx.From(ctx); ok {
		return tx
	}
	return s.db
}

const pafColumns = `
	id, display_identifier, licensee_scope_id, creator_id, agent_id,
	jurisdiction, status, paf_type, frequency_code, list_owner_naics,
	agent_signature, list_owner_signature, licensee_signature,
	effective_date, expiration_date, created_at, updated_at`

// Create inserts the PAF and its first history entry in one transaction.
func (s *PostgresStore) Create(ctx context.Context, p *models.PAF, first models.HistoryEntry) (*models.PAF, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create paf: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	ctx = platformtx.WithTx(ctx, tx)

	created, err := s.insertPAF(ctx, p)
	if err != nil {
		return nil, err
	}
	first.PAFID = created.ID
	if err := s.insertHistory(ctx, first); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create paf: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) insertPAF(ctx context.Context, p *models.PAF) (*models.PAF, error) {
	agentSig, listOwnerSig, licenseeSig, err := marshalSignatures(p)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO pafs (
			display_identifier, licensee_scope_id, creator_id, agent_id,
			jurisdiction, status, paf_type, frequency_code, list_owner_naics,
			agent_signature, list_owner_signature, licensee_signature,
			effective_date, expiration_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	cp := p.Clone()
	err = s.execer(ctx).QueryRowContext(ctx, query,
		cp.DisplayIdentifier, cp.LicenseeScopeID, cp.CreatorID, cp.AgentID,
		cp.Jurisdiction, cp.Status, cp.Type, cp.FrequencyCode, cp.ListOwnerNAICS,
		agentSig, listOwnerSig, licenseeSig,
		cp.EffectiveDate, cp.ExpirationDate, cp.CreatedAt, cp.UpdatedAt,
	).Scan(&cp.ID)
	if err != nil {
		return nil, fmt.Errorf("insert paf: %w", err)
	}
	return cp, nil
}

// FindByID loads one PAF without locking.
func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.PAF, error) {
	query := `SELECT` + pafColumns + ` FROM pafs WHERE id = $1`
	p, err := scanPAF(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find paf by id: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) findForUpdate(ctx context.Context, id int64) (*models.PAF, error) {
	query := `SELECT` + pafColumns + ` FROM pafs WHERE id = $1 FOR UPDATE`
	p, err := scanPAF(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find paf for update: %w", err)
	}
	return p, nil
}

// ExecuteTransition applies one lifecycle transition atomically: it locks the
// row, verifies the status precondition, runs apply, and writes the updated
// PAF, the history entry and the outbox event in the same transaction.
// Concurrent attempts serialize on the row lock; losers observe
// sentinel.ErrStateConflict.
func (s *PostgresStore) ExecuteTransition(ctx context.Context, pafID int64, expected models.Status, apply func(*models.PAF) error, entry models.HistoryEntry) (*models.PAF, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	ctx = platformtx.WithTx(ctx, tx)

	p, err := s.findForUpdate(ctx, pafID)
	if err != nil {
		return nil, err
	}
	if p.Status != expected {
		return nil, sentinel.ErrStateConflict
	}
	if err := apply(p); err != nil {
		return nil, err
	}

	if err := s.updatePAF(ctx, p); err != nil {
		return nil, err
	}
	entry.PAFID = p.ID
	if err := s.insertHistory(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.insertOutbox(ctx, p, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) updatePAF(ctx context.Context, p *models.PAF) error {
	agentSig, listOwnerSig, licenseeSig, err := marshalSignatures(p)
	if err != nil {
		return err
	}
	query := `
		UPDATE pafs SET
			display_identifier = $2,
			status = $3,
			paf_type = $4,
			agent_signature = $5,
			list_owner_signature = $6,
			licensee_signature = $7,
			effective_date = $8,
			expiration_date = $9,
			updated_at = $10
		WHERE id = $1
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		p.ID, p.DisplayIdentifier, p.Status, p.Type,
		agentSig, listOwnerSig, licenseeSig,
		p.EffectiveDate, p.ExpirationDate, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update paf: %w", err)
	}
	return nil
}

func (s *PostgresStore) insertHistory(ctx context.Context, entry models.HistoryEntry) error {
	query := `
		INSERT INTO paf_status_history (paf_id, status, notes, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.PAFID, entry.Status, entry.Notes, entry.ActorID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) insertOutbox(ctx context.Context, p *models.PAF, entry models.HistoryEntry) error {
	payload, err := json.Marshal(models.StatusEvent{
		PAFID:             p.ID,
		DisplayIdentifier: p.DisplayIdentifier,
		Status:            p.Status,
		ActorID:           entry.ActorID,
		Notes:             entry.Notes,
		OccurredAt:        entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	query := `
		INSERT INTO paf_outbox (paf_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		p.ID, models.EventStatusChanged, payload, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// History returns the PAF's ledger, oldest first.
func (s *PostgresStore) History(ctx context.Context, pafID int64) ([]models.HistoryEntry, error) {
	query := `
		SELECT id, paf_id, status, notes, actor_id, created_at
		FROM paf_status_history
		WHERE paf_id = $1
		ORDER BY id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pafID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.PAFID, &e.Status, &e.Notes, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// ListByScope returns the scope's PAFs, newest first. status filters when
// non-empty.
func (s *PostgresStore) ListByScope(ctx context.Context, scopeID int64, status models.Status) ([]*models.PAF, error) {
	query := `SELECT` + pafColumns + ` FROM pafs WHERE licensee_scope_id = $1`
	args := []any{scopeID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	return s.queryPAFs(ctx, query, args...)
}

// ListByParty returns the PAFs the actor created or is agent on, newest
// first.
func (s *PostgresStore) ListByParty(ctx context.Context, actorID int64) ([]*models.PAF, error) {
	query := `SELECT` + pafColumns + ` FROM pafs
		WHERE creator_id = $1 OR agent_id = $1
		ORDER BY id DESC`
	return s.queryPAFs(ctx, query, actorID)
}

// CountByStatus returns per-status PAF counts for one scope. Statuses with no
// PAFs are absent from the map.
func (s *PostgresStore) CountByStatus(ctx context.Context, scopeID int64) (map[models.Status]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM pafs
		WHERE licensee_scope_id = $1
		GROUP BY status
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status models.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// CountRenewalDue returns how many active PAFs in the scope expire on or
// before the deadline.
func (s *PostgresStore) CountRenewalDue(ctx context.Context, scopeID int64, deadline time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM pafs
		WHERE licensee_scope_id = $1
		  AND status = $2
		  AND expiration_date IS NOT NULL
		  AND expiration_date <= $3
	`
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, query,
		scopeID, models.StatusValidatedActive, deadline).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count renewal due: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) queryPAFs(ctx context.Context, query string, args ...any) ([]*models.PAF, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pafs: %w", err)
	}
	defer rows.Close()

	var pafs []*models.PAF
	for rows.Next() {
		p, err := scanPAF(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paf: %w", err)
		}
		pafs = append(pafs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pafs: %w", err)
	}
	return pafs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPAF(row scanner) (*models.PAF, error) {
	var p models.PAF
	var agentSig, listOwnerSig, licenseeSig []byte
	err := row.Scan(
		&p.ID, &p.DisplayIdentifier, &p.LicenseeScopeID, &p.CreatorID, &p.AgentID,
		&p.Jurisdiction, &p.Status, &p.Type, &p.FrequencyCode, &p.ListOwnerNAICS,
		&agentSig, &listOwnerSig, &licenseeSig,
		&p.EffectiveDate, &p.ExpirationDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalSignature(agentSig, &p.AgentSignature); err != nil {
		return nil, err
	}
	if err := unmarshalSignature(listOwnerSig, &p.ListOwnerSignature); err != nil {
		return nil, err
	}
	if err := unmarshalSignature(licenseeSig, &p.LicenseeSignature); err != nil {
		return nil, err
	}
	return &p, nil
}

func marshalSignatures(p *models.PAF) (agent, listOwner, licensee []byte, err error) {
	if agent, err = json.Marshal(p.AgentSignature); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal agent signature: %w", err)
	}
	if listOwner, err = json.Marshal(p.ListOwnerSignature); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal list owner signature: %w", err)
	}
	if licensee, err = json.Marshal(p.LicenseeSignature); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal licensee signature: %w", err)
	}
	return agent, listOwner, licensee, nil
}

func unmarshalSignature(raw []byte, sig *models.Signature) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, sig); err != nil {
		return fmt.Errorf("unmarshal signature: %w", err)
	}
	return nil
}
