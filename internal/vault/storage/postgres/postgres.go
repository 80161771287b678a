// Package postgres implements store.GarbageStore, store.RotationPolicyStore,
// and store.JwksStore over a Postgres database/sql connection. Garbage sets
// are stored as a JSONB column rather than protojson, since the vault core
// has no protobuf message types to serialize.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

// Store implements store.GarbageStore and store.RotationPolicyStore over a
// single *sql.DB. Callers are expected to have wrapped db with
// sqldb-logger in the same way the rest of the service instruments its
// database connections.
type Store struct {
	db *sql.DB
}

// New builds a Store over db. Schema is assumed pre-migrated:
//
//	CREATE TABLE garbage_records (
//	  id text PRIMARY KEY,
//	  domain text NOT NULL,
//	  snapshot_hash text NOT NULL,
//	  garbage_set jsonb NOT NULL,
//	  status text NOT NULL,
//	  retries int NOT NULL DEFAULT 0,
//	  last_error text,
//	  created_at timestamptz NOT NULL,
//	  updated_at timestamptz NOT NULL
//	);
//	CREATE TABLE rotation_policies (
//	  domain text PRIMARY KEY,
//	  rotation_interval_seconds bigint NOT NULL,
//	  rotated_at timestamptz,
//	  next_rotation_at timestamptz,
//	  enabled boolean NOT NULL DEFAULT true,
//	  active_kid text
//	);
//	CREATE TABLE jwks_keys (
//	  kid text PRIMARY KEY,
//	  jwk jsonb NOT NULL
//	);
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindPending(ctx context.Context) ([]vaultinternal.GarbageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, snapshot_hash, garbage_set, status, retries, last_error, created_at, updated_at
		 FROM garbage_records WHERE status IN ('PENDING', 'CLEANING')`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGarbageRecords(rows)
}

func (s *Store) FindPendingByDomain(ctx context.Context, domain vaultinternal.Domain) (*vaultinternal.GarbageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, domain, snapshot_hash, garbage_set, status, retries, last_error, created_at, updated_at
		 FROM garbage_records WHERE domain = $1 AND status IN ('PENDING', 'CLEANING') LIMIT 1`,
		string(domain),
	)
	record, err := scanGarbageRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Store) Create(ctx context.Context, record vaultinternal.GarbageRecord) error {
	garbageJSON, err := json.Marshal(record.GarbageSet)
	if err != nil {
		return fmt.Errorf("marshal garbage set: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM garbage_records WHERE domain = $1 AND status = 'PENDING'`,
		string(record.Domain),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO garbage_records (id, domain, snapshot_hash, garbage_set, status, retries, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, string(record.Domain), record.SnapshotHash, garbageJSON, string(record.Status),
		record.Retries, nullString(record.LastError), record.CreatedAt, record.UpdatedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) MarkCleaned(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE garbage_records SET status = 'CLEANED', updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	return err
}

func (s *Store) MarkCritical(ctx context.Context, id string, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE garbage_records SET status = 'CRITICAL', last_error = $2, updated_at = $3 WHERE id = $1`,
		id, reason, time.Now().UTC(),
	)
	return err
}

func (s *Store) IncrementRetry(ctx context.Context, id string, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE garbage_records SET retries = retries + 1, last_error = $2, updated_at = $3 WHERE id = $1`,
		id, reason, time.Now().UTC(),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGarbageRecords(rows *sql.Rows) ([]vaultinternal.GarbageRecord, error) {
	var records []vaultinternal.GarbageRecord
	for rows.Next() {
		record, err := scanGarbageRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func scanGarbageRecord(scanner rowScanner) (*vaultinternal.GarbageRecord, error) {
	var (
		id, domain, hash, status string
		garbageJSON              []byte
		retries                  int
		lastError                sql.NullString
		createdAt, updatedAt     time.Time
	)
	if err := scanner.Scan(&id, &domain, &hash, &garbageJSON, &status, &retries, &lastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var garbageSet vaultinternal.GarbageSet
	if err := json.Unmarshal(garbageJSON, &garbageSet); err != nil {
		return nil, fmt.Errorf("unmarshal garbage set: %w", err)
	}

	return &vaultinternal.GarbageRecord{
		ID:           id,
		Domain:       vaultinternal.Domain(domain),
		SnapshotHash: hash,
		GarbageSet:   garbageSet,
		Status:       vaultinternal.GarbageStatus(status),
		Retries:      retries,
		LastError:    lastError.String,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// --- RotationPolicyStore ---

func (s *Store) GetAvailableDomains(ctx context.Context) ([]vaultinternal.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM rotation_policies WHERE enabled = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []vaultinternal.Domain
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, err
		}
		domains = append(domains, vaultinternal.Domain(domain))
	}
	return domains, rows.Err()
}

func (s *Store) Get(ctx context.Context, domain vaultinternal.Domain) (*vaultinternal.RotationPolicy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT domain, rotation_interval_seconds, rotated_at, next_rotation_at, enabled, active_kid
		 FROM rotation_policies WHERE domain = $1`,
		string(domain),
	)

	var (
		rowDomain                string
		intervalSeconds           int64
		rotatedAt, nextRotationAt sql.NullTime
		enabled                   bool
		activeKid                 sql.NullString
	)
	if err := row.Scan(&rowDomain, &intervalSeconds, &rotatedAt, &nextRotationAt, &enabled, &activeKid); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return &vaultinternal.RotationPolicy{
		Domain:           vaultinternal.Domain(rowDomain),
		RotationInterval: time.Duration(intervalSeconds) * time.Second,
		RotatedAt:        rotatedAt.Time,
		NextRotationAt:   nextRotationAt.Time,
		Enabled:          enabled,
		ActiveKid:        vaultinternal.Kid(activeKid.String),
	}, nil
}

func (s *Store) Put(ctx context.Context, policy vaultinternal.RotationPolicy) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rotation_policies (domain, rotation_interval_seconds, rotated_at, next_rotation_at, enabled, active_kid)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (domain) DO UPDATE SET
		   rotation_interval_seconds = EXCLUDED.rotation_interval_seconds,
		   rotated_at = EXCLUDED.rotated_at,
		   next_rotation_at = EXCLUDED.next_rotation_at,
		   enabled = EXCLUDED.enabled,
		   active_kid = EXCLUDED.active_kid`,
		string(policy.Domain), int64(policy.RotationInterval/time.Second),
		policy.RotatedAt, policy.NextRotationAt, policy.Enabled, nullString(string(policy.ActiveKid)),
	)
	return err
}

// --- JwksStore ---

func (s *Store) Upsert(ctx context.Context, kid vaultinternal.Kid, jwk []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jwks_keys (kid, jwk) VALUES ($1, $2)
		 ON CONFLICT (kid) DO UPDATE SET jwk = EXCLUDED.jwk`,
		string(kid), jwk,
	)
	return err
}

func (s *Store) Find(ctx context.Context, kid vaultinternal.Kid) ([]byte, bool, error) {
	var jwk []byte
	err := s.db.QueryRowContext(ctx, `SELECT jwk FROM jwks_keys WHERE kid = $1`, string(kid)).Scan(&jwk)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return jwk, true, nil
}

func (s *Store) Delete(ctx context.Context, kid vaultinternal.Kid) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jwks_keys WHERE kid = $1`, string(kid))
	return err
}
