// Package pglock implements store.RotationLock over a Postgres table,
// giving NX+EX semantics (acquire-if-absent-or-expired, with a TTL) using
// only database/sql — no Redis or etcd client appears anywhere in the
// example corpus, so this is the one store port built without a
// third-party backing library (see DESIGN.md).
package pglock

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

// Lock implements store.RotationLock over a single Postgres table:
//
//	CREATE TABLE rotation_locks (
//	  domain text PRIMARY KEY,
//	  token text NOT NULL,
//	  expires_at timestamptz NOT NULL
//	);
type Lock struct {
	db *sql.DB
}

// New builds a Lock over db.
func New(db *sql.DB) *Lock {
	return &Lock{db: db}
}

// Acquire returns a fresh token if domain has no lease or its lease has
// expired, "" otherwise.
func (l *Lock) Acquire(ctx context.Context, domain vaultinternal.Domain, ttlSeconds int) (string, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	token := uuid.NewString()
	expiresAt := now.Add(time.Duration(ttlSeconds) * time.Second)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO rotation_locks (domain, token, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (domain) DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
		 WHERE rotation_locks.expires_at <= $4`,
		string(domain), token, expiresAt, now,
	)
	if err != nil {
		return "", err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if rows == 0 {
		return "", tx.Commit()
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return token, nil
}

// Release deletes domain's lease only if token matches the current holder.
func (l *Lock) Release(ctx context.Context, domain vaultinternal.Domain, token string) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM rotation_locks WHERE domain = $1 AND token = $2`,
		string(domain), token,
	)
	return err
}
