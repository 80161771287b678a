package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
)

type lease struct {
	token   string
	expires time.Time
}

// Lock implements store.RotationLock over a map guarded by a mutex, with
// NX+EX semantics: Acquire fails if a non-expired lease already exists.
type Lock struct {
	mu     sync.Mutex
	leases map[vaultinternal.Domain]lease
}

// NewLock builds an empty in-memory Lock.
func NewLock() *Lock {
	return &Lock{leases: map[vaultinternal.Domain]lease{}}
}

// Acquire returns a fresh token, or "" if the domain's lease hasn't expired.
func (l *Lock) Acquire(_ context.Context, domain vaultinternal.Domain, ttlSeconds int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if existing, ok := l.leases[domain]; ok && existing.expires.After(now) {
		return "", nil
	}

	token := uuid.NewString()
	l.leases[domain] = lease{token: token, expires: now.Add(time.Duration(ttlSeconds) * time.Second)}
	return token, nil
}

// Release deletes the lease only if token matches the current holder.
func (l *Lock) Release(_ context.Context, domain vaultinternal.Domain, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.leases[domain]
	if !ok || existing.token != token {
		return nil
	}
	delete(l.leases, domain)
	return nil
}
