// Package reaper implements ExpiredKeyReaper: archiving a key rotated out of
// active duty, and the scheduled sweep that removes keys whose archive
// window has closed.
package reaper

import (
	"context"
	"log/slog"
	"time"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	"go.keyforge.dev/vault/internal/vault/janitor"
	"go.keyforge.dev/vault/internal/vault/store"
)

// Reaper archives retired keys and sweeps expired ones. TTL and Grace
// together define how long a retired public key remains verifiable after
// rotation.
type Reaper struct {
	meta     store.MetadataStore
	policies store.RotationPolicyStore
	janitor  *janitor.Janitor
	ttl      time.Duration
	grace    time.Duration
	logger   *slog.Logger
}

// New builds a Reaper. ttl is KEY_PUBLIC_TTL and grace is KEY_GRACE; a
// retired key's archived expiry is rotation-time + ttl + grace.
func New(meta store.MetadataStore, policies store.RotationPolicyStore, j *janitor.Janitor, ttl, grace time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{meta: meta, policies: policies, janitor: j, ttl: ttl, grace: grace, logger: logger}
}

// Archive moves prevKid's origin metadata to archived metadata with a
// computed expiry, then deletes the origin record. It does not touch the
// private key: that becomes garbage for the collector to find.
func (r *Reaper) Archive(ctx context.Context, domain vaultinternal.Domain, prevKid vaultinternal.Kid, now time.Time) error {
	origin, err := r.meta.ReadOrigin(ctx, domain, prevKid)
	if err != nil {
		return &vaultinternal.StoreError{Op: "readOrigin", Err: err}
	}
	if origin == nil {
		return nil
	}

	archived := vaultinternal.ArchivedMeta{
		Kid:       prevKid,
		Domain:    domain,
		CreatedAt: origin.CreatedAt,
		ExpiresAt: now.Add(r.ttl).Add(r.grace),
	}
	if err := r.meta.WriteArchive(ctx, archived); err != nil {
		return &vaultinternal.StoreError{Op: "writeArchive", Err: err}
	}
	if err := r.meta.DeleteOrigin(ctx, domain, prevKid); err != nil {
		return &vaultinternal.StoreError{Op: "deleteOrigin", Err: err}
	}
	return nil
}

// SweepExpired runs the scheduled "expired-key-cleanup" task: for every
// enabled domain, remove archived keys whose window has closed. Per-domain
// errors are logged and do not stop the sweep over other domains.
func (r *Reaper) SweepExpired(ctx context.Context, now time.Time) error {
	domains, err := r.policies.GetAvailableDomains(ctx)
	if err != nil {
		return &vaultinternal.StoreError{Op: "getAvailableDomains", Err: err}
	}

	for _, domain := range domains {
		if err := r.janitor.CleanDomain(ctx, domain, now); err != nil {
			r.logger.WarnContext(ctx, "expired key sweep failed for domain", slog.String("domain", string(domain)), slog.Any("error", err))
		}
	}
	return nil
}
