// Package collector implements GarbageCollector: the periodic scan that
// builds a DomainSnapshot per domain, hashes it, and records a pending
// garbage set when the hash has changed since the last cycle.
package collector

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	vaultcrypto "go.keyforge.dev/vault/internal/vault/crypto"
	"go.keyforge.dev/vault/internal/vault/metrics"
	"go.keyforge.dev/vault/internal/vault/snapshotbuilder"
	"go.keyforge.dev/vault/internal/vault/store"
)

// LockTTLSeconds is the lease held while building and recording one
// domain's garbage set.
const LockTTLSeconds = 300

// Collector is the GarbageCollector component.
type Collector struct {
	builder  *snapshotbuilder.Builder
	garbage  store.GarbageStore
	policies store.RotationPolicyStore
	locks    store.RotationLock
	logger   *slog.Logger
}

// New builds a Collector.
func New(builder *snapshotbuilder.Builder, garbage store.GarbageStore, policies store.RotationPolicyStore, locks store.RotationLock, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{builder: builder, garbage: garbage, policies: policies, locks: locks, logger: logger}
}

// Run executes one full collection cycle over every enabled domain.
// Failures for one domain are logged and swallowed: the collector is
// advisory and must never break rotation.
func (c *Collector) Run(ctx context.Context) error {
	ctx, span := otel.Tracer("").Start(ctx, "vault.collector.Run")
	defer span.End()

	domains, err := c.policies.GetAvailableDomains(ctx)
	if err != nil {
		return &vaultinternal.StoreError{Op: "getAvailableDomains", Err: err}
	}

	now := time.Now().UTC()
	for _, domain := range domains {
		c.runDomain(ctx, domain, now)
	}
	return nil
}

func (c *Collector) runDomain(ctx context.Context, domain vaultinternal.Domain, now time.Time) {
	ctx, span := otel.Tracer("").Start(ctx, "vault.collector.runDomain", trace.WithAttributes(
		attribute.String("vault.domain", string(domain)),
	))
	defer span.End()

	token, err := c.locks.Acquire(ctx, domain, LockTTLSeconds)
	if err != nil {
		c.logger.WarnContext(ctx, "collector lock acquire failed", slog.String("domain", string(domain)), slog.Any("error", err))
		return
	}
	if token == "" {
		c.logger.InfoContext(ctx, "collector skipping domain, lock held", slog.String("domain", string(domain)), slog.Any("error", vaultinternal.ErrLockUnavailable))
		return
	}
	defer func() {
		if err := c.locks.Release(ctx, domain, token); err != nil {
			c.logger.WarnContext(ctx, "collector lock release failed", slog.String("domain", string(domain)), slog.Any("error", err))
		}
	}()

	snapshot, err := c.builder.Build(ctx, domain)
	if err != nil {
		c.logger.WarnContext(ctx, "collector snapshot build failed", slog.String("domain", string(domain)), slog.Any("error", err))
		return
	}

	hash, err := vaultcrypto.HashSnapshot(snapshot.Canonicalize())
	if err != nil {
		c.logger.WarnContext(ctx, "collector snapshot hash failed", slog.String("domain", string(domain)), slog.Any("error", err))
		return
	}

	existing, err := c.garbage.FindPendingByDomain(ctx, domain)
	if err != nil {
		c.logger.WarnContext(ctx, "collector pending lookup failed", slog.String("domain", string(domain)), slog.Any("error", err))
		return
	}
	if existing != nil && existing.SnapshotHash == hash {
		return
	}

	garbageSet := snapshot.CollectGarbage(now)
	if garbageSet.Empty() {
		return
	}

	record := vaultinternal.GarbageRecord{
		ID:           uuid.NewString(),
		Domain:       domain,
		SnapshotHash: hash,
		GarbageSet:   garbageSet,
		Status:       vaultinternal.GarbageStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.garbage.Create(ctx, record); err != nil {
		c.logger.WarnContext(ctx, "collector garbage record create failed", slog.String("domain", string(domain)), slog.Any("error", err))
		return
	}

	metrics.GarbageCollectedTotal.WithLabelValues(string(domain), "privateKeys").Add(float64(len(garbageSet.PrivateKeys)))
	metrics.GarbageCollectedTotal.WithLabelValues(string(domain), "publicKeys").Add(float64(len(garbageSet.PublicKeys)))
	metrics.GarbageCollectedTotal.WithLabelValues(string(domain), "originMeta").Add(float64(len(garbageSet.OriginMeta)))
	metrics.GarbageCollectedTotal.WithLabelValues(string(domain), "archivedMeta").Add(float64(len(garbageSet.ArchivedMeta)))
}
