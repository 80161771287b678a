// Package cleaner implements GarbageCleaner: the periodic drain that
// simulates a pending cleanup, verifies the result is healthy, and only
// then applies it via the Janitor. This is the primary safety gate of the
// key-lifecycle engine.
package cleaner

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	"go.keyforge.dev/vault/internal/vault/janitor"
	"go.keyforge.dev/vault/internal/vault/metrics"
	"go.keyforge.dev/vault/internal/vault/snapshotbuilder"
	"go.keyforge.dev/vault/internal/vault/store"
)

// CriticalRetryThreshold is the exception-path retry count at which a
// record escalates to CRITICAL.
const CriticalRetryThreshold = 5

// residueCleaner is the capability-checked interface a KeyStore may
// implement; see store.TmpResidueCleaner.
type residueCleaner interface {
	CleanTmpResidue(ctx context.Context) error
}

// Cleaner is the GarbageCleaner component.
type Cleaner struct {
	builder *snapshotbuilder.Builder
	garbage store.GarbageStore
	janitor *janitor.Janitor
	keys    store.KeyStore
	logger  *slog.Logger
}

// New builds a Cleaner.
func New(builder *snapshotbuilder.Builder, garbage store.GarbageStore, j *janitor.Janitor, keys store.KeyStore, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{builder: builder, garbage: garbage, janitor: j, keys: keys, logger: logger}
}

// Run drains every pending garbage record, then performs the
// capability-checked best-effort tmp residue sweep.
func (c *Cleaner) Run(ctx context.Context) error {
	ctx, span := otel.Tracer("").Start(ctx, "vault.cleaner.Run")
	defer span.End()

	records, err := c.garbage.FindPending(ctx)
	if err != nil {
		return &vaultinternal.StoreError{Op: "findPending", Err: err}
	}

	for _, record := range records {
		c.processRecord(ctx, record)
	}

	if rc, ok := c.keys.(residueCleaner); ok {
		if err := rc.CleanTmpResidue(ctx); err != nil {
			c.logger.WarnContext(ctx, "tmp residue cleanup failed", slog.Any("error", err))
		}
	}

	return nil
}

func (c *Cleaner) processRecord(ctx context.Context, record vaultinternal.GarbageRecord) {
	ctx, span := otel.Tracer("").Start(ctx, "vault.cleaner.processRecord", trace.WithAttributes(
		attribute.String("vault.domain", string(record.Domain)),
		attribute.String("vault.garbage_record_id", record.ID),
	))
	defer span.End()

	if err := c.runRecord(ctx, record); err != nil {
		c.escalate(ctx, record, err)
	}
}

func (c *Cleaner) runRecord(ctx context.Context, record vaultinternal.GarbageRecord) error {
	snapshot, err := c.builder.Build(ctx, record.Domain)
	if err != nil {
		return err
	}

	simulated := snapshot.SimulateCleanup(record.GarbageSet)
	if !simulated.IsHealthy() {
		gateErr := &vaultinternal.HealthGateFailure{Domain: record.Domain, Reason: "cleanup simulation breaks domain health"}
		if err := c.garbage.MarkCritical(ctx, record.ID, gateErr.Error()); err != nil {
			c.logger.WarnContext(ctx, "mark critical failed", slog.String("record_id", record.ID), slog.Any("error", err))
		}
		metrics.GarbageCriticalTotal.WithLabelValues(string(record.Domain)).Inc()
		return nil
	}

	remaining := c.apply(ctx, record)

	if remaining.Empty() {
		if err := c.garbage.MarkCleaned(ctx, record.ID); err != nil {
			return &vaultinternal.StoreError{Op: "markCleaned", Err: err}
		}
		return nil
	}

	if err := c.garbage.IncrementRetry(ctx, record.ID, "partial cleanup"); err != nil {
		return &vaultinternal.StoreError{Op: "incrementRetry", Err: err}
	}
	return nil
}

// apply executes the Janitor deletes for each kind in record.GarbageSet,
// returning whatever did not successfully delete.
func (c *Cleaner) apply(ctx context.Context, record vaultinternal.GarbageRecord) vaultinternal.GarbageSet {
	var remaining vaultinternal.GarbageSet

	for _, k := range record.GarbageSet.PrivateKeys {
		if err := c.janitor.DeletePrivate(ctx, record.Domain, k); err != nil {
			c.logger.WarnContext(ctx, "delete private key failed", slog.String("kid", string(k)), slog.Any("error", err))
			remaining.PrivateKeys = append(remaining.PrivateKeys, k)
		}
	}
	for _, k := range record.GarbageSet.PublicKeys {
		if err := c.janitor.DeletePublic(ctx, record.Domain, k); err != nil {
			c.logger.WarnContext(ctx, "delete public key failed", slog.String("kid", string(k)), slog.Any("error", err))
			remaining.PublicKeys = append(remaining.PublicKeys, k)
		}
	}
	for _, k := range record.GarbageSet.OriginMeta {
		if err := c.janitor.DeleteOriginMetadata(ctx, record.Domain, k); err != nil {
			c.logger.WarnContext(ctx, "delete origin metadata failed", slog.String("kid", string(k)), slog.Any("error", err))
			remaining.OriginMeta = append(remaining.OriginMeta, k)
		}
	}
	for _, k := range record.GarbageSet.ArchivedMeta {
		if err := c.janitor.DeleteArchivedMetadata(ctx, k); err != nil {
			c.logger.WarnContext(ctx, "delete archived metadata failed", slog.String("kid", string(k)), slog.Any("error", err))
			remaining.ArchivedMeta = append(remaining.ArchivedMeta, k)
		}
	}

	return remaining
}

// escalate counts an error raised while simulating or applying cleanup
// toward the CRITICAL threshold; a partial-success retry (handled in
// runRecord) does not.
func (c *Cleaner) escalate(ctx context.Context, record vaultinternal.GarbageRecord, err error) {
	c.logger.WarnContext(ctx, "garbage record processing failed", slog.String("record_id", record.ID), slog.Any("error", err))

	if record.Retries+1 >= CriticalRetryThreshold {
		if markErr := c.garbage.MarkCritical(ctx, record.ID, err.Error()); markErr != nil {
			c.logger.WarnContext(ctx, "mark critical failed", slog.String("record_id", record.ID), slog.Any("error", markErr))
		}
		metrics.GarbageCriticalTotal.WithLabelValues(string(record.Domain)).Inc()
		return
	}
	if retryErr := c.garbage.IncrementRetry(ctx, record.ID, err.Error()); retryErr != nil {
		c.logger.WarnContext(ctx, "increment retry failed", slog.String("record_id", record.ID), slog.Any("error", retryErr))
	}
}
