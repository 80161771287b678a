package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"google.golang.org/grpc"

	rpcerrors "go.keyforge.dev/vault/internal/grpcapi/errors"
	grpchealth "go.keyforge.dev/vault/internal/grpcapi/health"
	grpclogging "go.keyforge.dev/vault/internal/grpcapi/logging"
	"go.keyforge.dev/vault/internal/grpcapi/recovery"
	"go.keyforge.dev/vault/internal/httpapi"
	"go.keyforge.dev/vault/internal/tracing"
	"go.keyforge.dev/vault/internal/vault/cleaner"
	"go.keyforge.dev/vault/internal/vault/collector"
	"go.keyforge.dev/vault/internal/vault/janitor"
	"go.keyforge.dev/vault/internal/vault/keymanager"
	"go.keyforge.dev/vault/internal/vault/reaper"
	"go.keyforge.dev/vault/internal/vault/scheduler"
	"go.keyforge.dev/vault/internal/vault/snapshotbuilder"
	"go.keyforge.dev/vault/internal/vault/storage/filekeys"
	"go.keyforge.dev/vault/internal/vault/storage/filemeta"
	"go.keyforge.dev/vault/internal/vault/storage/memory"
	"go.keyforge.dev/vault/internal/vault/storage/pglock"
	"go.keyforge.dev/vault/internal/vault/storage/postgres"
	"go.keyforge.dev/vault/internal/vault/store"
)

// approxMonth backs the garbage-collection/cleaning interval defaults,
// which only need to be "about four months", not calendar-accurate.
const approxMonth = 30 * 24 * time.Hour

func mustStringFlag(flags *pflag.FlagSet, flagName string) string {
	val, err := flags.GetString(flagName)
	if err != nil {
		panic(err)
	}
	return val
}

// vaultStores bundles the store-port implementations one backend
// configuration wires together.
type vaultStores struct {
	keys     store.KeyStore
	meta     store.MetadataStore
	jwks     store.JwksStore
	garbage  store.GarbageStore
	policies store.RotationPolicyStore
	locks    store.RotationLock
}

func buildStores(cmd *cobra.Command) (*vaultStores, error) {
	backend := mustStringFlag(cmd.Flags(), "storage-backend")

	switch backend {
	case "memory":
		mem := memory.New()
		return &vaultStores{
			keys:     mem,
			meta:     mem,
			jwks:     mem,
			garbage:  mem,
			policies: mem,
			locks:    memory.NewLock(),
		}, nil

	case "hybrid":
		storageDir := mustStringFlag(cmd.Flags(), "storage-dir")
		if storageDir == "" {
			return nil, fmt.Errorf("--storage-dir is required for the hybrid storage backend")
		}
		dsn := mustStringFlag(cmd.Flags(), "database")
		if dsn == "" {
			return nil, fmt.Errorf("--database is required for the hybrid storage backend")
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		db = sqldblogger.OpenDriver(dsn, db.Driver(), loggerFunc(func(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
			slog.DebugContext(ctx, msg, slog.Any("data", data))
		}))

		keys := filekeys.New(storageDir)
		pg := postgres.New(db)
		return &vaultStores{
			keys:     keys,
			meta:     filemeta.New(storageDir),
			jwks:     keys,
			garbage:  pg,
			policies: pg,
			locks:    pglock.New(db),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q (want memory or hybrid)", backend)
	}
}

type loggerFunc func(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{})

func (l loggerFunc) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	l(ctx, level, msg, data)
}

func serve() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the signing vault's gRPC health service and sign/JWKS/rotate HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: false,
			}))
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := tracing.Configure(ctx, resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String("vault.keyforge.dev"),
			)); err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}

			stores, err := buildStores(cmd)
			if err != nil {
				return err
			}

			keyTTL, err := cmd.Flags().GetDuration("key-ttl")
			if err != nil {
				return err
			}
			graceWindow, err := cmd.Flags().GetDuration("grace-window")
			if err != nil {
				return err
			}
			maxPayloadBytes, err := cmd.Flags().GetInt("max-payload-bytes")
			if err != nil {
				return err
			}
			rotationCheckInterval, err := cmd.Flags().GetDuration("rotation-check-interval")
			if err != nil {
				return err
			}
			gcInterval, err := cmd.Flags().GetDuration("gc-interval")
			if err != nil {
				return err
			}
			cleaningInterval, err := cmd.Flags().GetDuration("cleaning-interval")
			if err != nil {
				return err
			}
			reaperInterval, err := cmd.Flags().GetDuration("reaper-interval")
			if err != nil {
				return err
			}

			// The janitor needs to invalidate the manager's caches on delete, and
			// the manager needs a janitor-backed reaper to archive a retired key
			// on rotation. Build the janitor first against a nil invalidator, then
			// rebuild it once the manager exists so both sides see each other.
			j := janitor.New(stores.keys, stores.meta, stores.jwks, nil, logger)
			rp := reaper.New(stores.meta, stores.policies, j, keyTTL, graceWindow, logger)
			keys := keymanager.New(stores.keys, stores.meta, stores.jwks, stores.policies, stores.locks, rp, maxPayloadBytes, logger)

			j = janitor.New(stores.keys, stores.meta, stores.jwks, keys, logger)
			rp = reaper.New(stores.meta, stores.policies, j, keyTTL, graceWindow, logger)
			keys = keymanager.New(stores.keys, stores.meta, stores.jwks, stores.policies, stores.locks, rp, maxPayloadBytes, logger)

			builder := snapshotbuilder.New(stores.keys, stores.meta, stores.policies)
			col := collector.New(builder, stores.garbage, stores.policies, stores.locks, logger)
			clean := cleaner.New(builder, stores.garbage, j, stores.keys, logger)

			sched := scheduler.New(logger)
			sched.Register(scheduler.Task{
				Name:     "key-rotation",
				Interval: rotationCheckInterval,
				Run: func(ctx context.Context) error {
					return keys.ScheduleRotation(ctx, time.Now().UTC())
				},
			})
			sched.Register(scheduler.Task{
				Name:     "expired-key-reaper",
				Interval: reaperInterval,
				Run: func(ctx context.Context) error {
					return rp.SweepExpired(ctx, time.Now().UTC())
				},
			})
			sched.Register(scheduler.Task{
				Name:     "garbage-collection",
				Interval: gcInterval,
				Run:      col.Run,
			})
			sched.Register(scheduler.Task{
				Name:     "garbage-cleaning",
				Interval: cleaningInterval,
				Run:      clean.Run,
			})
			sched.Start(ctx)
			defer sched.Stop()

			grpcListener, err := net.Listen("tcp", mustStringFlag(cmd.Flags(), "grpc-addr"))
			if err != nil {
				return err
			}

			grpcServer := grpc.NewServer(
				grpc.ChainUnaryInterceptor(
					rpcerrors.InternalErrorsInterceptor(logger),
					recovery.UnaryServerInterceptor(),
					grpclogging.UnaryServerInterceptor(logger),
				),
				grpc.StatsHandler(otelgrpc.NewServerHandler()),
			)
			grpchealth.Register(grpcServer)

			go func() {
				logger.InfoContext(ctx, "starting gRPC health service", slog.String("address", grpcListener.Addr().String()))
				if err := grpcServer.Serve(grpcListener); err != nil {
					logger.ErrorContext(ctx, "gRPC server stopped", slog.Any("error", err))
				}
			}()

			httpServer := httpapi.New(mustStringFlag(cmd.Flags(), "http-addr"), keys, logger)
			httpErrCh := make(chan error, 1)
			go func() {
				httpErrCh <- httpServer.Start(ctx)
			}()

			<-ctx.Done()
			logger.InfoContext(ctx, "shutdown signal received, stopping servers")
			grpcServer.GracefulStop()

			if err := <-httpErrCh; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("storage-backend", "memory", "Storage backend to use: memory or hybrid (filesystem keys + Postgres control plane)")
	cmd.Flags().String("storage-dir", "", "Root directory for key/metadata files when using the hybrid storage backend")
	cmd.Flags().String("database", "", "Postgres connection string for garbage/rotation-policy/lock state when using the hybrid storage backend")

	cmd.Flags().String("grpc-addr", ":8443", "Listen address for the gRPC health service")
	cmd.Flags().String("http-addr", ":8444", "Listen address for the sign/JWKS/rotate/health/metrics HTTP API")

	cmd.Flags().Duration("key-ttl", 24*time.Hour, "How long a newly rotated key stays active before its predecessor's grace window begins")
	cmd.Flags().Duration("grace-window", 72*time.Hour, "How long a retired key remains available for verification after rotation")
	cmd.Flags().Int("max-payload-bytes", keymanager.DefaultMaxPayloadBytes, "Maximum accepted Sign request payload size, in bytes")

	cmd.Flags().Duration("rotation-check-interval", 24*time.Hour, "How often the scheduler checks every domain for a due rotation")
	cmd.Flags().Duration("reaper-interval", 6*time.Hour, "How often the scheduler sweeps domains for archived keys past their grace window")
	cmd.Flags().Duration("gc-interval", 4*approxMonth, "How often the scheduler runs garbage collection over every domain's snapshot")
	cmd.Flags().Duration("cleaning-interval", 4*approxMonth+time.Hour, "How often the scheduler applies pending garbage records to storage")

	return cmd
}
