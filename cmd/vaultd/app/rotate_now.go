package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	vaultinternal "go.keyforge.dev/vault/internal/vault"
	"go.keyforge.dev/vault/internal/vault/janitor"
	"go.keyforge.dev/vault/internal/vault/keymanager"
	"go.keyforge.dev/vault/internal/vault/reaper"
)

func rotateNow() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate-now",
		Short: "Forces an immediate rotation for one domain, or every enabled domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

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

			// Build once against a nil invalidator to obtain a manager, then
			// rebuild the janitor/reaper/manager chain with that manager as the
			// janitor's cache invalidator, matching the wiring serve() uses.
			j := janitor.New(stores.keys, stores.meta, stores.jwks, nil, logger)
			rp := reaper.New(stores.meta, stores.policies, j, keyTTL, graceWindow, logger)
			keys := keymanager.New(stores.keys, stores.meta, stores.jwks, stores.policies, stores.locks, rp, maxPayloadBytes, logger)

			j = janitor.New(stores.keys, stores.meta, stores.jwks, keys, logger)
			rp = reaper.New(stores.meta, stores.policies, j, keyTTL, graceWindow, logger)
			keys = keymanager.New(stores.keys, stores.meta, stores.jwks, stores.policies, stores.locks, rp, maxPayloadBytes, logger)

			ctx := context.Background()

			domain, err := cmd.Flags().GetString("domain")
			if err != nil {
				return err
			}
			if domain == "" {
				return keys.TriggerImmediateRotation(ctx)
			}

			kid, outcome, err := keys.TriggerDomainRotation(ctx, vaultinternal.Domain(domain))
			if err != nil {
				return err
			}
			fmt.Printf("domain=%s kid=%s outcome=%s\n", domain, kid, outcome)
			return nil
		},
	}

	cmd.Flags().String("storage-backend", "memory", "Storage backend to use: memory or hybrid (filesystem keys + Postgres control plane)")
	cmd.Flags().String("storage-dir", "", "Root directory for key/metadata files when using the hybrid storage backend")
	cmd.Flags().String("database", "", "Postgres connection string for garbage/rotation-policy/lock state when using the hybrid storage backend")
	cmd.Flags().Duration("key-ttl", 24*time.Hour, "How long a newly rotated key stays active before its predecessor's grace window begins")
	cmd.Flags().Duration("grace-window", 72*time.Hour, "How long a retired key remains available for verification after rotation")
	cmd.Flags().Int("max-payload-bytes", keymanager.DefaultMaxPayloadBytes, "Maximum accepted Sign request payload size, in bytes")
	cmd.Flags().String("domain", "", "Rotate only this domain; if empty, rotates every enabled domain")

	return cmd
}
