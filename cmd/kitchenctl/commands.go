package main

import (
	"encoding/json"
	"fmt"
	"io"

	"kitchenhub/api/routes"
	"kitchenhub/internal/shared/config"
	"kitchenhub/internal/shared/database"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// connect opens postgres without Redis; the CLI keeps locks in process
func connect() (*config.Config, *gorm.DB, error) {
	cfg := config.Load()
	pg, err := database.OpenPostgreSQL(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pg, nil
}

func services() (*routes.Services, error) {
	cfg, pg, err := connect()
	if err != nil {
		return nil, err
	}
	return routes.BuildServices(cfg, pg, nil, nil)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and lifecycle constraints",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pg, err := connect()
			if err != nil {
				return err
			}
			if err := database.Migrate(pg); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d tables\n", len(database.Models()))
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sweep [overstay|checkout]",
		Short:     "Run a lifecycle sweep once",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"overstay", "checkout"},
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := services()
			if err != nil {
				return err
			}
			out, err := svc.Scheduler.RunNow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [payment-authorization-id]",
		Short: "Pull a payment's state from the processor and apply it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid payment authorization id: %w", err)
			}
			svc, err := services()
			if err != nil {
				return err
			}
			a, err := svc.Payments.Reconcile(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a)
		},
	}
}

func policyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy [location-id]",
		Short: "Show the effective policy for a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid location id: %w", err)
			}
			svc, err := services()
			if err != nil {
				return err
			}
			p, err := svc.Policies.Resolve(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}
