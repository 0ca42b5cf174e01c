package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/cmd/semstore/commands"
	"github.com/teranos/semstore/logger"
)

var rootCmd = &cobra.Command{
	Use:   "semstore",
	Short: "semstore - Semantic fact store on a relational database",
	Long: `semstore - Semantic fact store on a relational database

semstore keeps typed property values of subjects in per-kind property
tables, writes them as minimal row diffs and answers condition queries
compiled to SQL.

Available commands:
  am        - Show and validate configuration
  db        - Set up the database and show statistics
  put       - Write fact documents
  get       - Show the stored facts of a subject
  ask       - Query subjects by condition
  redirect  - Redirect one subject to another
  move      - Move a subject to a new title
  concept   - Maintain concept member caches
  rebuild   - Re-run updates for stored subjects

Examples:
  semstore db setup               # Create all tables
  semstore put cities.yaml        # Write facts
  semstore ask query.yaml         # Run a query
  semstore db stats --json        # Show statistics as JSON`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		// config errors are reported by the command itself
		jsonLogs := false
		if cfg, err := am.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		ctx := logger.WithRequestID(cmd.Context(), uuid.NewString())
		cmd.SetContext(logger.WithComponent(ctx, cmd.CommandPath()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.PutCmd)
	rootCmd.AddCommand(commands.DeleteCmd)
	rootCmd.AddCommand(commands.GetCmd)
	rootCmd.AddCommand(commands.AskCmd)
	rootCmd.AddCommand(commands.RedirectCmd)
	rootCmd.AddCommand(commands.MoveCmd)
	rootCmd.AddCommand(commands.ConceptCmd)
	rootCmd.AddCommand(commands.RebuildCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
