package commands

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teranos/semstore/display"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the semstore database",
	Long: sym.DB + ` db - Manage the semstore database

Create the schema and property tables, and inspect what is stored.

Examples:
  semstore db setup               # Create or upgrade all tables
  semstore db stats               # Show subject, property and table counts
  semstore db stats --json        # Same, as JSON`,
}

var dbSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create or upgrade all tables",
	Long:  "Run the migrations and create the property tables of the configured catalog. Running it again is safe.",
	RunE:  runDbSetup,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbSetupCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbSetup(cmd *cobra.Command, args []string) error {
	// opening the store already runs the setup
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	fmt.Fprintf(cmd.OutOrStdout(), "%s Store ready (%s, %d property tables)\n",
		sym.DB, store.Dialect().Name, len(store.Catalog().Tables()))
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := store.Statistics(cmd.Context())
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(stats)
	}
	return printStats(cmd.OutOrStdout(), stats)
}

func printStats(w io.Writer, stats *storage.Statistics) error {
	fmt.Fprintf(w, "%s Database Statistics\n", sym.DB)
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Fprintf(w, "Subjects:   %d\n", stats.Subjects)
	fmt.Fprintf(w, "Subobjects: %d\n", stats.Subobjects)
	fmt.Fprintf(w, "Redirects:  %d\n\n", stats.Redirects)

	rows := make([][]string, 0, len(stats.Properties))
	for _, u := range stats.Properties {
		rows = append(rows, []string{u.Property, strconv.FormatInt(u.ID, 10), strconv.FormatInt(u.Usage, 10)})
	}
	if err := display.Table([]string{"Property", "ID", "Usage"}, rows); err != nil {
		return err
	}

	names := make([]string, 0, len(stats.Tables))
	for name := range stats.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	rows = rows[:0]
	for _, name := range names {
		rows = append(rows, []string{name, strconv.FormatInt(stats.Tables[name], 10)})
	}
	return display.Table([]string{"Table", "Rows"}, rows)
}
