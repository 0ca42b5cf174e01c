package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/semstore/display"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// ConceptCmd maintains concept caches
var ConceptCmd = &cobra.Command{
	Use:   "concept",
	Short: sym.OF + " Maintain concept member caches",
	Long: sym.OF + ` concept - Maintain concept member caches

A concept is a subject in the Concept namespace whose _CONC value is a
condition document. Queries use the cached members while they are fresh.

Examples:
  semstore concept refresh "Big cities"
  semstore concept members "Big cities"
  semstore concept clear "Big cities"`,
}

var conceptRefreshCmd = &cobra.Command{
	Use:   "refresh <name>",
	Short: "Recompute and cache the members of a concept",
	Args:  cobra.ExactArgs(1),
	RunE:  runConceptRefresh,
}

var conceptClearCmd = &cobra.Command{
	Use:   "clear <name>",
	Short: "Drop the cached members of a concept",
	Args:  cobra.ExactArgs(1),
	RunE:  runConceptClear,
}

var conceptMembersCmd = &cobra.Command{
	Use:   "members <name>",
	Short: "List the cached members of a concept",
	Args:  cobra.ExactArgs(1),
	RunE:  runConceptMembers,
}

func init() {
	ConceptCmd.AddCommand(conceptRefreshCmd)
	ConceptCmd.AddCommand(conceptClearCmd)
	ConceptCmd.AddCommand(conceptMembersCmd)
}

func conceptArg(arg string) (types.EntityRef, error) {
	ref, err := pageArg(arg)
	if err != nil {
		return ref, err
	}
	if ref.Namespace == types.NSMain {
		ref.Namespace = types.NSConcept
	}
	return ref, nil
}

func runConceptRefresh(cmd *cobra.Command, args []string) error {
	concept, err := conceptArg(args[0])
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.RefreshConceptCache(cmd.Context(), concept)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{"concept": concept, "members": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d member(s) cached\n", sym.OF, concept, n)
	return nil
}

func runConceptClear(cmd *cobra.Command, args []string) error {
	concept, err := conceptArg(args[0])
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.DeleteConceptCache(cmd.Context(), concept); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: cache cleared\n", sym.OF, concept)
	return nil
}

func runConceptMembers(cmd *cobra.Command, args []string) error {
	concept, err := conceptArg(args[0])
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	members, err := store.ConceptMembers(cmd.Context(), concept)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(members)
	}
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{m.Ref.String()})
	}
	if err := display.Table([]string{"Member"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d cached member(s)\n", sym.OF, len(members))
	return nil
}
