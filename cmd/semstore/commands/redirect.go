package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/semstore/display"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// RedirectCmd turns a subject into a redirect
var RedirectCmd = &cobra.Command{
	Use:   "redirect <from> <to>",
	Short: sym.IS + " Redirect one subject to another",
	Long: sym.IS + ` redirect - Redirect one subject to another

The facts of <from> are removed and references to it are moved to <to>.
Lookups of <from> resolve to <to> afterwards.`,
	Args: cobra.ExactArgs(2),
	RunE: runRedirect,
}

// MoveCmd renames a subject
var MoveCmd = &cobra.Command{
	Use:   "move <from> <to>",
	Short: "Move the facts of a subject to a new title",
	Long: `Move the facts of <from> to the title <to>. An existing subject at <to>
is retired first. By default <from> is kept as a redirect to the new title.`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

var keepRedirect bool

func init() {
	MoveCmd.Flags().BoolVar(&keepRedirect, "keep-redirect", true, "Leave a redirect at the old title")
}

func runRedirect(cmd *cobra.Command, args []string) error {
	from, err := pageArg(args[0])
	if err != nil {
		return err
	}
	to, err := pageArg(args[1])
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := store.Update(cmd.Context(), redirectFacts(from, to))
	if err != nil {
		return err
	}
	return printWrites(cmd, []*storage.WriteResult{res})
}

func redirectFacts(from, to types.EntityRef) *types.SemanticData {
	data := types.NewSemanticData(from)
	data.AddValue(types.NewProperty(types.PropRedirect), types.WikiPage{Ref: to})
	return data
}

func runMove(cmd *cobra.Command, args []string) error {
	from, err := pageArg(args[0])
	if err != nil {
		return err
	}
	to, err := pageArg(args[1])
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := store.ChangeTitle(cmd.Context(), from, to, keepRedirect)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s moved to %s (id %d)\n", sym.SUB, from, to, res.ID)
	return nil
}
