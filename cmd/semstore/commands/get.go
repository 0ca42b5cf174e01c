package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/semstore/display"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sem/yamlio"
	"github.com/teranos/semstore/sym"
)

// GetCmd prints the stored facts of a subject
var GetCmd = &cobra.Command{
	Use:   "get <title>",
	Short: sym.GET + " Show the stored facts of a subject",
	Long: sym.GET + ` get - Show the stored facts of a subject

The output is a fact document that "put" accepts again.

Examples:
  semstore get Paris
  semstore get Category:City --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	out, warnings, err := getFacts(cmd.Context(), store, args[0])
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		var doc map[string]interface{}
		if err := yaml.Unmarshal(out, &doc); err != nil {
			return errors.Wrap(err, "convert facts")
		}
		return display.OutputJSON(doc)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	display.Warnings(args[0], warnings)
	return nil
}

// getFacts renders the stored facts of title as a YAML document
func getFacts(ctx context.Context, store *storage.Store, title string) ([]byte, []error, error) {
	ref, err := pageArg(title)
	if err != nil {
		return nil, nil, err
	}
	stub, err := store.Read(ctx, ref, storage.ReadOptions{})
	if err != nil {
		return nil, nil, err
	}
	if stub.ID() == 0 {
		return nil, nil, errors.NewNotFoundError("no facts stored for %s", ref)
	}
	out, err := yamlio.MarshalFacts(stub.SemanticData())
	if err != nil {
		return nil, nil, err
	}
	return out, stub.Errors(), nil
}
