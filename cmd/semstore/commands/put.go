package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teranos/semstore/display"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sem/yamlio"
	"github.com/teranos/semstore/sym"
)

// PutCmd writes fact documents
var PutCmd = &cobra.Command{
	Use:   "put <file.yaml>...",
	Short: sym.AS + " Write the facts of one or more subjects",
	Long: sym.AS + ` put - Write the facts of one or more subjects

Each YAML document in the files replaces everything stored for its subject.
Unchanged tables are skipped, so writing the same document twice is free.
Use "-" to read from standard input.

Example document:
  subject: Paris
  facts:
    population: 2161000
    located_in: [France, Europe]
    _INST: City
  ---
  subject: Bombay
  redirect: Mumbai`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPut,
}

// DeleteCmd removes subjects
var DeleteCmd = &cobra.Command{
	Use:   "delete <title>...",
	Short: "Remove every fact of the given subjects",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

// writeOutput is the JSON form of a write result
type writeOutput struct {
	*storage.WriteResult
	Warnings []string `json:"warnings,omitempty"`
}

func runPut(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	results, err := putFiles(cmd.Context(), store, args)
	if err != nil {
		return err
	}
	return printWrites(cmd, results)
}

// putFiles decodes every file before writing any of them
func putFiles(ctx context.Context, store *storage.Store, paths []string) ([]*storage.WriteResult, error) {
	loader := yamlio.NewLoader(store.Catalog())
	var results []*storage.WriteResult
	for _, path := range paths {
		b, err := readInput(path)
		if err != nil {
			return nil, err
		}
		docs, err := loader.DecodeBytes(b)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		for _, data := range docs {
			res, err := store.Update(ctx, data)
			if err != nil {
				return results, errors.Wrapf(err, "write %s", data.Subject())
			}
			results = append(results, res)
		}
	}
	return results, nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	var results []*storage.WriteResult
	for _, arg := range args {
		ref, err := pageArg(arg)
		if err != nil {
			return err
		}
		res, err := store.Delete(cmd.Context(), ref)
		if err != nil {
			return err
		}
		results = append(results, res)
	}
	return printWrites(cmd, results)
}

func printWrites(cmd *cobra.Command, results []*storage.WriteResult) error {
	if display.ShouldOutputJSON(cmd) {
		out := make([]writeOutput, 0, len(results))
		for _, r := range results {
			out = append(out, writeOutput{WriteResult: r, Warnings: display.Errors(r.Warnings)})
		}
		return display.OutputJSON(out)
	}
	return writeTable(cmd.OutOrStdout(), results)
}

func writeTable(w io.Writer, results []*storage.WriteResult) error {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "unchanged"
		switch {
		case r.Redirect:
			status = "redirect"
		case r.Mutations() > 0:
			status = "updated"
		}
		rows = append(rows, []string{
			r.Subject.String(),
			strconv.FormatInt(r.ID, 10),
			status,
			strconv.Itoa(r.Inserted),
			strconv.Itoa(r.Deleted),
			fmt.Sprintf("%d/%d", r.ChangedTables, r.ChangedTables+r.SkippedTables),
		})
	}
	if err := display.Table([]string{"Subject", "ID", "Status", "Inserted", "Deleted", "Tables"}, rows); err != nil {
		return err
	}
	for _, r := range results {
		display.Warnings(r.Subject.String(), r.Warnings)
	}
	fmt.Fprintf(w, "%s %d subject(s) written\n", sym.AS, len(results))
	return nil
}
