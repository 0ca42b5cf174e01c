package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teranos/semstore/display"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/ask"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sem/yamlio"
	"github.com/teranos/semstore/sym"
)

// AskCmd runs a query document
var AskCmd = &cobra.Command{
	Use:   "ask [file.yaml]",
	Short: sym.AX + " Query subjects by condition",
	Long: sym.AX + ` ask - Query subjects by condition

Reads a query document from the file ("-" for standard input), or a bare
condition from --where.

Example document:
  where:
    and:
      - category: City
      - property: population
        value: ">>1000000"
  sort:
    - property: population
      descending: true
  limit: 10

Examples:
  semstore ask query.yaml
  semstore ask --where 'category: City' --count
  semstore ask query.yaml --debug`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

type askOptions struct {
	where  string
	count  bool
	debug  bool
	limit  int
	offset int
}

var askFlags askOptions

func init() {
	AskCmd.Flags().StringVarP(&askFlags.where, "where", "w", "", "Condition document given inline")
	AskCmd.Flags().BoolVar(&askFlags.count, "count", false, "Print the number of matches only")
	AskCmd.Flags().BoolVar(&askFlags.debug, "debug", false, "Print the query plan instead of running it")
	AskCmd.Flags().IntVar(&askFlags.limit, "limit", 0, "Maximum number of results (negative for no limit)")
	AskCmd.Flags().IntVar(&askFlags.offset, "offset", 0, "Number of results to skip")
}

// askOutput is the JSON form of a query result
type askOutput struct {
	*ask.Result
	Errors []string `json:"errors,omitempty"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	opts := askFlags
	var doc []byte
	if len(args) == 1 {
		b, err := readInput(args[0])
		if err != nil {
			return err
		}
		doc = b
	} else if opts.where == "" {
		return errors.NewInvalidRequestError("give a query file or --where")
	}

	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := runQuery(cmd.Context(), store, doc, opts)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(askOutput{Result: res, Errors: display.Errors(res.Errors)})
	}
	return printResult(cmd.OutOrStdout(), res, opts)
}

// runQuery parses doc (or the --where condition) and runs it
func runQuery(ctx context.Context, store *storage.Store, doc []byte, opts askOptions) (*ask.Result, error) {
	parser := yamlio.NewParser(store.Catalog())

	var q ask.Query
	switch {
	case doc != nil && opts.where != "":
		return nil, errors.NewInvalidRequestError("give either a query file or --where, not both")
	case doc != nil:
		parsed, err := parser.ParseQuery(doc)
		if err != nil {
			return nil, err
		}
		q = parsed
	default:
		desc, err := parser.ParseDescription(opts.where)
		if err != nil {
			return nil, err
		}
		q.Description = desc
	}

	if opts.limit != 0 {
		q.Limit = opts.limit
	}
	if opts.offset != 0 {
		q.Offset = opts.offset
	}
	switch {
	case opts.debug:
		q.Mode = ask.ModeDebug
	case opts.count:
		q.Mode = ask.ModeCount
	}
	return store.Ask(ctx, q)
}

func printResult(w io.Writer, res *ask.Result, opts askOptions) error {
	switch {
	case res.Debug != nil:
		fmt.Fprintf(w, "%s Query plan\n", sym.AX)
		for _, seg := range res.Debug.Segments {
			fmt.Fprintf(w, "  %s\n", seg)
		}
		for _, st := range res.Debug.TempTables {
			fmt.Fprintf(w, "%s %s\n", sym.Temp, st)
		}
		fmt.Fprintln(w, ask.Statement{SQL: res.Debug.SQL, Args: res.Debug.Args})
	case opts.count:
		fmt.Fprintln(w, res.Count)
	default:
		rows := make([][]string, 0, len(res.Results))
		for _, p := range res.Results {
			rows = append(rows, []string{p.Ref.String()})
		}
		if err := display.Table([]string{"Subject"}, rows); err != nil {
			return err
		}
		more := ""
		if res.HasMore {
			more = ", more available"
		}
		fmt.Fprintf(w, "%s %d result(s)%s\n", sym.AX, res.Count, more)
	}
	display.Warnings("query", res.Errors)
	return nil
}
