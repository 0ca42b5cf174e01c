package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/teranos/semstore/display"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sym"
)

// RebuildCmd re-runs the update of every stored subject
var RebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: sym.Rebuild + " Re-run updates for stored subjects",
	Long: sym.Rebuild + ` rebuild - Re-run updates for stored subjects

Reads every subject back from the property tables and writes it again.
Consistent subjects produce no writes. Missing table hashes and usage
counts are recomputed, and values that no longer read back are dropped.

Examples:
  semstore rebuild                # Rebuild everything
  semstore rebuild --rate 50      # At most 50 subjects per second
  semstore rebuild --from 1200    # Resume after subject id 1200`,
	RunE: runRebuild,
}

type rebuildOptions struct {
	rate  float64
	batch int
	from  int64
}

// RebuildSummary is the outcome of a rebuild run
type RebuildSummary struct {
	Visited int   `json:"visited"`
	Changed int   `json:"changed"`
	Failed  int   `json:"failed"`
	LastID  int64 `json:"last_id"`
}

var rebuildFlags rebuildOptions

func init() {
	RebuildCmd.Flags().Float64Var(&rebuildFlags.rate, "rate", 0, "Subjects per second (0 for no limit)")
	RebuildCmd.Flags().IntVar(&rebuildFlags.batch, "batch", 100, "Subjects listed per round trip")
	RebuildCmd.Flags().Int64Var(&rebuildFlags.from, "from", 0, "Start after this subject id")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	jsonOutput := display.ShouldOutputJSON(cmd)
	var spinner *pterm.SpinnerPrinter
	if !jsonOutput {
		spinner, _ = pterm.DefaultSpinner.Start("Rebuilding subjects...")
	}
	summary, err := rebuild(cmd.Context(), store, rebuildFlags, func(s RebuildSummary) {
		if spinner != nil {
			spinner.UpdateText(fmt.Sprintf("Rebuilding subjects... %d visited, %d changed", s.Visited, s.Changed))
		}
	})
	if spinner != nil {
		if err != nil {
			spinner.Fail(fmt.Sprintf("Rebuild stopped after subject id %d", summary.LastID))
		} else {
			spinner.Success(fmt.Sprintf("Rebuilt %d subjects (%d changed, %d failed)", summary.Visited, summary.Changed, summary.Failed))
		}
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return display.OutputJSON(summary)
	}
	return nil
}

// rebuild pages through the stored subjects and refreshes each of them.
// Failing subjects are logged and skipped; cancelling ctx stops the run
// with LastID set to the last subject handled.
func rebuild(ctx context.Context, store *storage.Store, opts rebuildOptions, progress func(RebuildSummary)) (RebuildSummary, error) {
	log := logger.ComponentLogger("rebuild")
	limit := rate.Inf
	if opts.rate > 0 {
		limit = rate.Limit(opts.rate)
	}
	limiter := rate.NewLimiter(limit, 1)
	if opts.batch <= 0 {
		opts.batch = 100
	}

	summary := RebuildSummary{LastID: opts.from}
	for {
		refs, err := store.Subjects(ctx, summary.LastID, opts.batch)
		if err != nil {
			return summary, err
		}
		if len(refs) == 0 {
			break
		}
		for _, ref := range refs {
			if err := limiter.Wait(ctx); err != nil {
				return summary, err
			}
			res, err := store.Refresh(ctx, ref.Ref)
			summary.Visited++
			summary.LastID = ref.ID
			switch {
			case err != nil:
				summary.Failed++
				log.Warnw("Rebuild of subject failed", logger.FieldSymbol, sym.Rebuild, logger.FieldSubject, ref.Ref.String(), logger.FieldSubjectID, ref.ID, logger.FieldError, err)
			case res.Mutations() > 0:
				summary.Changed++
				log.Infow("Rebuild changed subject", logger.FieldSymbol, sym.Rebuild, logger.FieldSubject, ref.Ref.String(), "mutations", res.Mutations())
			}
		}
		if progress != nil {
			progress(summary)
		}
	}
	log.Infow("Rebuild finished", logger.FieldSymbol, sym.Rebuild, "visited", summary.Visited, "changed", summary.Changed, "failed", summary.Failed)
	return summary, nil
}
