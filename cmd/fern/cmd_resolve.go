package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newResolveCommand(root *rootOptions) *cobra.Command {
	var input, output string
	var all bool

	cmd := &cobra.Command{
		Use:   "resolve [entity-type]",
		Short: "Resolve a batch of source records against one entity type, or all of them",
		Long: `Resolve reads JSONL source records and writes one decision per record and entity
type to the output and to every enabled sink (Postgres, Kafka, Neo4j).

Entity types: municipality, rank, unit, occupation, cemetery. Persons are linked
with the link-persons command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give exactly one entity type or --all")
			}

			ctx := cmd.Context()
			records, err := readRecords(input)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close(ctx)
			a.writeDecisionsTo(output)
			if err := a.start(ctx); err != nil {
				return err
			}

			var summaries []*engine.RunSummary
			if all {
				summaries, err = a.engine.RunAll(ctx, records)
			} else {
				var summary *engine.RunSummary
				summary, err = a.engine.Run(ctx, models.EntityType(args[0]), records)
				summaries = append(summaries, summary)
			}
			if err != nil {
				return err
			}

			for _, s := range summaries {
				if s == nil {
					continue
				}
				a.logger.WithContext(ctx).WithFields(map[string]any{
					"run_id":      s.RunID,
					"entity_type": s.EntityType,
					"records":     s.Records,
					"counts":      s.Counts,
					"failed":      s.Failed,
				}).Info("Pass summary")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSONL source records, - for stdin")
	cmd.Flags().StringVarP(&output, "output", "o", "", "JSONL decisions, - for stdout (env OUTPUT_PATH, default stdout)")
	cmd.Flags().BoolVar(&all, "all", false, "run every entity type concurrently")

	return cmd
}
