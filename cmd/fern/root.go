package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	envFile      string
	scoringModel string
	catalogs     []string
	concurrency  int
	continueOn   bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fern",
		Short: "Entity resolution for wartime casualty records",
		Long: `fern links source records to reference entities: municipalities, ranks,
units, occupations, cemeteries and persons. Every record yields one decision
(accepted, ambiguous, rejected or no_candidates) with an explanation of its score.`,
		Version:      version,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before the environment")
	flags.StringVar(&opts.scoringModel, "scoring-model", "", "YAML scoring model overriding the built-in defaults (env SCORING_MODEL_PATH)")
	flags.StringSliceVar(&opts.catalogs, "catalog", nil, "reference catalog file, repeatable (env CATALOG_PATHS)")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "records resolved at once (env ENGINE_CONCURRENCY)")
	flags.BoolVar(&opts.continueOn, "continue-on-error", false, "abort only the failing record on remote failure (env ENGINE_CONTINUE_ON_ERROR)")

	cmd.AddCommand(newResolveCommand(opts))
	cmd.AddCommand(newLinkPersonsCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}
