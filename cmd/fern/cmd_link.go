package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/linkage"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newLinkPersonsCommand(root *rootOptions) *cobra.Command {
	var input, output, reference, truthPath, modelOut string

	cmd := &cobra.Command{
		Use:   "link-persons",
		Short: "Train the person linker on a batch and link it to the reference persons",
		Long: `link-persons samples record pairs, labels them from the ground truth, trains a
classifier, calibrates its threshold and links every source record that has no person
link yet. Decisions go to the output and to every enabled sink.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			persons, err := referencePersons(a.catalogs, reference)
			if err != nil {
				return err
			}
			if truthPath == "" {
				truthPath = a.cfg.GroundTruthPath
			}
			truth, err := linkage.LoadGroundTruthFile(truthPath)
			if err != nil {
				return err
			}

			if err := a.start(ctx); err != nil {
				return err
			}

			summary, result, err := a.engine.LinkPersons(ctx, records, persons, truth)
			if err != nil {
				return err
			}

			a.logger.WithContext(ctx).WithFields(map[string]any{
				"run_id":        summary.RunID,
				"counts":        summary.Counts,
				"skipped":       len(summary.Skipped),
				"pairs_sampled": result.PairsSampled,
				"pairs_labeled": result.PairsLabeled,
				"pairs_scored":  result.PairsScored,
				"threshold":     result.Model.Calibration.Threshold,
			}).Info("Person linking summary")

			if modelOut != "" {
				return writeModel(modelOut, result.Model)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSONL source person records, - for stdin")
	cmd.Flags().StringVarP(&output, "output", "o", "", "JSONL decisions, - for stdout (env OUTPUT_PATH, default stdout)")
	cmd.Flags().StringVar(&reference, "reference", "", "reference person catalog; defaults to the person catalog among --catalog")
	cmd.Flags().StringVar(&truthPath, "truth", "", "ground truth JSON (env GROUND_TRUTH_PATH)")
	cmd.Flags().StringVar(&modelOut, "model-out", "", "write the trained classifier and calibration as JSON")

	return cmd
}

func referencePersons(catalogs catalog.Set, path string) (*catalog.Catalog, error) {
	if path != "" {
		c, err := catalog.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if c.EntityType() != models.EntityTypePerson {
			return nil, errors.Errorf("reference catalog %s holds %s, not person", path, c.EntityType())
		}
		return c, nil
	}
	c, ok := catalogs.Get(models.EntityTypePerson)
	if !ok {
		return nil, errors.New("no person catalog: pass --reference or a person --catalog")
	}
	return c, nil
}

func writeModel(path string, model *linkage.Model) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "failed to write model to %s", path)
}
