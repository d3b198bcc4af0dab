package candidates

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ValuesPlaceholder is replaced by the batch of quoted literals in a grouped query template
const ValuesPlaceholder = "{{values}}"

type sparqlResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

func (c *Client) decodeBindings(ctx context.Context, body []byte) ([]models.CandidateRecord, error) {
	data, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}

	var parsed sparqlResults
	if err := remarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(ErrInvalidResponse, err.Error())
	}
	if parsed.Results == nil {
		return nil, errors.Wrap(ErrInvalidResponse, "missing results")
	}

	records := make([]models.CandidateRecord, 0, len(parsed.Results.Bindings))
	for _, row := range parsed.Results.Bindings {
		id, ok := row[c.cfg.StructuredIDVar]
		if !ok || id.Value == "" {
			// Aggregating queries return one empty row when nothing matched
			c.logger.WithContext(ctx).WithField("service", c.cfg.Service).Debug("Skipping structured row without id")
			continue
		}

		record := models.CandidateRecord{ID: id.Value, Properties: make(map[string][]string, len(row))}
		for name, binding := range row {
			if name == c.cfg.StructuredIDVar || binding.Value == "" {
				continue
			}
			record.Properties[name] = []string{binding.Value}
		}
		records = append(records, record)
	}

	return records, nil
}

// QueryGrouped runs template once per batch of keys and groups the rows by the keyVar binding.
// Keys without rows are absent from the result. Rows keyed outside the queried batch are ignored.
func (c *Client) QueryGrouped(ctx context.Context, template, keyVar string, keys []string) (map[string][]models.CandidateRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "candidates.Client.QueryGrouped")
	defer span.End()

	if !strings.Contains(template, ValuesPlaceholder) {
		return nil, errors.Errorf("query template has no %s placeholder", ValuesPlaceholder)
	}

	unique := uniqueSorted(keys)
	grouped := make(map[string][]models.CandidateRecord, len(unique))

	for start := 0; start < len(unique); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(unique))
		query := strings.ReplaceAll(template, ValuesPlaceholder, ValuesClause(unique[start:end]))

		records, err := c.QueryStructured(ctx, query)
		if err != nil {
			return nil, errors.Wrapf(err, "grouped query batch %d-%d", start, end)
		}

		batch := make(map[string]bool, end-start)
		for _, key := range unique[start:end] {
			batch[key] = true
		}
		for _, record := range records {
			values, ok := record.Property(keyVar)
			// Rows keyed outside this batch were not asked for
			if !ok || !batch[values[0]] {
				continue
			}
			grouped[values[0]] = append(grouped[values[0]], record)
		}
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"service": c.cfg.Service,
		"keys":    len(unique),
		"matched": len(grouped),
	}).Debug("Grouped structured query finished")

	return grouped, nil
}

// ValuesClause renders literals as a space-separated list of quoted, escaped strings
func ValuesClause(literals []string) string {
	quoted := make([]string, len(literals))
	escaper := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
	for i, l := range literals {
		quoted[i] = `"` + escaper.Replace(l) + `"`
	}
	return strings.Join(quoted, " ")
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
