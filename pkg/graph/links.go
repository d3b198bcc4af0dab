package graph

import (
	"context"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// mergeLinksCypher upserts one LINKED_TO edge per accepted decision. A newer run
// overwrites the score and run of an existing edge.
const mergeLinksCypher = `
UNWIND $links AS link
MERGE (s:SourceRecord {id: link.record_id})
MERGE (e:Entity {id: link.target_id})
  ON CREATE SET e.entity_type = link.entity_type
MERGE (s)-[r:LINKED_TO {entity_type: link.entity_type}]->(e)
SET r.score = link.score, r.run_id = link.run_id, r.decision_id = link.decision_id
`

type writer interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) error
}

// LinkWriter is a decision sink that keeps only accepted decisions, as graph edges
type LinkWriter struct {
	client writer
	closer func(ctx context.Context) error
	logger ectologger.Logger
}

func NewLinkWriter(client *Client, logger ectologger.Logger) *LinkWriter {
	return &LinkWriter{client: client, closer: client.Close, logger: logger}
}

func (w *LinkWriter) Name() string {
	return "graph"
}

func (w *LinkWriter) Write(ctx context.Context, decisions []models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LinkWriter.Write")
	defer span.End()

	links := linkParams(decisions)
	if len(links) == 0 {
		return nil
	}

	if err := w.client.ExecuteWrite(ctx, mergeLinksCypher, map[string]any{"links": links}); err != nil {
		return errors.Wrap(err, "failed to merge links")
	}

	w.logger.WithContext(ctx).WithField("links", len(links)).Debug("Merged links into graph")
	return nil
}

func (w *LinkWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer(context.Background())
}

// linkParams renders accepted decisions as Bolt-friendly maps
func linkParams(decisions []models.MatchDecision) []map[string]any {
	accepted := ectolinq.Filter(decisions, func(d models.MatchDecision) bool {
		_, ok := d.Link()
		return ok
	})
	return ectolinq.Map(accepted, func(d models.MatchDecision) map[string]any {
		link, _ := d.Link()
		return map[string]any{
			"record_id":   link.RecordID,
			"target_id":   link.TargetID,
			"entity_type": string(link.EntityType),
			"score":       link.Score,
			"run_id":      d.RunID,
			"decision_id": d.ID,
		}
	})
}
