// Package decision persists match decisions in the append-only match_decisions table
package decision

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/internal/database"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

const table = "match_decisions"

const (
	// batchSize keeps one insert well under the Postgres bind parameter limit
	batchSize   = 1000
	defaultPage = 100
	maxPage     = 500
)

var columns = []string{"id", "run_id", "record_id", "entity_type", "status", "best_match", "best_score", "alternatives", "explanation", "created_at"}

type row struct {
	ID           string                               `db:"id"`
	RunID        string                               `db:"run_id"`
	RecordID     string                               `db:"record_id"`
	EntityType   string                               `db:"entity_type"`
	Status       string                               `db:"status"`
	BestMatch    sql.NullString                       `db:"best_match"`
	BestScore    sql.NullFloat64                      `db:"best_score"`
	Alternatives database.JSONB[[]models.Alternative] `db:"alternatives"`
	Explanation  database.JSONB[[]models.RuleDelta]   `db:"explanation"`
	CreatedAt    time.Time                            `db:"created_at"`
}

func toRow(d models.MatchDecision) row {
	r := row{
		ID:           d.ID,
		RunID:        d.RunID,
		RecordID:     d.RecordID,
		EntityType:   string(d.EntityType),
		Status:       string(d.Status),
		Alternatives: database.NewJSONB(d.Alternatives),
		Explanation:  database.NewJSONB(d.Explanation),
		CreatedAt:    d.CreatedAt,
	}
	if r.Alternatives.Data == nil {
		r.Alternatives.Data = []models.Alternative{}
	}
	if r.Explanation.Data == nil {
		r.Explanation.Data = []models.RuleDelta{}
	}
	if d.BestMatch != nil {
		r.BestMatch = sql.NullString{String: *d.BestMatch, Valid: true}
	}
	if d.BestScore != nil {
		r.BestScore = sql.NullFloat64{Float64: *d.BestScore, Valid: true}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return r
}

func (r row) decision() models.MatchDecision {
	d := models.MatchDecision{
		ID:           r.ID,
		RunID:        r.RunID,
		RecordID:     r.RecordID,
		EntityType:   models.EntityType(r.EntityType),
		Status:       models.DecisionStatus(r.Status),
		Alternatives: r.Alternatives.Data,
		Explanation:  r.Explanation.Data,
		CreatedAt:    r.CreatedAt,
	}
	if r.BestMatch.Valid {
		d.BestMatch = &r.BestMatch.String
	}
	if r.BestScore.Valid {
		d.BestScore = &r.BestScore.Float64
	}
	if d.Alternatives == nil {
		d.Alternatives = []models.Alternative{}
	}
	return d
}

// Repository handles decision persistence. Rows are never updated.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Name identifies the repository as a decision sink
func (r *Repository) Name() string {
	return "postgres"
}

// Write appends decisions; a decision ID already stored is left untouched
func (r *Repository) Write(ctx context.Context, decisions []models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.Write")
	defer span.End()

	for start := 0; start < len(decisions); start += batchSize {
		end := min(start+batchSize, len(decisions))
		query, args := insertQuery(decisions[start:end])
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("count", end-start).Error("Failed to insert decisions")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert decisions")
		}
	}

	r.logger.WithContext(ctx).WithField("count", len(decisions)).Debug("Inserted decisions")
	return nil
}

func insertQuery(decisions []models.MatchDecision) (string, []any) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	for _, d := range decisions {
		r := toRow(d)
		ib.Values(r.ID, r.RunID, r.RecordID, r.EntityType, r.Status, r.BestMatch, r.BestScore, r.Alternatives, r.Explanation, r.CreatedAt)
	}
	return ib.OnConflictDoNothing("id").Build()
}

// Close is a no-op; the database handle is owned by the caller
func (r *Repository) Close() error {
	return nil
}

// Get returns one decision by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	if err := r.db.GetContext(ctx, &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "decision %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get decision")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get decision")
	}

	d := out.decision()
	return &d, nil
}

// ListByRecord returns the decisions of a record, newest first. entityType may be empty.
func (r *Repository) ListByRecord(ctx context.Context, recordID string, entityType models.EntityType, limit int) ([]models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.ListByRecord")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("record_id", recordID))
	if entityType != "" {
		sb.Where(sb.Equal("entity_type", string(entityType)))
	}
	sb.OrderBy("created_at DESC", "id")
	sb.Page(limit, 0, defaultPage, maxPage)

	return r.list(ctx, sb)
}

// ListByRun returns the decisions of one run in record order
func (r *Repository) ListByRun(ctx context.Context, runID string, limit, offset int) ([]models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.ListByRun")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("run_id", runID))
	sb.OrderBy("record_id", "entity_type")
	sb.Page(limit, offset, defaultPage, maxPage)

	return r.list(ctx, sb)
}

func (r *Repository) list(ctx context.Context, sb *database.SelectBuilder) ([]models.MatchDecision, error) {
	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list decisions")
	}

	out := make([]models.MatchDecision, len(rows))
	for i, rw := range rows {
		out[i] = rw.decision()
	}
	return out, nil
}
