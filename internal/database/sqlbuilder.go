package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// InsertBuilder renders PostgreSQL inserts with $n placeholders
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflictDoNothing skips rows that collide on columns, or on any constraint when none are given
func (b *InsertBuilder) OnConflictDoNothing(columns ...string) *InsertBuilder {
	if len(columns) == 0 {
		b.SQL("ON CONFLICT DO NOTHING")
		return b
	}
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(columns, ", ")))
	return b
}

// SelectBuilder renders PostgreSQL selects with $n placeholders
type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

// Page bounds a listing: limit falls back to def outside 1..maxLimit and a negative offset is 0
func (b *SelectBuilder) Page(limit, offset, def, maxLimit int) *SelectBuilder {
	if limit < 1 || limit > maxLimit {
		limit = def
	}
	b.Limit(limit)
	if offset > 0 {
		b.Offset(offset)
	}
	return b
}
