package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestDecodeRecords(t *testing.T) {
	t.Run("reads one record per line", func(t *testing.T) {
		input := `{"id":"p1","attributes":{"rank":["Korpraali"],"unit":["", "JR 7"]}}

{"id":"p2","attributes":{"death_date":["12.03.1940"]},"links":[{"record_id":"p2","entity_type":"rank","target_id":"r1","score":150}]}
`
		records, err := decodeRecords(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"JR 7"}, records[0].Attributes["unit"])
		link, ok := records[1].LinkFor(models.EntityTypeRank)
		require.True(t, ok)
		assert.Equal(t, "r1", link.TargetID)
	})

	t.Run("rejects a record without id", func(t *testing.T) {
		_, err := decodeRecords(strings.NewReader(`{"attributes":{}}`))
		assert.ErrorContains(t, err, "line 1")
	})

	t.Run("rejects repeated ids", func(t *testing.T) {
		_, err := decodeRecords(strings.NewReader("{\"id\":\"p1\"}\n{\"id\":\"p1\"}\n"))
		assert.ErrorContains(t, err, "already read on line 1")
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		_, err := decodeRecords(strings.NewReader("{\"id\":\"p1\"}\n{nope\n"))
		assert.ErrorContains(t, err, "line 2")
	})
}

func TestReferencePersons(t *testing.T) {
	_, err := referencePersons(catalog.Set{}, "")
	assert.Error(t, err)

	persons, err := catalog.New(models.EntityTypePerson, []catalog.Entry{{ID: "p1", Labels: []string{"Virtanen"}}})
	require.NoError(t, err)
	got, err := referencePersons(catalog.Set{models.EntityTypePerson: persons}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestWriteDecisionsTo(t *testing.T) {
	a := &app{base: &base{cfg: &config.Config{}}}
	a.writeDecisionsTo("")
	assert.Equal(t, "-", a.output)

	a.cfg.OutputPath = "decisions.jsonl"
	a.writeDecisionsTo("")
	assert.Equal(t, "decisions.jsonl", a.output)

	a.writeDecisionsTo("other.jsonl")
	assert.Equal(t, "other.jsonl", a.output)
}

func TestServingBackend_StartingAnswers503(t *testing.T) {
	b := &servingBackend{}
	assert.Empty(t, b.EntityTypes())

	_, err := b.ResolveOne(context.Background(), models.EntityTypeRank, models.SourceRecord{ID: "p1"})
	assert.ErrorIs(t, err, errStarting)

	_, err = b.Get(context.Background(), "d1")
	assert.ErrorIs(t, err, errNoDecisionLog)
	assert.NoError(t, b.Write(context.Background(), []models.MatchDecision{{ID: "d1"}}))
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"resolve", "link-persons", "serve", "migrate"}, names)
}
