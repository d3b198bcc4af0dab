package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func intPtr(i int) *int { return &i }

func TestCatalogLookup(t *testing.T) {
	ranks, err := New(models.EntityTypeRank, []Entry{
		{ID: "ranks/Sotamies", Labels: []string{"Sotamies", "Sot"}, Level: intPtr(1)},
		{ID: "ranks/Korpraali", Labels: []string{"Korpraali"}, Level: intPtr(2)},
		{ID: "ranks/Kapteeni", Labels: []string{"Kapteeni"}, Level: intPtr(8)},
	})
	require.NoError(t, err)

	t.Run("label lookup is case insensitive", func(t *testing.T) {
		got := ranks.Lookup("KAPTEENI")
		require.Len(t, got, 1)
		assert.Equal(t, "ranks/Kapteeni", got[0].ID)
	})

	t.Run("level by id or label", func(t *testing.T) {
		level, ok := ranks.Level("ranks/Korpraali")
		require.True(t, ok)
		assert.Equal(t, 2, level)

		level, ok = ranks.Level("sot")
		require.True(t, ok)
		assert.Equal(t, 1, level)

		_, ok = ranks.Level("Eversti")
		assert.False(t, ok)
	})

	t.Run("candidate carries level", func(t *testing.T) {
		entry, ok := ranks.Get("ranks/Kapteeni")
		require.True(t, ok)
		c := entry.Candidate()
		assert.Equal(t, []string{"8"}, c.Properties["level"])
		assert.Equal(t, []string{"Kapteeni"}, c.Properties["label"])
	})
}

func TestCatalogMunicipalityNames(t *testing.T) {
	munics, err := New(models.EntityTypeMunicipality, []Entry{
		{ID: "m1", Current: "Porvoo", Wartime: "Porvoon mlk"},
		{ID: "m2", Labels: []string{"Porvoo"}},
	})
	require.NoError(t, err)

	got := munics.Lookup("porvoon MLK")
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)

	assert.Len(t, munics.Lookup("Porvoo"), 2)
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	_, err := New(models.EntityTypeRank, []Entry{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		c, err := Load(strings.NewReader(`
entity_type: rank
entries:
  - id: ranks/Sotamies
    labels: [Sotamies]
    level: 1
`))
		require.NoError(t, err)
		assert.Equal(t, models.EntityTypeRank, c.EntityType())
		assert.Equal(t, 1, c.Len())
	})

	t.Run("json", func(t *testing.T) {
		c, err := Load(strings.NewReader(`{"entity_type": "person", "entries": [{"id": "p1", "attributes": {"family": ["Virtanen"]}}]}`))
		require.NoError(t, err)
		entry, ok := c.Get("p1")
		require.True(t, ok)
		assert.Equal(t, []string{"Virtanen"}, entry.Attributes["family"])
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"entity_type": "rank", "entries": [{"labels": ["x"]}]}`))
		assert.Error(t, err)
	})

	t.Run("unknown entity type", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"entity_type": "ship", "entries": []}`))
		assert.Error(t, err)
	})
}
