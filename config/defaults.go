package config

import (
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/variants"
)

// MunicipalityNamespace prefixes municipality IDs in the built-in alias table
const MunicipalityNamespace = "http://ldf.fi/warsa/places/municipalities/"

// UnitsByCoverTemplate fetches unit labels for a batch of cover codes
const UnitsByCoverTemplate = `PREFIX skos: <http://www.w3.org/2004/02/skos/core#>
SELECT ?sub ?cover (GROUP_CONCAT(?label; separator=" || ") AS ?label) WHERE {
  VALUES ?cover { {{values}} }
  ?sub <http://ldf.fi/schema/warsa/actors/covernumber> ?cover .
  ?sub skos:prefLabel|skos:altLabel ?label .
} GROUP BY ?sub ?cover`

var temporalAnchors = []string{"birth_date", "death_date"}

// DefaultScoringModel returns the built-in scoring model for every entity type
func DefaultScoringModel() *ScoringModel {
	rareLevel := 3

	return &ScoringModel{
		EntityTypes: map[models.EntityType]*EntityModel{
			models.EntityTypeMunicipality: {
				Threshold:      100,
				QueryAttribute: "birth_place",
				Expander:       variants.KindPlace,
				Source:         SourcePlaces,
				Service:        ServicePlaces,
				Rules: []RuleModel{
					{Name: "matched_label", Type: RuleSet, Source: "birth_place", Candidate: "matched", Bonus: 150, Split: "/"},
				},
			},
			models.EntityTypeRank: {
				Threshold:      100,
				QueryAttribute: "rank",
				Expander:       variants.KindText,
				Source:         SourceCatalog,
				Rules: []RuleModel{
					{
						Name: "rank_label", Type: RuleExact, Source: "rank", Candidate: "label",
						Bonus: 150, RareBonus: 25, RareMinLevel: &rareLevel, LevelCatalog: models.EntityTypeRank,
						UnknownValues: []string{"tuntematon", "unknown"},
					},
				},
			},
			models.EntityTypeUnit: {
				Threshold:         100,
				UnanchoredPenalty: 25,
				Anchors:           temporalAnchors,
				Source:            SourceGrouped,
				Service:           ServiceStructured,
				Grouped: &GroupedModel{
					Template:     UnitsByCoverTemplate,
					KeyAttribute: "unit_code",
					KeyVar:       "cover",
				},
				Rules: []RuleModel{
					{Name: "cover", Type: RuleExact, Source: "unit_code", Candidate: "cover", Bonus: 100},
					{Name: "cover_label", Type: RuleFuzzy, Source: "unit", Candidate: "label", Bonus: 100, MinSimilarity: 0.2},
				},
				Fallback: &EntityModel{
					Threshold:         100,
					UnanchoredPenalty: 25,
					Anchors:           temporalAnchors,
					QueryAttribute:    "unit",
					Expander:          variants.KindUnit,
					Source:            SourceRemote,
					Service:           ServiceCandidates,
					JoinSeparator:     " # ",
					Rules: []RuleModel{
						{Name: "label", Type: RuleFuzzy, Source: "unit", Candidate: "label", Bonus: 150, MinSimilarity: 0.5},
						{Name: "period", Type: RuleSet, Source: "related_period", Candidate: "related_period", Bonus: 50},
						{
							Name: "activity", Type: RuleDate, Source: "death_date", Candidate: "activity_begin", CandidateEnd: "activity_end",
							Bonus: 60, WithinBonus: 40, Penalty: 100, MinSimilarity: 0.8,
						},
					},
				},
				Derivations: []DerivationModel{
					{Attribute: "related_period", Value: "WinterWar", From: "death_date", Before: "1941-06-25"},
				},
			},
			models.EntityTypeOccupation: {
				Threshold:      100,
				QueryAttribute: "occupation",
				Expander:       variants.KindText,
				Source:         SourceRemote,
				Service:        ServiceCandidates,
				Rules: []RuleModel{
					{Name: "label", Type: RuleFuzzy, Source: "occupation", Candidate: "label", Bonus: 150, MinSimilarity: 0.8},
				},
			},
			models.EntityTypeCemetery: {
				Threshold:      100,
				QueryAttribute: "cemetery",
				Expander:       variants.KindText,
				Source:         SourceRemote,
				Service:        ServiceCandidates,
				Rules: []RuleModel{
					{Name: "label", Type: RuleFuzzy, Source: "cemetery", Candidate: "label", Bonus: 150, MinSimilarity: 0.7},
					{Name: "municipality", Type: RuleSet, Source: "burial_municipality", Candidate: "municipality", Bonus: 50, Split: "/"},
				},
			},
			models.EntityTypePerson: {
				AmbiguityMargin: 0,
			},
		},
		Tables: TablesModel{
			Abbreviations: map[string][]string{},
			Aliases: map[string]string{
				"Pyhäjärvi Ol":  MunicipalityNamespace + "m_place_75",
				"Pyhäjärvi Ul.": MunicipalityNamespace + "m_place_543",
				"Pyhäjärvi Vl":  MunicipalityNamespace + "m_place_586",
				"Koski Tl.":     MunicipalityNamespace + "m_place_291",
				"Koski Hl.":     MunicipalityNamespace + "m_place_391",
				"Uusikirkko Vl": MunicipalityNamespace + "m_place_609",
			},
			Suffixes: variants.DefaultSuffixes(),
			Corrections: map[string]string{
				"Alipuseeri": "Aliupseeri",
				"Alikers":    "Alikersantti",
			},
		},
		Linker: DefaultLinkerModel(),
	}
}

var unknownValues = []string{"tuntematon", "unknown"}

// DefaultLinkerModel returns the person linker defaults
func DefaultLinkerModel() LinkerModel {
	return LinkerModel{
		Seed:              42,
		SampleSize:        2000000,
		RecallWeight:      0.3,
		Iterations:        500,
		LearningRate:      0.5,
		L2:                0.01,
		MinLabels:         1,
		BlockingAttribute: "family_name",
		Fields: []LinkerField{
			{Name: "given", Attribute: "given_name", Comparator: ComparatorString},
			{Name: "family", Attribute: "family_name", Comparator: ComparatorString},
			{Name: "birth_place", Attribute: "birth_place", Comparator: ComparatorSet, HasMissing: true,
				Link: models.EntityTypeMunicipality, LinkProperty: "label", UnknownValues: unknownValues},
			{Name: "birth_date", Attribute: "birth_date", Comparator: ComparatorDate, HasMissing: true},
			{Name: "death_date", Attribute: "death_date", Comparator: ComparatorDate, HasMissing: true},
			{Name: "activity", Attribute: "activity_begin", EndAttribute: "activity_end", Comparator: ComparatorInterval, HasMissing: true},
			{Name: "rank", Attribute: "rank", Comparator: ComparatorExact, HasMissing: true, Link: models.EntityTypeRank,
				UnknownValues: unknownValues},
			{Name: "rank_level", Attribute: "rank_level", Comparator: ComparatorPrice, HasMissing: true,
				Link: models.EntityTypeRank, LinkProperty: "level", UnknownValues: unknownValues},
			{Name: "unit", Attribute: "unit", Comparator: ComparatorSet, HasMissing: true, Link: models.EntityTypeUnit,
				UnknownValues: unknownValues},
		},
	}
}
