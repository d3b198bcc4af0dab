package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/variants"
)

// Rule types
const (
	RuleExact = "exact"
	RuleFuzzy = "fuzzy"
	RuleDate  = "date"
	RuleSet   = "set"
)

// Candidate source kinds
const (
	SourceRemote  = "remote"
	SourceCatalog = "catalog"
	SourcePlaces  = "places"
	SourceGrouped = "grouped"
)

// Remote services an entity model may query
const (
	ServiceCandidates = "candidates"
	ServicePlaces     = "places"
	ServiceStructured = "structured"
)

// ScoringModel is the full per-entity-type scoring configuration
type ScoringModel struct {
	EntityTypes map[models.EntityType]*EntityModel `yaml:"entity_types" validate:"required,dive,keys,oneof=person municipality rank unit occupation cemetery,endkeys,required"`
	Tables      TablesModel                        `yaml:"tables"`
	Linker      LinkerModel                        `yaml:"linker"`
}

// EntityModel configures candidate retrieval, scoring and resolution for one entity type
type EntityModel struct {
	Threshold       float64 `yaml:"threshold"`
	AmbiguityMargin float64 `yaml:"ambiguity_margin" validate:"gte=0"`
	// UnanchoredPenalty is subtracted when the source has none of the Anchors attributes
	UnanchoredPenalty float64  `yaml:"unanchored_penalty" validate:"gte=0"`
	Anchors           []string `yaml:"anchors"`

	QueryAttribute string        `yaml:"query_attribute"`
	Expander       variants.Kind `yaml:"expander" validate:"omitempty,oneof=unit place text"`
	Source         string        `yaml:"source" validate:"omitempty,oneof=remote catalog places grouped"`
	Service        string        `yaml:"service" validate:"omitempty,oneof=candidates places structured"`
	// JoinSeparator sends all variants as one query when set
	JoinSeparator string        `yaml:"join_separator"`
	Grouped       *GroupedModel `yaml:"grouped"`

	Rules       []RuleModel       `yaml:"rules" validate:"dive"`
	Derivations []DerivationModel `yaml:"derivations" validate:"dive"`

	// Fallback is tried when this path ends Rejected or NoCandidates
	Fallback *EntityModel `yaml:"fallback"`
}

// GroupedModel configures a batched structured lookup keyed by a record attribute
type GroupedModel struct {
	Template     string `yaml:"template" validate:"required,contains={{values}}"`
	KeyAttribute string `yaml:"key_attribute" validate:"required"`
	KeyVar       string `yaml:"key_var" validate:"required"`
}

// RuleModel declares one additive scoring rule. Penalties are magnitudes and are subtracted.
type RuleModel struct {
	Name      string `yaml:"name" validate:"required"`
	Type      string `yaml:"type" validate:"required,oneof=exact fuzzy date set"`
	Source    string `yaml:"source" validate:"required"`
	Candidate string `yaml:"candidate" validate:"required"`

	Bonus   float64 `yaml:"bonus"`
	Penalty float64 `yaml:"penalty" validate:"gte=0"`

	// exact
	RareBonus     float64           `yaml:"rare_bonus"`
	RareMinLevel  *int              `yaml:"rare_min_level"`
	LevelCatalog  models.EntityType `yaml:"level_catalog"`
	CommonValues  []string          `yaml:"common_values"`
	UnknownValues []string          `yaml:"unknown_values"`

	// fuzzy, and the near-miss check of date rules
	MinSimilarity float64 `yaml:"min_similarity" validate:"gte=0,lte=1"`

	// date
	WithinBonus  float64 `yaml:"within_bonus"`
	CandidateEnd string  `yaml:"candidate_end"`

	// set: source values are split on Split before intersecting
	Split string `yaml:"split"`
}

// DerivationModel adds Attribute=Value to records whose From date is before Before
type DerivationModel struct {
	Attribute string `yaml:"attribute" validate:"required"`
	Value     string `yaml:"value" validate:"required"`
	From      string `yaml:"from" validate:"required"`
	Before    string `yaml:"before" validate:"required,datetime=2006-01-02"`
}

// BeforeTime parses Before
func (d DerivationModel) BeforeTime() time.Time {
	t, _ := time.Parse("2006-01-02", d.Before)
	return t
}

// TablesModel holds injected lookup tables
type TablesModel struct {
	Abbreviations map[string][]string `yaml:"abbreviations"`
	Aliases       map[string]string   `yaml:"aliases"`
	Suffixes      map[string]string   `yaml:"suffixes"`
	Corrections   map[string]string   `yaml:"corrections"`
}

// Variants converts the tables for the variant expanders
func (t TablesModel) Variants() variants.Tables {
	return variants.Tables{
		Abbreviations: t.Abbreviations,
		Aliases:       t.Aliases,
		Suffixes:      t.Suffixes,
		Corrections:   t.Corrections,
	}
}

// Linker comparators
const (
	ComparatorString   = "string"
	ComparatorExact    = "exact"
	ComparatorDate     = "date"
	ComparatorPrice    = "price"
	ComparatorSet      = "set"
	ComparatorInterval = "interval"
)

// LinkerModel configures the probabilistic person linker
type LinkerModel struct {
	Seed         int64   `yaml:"seed"`
	SampleSize   int     `yaml:"sample_size" validate:"gt=0"`
	RecallWeight float64 `yaml:"recall_weight" validate:"gt=0"`
	Iterations   int     `yaml:"iterations" validate:"gt=0"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0"`
	L2           float64 `yaml:"l2" validate:"gte=0"`
	// MinLabels is the least number of labeled pairs of each class needed to train
	MinLabels int `yaml:"min_labels" validate:"gte=1"`
	// BlockingAttribute is the field whose Soundex code restricts the compared pairs
	BlockingAttribute string        `yaml:"blocking_attribute" validate:"required"`
	Fields            []LinkerField `yaml:"fields" validate:"required,min=1,dive"`
}

// LinkerField is one compared attribute
type LinkerField struct {
	Name       string `yaml:"name" validate:"required"`
	Attribute  string `yaml:"attribute" validate:"required"`
	Comparator string `yaml:"comparator" validate:"required,oneof=string exact date price set interval"`
	HasMissing bool   `yaml:"has_missing"`
	// EndAttribute closes the range of interval comparators
	EndAttribute string `yaml:"end_attribute"`
	// Link takes values from the record's resolved link of this type instead of its own attribute.
	// LinkProperty then names the catalog entry property to read; empty means the link target ID.
	Link         models.EntityType `yaml:"link"`
	LinkProperty string            `yaml:"link_property"`
	// UnknownValues are placeholder values treated as missing, e.g. "Tuntematon"
	UnknownValues []string `yaml:"unknown_values"`
}

// Entity returns the model for an entity type
func (m *ScoringModel) Entity(entityType models.EntityType) (*EntityModel, bool) {
	e, ok := m.EntityTypes[entityType]
	return e, ok && e != nil
}

// Validate checks the model with struct tags plus cross-field rules
func (m *ScoringModel) Validate() error {
	if err := validator.New().Struct(m); err != nil {
		return errors.Wrap(err, "invalid scoring model")
	}
	for entityType, e := range m.EntityTypes {
		for model := e; model != nil; model = model.Fallback {
			if model.Source == SourceGrouped && model.Grouped == nil {
				return errors.Errorf("%s: grouped source needs a grouped section", entityType)
			}
			if model.Source == SourceRemote && model.QueryAttribute == "" {
				return errors.Errorf("%s: remote source needs a query attribute", entityType)
			}
		}
	}
	return nil
}

// LoadScoringModel reads a YAML model over the defaults. Entity types present in the
// file replace the default entry as a whole.
func LoadScoringModel(r io.Reader) (*ScoringModel, error) {
	model := DefaultScoringModel()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scoring model")
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, model); err != nil {
			return nil, errors.Wrap(err, "failed to parse scoring model")
		}
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}
	return model, nil
}

// LoadScoringModelFile loads a model file; an empty path returns the defaults
func LoadScoringModelFile(path string) (*ScoringModel, error) {
	if path == "" {
		model := DefaultScoringModel()
		return model, model.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open scoring model %s", path)
	}
	defer f.Close()
	return LoadScoringModel(f)
}
