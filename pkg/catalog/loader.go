package catalog

import (
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/models"
)

// File is the on-disk catalog format. JSON files load too since YAML is a superset.
type File struct {
	EntityType models.EntityType `yaml:"entity_type" validate:"required"`
	Entries    []Entry           `yaml:"entries" validate:"dive"`
}

// Load decodes and validates a catalog
func Load(r io.Reader) (*Catalog, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, errors.Wrap(err, "failed to decode catalog")
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, errors.Wrap(err, "invalid catalog")
	}
	if !file.EntityType.Valid() {
		return nil, errors.Errorf("unknown catalog entity type %q", file.EntityType)
	}
	return New(file.EntityType, file.Entries)
}

// LoadFile loads a catalog from a YAML or JSON file
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open catalog %s", path)
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %s", path)
	}
	return c, nil
}

// LoadFiles loads several catalogs into a set keyed by entity type
func LoadFiles(paths ...string) (Set, error) {
	set := make(Set, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		c, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		set[c.EntityType()] = c
	}
	return set, nil
}
