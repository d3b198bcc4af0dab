package models

import "github.com/Gobusters/ectolinq"

// EntityType identifies a reference catalog a source record is resolved against
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypeMunicipality EntityType = "municipality"
	EntityTypeRank         EntityType = "rank"
	EntityTypeUnit         EntityType = "unit"
	EntityTypeOccupation   EntityType = "occupation"
	EntityTypeCemetery     EntityType = "cemetery"
)

// AllEntityTypes returns every supported entity type in pipeline order
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityTypeMunicipality,
		EntityTypeRank,
		EntityTypeUnit,
		EntityTypeOccupation,
		EntityTypeCemetery,
		EntityTypePerson,
	}
}

// Valid reports whether t is a supported entity type
func (t EntityType) Valid() bool {
	return ectolinq.Contains(AllEntityTypes(), t)
}

func (t EntityType) String() string {
	return string(t)
}
