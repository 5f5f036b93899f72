package models

import "slices"

type RelationshipType string

const (
	RelationshipImplements  RelationshipType = "implements"
	RelationshipTests       RelationshipType = "tests"
	RelationshipDocuments   RelationshipType = "documents"
	RelationshipDerivedFrom RelationshipType = "derived_from"
)

var RelationshipTypes = []RelationshipType{
	RelationshipImplements,
	RelationshipTests,
	RelationshipDocuments,
	RelationshipDerivedFrom,
}

func (r RelationshipType) Valid() bool {
	return slices.Contains(RelationshipTypes, r)
}

// RequirementRef is a weak link to a requirement owned by an external
// system. Removing the ref never touches the external record.
type RequirementRef struct {
	ID               string           `json:"id" validate:"required"`
	RequirementID    string           `json:"requirement_id" validate:"required"`
	RelationshipType RelationshipType `json:"relationship_type" validate:"required,oneof=implements tests documents derived_from"`
	Snippet          *string          `json:"snippet,omitempty"`
}
