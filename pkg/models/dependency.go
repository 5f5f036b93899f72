package models

import (
	"slices"
	"time"
)

type DependencyType string

const (
	DependencyDependsOn  DependencyType = "depends_on"
	DependencyBlocks     DependencyType = "blocks"
	DependencyRelatedTo  DependencyType = "related_to"
	DependencyDuplicates DependencyType = "duplicates"
)

var DependencyTypes = []DependencyType{
	DependencyDependsOn,
	DependencyBlocks,
	DependencyRelatedTo,
	DependencyDuplicates,
}

func (t DependencyType) Valid() bool {
	return slices.Contains(DependencyTypes, t)
}

// Ordering reports whether edges of this type take part in the
// acyclicity invariant. related_to and duplicates are annotations only.
func (t DependencyType) Ordering() bool {
	return t == DependencyDependsOn || t == DependencyBlocks
}

// Dependency is a directed, typed edge SourceTaskID -> TargetTaskID.
type Dependency struct {
	ID           string         `json:"id" validate:"required"`
	SourceTaskID string         `json:"source_task_id" validate:"required"`
	TargetTaskID string         `json:"target_task_id" validate:"required"`
	Type         DependencyType `json:"dependency_type" validate:"required,oneof=depends_on blocks related_to duplicates"`
	Description  *string        `json:"description"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (d *Dependency) Clone() *Dependency {
	if d == nil {
		return nil
	}
	c := *d
	if d.Description != nil {
		desc := *d.Description
		c.Description = &desc
	}
	return &c
}

// Touches reports whether taskID is either endpoint of the edge.
func (d *Dependency) Touches(taskID string) bool {
	return d.SourceTaskID == taskID || d.TargetTaskID == taskID
}
