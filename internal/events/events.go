// Package events implements the Event Hub: a typed pub/sub broadcaster that
// decouples graph mutations from the observers that react to them.
//
// Subscribers are identified by an id and hold an interest set of event
// types. Each subscriber has its own bounded queue drained by its own
// goroutine, so delivery preserves publish order per subscriber while a slow
// or failing subscriber never holds up the publisher or any other
// subscriber. A delivery that errors, panics or times out removes the
// subscriber.
package events

import (
	"slices"
	"time"

	"github.com/ldi/metis/pkg/models"
)

type Type string

const (
	TaskCreated Type = "task_created"
	TaskUpdated Type = "task_updated"
	TaskDeleted Type = "task_deleted"

	SubtaskAdded   Type = "subtask_added"
	SubtaskUpdated Type = "subtask_updated"
	SubtaskRemoved Type = "subtask_removed"

	DependencyCreated Type = "dependency_created"
	DependencyUpdated Type = "dependency_updated"
	DependencyDeleted Type = "dependency_deleted"

	RequirementRefAdded   Type = "requirement_ref_added"
	RequirementRefUpdated Type = "requirement_ref_updated"
	RequirementRefRemoved Type = "requirement_ref_removed"

	// All subscribes to every event type.
	All Type = "*"
)

// Types lists every event type the task service emits.
var Types = []Type{
	TaskCreated, TaskUpdated, TaskDeleted,
	SubtaskAdded, SubtaskUpdated, SubtaskRemoved,
	DependencyCreated, DependencyUpdated, DependencyDeleted,
	RequirementRefAdded, RequirementRefUpdated, RequirementRefRemoved,
}

func (t Type) Valid() bool {
	return t == All || slices.Contains(Types, t)
}

// Event is the unit of delivery. Its JSON form is the wire envelope.
type Event struct {
	Type      Type      `json:"type"`
	Data      any       `json:"data"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

type TaskPayload struct {
	Task *models.Task `json:"task"`
}

type TaskDeletedPayload struct {
	TaskID                string   `json:"task_id"`
	CascadedDependencyIDs []string `json:"cascaded_dependency_ids"`
}

type SubtaskPayload struct {
	TaskID  string         `json:"task_id"`
	Subtask models.Subtask `json:"subtask"`
}

type SubtaskRemovedPayload struct {
	TaskID    string `json:"task_id"`
	SubtaskID string `json:"subtask_id"`
}

type DependencyPayload struct {
	Dependency *models.Dependency `json:"dependency"`
}

// DependencyDeletedPayload carries the endpoints so observers can update
// both tasks without a fetch. Cascaded is set when the edge went away
// because one of its tasks was deleted.
type DependencyDeletedPayload struct {
	DependencyID string                `json:"dependency_id"`
	SourceTaskID string                `json:"source_task_id"`
	TargetTaskID string                `json:"target_task_id"`
	Type         models.DependencyType `json:"dependency_type"`
	Cascaded     bool                  `json:"cascaded"`
}

type RequirementRefPayload struct {
	TaskID string                `json:"task_id"`
	Ref    models.RequirementRef `json:"requirement_ref"`
}

type RequirementRefRemovedPayload struct {
	TaskID        string `json:"task_id"`
	RefID         string `json:"ref_id"`
	RequirementID string `json:"requirement_id"`
}
