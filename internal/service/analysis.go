package service

import (
	"context"

	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/internal/graph"
	"github.com/ldi/metis/pkg/models"
)

// AnalyzeComplexity scores the task and stores the result. With nil factors
// they are derived from the task itself; either way the dependency count
// and overall score are recomputed.
func (s *Service) AnalyzeComplexity(ctx context.Context, taskID string, factors *models.ComplexityFactors) (*models.ComplexityScore, error) {
	if factors != nil {
		if err := models.ValidateStruct(factors); err != nil {
			return nil, err
		}
	}

	var score models.ComplexityScore
	err := s.mutate(func() ([]pending, error) {
		updated, err := s.editTask(ctx, taskID, func(t *models.Task) error {
			f := models.DeriveFactors(t)
			if factors != nil {
				f = *factors
			}
			score = models.ScoreComplexity(f, len(t.DependsOn)+len(t.Blocks))
			t.Complexity = &score
			return nil
		})
		if err != nil {
			return nil, err
		}
		return []pending{{events.TaskUpdated, events.TaskPayload{Task: updated}}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &score, nil
}

type Statistics struct {
	Total      int                         `json:"total_tasks"`
	ByStatus   map[models.TaskStatus]int   `json:"by_status"`
	ByPriority map[models.TaskPriority]int `json:"by_priority"`
	ByAssignee map[string]int              `json:"by_assignee"`
	// CompletionRate is the percentage of completed tasks, one decimal.
	CompletionRate float64 `json:"completion_rate"`
}

// Unassigned is the ByAssignee key for tasks without an assignee.
const Unassigned = "unassigned"

// Statistics aggregates over every task. It is read-only.
func (s *Service) Statistics(_ context.Context) (Statistics, error) {
	st := Statistics{
		ByStatus:   make(map[models.TaskStatus]int, len(models.TaskStatuses)),
		ByPriority: make(map[models.TaskPriority]int, len(models.TaskPriorities)),
		ByAssignee: make(map[string]int),
	}
	for _, status := range models.TaskStatuses {
		st.ByStatus[status] = 0
	}
	for _, p := range models.TaskPriorities {
		st.ByPriority[p] = 0
	}

	for t := range s.store.Tasks(graph.TaskFilter{}) {
		st.Total++
		st.ByStatus[t.Status]++
		st.ByPriority[t.Priority]++
		who := Unassigned
		if t.Assignee != nil {
			who = *t.Assignee
		}
		st.ByAssignee[who]++
	}

	if st.Total > 0 {
		rate := float64(st.ByStatus[models.TaskStatusCompleted]) / float64(st.Total) * 100
		st.CompletionRate = models.Round1(rate)
	}
	return st, nil
}
