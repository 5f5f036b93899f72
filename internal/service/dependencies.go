package service

import (
	"context"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/internal/graph"
	"github.com/ldi/metis/pkg/models"
)

func (s *Service) CreateDependency(ctx context.Context, in DependencyInput) (*models.Dependency, error) {
	if in.Type == "" {
		in.Type = models.DependencyDependsOn
	}
	if !in.Type.Valid() {
		return nil, errors.InvalidArgumentf("unknown dependency type %q", in.Type)
	}
	if in.SourceTaskID == "" || in.TargetTaskID == "" {
		return nil, errors.InvalidArgumentf("source_task_id and target_task_id are required")
	}

	var created *models.Dependency
	err := s.mutate(func() ([]pending, error) {
		var err error
		created, err = s.store.CreateDependency(ctx, &models.Dependency{
			SourceTaskID: in.SourceTaskID,
			TargetTaskID: in.TargetTaskID,
			Type:         in.Type,
			Description:  in.Description,
		})
		if err != nil {
			return nil, err
		}
		return []pending{{events.DependencyCreated, events.DependencyPayload{Dependency: created.Clone()}}}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) GetDependency(_ context.Context, id string) (*models.Dependency, error) {
	return s.store.GetDependency(id)
}

func (s *Service) UpdateDependency(ctx context.Context, id string, upd DependencyUpdate) (*models.Dependency, error) {
	if upd.Type != nil && !upd.Type.Valid() {
		return nil, errors.InvalidArgumentf("unknown dependency type %q", *upd.Type)
	}

	var updated *models.Dependency
	err := s.mutate(func() ([]pending, error) {
		cur, err := s.store.GetDependency(id)
		if err != nil {
			return nil, err
		}
		typ := cur.Type
		if upd.Type != nil {
			typ = *upd.Type
		}
		updated, err = s.store.UpdateDependency(ctx, id, typ, upd.Description)
		if err != nil {
			return nil, err
		}
		return []pending{{events.DependencyUpdated, events.DependencyPayload{Dependency: updated.Clone()}}}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteDependency(ctx context.Context, id string) error {
	return s.mutate(func() ([]pending, error) {
		d, err := s.store.DeleteDependency(ctx, id)
		if err != nil {
			return nil, err
		}
		return []pending{{events.DependencyDeleted, events.DependencyDeletedPayload{
			DependencyID: d.ID,
			SourceTaskID: d.SourceTaskID,
			TargetTaskID: d.TargetTaskID,
			Type:         d.Type,
		}}}, nil
	})
}

// ListDependencies returns the edges matching f. A TaskID that names no
// task is NotFound rather than an empty list.
func (s *Service) ListDependencies(_ context.Context, f graph.DependencyFilter) ([]*models.Dependency, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, errors.InvalidArgumentf("unknown dependency type %q", f.Type)
	}
	if f.TaskID != "" {
		if _, err := s.store.GetTask(f.TaskID); err != nil {
			return nil, err
		}
	}
	return s.store.ListDependencies(f), nil
}

// DependenciesForTask returns every edge touching the task.
func (s *Service) DependenciesForTask(_ context.Context, taskID string) ([]*models.Dependency, error) {
	return s.store.DependenciesForTask(taskID)
}
