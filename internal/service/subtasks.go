package service

import (
	"context"
	"slices"
	"strings"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/pkg/models"
)

func newSubtask(in SubtaskInput) (models.Subtask, error) {
	if strings.TrimSpace(in.Title) == "" {
		return models.Subtask{}, errors.InvalidArgumentf("subtask title is required")
	}
	return models.Subtask{
		ID:          newID(),
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
	}, nil
}

// editTask replaces the whole task after fn has modified a copy of it. It
// must run inside mutate.
func (s *Service) editTask(ctx context.Context, taskID string, fn func(t *models.Task) error) (*models.Task, error) {
	t, err := s.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	return s.store.UpdateTask(ctx, t)
}

func (s *Service) AddSubtask(ctx context.Context, taskID string, in SubtaskInput) (*models.Subtask, error) {
	sub, err := newSubtask(in)
	if err != nil {
		return nil, err
	}
	err = s.mutate(func() ([]pending, error) {
		_, err := s.editTask(ctx, taskID, func(t *models.Task) error {
			t.Subtasks = append(t.Subtasks, sub)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return []pending{{events.SubtaskAdded, events.SubtaskPayload{TaskID: taskID, Subtask: sub}}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Service) UpdateSubtask(ctx context.Context, taskID, subtaskID string, upd SubtaskUpdate) (*models.Subtask, error) {
	var sub models.Subtask
	err := s.mutate(func() ([]pending, error) {
		_, err := s.editTask(ctx, taskID, func(t *models.Task) error {
			i := t.SubtaskIndex(subtaskID)
			if i < 0 {
				return errors.NotFound("subtask", subtaskID)
			}
			if upd.Title != nil {
				if strings.TrimSpace(*upd.Title) == "" {
					return errors.InvalidArgumentf("subtask title is required")
				}
				t.Subtasks[i].Title = *upd.Title
			}
			if upd.Description != nil {
				t.Subtasks[i].Description = *upd.Description
			}
			if upd.Completed != nil {
				t.Subtasks[i].Completed = *upd.Completed
			}
			sub = t.Subtasks[i]
			return nil
		})
		if err != nil {
			return nil, err
		}
		return []pending{{events.SubtaskUpdated, events.SubtaskPayload{TaskID: taskID, Subtask: sub}}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Service) RemoveSubtask(ctx context.Context, taskID, subtaskID string) error {
	return s.mutate(func() ([]pending, error) {
		_, err := s.editTask(ctx, taskID, func(t *models.Task) error {
			i := t.SubtaskIndex(subtaskID)
			if i < 0 {
				return errors.NotFound("subtask", subtaskID)
			}
			t.Subtasks = slices.Delete(t.Subtasks, i, i+1)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return []pending{{events.SubtaskRemoved, events.SubtaskRemovedPayload{TaskID: taskID, SubtaskID: subtaskID}}}, nil
	})
}
