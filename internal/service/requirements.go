package service

import (
	"context"
	"slices"
	"strings"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/pkg/models"
)

func newRequirementRef(in RequirementRefInput) (models.RequirementRef, error) {
	if strings.TrimSpace(in.RequirementID) == "" {
		return models.RequirementRef{}, errors.InvalidArgumentf("requirement_id is required")
	}
	rel := in.RelationshipType
	if rel == "" {
		rel = models.RelationshipImplements
	}
	if !rel.Valid() {
		return models.RequirementRef{}, errors.InvalidArgumentf("unknown relationship type %q", rel)
	}
	return models.RequirementRef{
		ID:               newID(),
		RequirementID:    in.RequirementID,
		RelationshipType: rel,
		Snippet:          in.Snippet,
	}, nil
}

func (s *Service) AddRequirementRef(ctx context.Context, taskID string, in RequirementRefInput) (*models.RequirementRef, error) {
	ref, err := newRequirementRef(in)
	if err != nil {
		return nil, err
	}
	err = s.mutate(func() ([]pending, error) {
		_, err := s.editTask(ctx, taskID, func(t *models.Task) error {
			t.RequirementRefs = append(t.RequirementRefs, ref)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return []pending{{events.RequirementRefAdded, events.RequirementRefPayload{TaskID: taskID, Ref: ref}}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (s *Service) UpdateRequirementRef(ctx context.Context, taskID, refID string, upd RequirementRefUpdate) (*models.RequirementRef, error) {
	var ref models.RequirementRef
	err := s.mutate(func() ([]pending, error) {
		_, err := s.editTask(ctx, taskID, func(t *models.Task) error {
			i := t.RequirementRefIndex(refID)
			if i < 0 {
				return errors.NotFound("requirement reference", refID)
			}
			if upd.RelationshipType != nil {
				if !upd.RelationshipType.Valid() {
					return errors.InvalidArgumentf("unknown relationship type %q", *upd.RelationshipType)
				}
				t.RequirementRefs[i].RelationshipType = *upd.RelationshipType
			}
			if upd.Snippet != nil {
				snippet := *upd.Snippet
				t.RequirementRefs[i].Snippet = &snippet
			}
			ref = t.RequirementRefs[i]
			return nil
		})
		if err != nil {
			return nil, err
		}
		return []pending{{events.RequirementRefUpdated, events.RequirementRefPayload{TaskID: taskID, Ref: ref}}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// RemoveRequirementRef detaches the reference. The external requirement is
// untouched.
func (s *Service) RemoveRequirementRef(ctx context.Context, taskID, refID string) error {
	return s.mutate(func() ([]pending, error) {
		var removed models.RequirementRef
		_, err := s.editTask(ctx, taskID, func(t *models.Task) error {
			i := t.RequirementRefIndex(refID)
			if i < 0 {
				return errors.NotFound("requirement reference", refID)
			}
			removed = t.RequirementRefs[i]
			t.RequirementRefs = slices.Delete(t.RequirementRefs, i, i+1)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return []pending{{events.RequirementRefRemoved, events.RequirementRefRemovedPayload{
			TaskID:        taskID,
			RefID:         refID,
			RequirementID: removed.RequirementID,
		}}}, nil
	})
}
