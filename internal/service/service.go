// Package service is the single entry point for graph mutations. Every
// read-modify-write runs under one lock so that invariants checked against
// the current graph still hold when the write commits; events are published
// after the lock is released, in commit order.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/internal/graph"
	"github.com/ldi/metis/pkg/models"
)

// Publisher is the part of the event hub the service needs.
type Publisher interface {
	Publish(t events.Type, data any) events.Event
}

type Service struct {
	mu sync.Mutex
	// pubMu is taken before mu is released so events leave in commit order.
	pubMu sync.Mutex

	store  *graph.Store
	pub    Publisher
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(store *graph.Store, pub Publisher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		pub:    pub,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type pending struct {
	typ  events.Type
	data any
}

// mutate runs fn under the write lock and publishes its events afterwards.
func (s *Service) mutate(fn func() ([]pending, error)) error {
	s.mu.Lock()
	locked := true
	defer func() {
		if locked {
			s.mu.Unlock()
		}
	}()

	evts, err := fn()
	if err != nil {
		return err
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Unlock()
	locked = false

	if s.pub == nil {
		return nil
	}
	for _, e := range evts {
		s.pub.Publish(e.typ, e.data)
	}
	return nil
}

func (s *Service) CreateTask(ctx context.Context, in TaskInput) (*models.Task, error) {
	task, err := buildTask(in)
	if err != nil {
		return nil, err
	}

	var created *models.Task
	err = s.mutate(func() ([]pending, error) {
		created, err = s.store.CreateTask(ctx, task)
		if err != nil {
			return nil, err
		}
		return []pending{{events.TaskCreated, events.TaskPayload{Task: created.Clone()}}}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("task created", "task_id", created.ID)
	return created, nil
}

func buildTask(in TaskInput) (*models.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.InvalidArgumentf("title is required")
	}
	t := &models.Task{
		Title:        in.Title,
		Description:  in.Description,
		Status:       in.Status,
		Priority:     in.Priority,
		Assignee:     normalizeAssignee(in.Assignee),
		Tags:         in.Tags,
		Details:      in.Details,
		TestStrategy: in.TestStrategy,
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if err := checkEnums(t.Status, t.Priority); err != nil {
		return nil, err
	}

	due, err := models.ParseDueDate(in.DueDate)
	if err != nil {
		return nil, err
	}
	t.DueDate = due

	for _, st := range in.Subtasks {
		sub, err := newSubtask(st)
		if err != nil {
			return nil, err
		}
		t.Subtasks = append(t.Subtasks, sub)
	}
	for _, ri := range in.RequirementRefs {
		ref, err := newRequirementRef(ri)
		if err != nil {
			return nil, err
		}
		t.RequirementRefs = append(t.RequirementRefs, ref)
	}
	return t, nil
}

func checkEnums(status models.TaskStatus, priority models.TaskPriority) error {
	if !status.Valid() {
		return errors.InvalidArgumentf("unknown status %q", status)
	}
	if !priority.Valid() {
		return errors.InvalidArgumentf("unknown priority %q", priority)
	}
	return nil
}

func normalizeAssignee(a *string) *string {
	if a == nil {
		return nil
	}
	v := strings.TrimSpace(*a)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) GetTask(_ context.Context, id string) (*models.Task, error) {
	return s.store.GetTask(id)
}

func (s *Service) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*models.Task, error) {
	var updated *models.Task
	err := s.mutate(func() ([]pending, error) {
		t, err := s.store.GetTask(id)
		if err != nil {
			return nil, err
		}
		if err := applyTaskUpdate(t, upd); err != nil {
			return nil, err
		}
		updated, err = s.store.UpdateTask(ctx, t)
		if err != nil {
			return nil, err
		}
		return []pending{{events.TaskUpdated, events.TaskPayload{Task: updated.Clone()}}}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyTaskUpdate(t *models.Task, upd TaskUpdate) error {
	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return errors.InvalidArgumentf("title is required")
		}
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if err := checkEnums(t.Status, t.Priority); err != nil {
		return err
	}
	switch {
	case upd.ClearAssignee:
		t.Assignee = nil
	case upd.Assignee != nil:
		t.Assignee = normalizeAssignee(upd.Assignee)
	}
	switch {
	case upd.ClearDueDate:
		t.DueDate = nil
	case upd.DueDate != nil:
		due, err := models.ParseDueDate(*upd.DueDate)
		if err != nil {
			return err
		}
		t.DueDate = due
	}
	if upd.Tags != nil {
		t.Tags = *upd.Tags
	}
	if upd.Details != nil {
		t.Details = *upd.Details
	}
	if upd.TestStrategy != nil {
		t.TestStrategy = *upd.TestStrategy
	}
	return nil
}

// DeleteTask removes the task and its dependencies. Observers get
// task_deleted followed by one dependency_deleted per cascaded edge.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return s.mutate(func() ([]pending, error) {
		// capture the edges before they go so the events can carry endpoints
		edges, err := s.store.DependenciesForTask(id)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]*models.Dependency, len(edges))
		for _, d := range edges {
			byID[d.ID] = d
		}

		cascaded, err := s.store.DeleteTask(ctx, id)
		if err != nil {
			return nil, err
		}

		evts := []pending{{events.TaskDeleted, events.TaskDeletedPayload{TaskID: id, CascadedDependencyIDs: cascaded}}}
		for _, depID := range cascaded {
			p := events.DependencyDeletedPayload{DependencyID: depID, Cascaded: true}
			if d, ok := byID[depID]; ok {
				p.SourceTaskID, p.TargetTaskID, p.Type = d.SourceTaskID, d.TargetTaskID, d.Type
			}
			evts = append(evts, pending{events.DependencyDeleted, p})
		}
		return evts, nil
	})
}

func (s *Service) ListTasks(_ context.Context, p ListTasksParams) (graph.TaskPage, error) {
	f, err := p.filter()
	if err != nil {
		return graph.TaskPage{}, err
	}
	page, size := p.paging()
	return s.store.ListTasks(f, page, size)
}

// TopologicalOrder returns every task ordered so that depends_on and
// blocks sources come before their targets.
func (s *Service) TopologicalOrder(_ context.Context) ([]*models.Task, error) {
	ids, err := s.store.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.store.GetTask(id)
		if err != nil {
			continue // deleted since the order was computed
		}
		out = append(out, t)
	}
	return out, nil
}

func newID() string {
	return uuid.New().String()
}
