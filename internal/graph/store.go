// Package graph holds the authoritative task and dependency collections and
// enforces their referential and acyclicity invariants.
//
// Records are immutable once stored. A write builds new values and swaps the
// map entries while holding the write lock; readers copy pointers under the
// read lock and work on them afterwards, so they never see a partial write.
package graph

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/pkg/models"
)

type Store struct {
	mu sync.RWMutex

	tasks     map[string]*models.Task
	taskOrder []string
	deps      map[string]*models.Dependency
	depOrder  []string

	persister Persister
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) {
		if p != nil {
			s.persister = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(opts ...Option) *Store {
	s := &Store{
		tasks:     make(map[string]*models.Task),
		deps:      make(map[string]*models.Dependency),
		persister: nopPersister{},
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with the persister's contents. Edges
// that would break an invariant (missing endpoint, duplicate, cycle) are
// skipped.
func (s *Store) Load(ctx context.Context) error {
	tasks, deps, err := s.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*models.Task, len(tasks))
	s.taskOrder = s.taskOrder[:0]
	s.deps = make(map[string]*models.Dependency, len(deps))
	s.depOrder = s.depOrder[:0]

	for _, t := range tasks {
		c := t.Clone()
		c.DependsOn, c.Blocks = nil, nil
		s.tasks[c.ID] = c
		s.taskOrder = append(s.taskOrder, c.ID)
	}
	for _, d := range deps {
		if _, dup := s.deps[d.ID]; dup {
			continue
		}
		if err := s.checkEdgeLocked(d, ""); err != nil {
			s.logger.Warn("skipping invalid dependency", "dependency_id", d.ID, "error", err)
			continue
		}
		s.linkLocked(d.Clone())
	}

	s.logger.Info("graph loaded", "tasks", len(s.tasks), "dependencies", len(s.deps))
	return nil
}

// CreateTask inserts a new task. An empty ID is filled with a fresh UUID.
// Edge-id sets are store-maintained and ignored on input.
func (s *Store) CreateTask(ctx context.Context, t *models.Task) (*models.Task, error) {
	rec := t.Clone()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Tags = models.NormalizeTags(rec.Tags)
	rec.DependsOn, rec.Blocks = nil, nil

	if err := models.ValidateStruct(rec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[rec.ID]; exists {
		return nil, errors.InvalidArgumentf("task %s already exists", rec.ID)
	}
	if err := s.persister.SaveTask(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist task %s: %w", rec.ID, err)
	}
	s.tasks[rec.ID] = rec
	s.taskOrder = append(s.taskOrder, rec.ID)
	return rec.Clone(), nil
}

// UpdateTask replaces an existing task wholesale. CreatedAt and the edge-id
// sets are carried over from the stored record.
func (s *Store) UpdateTask(ctx context.Context, t *models.Task) (*models.Task, error) {
	rec := t.Clone()
	rec.Tags = models.NormalizeTags(rec.Tags)
	if err := models.ValidateStruct(rec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[rec.ID]
	if !ok {
		return nil, errors.NotFound("task", rec.ID)
	}
	rec.CreatedAt = cur.CreatedAt
	rec.UpdatedAt = s.now()
	rec.DependsOn = slices.Clone(cur.DependsOn)
	rec.Blocks = slices.Clone(cur.Blocks)

	if err := s.persister.SaveTask(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist task %s: %w", rec.ID, err)
	}
	s.tasks[rec.ID] = rec
	return rec.Clone(), nil
}

func (s *Store) GetTask(id string) (*models.Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("task", id)
	}
	return t.Clone(), nil
}

// DeleteTask removes the task and every dependency touching it, returning
// the ids of the cascaded dependencies in creation order.
func (s *Store) DeleteTask(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return nil, errors.NotFound("task", id)
	}

	var cascaded []string
	for _, depID := range s.depOrder {
		if s.deps[depID].Touches(id) {
			cascaded = append(cascaded, depID)
		}
	}

	if err := s.persister.DeleteTask(ctx, id, cascaded); err != nil {
		return nil, fmt.Errorf("persist delete of task %s: %w", id, err)
	}

	for _, depID := range cascaded {
		s.unlinkLocked(s.deps[depID])
	}
	delete(s.tasks, id)
	s.taskOrder = slices.DeleteFunc(s.taskOrder, func(tid string) bool { return tid == id })
	return cascaded, nil
}

// Tasks returns a lazy sequence of tasks matching f, in creation order.
// Each iteration works on a fresh snapshot, so the sequence is restartable.
func (s *Store) Tasks(f TaskFilter) iter.Seq[*models.Task] {
	return func(yield func(*models.Task) bool) {
		for _, t := range s.snapshotTasks() {
			if !f.Match(t) {
				continue
			}
			if !yield(t.Clone()) {
				return
			}
		}
	}
}

// ListTasks returns one page of the tasks matching f.
func (s *Store) ListTasks(f TaskFilter, page, pageSize int) (TaskPage, error) {
	if page < 1 {
		return TaskPage{}, errors.InvalidArgumentf("page must be >= 1, got %d", page)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return TaskPage{}, errors.InvalidArgumentf("page_size must be between 1 and %d, got %d", MaxPageSize, pageSize)
	}

	res := TaskPage{Tasks: []*models.Task{}, Page: page, PageSize: pageSize}
	start := (page - 1) * pageSize
	for t := range s.Tasks(f) {
		if res.Total >= start && len(res.Tasks) < pageSize {
			res.Tasks = append(res.Tasks, t)
		}
		res.Total++
	}
	return res, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *Store) snapshotTasks() []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		out = append(out, s.tasks[id])
	}
	return out
}

// CreateDependency inserts a new edge after checking endpoints, self-loops,
// duplicates and, for ordering types, acyclicity.
func (s *Store) CreateDependency(ctx context.Context, d *models.Dependency) (*models.Dependency, error) {
	rec := d.Clone()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if err := models.ValidateStruct(rec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deps[rec.ID]; exists {
		return nil, errors.InvalidArgumentf("dependency %s already exists", rec.ID)
	}
	if err := s.checkEdgeLocked(rec, ""); err != nil {
		return nil, err
	}
	if err := s.persister.SaveDependency(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist dependency %s: %w", rec.ID, err)
	}
	s.linkLocked(rec)
	return rec.Clone(), nil
}

// UpdateDependency changes the type and description of an existing edge.
// The edge itself is ignored by the duplicate and cycle checks.
func (s *Store) UpdateDependency(ctx context.Context, id string, typ models.DependencyType, description *string) (*models.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.deps[id]
	if !ok {
		return nil, errors.NotFound("dependency", id)
	}
	rec := cur.Clone()
	rec.Type = typ
	if description != nil {
		desc := *description
		rec.Description = &desc
	}
	if err := models.ValidateStruct(rec); err != nil {
		return nil, err
	}
	if err := s.checkEdgeLocked(rec, id); err != nil {
		return nil, err
	}
	if err := s.persister.SaveDependency(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist dependency %s: %w", rec.ID, err)
	}
	s.deps[id] = rec
	return rec.Clone(), nil
}

func (s *Store) GetDependency(id string) (*models.Dependency, error) {
	s.mu.RLock()
	d, ok := s.deps[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("dependency", id)
	}
	return d.Clone(), nil
}

// DeleteDependency removes the edge and returns the removed record.
func (s *Store) DeleteDependency(ctx context.Context, id string) (*models.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deps[id]
	if !ok {
		return nil, errors.NotFound("dependency", id)
	}
	if err := s.persister.DeleteDependency(ctx, id); err != nil {
		return nil, fmt.Errorf("persist delete of dependency %s: %w", id, err)
	}
	s.unlinkLocked(d)
	return d.Clone(), nil
}

// DependenciesForTask returns every edge touching the task, either direction.
func (s *Store) DependenciesForTask(taskID string) ([]*models.Dependency, error) {
	s.mu.RLock()
	_, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("task", taskID)
	}
	return s.ListDependencies(DependencyFilter{TaskID: taskID}), nil
}

func (s *Store) ListDependencies(f DependencyFilter) []*models.Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Dependency{}
	for _, id := range s.depOrder {
		if d := s.deps[id]; f.Match(d) {
			out = append(out, d.Clone())
		}
	}
	return out
}

// checkEdgeLocked validates rec against the current graph, ignoring the edge
// with id skip.
func (s *Store) checkEdgeLocked(rec *models.Dependency, skip string) error {
	if _, ok := s.tasks[rec.SourceTaskID]; !ok {
		return errors.NotFound("task", rec.SourceTaskID)
	}
	if _, ok := s.tasks[rec.TargetTaskID]; !ok {
		return errors.NotFound("task", rec.TargetTaskID)
	}
	if rec.SourceTaskID == rec.TargetTaskID {
		return errors.SelfDependency(rec.SourceTaskID)
	}
	for _, id := range s.tasks[rec.SourceTaskID].DependsOn {
		d := s.deps[id]
		if id != skip && d.TargetTaskID == rec.TargetTaskID && d.Type == rec.Type {
			return errors.DuplicateDependency(id, rec.SourceTaskID, rec.TargetTaskID, string(rec.Type))
		}
	}
	if rec.Type.Ordering() {
		if path := s.pathLocked(rec.TargetTaskID, rec.SourceTaskID, skip); path != nil {
			return errors.Cyclic(append([]string{rec.SourceTaskID}, path...))
		}
	}
	return nil
}

func (s *Store) linkLocked(d *models.Dependency) {
	s.deps[d.ID] = d
	s.depOrder = append(s.depOrder, d.ID)

	src := s.tasks[d.SourceTaskID].Clone()
	src.DependsOn = append(src.DependsOn, d.ID)
	s.tasks[src.ID] = src

	dst := s.tasks[d.TargetTaskID].Clone()
	dst.Blocks = append(dst.Blocks, d.ID)
	s.tasks[dst.ID] = dst
}

func (s *Store) unlinkLocked(d *models.Dependency) {
	delete(s.deps, d.ID)
	s.depOrder = slices.DeleteFunc(s.depOrder, func(id string) bool { return id == d.ID })

	drop := func(id string) bool { return id == d.ID }
	if t, ok := s.tasks[d.SourceTaskID]; ok {
		c := t.Clone()
		c.DependsOn = slices.DeleteFunc(c.DependsOn, drop)
		s.tasks[c.ID] = c
	}
	if t, ok := s.tasks[d.TargetTaskID]; ok {
		c := t.Clone()
		c.Blocks = slices.DeleteFunc(c.Blocks, drop)
		s.tasks[c.ID] = c
	}
}
