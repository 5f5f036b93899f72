package graph

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/pkg/models"
)

func newTask(t *testing.T, s *Store, title string) *models.Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), &models.Task{
		Title:    title,
		Status:   models.TaskStatusPending,
		Priority: models.PriorityMedium,
	})
	if err != nil {
		t.Fatalf("CreateTask(%s) failed: %v", title, err)
	}
	return task
}

func newDep(s *Store, src, dst string, typ models.DependencyType) (*models.Dependency, error) {
	return s.CreateDependency(context.Background(), &models.Dependency{
		SourceTaskID: src,
		TargetTaskID: dst,
		Type:         typ,
	})
}

func TestTaskCRUD(t *testing.T) {
	s := New()
	ctx := context.Background()

	task := newTask(t, s, "Write docs")
	if len(task.ID) != 36 {
		t.Errorf("Expected UUID id, got %q", task.ID)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Errorf("Expected timestamps to be set")
	}

	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Write docs" {
		t.Errorf("Expected title 'Write docs', got %q", got.Title)
	}

	got.Status = models.TaskStatusCompleted
	got.Tags = []string{"Docs", "docs"}
	updated, err := s.UpdateTask(ctx, got)
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Status != models.TaskStatusCompleted {
		t.Errorf("Expected completed, got %s", updated.Status)
	}
	if !slices.Equal(updated.Tags, []string{"docs"}) {
		t.Errorf("Expected normalized tags, got %v", updated.Tags)
	}
	if !updated.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("CreatedAt changed on update")
	}

	if _, err := s.UpdateTask(ctx, &models.Task{ID: "missing", Title: "x", Status: models.TaskStatusPending, Priority: models.PriorityLow}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected NotFound updating missing task, got %v", err)
	}

	if _, err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := s.GetTask(task.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected NotFound after delete, got %v", err)
	}
	if _, err := s.DeleteTask(ctx, task.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected NotFound deleting twice, got %v", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		task models.Task
	}{
		{"empty title", models.Task{Status: models.TaskStatusPending, Priority: models.PriorityLow}},
		{"bad status", models.Task{Title: "x", Status: "done", Priority: models.PriorityLow}},
		{"bad priority", models.Task{Title: "x", Status: models.TaskStatusPending, Priority: "critical"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateTask(ctx, &tt.task); !errors.Is(err, errors.ErrInvalidArgument) {
				t.Errorf("Expected InvalidArgument, got %v", err)
			}
		})
	}
	if s.Len() != 0 {
		t.Errorf("Expected no tasks stored, got %d", s.Len())
	}
}

func TestReturnedTasksAreCopies(t *testing.T) {
	s := New()
	task := newTask(t, s, "A")
	task.Title = "mutated"

	got, _ := s.GetTask(task.ID)
	if got.Title != "A" {
		t.Errorf("Store record mutated through returned pointer: %q", got.Title)
	}
}

func TestDependencyRules(t *testing.T) {
	s := New()
	a := newTask(t, s, "A")
	b := newTask(t, s, "B")
	c := newTask(t, s, "C")

	ab, err := newDep(s, a.ID, b.ID, models.DependencyDependsOn)
	if err != nil {
		t.Fatalf("A->B failed: %v", err)
	}
	if _, err := newDep(s, b.ID, c.ID, models.DependencyBlocks); err != nil {
		t.Fatalf("B->C failed: %v", err)
	}

	t.Run("edge sets maintained", func(t *testing.T) {
		gotA, _ := s.GetTask(a.ID)
		gotB, _ := s.GetTask(b.ID)
		if !slices.Equal(gotA.DependsOn, []string{ab.ID}) {
			t.Errorf("A.DependsOn = %v", gotA.DependsOn)
		}
		if !slices.Equal(gotB.Blocks, []string{ab.ID}) {
			t.Errorf("B.Blocks = %v", gotB.Blocks)
		}
	})

	t.Run("self dependency", func(t *testing.T) {
		if _, err := newDep(s, a.ID, a.ID, models.DependencyRelatedTo); !errors.Is(err, errors.ErrSelfDependency) {
			t.Errorf("Expected SelfDependency, got %v", err)
		}
	})

	t.Run("missing endpoint", func(t *testing.T) {
		if _, err := newDep(s, a.ID, "nope", models.DependencyDependsOn); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("Expected NotFound, got %v", err)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		if _, err := newDep(s, a.ID, b.ID, models.DependencyDependsOn); !errors.Is(err, errors.ErrDuplicateDependency) {
			t.Errorf("Expected DuplicateDependency, got %v", err)
		}
		// same endpoints, different type is a different edge
		if _, err := newDep(s, a.ID, b.ID, models.DependencyRelatedTo); err != nil {
			t.Errorf("related_to alongside depends_on rejected: %v", err)
		}
	})

	t.Run("cycle through mixed ordering types", func(t *testing.T) {
		before := len(s.ListDependencies(DependencyFilter{}))
		_, err := newDep(s, c.ID, a.ID, models.DependencyDependsOn)
		if !errors.Is(err, errors.ErrCyclicDependency) {
			t.Fatalf("Expected CyclicDependency, got %v", err)
		}
		want := fmt.Sprintf("%s -> %s -> %s -> %s", c.ID, a.ID, b.ID, c.ID)
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected witness %q in %q", want, err.Error())
		}
		if after := len(s.ListDependencies(DependencyFilter{})); after != before {
			t.Errorf("Graph changed after rejected edge: %d -> %d", before, after)
		}
	})

	t.Run("annotations do not take part in cycle check", func(t *testing.T) {
		if _, err := newDep(s, c.ID, a.ID, models.DependencyDuplicates); err != nil {
			t.Errorf("duplicates edge closing a loop rejected: %v", err)
		}
	})
}

func TestUpdateDependency(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := newTask(t, s, "A")
	b := newTask(t, s, "B")

	ab, _ := newDep(s, a.ID, b.ID, models.DependencyDependsOn)
	ba, err := newDep(s, b.ID, a.ID, models.DependencyRelatedTo)
	if err != nil {
		t.Fatalf("B->A related_to failed: %v", err)
	}

	desc := "now ordering"
	if _, err := s.UpdateDependency(ctx, ba.ID, models.DependencyBlocks, &desc); !errors.Is(err, errors.ErrCyclicDependency) {
		t.Errorf("Expected CyclicDependency when retyping into a cycle, got %v", err)
	}

	got, err := s.UpdateDependency(ctx, ab.ID, models.DependencyBlocks, &desc)
	if err != nil {
		t.Fatalf("UpdateDependency failed: %v", err)
	}
	if got.Type != models.DependencyBlocks || got.Description == nil || *got.Description != desc {
		t.Errorf("Unexpected updated dependency: %+v", got)
	}

	// retyping an edge to its own current type is not a duplicate of itself
	if _, err := s.UpdateDependency(ctx, ab.ID, models.DependencyBlocks, nil); err != nil {
		t.Errorf("No-op update rejected: %v", err)
	}
	if _, err := s.UpdateDependency(ctx, "missing", models.DependencyBlocks, nil); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestDeleteTaskCascadesExactly(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := newTask(t, s, "A")
	b := newTask(t, s, "B")
	c := newTask(t, s, "C")
	d := newTask(t, s, "D")

	ab, _ := newDep(s, a.ID, b.ID, models.DependencyDependsOn)
	cb, _ := newDep(s, c.ID, b.ID, models.DependencyRelatedTo)
	cd, _ := newDep(s, c.ID, d.ID, models.DependencyDependsOn)

	cascaded, err := s.DeleteTask(ctx, b.ID)
	if err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if !slices.Equal(cascaded, []string{ab.ID, cb.ID}) {
		t.Errorf("Cascaded = %v, want [%s %s]", cascaded, ab.ID, cb.ID)
	}

	remaining := s.ListDependencies(DependencyFilter{})
	if len(remaining) != 1 || remaining[0].ID != cd.ID {
		t.Errorf("Expected only C->D to remain, got %v", remaining)
	}

	gotA, _ := s.GetTask(a.ID)
	if len(gotA.DependsOn) != 0 {
		t.Errorf("A still references cascaded edge: %v", gotA.DependsOn)
	}
	gotC, _ := s.GetTask(c.ID)
	if !slices.Equal(gotC.DependsOn, []string{cd.ID}) {
		t.Errorf("C.DependsOn = %v", gotC.DependsOn)
	}
}

func TestDependenciesForTask(t *testing.T) {
	s := New()
	a := newTask(t, s, "A")
	b := newTask(t, s, "B")
	c := newTask(t, s, "C")
	newDep(s, a.ID, b.ID, models.DependencyDependsOn)
	newDep(s, c.ID, a.ID, models.DependencyBlocks)
	newDep(s, b.ID, c.ID, models.DependencyRelatedTo)

	deps, err := s.DependenciesForTask(a.ID)
	if err != nil {
		t.Fatalf("DependenciesForTask failed: %v", err)
	}
	if len(deps) != 2 {
		t.Errorf("Expected 2 edges touching A, got %d", len(deps))
	}
	if _, err := s.DependenciesForTask("missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}

	typed := s.ListDependencies(DependencyFilter{Type: models.DependencyRelatedTo})
	if len(typed) != 1 || typed[0].SourceTaskID != b.ID {
		t.Errorf("Type filter returned %v", typed)
	}
}

func TestListTasksFilterAndPagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := "alice"

	for i := range 7 {
		task := &models.Task{
			Title:    fmt.Sprintf("Task %d", i),
			Status:   models.TaskStatusPending,
			Priority: models.PriorityLow,
		}
		if i%2 == 0 {
			task.Priority = models.PriorityHigh
			task.Assignee = &alice
			task.Tags = []string{"Backend"}
			task.Description = "touches the API layer"
		}
		if _, err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter TaskFilter
		want   int
	}{
		{"all", TaskFilter{}, 7},
		{"priority", TaskFilter{Priority: models.PriorityHigh}, 4},
		{"assignee", TaskFilter{Assignee: "alice"}, 4},
		{"tag case-insensitive", TaskFilter{Tag: "BACKEND"}, 4},
		{"search description", TaskFilter{Search: "api"}, 4},
		{"search title", TaskFilter{Search: "task 3"}, 1},
		{"combined", TaskFilter{Priority: models.PriorityLow, Assignee: "alice"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListTasks(tt.filter, 1, MaxPageSize)
			if err != nil {
				t.Fatalf("ListTasks failed: %v", err)
			}
			if page.Total != tt.want || len(page.Tasks) != tt.want {
				t.Errorf("Expected %d, got total=%d len=%d", tt.want, page.Total, len(page.Tasks))
			}
		})
	}

	t.Run("pages are disjoint and ordered", func(t *testing.T) {
		all, _ := s.ListTasks(TaskFilter{}, 1, MaxPageSize)
		var joined []string
		for p := 1; p <= 3; p++ {
			page, err := s.ListTasks(TaskFilter{}, p, 3)
			if err != nil {
				t.Fatalf("page %d failed: %v", p, err)
			}
			if page.Total != 7 {
				t.Errorf("page %d total = %d", p, page.Total)
			}
			for _, task := range page.Tasks {
				joined = append(joined, task.ID)
			}
		}
		var want []string
		for _, task := range all.Tasks {
			want = append(want, task.ID)
		}
		if !slices.Equal(joined, want) {
			t.Errorf("Paged union %v != full listing %v", joined, want)
		}
		if all.TotalPages() != 1 {
			t.Errorf("TotalPages = %d", all.TotalPages())
		}
	})

	t.Run("bad paging", func(t *testing.T) {
		for _, pp := range [][2]int{{0, 10}, {1, 0}, {1, 101}} {
			if _, err := s.ListTasks(TaskFilter{}, pp[0], pp[1]); !errors.Is(err, errors.ErrInvalidArgument) {
				t.Errorf("page=%d size=%d: expected InvalidArgument, got %v", pp[0], pp[1], err)
			}
		}
	})

	t.Run("sequence is restartable", func(t *testing.T) {
		seq := s.Tasks(TaskFilter{Priority: models.PriorityHigh})
		count := func() int {
			n := 0
			for range seq {
				n++
			}
			return n
		}
		if a, b := count(), count(); a != 4 || b != 4 {
			t.Errorf("Expected 4 twice, got %d and %d", a, b)
		}
	})
}

// Randomized insertions: every accepted edge keeps the ordering subgraph
// acyclic, and every rejected cyclic edge leaves the graph unchanged.
func TestRandomInsertionsStayAcyclic(t *testing.T) {
	s := New()
	rng := rand.New(rand.NewSource(42))

	var ids []string
	for i := range 12 {
		ids = append(ids, newTask(t, s, fmt.Sprintf("T%d", i)).ID)
	}
	types := []models.DependencyType{models.DependencyDependsOn, models.DependencyBlocks, models.DependencyRelatedTo}

	accepted, cyclic := 0, 0
	for range 300 {
		src := ids[rng.Intn(len(ids))]
		dst := ids[rng.Intn(len(ids))]
		typ := types[rng.Intn(len(types))]
		before := len(s.ListDependencies(DependencyFilter{}))

		_, err := newDep(s, src, dst, typ)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, errors.ErrCyclicDependency):
			cyclic++
			if after := len(s.ListDependencies(DependencyFilter{})); after != before {
				t.Fatalf("Rejected edge changed graph size %d -> %d", before, after)
			}
		case errors.Is(err, errors.ErrSelfDependency), errors.Is(err, errors.ErrDuplicateDependency):
		default:
			t.Fatalf("Unexpected error: %v", err)
		}

		if _, err := s.TopologicalOrder(); err != nil {
			t.Fatalf("Graph has a cycle after %d accepted edges: %v", accepted, err)
		}
	}
	if accepted == 0 || cyclic == 0 {
		t.Errorf("Random walk did not exercise both paths: accepted=%d cyclic=%d", accepted, cyclic)
	}
}

func TestTopologicalOrder(t *testing.T) {
	s := New()
	a := newTask(t, s, "A")
	b := newTask(t, s, "B")
	c := newTask(t, s, "C")
	newDep(s, c.ID, a.ID, models.DependencyDependsOn)
	newDep(s, b.ID, a.ID, models.DependencyRelatedTo)

	order, err := s.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder failed: %v", err)
	}
	want := []string{b.ID, c.ID, a.ID}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestConcurrentInsertsStayAcyclic(t *testing.T) {
	s := New()
	a := newTask(t, s, "A")
	b := newTask(t, s, "B")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() { defer wg.Done(); newDep(s, a.ID, b.ID, models.DependencyDependsOn) }()
		go func() { defer wg.Done(); newDep(s, b.ID, a.ID, models.DependencyDependsOn) }()
	}
	wg.Wait()

	if n := len(s.ListDependencies(DependencyFilter{})); n != 1 {
		t.Errorf("Expected exactly one edge to win, got %d", n)
	}
	if _, err := s.TopologicalOrder(); err != nil {
		t.Errorf("Graph has a cycle: %v", err)
	}
}

type failingPersister struct {
	nopPersister
	fail bool
}

func (p *failingPersister) SaveDependency(context.Context, *models.Dependency) error {
	if p.fail {
		return errors.New("disk full")
	}
	return nil
}

func (p *failingPersister) DeleteTask(context.Context, string, []string) error {
	if p.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestPersisterFailureLeavesStateUnchanged(t *testing.T) {
	p := &failingPersister{}
	s := New(WithPersister(p))
	ctx := context.Background()
	a := newTask(t, s, "A")
	b := newTask(t, s, "B")
	if _, err := newDep(s, a.ID, b.ID, models.DependencyDependsOn); err != nil {
		t.Fatalf("CreateDependency failed: %v", err)
	}

	p.fail = true
	c := newTask(t, s, "C")
	if _, err := newDep(s, b.ID, c.ID, models.DependencyDependsOn); err == nil {
		t.Fatalf("Expected persister error")
	}
	if _, err := s.DeleteTask(ctx, a.ID); err == nil {
		t.Fatalf("Expected persister error on delete")
	}

	if _, err := s.GetTask(a.ID); err != nil {
		t.Errorf("Task A lost after failed delete: %v", err)
	}
	if n := len(s.ListDependencies(DependencyFilter{})); n != 1 {
		t.Errorf("Expected 1 edge, got %d", n)
	}
	gotB, _ := s.GetTask(b.ID)
	if len(gotB.DependsOn) != 0 || len(gotB.Blocks) != 1 {
		t.Errorf("B edge sets changed: depends_on=%v blocks=%v", gotB.DependsOn, gotB.Blocks)
	}
}

type memPersister struct {
	nopPersister
	tasks []*models.Task
	deps  []*models.Dependency
}

func (p memPersister) LoadAll(context.Context) ([]*models.Task, []*models.Dependency, error) {
	return p.tasks, p.deps, nil
}

func TestLoadRebuildsEdgeSets(t *testing.T) {
	p := memPersister{
		tasks: []*models.Task{
			{ID: "a", Title: "A", Status: models.TaskStatusPending, Priority: models.PriorityLow, DependsOn: []string{"stale"}},
			{ID: "b", Title: "B", Status: models.TaskStatusPending, Priority: models.PriorityLow},
		},
		deps: []*models.Dependency{
			{ID: "ab", SourceTaskID: "a", TargetTaskID: "b", Type: models.DependencyDependsOn},
			{ID: "orphan", SourceTaskID: "a", TargetTaskID: "gone", Type: models.DependencyDependsOn},
		},
	}
	s := New(WithPersister(p))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	a, _ := s.GetTask("a")
	if !slices.Equal(a.DependsOn, []string{"ab"}) {
		t.Errorf("a.DependsOn = %v", a.DependsOn)
	}
	b, _ := s.GetTask("b")
	if !slices.Equal(b.Blocks, []string{"ab"}) {
		t.Errorf("b.Blocks = %v", b.Blocks)
	}
	if _, err := s.GetDependency("orphan"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected orphan edge to be skipped, got %v", err)
	}
}
