package graph

import (
	"context"

	"github.com/ldi/metis/pkg/models"
)

// Persister is the storage backend behind a Store. Every call happens while
// the store holds its write lock, before the in-memory state is changed; an
// error aborts the write.
//
// Edge-id sets on tasks (DependsOn, Blocks) are derived from the dependency
// records on Load and need not be stored.
type Persister interface {
	SaveTask(ctx context.Context, t *models.Task) error
	// DeleteTask removes the task and the cascaded dependencies atomically.
	DeleteTask(ctx context.Context, id string, cascaded []string) error
	SaveDependency(ctx context.Context, d *models.Dependency) error
	DeleteDependency(ctx context.Context, id string) error
	// LoadAll returns every record in creation order.
	LoadAll(ctx context.Context) ([]*models.Task, []*models.Dependency, error)
}

type nopPersister struct{}

func (nopPersister) SaveTask(context.Context, *models.Task) error             { return nil }
func (nopPersister) DeleteTask(context.Context, string, []string) error       { return nil }
func (nopPersister) SaveDependency(context.Context, *models.Dependency) error { return nil }
func (nopPersister) DeleteDependency(context.Context, string) error           { return nil }
func (nopPersister) LoadAll(context.Context) ([]*models.Task, []*models.Dependency, error) {
	return nil, nil, nil
}
