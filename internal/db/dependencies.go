package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ldi/metis/pkg/models"
)

const dependencyColumns = `id, source_task_id, target_task_id, dependency_type, description, created_at`

// SaveDependency inserts the edge or updates the stored row with the same id.
// Endpoints are fixed once created.
func (db *DB) SaveDependency(ctx context.Context, d *models.Dependency) error {
	if err := db.saveDependency(ctx, db.DB, d); err != nil {
		return err
	}
	db.changed(ctx)
	return nil
}

func (db *DB) saveDependency(ctx context.Context, exec executor, d *models.Dependency) error {
	query := `
		INSERT INTO dependencies (` + dependencyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			dependency_type = excluded.dependency_type,
			description = excluded.description
	`
	_, err := exec.ExecContext(ctx, query,
		d.ID, d.SourceTaskID, d.TargetTaskID, d.Type, d.Description, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dependency %s: %w", d.ID, err)
	}
	return nil
}

func (db *DB) DeleteDependency(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM dependencies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dependency: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("dependency not found: %s", id)
	}

	db.changed(ctx)
	return nil
}

// ListDependencies returns every edge in insertion order.
func (db *DB) ListDependencies(ctx context.Context) ([]*models.Dependency, error) {
	return db.listDependencies(ctx, db.DB)
}

func (db *DB) listDependencies(ctx context.Context, exec executor) ([]*models.Dependency, error) {
	rows, err := exec.QueryContext(ctx, `SELECT `+dependencyColumns+` FROM dependencies ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	var deps []*models.Dependency
	for rows.Next() {
		d := &models.Dependency{}
		var desc sql.NullString
		if err := rows.Scan(&d.ID, &d.SourceTaskID, &d.TargetTaskID, &d.Type, &desc, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if desc.Valid {
			d.Description = &desc.String
		}
		d.CreatedAt = d.CreatedAt.UTC()
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return deps, nil
}
