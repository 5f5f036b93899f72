package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ldi/metis/pkg/models"
)

const taskColumns = `id, title, description, status, priority, assignee, due_date, tags,
	details, test_strategy, subtasks, requirement_refs, complexity, created_at, updated_at`

// SaveTask inserts the task or replaces the stored row with the same id.
func (db *DB) SaveTask(ctx context.Context, t *models.Task) error {
	if err := db.saveTask(ctx, db.DB, t); err != nil {
		return err
	}
	db.changed(ctx)
	return nil
}

func (db *DB) saveTask(ctx context.Context, exec executor, t *models.Task) error {
	tags, err := marshalJSON(nonNil(t.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	subtasks, err := marshalJSON(nonNil(t.Subtasks))
	if err != nil {
		return fmt.Errorf("failed to encode subtasks: %w", err)
	}
	refs, err := marshalJSON(nonNil(t.RequirementRefs))
	if err != nil {
		return fmt.Errorf("failed to encode requirement refs: %w", err)
	}
	var complexity sql.NullString
	if t.Complexity != nil {
		b, err := json.Marshal(t.Complexity)
		if err != nil {
			return fmt.Errorf("failed to encode complexity: %w", err)
		}
		complexity = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			priority = excluded.priority,
			assignee = excluded.assignee,
			due_date = excluded.due_date,
			tags = excluded.tags,
			details = excluded.details,
			test_strategy = excluded.test_strategy,
			subtasks = excluded.subtasks,
			requirement_refs = excluded.requirement_refs,
			complexity = excluded.complexity,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`
	_, err = exec.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.Assignee, t.DueDate, tags,
		t.Details, t.TestStrategy, subtasks, refs, complexity, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by its ID. A missing task yields (nil, nil).
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// DeleteTask removes the task and the listed dependencies in one
// transaction. Dependencies touching the task but missing from cascaded are
// removed as well by the foreign key.
func (db *DB) DeleteTask(ctx context.Context, id string, cascaded []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, depID := range cascaded {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE id = ?`, depID); err != nil {
			return fmt.Errorf("failed to delete dependency %s: %w", depID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	db.changed(ctx)
	return nil
}

// ListTasks returns every task in insertion order.
func (db *DB) ListTasks(ctx context.Context) ([]*models.Task, error) {
	return db.listTasks(ctx, db.DB)
}

func (db *DB) listTasks(ctx context.Context, exec executor) ([]*models.Task, error) {
	rows, err := exec.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var (
		assignee             sql.NullString
		dueDate              sql.NullTime
		tags, subtasks, refs string
		complexity           sql.NullString
	)
	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &assignee, &dueDate, &tags,
		&t.Details, &t.TestStrategy, &subtasks, &refs, &complexity, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignee.Valid {
		t.Assignee = &assignee.String
	}
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		t.DueDate = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("task %s: bad tags column: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(subtasks), &t.Subtasks); err != nil {
		return nil, fmt.Errorf("task %s: bad subtasks column: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(refs), &t.RequirementRefs); err != nil {
		return nil, fmt.Errorf("task %s: bad requirement_refs column: %w", t.ID, err)
	}
	if complexity.Valid {
		t.Complexity = &models.ComplexityScore{}
		if err := json.Unmarshal([]byte(complexity.String), t.Complexity); err != nil {
			return nil, fmt.Errorf("task %s: bad complexity column: %w", t.ID, err)
		}
	}
	return t, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
