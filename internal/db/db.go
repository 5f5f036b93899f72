package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	embedsql "github.com/ldi/metis/embed/sql"
	"github.com/ldi/metis/internal/graph"
	"github.com/ldi/metis/pkg/models"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB is the SQLite backend of the task graph. It implements graph.Persister.
type DB struct {
	*sql.DB

	hookMu     sync.RWMutex
	onChange   func(ctx context.Context)
	hooksMuted bool
}

var _ graph.Persister = (*DB)(nil)

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SetOnChange registers fn to run after every successful write.
func (db *DB) SetOnChange(fn func(ctx context.Context)) {
	db.hookMu.Lock()
	defer db.hookMu.Unlock()
	db.onChange = fn
}

// muteHooks suppresses the change hook until the returned func is called.
func (db *DB) muteHooks() (restore func()) {
	db.hookMu.Lock()
	prev := db.hooksMuted
	db.hooksMuted = true
	db.hookMu.Unlock()
	return func() {
		db.hookMu.Lock()
		db.hooksMuted = prev
		db.hookMu.Unlock()
	}
}

func (db *DB) changed(ctx context.Context) {
	db.hookMu.RLock()
	fn, muted := db.onChange, db.hooksMuted
	db.hookMu.RUnlock()

	if fn != nil && !muted {
		fn(ctx)
	}
}

// Open opens the SQLite database at path, creating its directory if needed.
func Open(path string) (*DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	// one connection: a single writer, and :memory: stays one database
	conn.SetMaxOpenConns(1)

	return &DB{DB: conn}, nil
}

// OpenAndInit opens the database and applies the embedded schema.
func OpenAndInit(ctx context.Context, path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Migrate(ctx context.Context, schema string) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (db *DB) Init(ctx context.Context) error {
	return db.Migrate(ctx, embedsql.Schema)
}

// LoadAll returns every task and dependency in insertion order.
func (db *DB) LoadAll(ctx context.Context) ([]*models.Task, []*models.Dependency, error) {
	tasks, err := db.listTasks(ctx, db.DB)
	if err != nil {
		return nil, nil, err
	}
	deps, err := db.listDependencies(ctx, db.DB)
	if err != nil {
		return nil, nil, err
	}
	return tasks, deps, nil
}
