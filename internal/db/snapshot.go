package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ldi/metis/pkg/models"
)

// SnapshotVersion is written into the meta record of every export.
const SnapshotVersion = 1

const (
	recordMeta       = "meta"
	recordTask       = "task"
	recordDependency = "dependency"
)

type snapshotMeta struct {
	RecordType   string    `json:"record_type"`
	Version      int       `json:"version"`
	ExportedAt   time.Time `json:"exported_at"`
	Tasks        int       `json:"tasks"`
	Dependencies int       `json:"dependencies"`
}

type snapshotTask struct {
	RecordType string `json:"record_type"`
	*models.Task
}

type snapshotDependency struct {
	RecordType string `json:"record_type"`
	*models.Dependency
}

// ImportStats counts the records applied by ImportSnapshot.
type ImportStats struct {
	Tasks        int
	Dependencies int
}

// EnableAutoSnapshot exports a snapshot to path after every successful
// write. Export failures are logged and never fail the write.
func (db *DB) EnableAutoSnapshot(path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	db.SetOnChange(func(ctx context.Context) {
		if err := db.ExportSnapshot(ctx, path); err != nil {
			logger.Warn("auto snapshot failed", "path", path, "error", err)
		}
	})
}

// ExportSnapshot writes every record as JSONL (meta first, then tasks, then
// dependencies) to path. The file is replaced atomically.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	tasks, deps, err := db.LoadAll(ctx)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	w := bufio.NewWriter(tempFile)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	meta := snapshotMeta{
		RecordType:   recordMeta,
		Version:      SnapshotVersion,
		ExportedAt:   time.Now().UTC(),
		Tasks:        len(tasks),
		Dependencies: len(deps),
	}
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("failed to write meta line: %w", err)
	}
	for _, t := range tasks {
		if err := enc.Encode(snapshotTask{RecordType: recordTask, Task: t}); err != nil {
			return fmt.Errorf("failed to write task %s: %w", t.ID, err)
		}
	}
	for _, d := range deps {
		if err := enc.Encode(snapshotDependency{RecordType: recordDependency, Dependency: d}); err != nil {
			return fmt.Errorf("failed to write dependency %s: %w", d.ID, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // keep the deferred cleanup away from the renamed file

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ImportSnapshot upserts the records of a JSONL snapshot in one transaction.
// Records keep their ids, so importing the same file twice is a no-op.
// Graph invariants are re-checked when a graph.Store loads the result.
func (db *DB) ImportSnapshot(ctx context.Context, path string) (ImportStats, error) {
	var stats ImportStats

	file, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	restore := db.muteHooks()
	defer restore()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var base struct {
			RecordType string `json:"record_type"`
			Version    int    `json:"version"`
		}
		if err := json.Unmarshal(line, &base); err != nil {
			return stats, fmt.Errorf("line %d: failed to unmarshal record: %w", lineNo, err)
		}

		switch base.RecordType {
		case recordMeta:
			if base.Version > SnapshotVersion {
				return stats, fmt.Errorf("snapshot version %d is newer than supported version %d", base.Version, SnapshotVersion)
			}
		case recordTask:
			var t models.Task
			if err := json.Unmarshal(line, &t); err != nil {
				return stats, fmt.Errorf("line %d: failed to unmarshal task: %w", lineNo, err)
			}
			t.Tags = models.NormalizeTags(t.Tags)
			if err := models.ValidateStruct(t); err != nil {
				return stats, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if err := db.saveTask(ctx, tx, &t); err != nil {
				return stats, err
			}
			stats.Tasks++
		case recordDependency:
			var d models.Dependency
			if err := json.Unmarshal(line, &d); err != nil {
				return stats, fmt.Errorf("line %d: failed to unmarshal dependency: %w", lineNo, err)
			}
			if err := models.ValidateStruct(d); err != nil {
				return stats, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if err := db.saveDependency(ctx, tx, &d); err != nil {
				return stats, err
			}
			stats.Dependencies++
		default:
			return stats, fmt.Errorf("line %d: unknown record type %q", lineNo, base.RecordType)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return stats, err
	}

	restore()
	db.changed(ctx)
	return stats, nil
}
