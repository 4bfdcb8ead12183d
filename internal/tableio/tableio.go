// Package tableio stores the rosetta tables as YAML documents on disk.
//
// A table is an ordered list of flat rows. Load always re-reads the
// backing file so every registry operation observes the latest persisted
// state; the cost of the extra I/O buys crash safety and cross-process
// consistency under the orchestrator's file lock. Save goes through a
// temp file and rename so readers never observe a partial table.
package tableio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type document[T any] struct {
	Entries []T `yaml:"entries"`
}

// Table persists rows of type T at a fixed path.
type Table[T any] struct {
	path string
}

func New[T any](path string) *Table[T] {
	return &Table[T]{path: path}
}

func (t *Table[T]) Path() string { return t.path }

// Exists reports whether the backing file has been created.
func (t *Table[T]) Exists() bool {
	_, err := os.Stat(t.path)
	return err == nil
}

// Load reads every row from the backing file. No caching: callers see
// whatever the last writer persisted.
func (t *Table[T]) Load() ([]T, error) {
	b, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", t.path, err)
	}
	var doc document[T]
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing table %s: %w", t.path, err)
	}
	return doc.Entries, nil
}

// Save atomically replaces the backing file with the given rows.
func (t *Table[T]) Save(entries []T) error {
	b, err := yaml.Marshal(document[T]{Entries: entries})
	if err != nil {
		return fmt.Errorf("encoding table %s: %w", t.path, err)
	}
	if err := writeFileAtomic(t.path, b, 0644); err != nil {
		return fmt.Errorf("writing table %s: %w", t.path, err)
	}
	return nil
}

// Seed writes the given base rows only when the backing file does not
// exist yet. An existing table is never overwritten.
func (t *Table[T]) Seed(entries []T) error {
	if t.Exists() {
		return nil
	}
	return t.Save(entries)
}

// Restore overwrites the backing file with raw, already-encoded table
// bytes, used when recovering from a backup blob.
func (t *Table[T]) Restore(raw []byte) error {
	var doc document[T]
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("restore of table %s rejected: %w", t.path, err)
	}
	return writeFileAtomic(t.path, raw, 0644)
}
