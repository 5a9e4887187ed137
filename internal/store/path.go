// Package store provides on-disk layout helpers for iterata correction stores.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Subdirectory names inside a store base path. Pending records live in the
// inbox; explained records are filed under explained/<category>/.
const (
	DirInbox     = "inbox"
	DirExplained = "explained"
	DirPatterns  = "patterns"
	DirRules     = "rules"
	DirMeta      = "meta"
)

// RecordExt is the file extension for persisted records.
const RecordExt = ".md"

// DefaultBasePath returns the default store location relative to the current
// working directory.
func DefaultBasePath() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, "corrections")
}

// InboxDir returns the directory holding unexplained records.
func InboxDir(base string) string {
	return filepath.Join(base, DirInbox)
}

// ExplainedDir returns the directory holding explained records.
func ExplainedDir(base string) string {
	return filepath.Join(base, DirExplained)
}

// CategoryDir returns the explained subdirectory for a category directory name.
func CategoryDir(base, category string) string {
	return filepath.Join(base, DirExplained, category)
}

// RecordFile returns the record file path for a correction ID inside dir.
func RecordFile(dir, id string) string {
	return filepath.Join(dir, id+RecordExt)
}

// EnsureLayout creates the store directory structure under base, including
// one explained subdirectory per category directory name. It reports whether
// the base path held conflicting non-store content.
func EnsureLayout(base string, categoryDirs []string) error {
	if info, err := os.Stat(base); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("base path %s is not a directory", base)
		}
		if conflicting, name := hasConflictingContent(base); conflicting {
			return fmt.Errorf("base path %s contains non-store content: %s", base, name)
		}
	}

	dirs := []string{
		InboxDir(base),
		ExplainedDir(base),
		filepath.Join(base, DirPatterns),
		filepath.Join(base, DirRules),
		filepath.Join(base, DirMeta),
	}
	for _, cat := range categoryDirs {
		dirs = append(dirs, CategoryDir(base, cat))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// hasConflictingContent reports whether an existing non-empty base directory
// was clearly created by something other than a correction store. A directory
// containing any of the store's own subdirectories is considered compatible.
func hasConflictingContent(base string) (bool, string) {
	entries, err := os.ReadDir(base)
	if err != nil || len(entries) == 0 {
		return false, ""
	}

	storeDirs := map[string]bool{
		DirInbox: true, DirExplained: true,
		DirPatterns: true, DirRules: true, DirMeta: true,
	}
	for _, entry := range entries {
		if entry.IsDir() && storeDirs[entry.Name()] {
			return false, ""
		}
	}
	// Config files are compatible; anything else is foreign content.
	for _, entry := range entries {
		if entry.Name() == "iterata.yaml" || entry.Name() == "iterata.yml" {
			continue
		}
		return true, entry.Name()
	}
	return false, ""
}

// WriteAtomic writes data to path via a temp file and rename so a crash never
// leaves a half-written record visible.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}

	success = true
	return nil
}
