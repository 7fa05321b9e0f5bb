package cli

import (
	"os"
	"path/filepath"
	"strings"
)

func filepathAbs(path string) bool {
	return filepath.IsAbs(path)
}

func joinPath(root, rel string) string {
	return filepath.Join(root, rel)
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// dbExcludeGlob returns the exclude pattern that must always cover dbPath's
// parent directory, so the watcher and initial scan never walk or watch the
// live database file (and its WAL/SHM siblings) as ordinary source —
// enforced dynamically rather than relying on the default config's
// "**/.codesearchd/**" glob, which only happens to match the default
// db.path. Returns "" when dbPath's directory isn't under root at all,
// since nothing discovery or the watcher visits would ever reach it.
func dbExcludeGlob(root, dbPath string) string {
	dir := filepath.Dir(dbPath)
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return ""
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "**"
	}
	return "**/" + rel + "/**"
}

// withDBExclude appends dbExcludeGlob's pattern to excludes if it isn't
// already present (e.g. already covered by the default glob).
func withDBExclude(excludes []string, root, dbPath string) []string {
	pattern := dbExcludeGlob(root, dbPath)
	if pattern == "" {
		return excludes
	}
	for _, e := range excludes {
		if e == pattern {
			return excludes
		}
	}
	merged := make([]string, len(excludes), len(excludes)+1)
	copy(merged, excludes)
	return append(merged, pattern)
}
