package indexer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

// discovery walks a root directory for the Indexing Coordinator's initial
// full scan, applying the same include/exclude glob semantics the File
// Watcher enforces on live events: exclude always wins.
type discovery struct {
	root    string
	include []glob.Glob
	exclude []glob.Glob
}

func newDiscovery(root string, includePatterns, excludePatterns []string) (*discovery, error) {
	include, err := compileGlobs(includePatterns)
	if err != nil {
		return nil, fmt.Errorf("compile include patterns: %w", err)
	}
	exclude, err := compileGlobs(excludePatterns)
	if err != nil {
		return nil, fmt.Errorf("compile exclude patterns: %w", err)
	}
	return &discovery{root: root, include: include, exclude: exclude}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// walk returns every regular file under d.root not rejected by matches,
// relative to d.root with forward slashes regardless of OS.
func (d *discovery) walk() ([]string, error) {
	var paths []string
	err := filepath.Walk(d.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(d.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.matches(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	return paths, nil
}

// matches reports whether rel should be indexed: not excluded, and included
// when an include set is configured (a nil/empty include set means
// "everything not excluded"). Each glob is also tried against "/"+rel, so
// a leading "**/" matches files and directories at the root as well.
func (d *discovery) matches(rel string) bool {
	if d.excluded(rel) {
		return false
	}
	if len(d.include) == 0 {
		return true
	}
	for _, g := range d.include {
		if g.Match(rel) || g.Match("/"+rel) {
			return true
		}
	}
	return false
}

func (d *discovery) excluded(rel string) bool {
	for _, g := range d.exclude {
		if g.Match(rel) || g.Match("/"+rel) {
			return true
		}
	}
	return false
}
