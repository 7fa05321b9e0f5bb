// Package watcher implements the recursive file-change notifier described
// in spec.md §4.1: it emits coalesced (path, kind) events, debounced per
// path, filtered by include/exclude globs enforced at the watcher's own
// ingress (not merely at initial scan).
package watcher

import "context"

// Kind is the type of change observed for a path.
type Kind int

const (
	// Created indicates the path did not exist before and now does.
	Created Kind = iota
	// Modified indicates the path's content changed.
	Modified
	// Deleted indicates the path no longer exists.
	Deleted
	// Rescan indicates the watcher backend overflowed or the watched tree
	// changed in a way that can't be expressed as per-path events; the
	// receiver should re-walk the subtree rooted at Path.
	Rescan
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Rescan:
		return "rescan"
	default:
		return "unknown"
	}
}

// Event is a single coalesced filesystem change.
type Event struct {
	Path string
	Kind Kind
}

// FileWatcher monitors source directories for changes with debouncing.
type FileWatcher interface {
	// Start begins watching, invoking callback once per coalesced event
	// after the debounce window. Does not block: runs its event loop in a
	// background goroutine until ctx is cancelled or Stop is called, and
	// returns immediately.
	Start(ctx context.Context, callback func(Event)) error

	// Stop stops the watcher and releases its resources. Idempotent.
	Stop() error

	// Pause stops firing callbacks but continues accumulating events.
	Pause()

	// Resume resumes firing callbacks, flushing anything accumulated while
	// paused.
	Resume()
}
