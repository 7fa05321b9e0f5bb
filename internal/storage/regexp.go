package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// regexpDriverName is registered once, globally, per SPEC_FULL.md §4.5: the
// SQL `REGEXP(pattern, text)` function is backed by Go's own RE2 engine
// rather than a LIKE/FTS pre-filter, so alternation and backreference-free
// patterns that the source's LIKE-based approximation dropped (the
// documented `A.*B.*C` bug) are matched correctly.
const regexpDriverName = "sqlite3_codesearchd"

var registerDriverOnce sync.Once

// registerRegexpDriver registers the codesearchd sqlite3 driver variant
// with a REGEXP scalar function on every new connection. Safe to call
// repeatedly; registration happens at most once per process.
func registerRegexpDriver() {
	registerDriverOnce.Do(func() {
		sql.Register(regexpDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("regexp", matchRegexp, true)
			},
		})
	})
}

var regexCache = struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}{cache: make(map[string]*regexp.Regexp)}

// matchRegexp is the SQL-visible REGEXP(pattern, text) implementation.
// Compiled patterns are cached since the same pattern is evaluated once per
// row scanned.
func matchRegexp(pattern, text string) (bool, error) {
	regexCache.mu.RLock()
	re, ok := regexCache.cache[pattern]
	regexCache.mu.RUnlock()
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		regexCache.mu.Lock()
		regexCache.cache[pattern] = compiled
		regexCache.mu.Unlock()
		re = compiled
	}
	return re.MatchString(text), nil
}
