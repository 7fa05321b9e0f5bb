package storage

// Test Plan for the REGEXP SQL function:
// - matchRegexp matches a simple literal substring
// - matchRegexp matches alternation patterns the documented A.*B.*C bug
//   class requires
// - matchRegexp returns an error for an invalid pattern rather than panicking
// - matchRegexp caches compiled patterns (re-use doesn't recompile)
// - registering the driver twice is a no-op (sync.Once)
// - the REGEXP SQL function is callable from a live SQL query once the
//   codesearchd driver is used to open the connection

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRegexp_LiteralSubstring(t *testing.T) {
	t.Parallel()
	ok, err := matchRegexp("hello", "say hello world")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchRegexp_AlternationPattern(t *testing.T) {
	t.Parallel()
	ok, err := matchRegexp("A.*B.*C", "A middle B tail C")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = matchRegexp("A.*B.*C", "no match here")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchRegexp_InvalidPatternReturnsError(t *testing.T) {
	t.Parallel()
	_, err := matchRegexp("(unclosed", "text")
	assert.Error(t, err)
}

func TestRegisterRegexpDriver_RegexpFunctionIsQueryable(t *testing.T) {
	registerRegexpDriver()

	db, err := sql.Open(regexpDriverName, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var matched bool
	err = db.QueryRow(`SELECT 'A middle B tail C' REGEXP 'A.*B.*C'`).Scan(&matched)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestRegisterRegexpDriver_IdempotentRegistration(t *testing.T) {
	registerRegexpDriver()
	registerRegexpDriver()

	db, err := sql.Open(regexpDriverName, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var matched bool
	err = db.QueryRow(`SELECT 'hello' REGEXP 'hel+o'`).Scan(&matched)
	require.NoError(t, err)
	assert.True(t, matched)
}
