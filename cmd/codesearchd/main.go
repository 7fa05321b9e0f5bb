// Command codesearchd watches a source tree, indexes it into an embedded
// SQLite database, and serves regex and semantic search over stdio and
// (optionally) HTTP.
package main

import "github.com/codesearchd/codesearchd/internal/cli"

func main() {
	cli.Execute()
}
