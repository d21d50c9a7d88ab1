// Package migrations embeds the schema of the local cache database.
package migrations

import "embed"

// Migrations holds the goose SQL migrations applied when the cache opens.
//
//go:embed *.sql
var Migrations embed.FS
