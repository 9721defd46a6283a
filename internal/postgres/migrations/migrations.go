// Package migrations embeds the goose SQL migration files for the optional
// Postgres-backed user-database store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
