// Package migrations embeds the schema migrations for the sqlite inbox
// driver so they compile into the binary.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
