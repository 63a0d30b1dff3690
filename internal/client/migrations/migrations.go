// Package migrations embeds the agent's local schema migrations applied with goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
