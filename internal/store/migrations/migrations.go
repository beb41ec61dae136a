// Package migrations embeds the local state store schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
