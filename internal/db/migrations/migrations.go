// Package migrations embeds the goose SQL migrations shared by the postgres
// and sqlite backends.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
