// Package migrations embeds the SQL schema migrations applied by goose
// at service start.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
