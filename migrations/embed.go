// Package migrations embeds the SQL schema migrations, in golang-migrate's
// NNNN_name.up.sql / NNNN_name.down.sql layout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
