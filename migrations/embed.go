// Package migrations embeds the SQL schema for the Postgres CRM sink.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
