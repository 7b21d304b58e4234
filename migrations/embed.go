// Package migrations embeds the SQL schema and seed files shipped with
// the binary.
package migrations

import "embed"

// FS holds every migration and seed file.
//
//go:embed sql/*.sql seed/*.sql
var FS embed.FS

// Dir names the schema migration directory inside FS.
const Dir = "sql"

// SeedDir names the seed directory inside FS.
const SeedDir = "seed"
