package migration

import "embed"

// Schema files ship inside the binary so a deploy cannot drift from its
// migrations.
const migrationsDir = "migrations"

//go:embed migrations/*.up.sql
var embeddedMigrations embed.FS
