package database

import "embed"

// Migrations holds the embedded schema migration files, applied at startup
// via Migrator.MigrateFromFS.
//
//go:embed migrations/*.up.sql
var Migrations embed.FS

// MigrationsDir is the directory name inside the embedded filesystem.
const MigrationsDir = "migrations"
