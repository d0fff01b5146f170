// Package simplemessages provides a reusable library core for collecting
// public message submissions (name, email, message and an optional image)
// and republishing them as a listing ordered newest first.
//
// It exposes a single Service interface with two entry points: Submit runs the
// intake pipeline (validate, attach media, persist) for one request, and
// GetFeed produces the ordered public listing with media references resolved
// to URLs or a placeholder. Repository implementations (memory, Postgres,
// SQLite) and blob stores (memory, filesystem, S3) are provided under
// subpackages.
//
// Schema
//
// The core holds no process-wide mutable state and never creates tables on
// its own. Hosting applications run the migrations shipped with the SQL
// repositories (repo/postgres.Migrate, repo/sqlite.Migrate) once before the
// Service is used.
package simplemessages
