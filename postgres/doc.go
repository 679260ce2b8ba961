// Package postgres persists accounts and refresh sessions in PostgreSQL via
// pgx, and owns the embedded schema migrations.
//
// [AccountStore] satisfies authsession.AccountStore and [SessionStore]
// satisfies authsession.RefreshStore, so a deployment can keep sessions in
// Postgres instead of Redis. Both take a [DB], which *pgxpool.Pool and
// pgxmock pools implement.
//
// # Architecture boundaries
//
// Rotation does not run inside a transaction. The old record is revoked by a
// conditional UPDATE first and the successor inserted afterwards, so a failed
// insert leaves the presented secret dead rather than reusable.
//
// # What this package must NOT do
//
//   - Store raw refresh secrets. Only SHA-256 hashes reach the database.
//   - Run migrations implicitly. Callers invoke [Migrator] explicitly.
package postgres
