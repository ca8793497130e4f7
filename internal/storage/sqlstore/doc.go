// Package sqlstore implements the portfolio repository on top of
// database/sql. MySQL and SQLite are supported; the schema and the demo
// seed are applied from the embedded migrations in deploy/migrations and
// tracked in a schema_migrations table.
package sqlstore
