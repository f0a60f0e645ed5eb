/*
Package postgres provides the durable PostgreSQL implementation of the
workqueue.Queue contract.

All mutating statements are atomic: claiming combines skip-locked selection
with the ownership update in one UPDATE, completion and failure are
conditional on current ownership, and orphan reclamation is one batch
update. The database connection is bound through the go-sqldb/db package;
the required schema is created by CreateSchema.
*/
package postgres
