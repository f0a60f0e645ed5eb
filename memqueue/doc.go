/*
Package memqueue provides an in-memory implementation of the
workqueue.Queue contract with the same lifecycle semantics as the
PostgreSQL backend.

It exists for tests, including the concurrency and crash-recovery suite,
and for local development without a database. State is lost when the
process exits, so it must not back production processors.
*/
package memqueue
