// Package records persists call records in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, health
// queries, stuck-record recovery, and the status transitions the workers rely
// on. Each record tracks two independent stages, analysis and alerting, each
// with its own status column. Workers claim records through an atomic
// compare-and-set so a record is only ever processed by a single owner.
//
// The database is the durable source of truth for the pipeline; the webhook
// inserts rows and the workers advance them. Schema changes bump the version
// in schema.go; operators delete the database to adopt the new schema.
package records
