// Package ledger holds the record ledger sinks fed by the orchestrator after
// each applied contribution: a database table, an append-only CSV file, a
// fan-out and an asynchronous dispatcher that keeps sinks off the hot path.
package ledger
