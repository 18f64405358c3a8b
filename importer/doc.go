// Package importer prepares staged entries for the store, writes them in
// independent chunks, and reconciles the final count.
//
// Chunks are committed or failed on their own: a failed chunk is reported
// and the next one is still attempted. Success is counted only from the
// rows the store acknowledges, and a short acknowledgement is reported
// rather than retried, since re-sending rows without an idempotency key
// could insert them twice.
package importer
