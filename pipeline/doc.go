// Package pipeline runs the full path from staged passages to stored records:
// deduplicate, optionally diff against the store, embed what is missing,
// prepare, import in chunks, and reconcile the final count.
//
// Only configuration problems stop a run before it starts. Per-entry and
// per-chunk failures are collected into the RunReport.
package pipeline
