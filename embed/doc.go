// Package embed turns passages into validated embedding vectors.
//
// A Generator wraps an ai.Embedder with input cleanup, truncation, retry with
// exponential backoff, and dimension validation. Each call yields a Result
// carrying either a vector or a typed *Failure, so callers can count and skip
// failed items without aborting a run.
//
// EmbedEntries drives a Generator over staged entries in batches, pausing
// between batches with a Throttle to respect upstream quotas.
package embed
