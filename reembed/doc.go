// Package reembed regenerates the embeddings of records already in the
// store, for example after switching embedding models.
//
// Records are visited in ID order one page at a time. After each page the
// last visited ID is checkpointed, so an interrupted pass picks up where it
// stopped.
package reembed
