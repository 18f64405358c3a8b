// Package dedupe finds passages that repeat earlier ones.
//
// Two passages are duplicates when the first N characters of their content
// hash to the same fingerprint; the first occurrence is always kept. The same
// fingerprint drives the ExistenceIndex, so an interrupted import can resume
// by skipping whatever the store already holds.
package dedupe
