// Package feed owns the podcast RSS document: loading it with gofeed,
// deduplicating merges by GUID, trimming the oldest episodes beyond the
// configured cap, and persisting through an atomic temp-file rename.
//
// Store serialises load-merge-persist cycles across goroutines and processes
// so concurrent ingestions never lose each other's episodes.
package feed
