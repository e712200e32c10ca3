// Package reembed re-embeds every indexed chunk with the configured embedder,
// for use after an embedding model change.
//
// Chunks are read namespace by namespace in batches, embedded with retry and
// exponential backoff, normalized for cosine similarity and written back
// without touching their text, status or metadata.
package reembed
