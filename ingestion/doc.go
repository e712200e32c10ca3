// Package ingestion provides the coordinator that turns uploaded bytes into
// searchable chunks.
//
// The Coordinator workflow for a document:
//   - Resolve the namespace and store the raw bytes
//   - Write a pending placeholder entry and queue a job
//   - In the job: extract text, chunk it, write every chunk, prune stale entries
//   - Report the outcome through a notification and a "files changed" event
//
// Jobs run through a durable queue when one is configured, otherwise on an
// in-process worker pool. Chunk writes are independent: a failed write leaves
// the chunks already written in place and the document in error, and a retry
// re-runs the job from extraction.
package ingestion
