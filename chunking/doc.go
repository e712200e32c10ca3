// Package chunking splits extracted document text into overlapping windows
// sized for embedding.
//
// Windows prefer to end on a sentence or line boundary: a window that would
// cut mid-sentence is shortened back to the last ". " or newline, provided
// that boundary falls inside the trailing snap window (30% by default).
// Consecutive windows overlap so that a fact straddling a boundary is still
// found whole in at least one chunk.
//
// Sizes are measured in bytes and cut points never split a UTF-8 sequence.
//
//	c, err := chunking.New(chunking.WithTargetSize(2000), chunking.WithOverlap(400))
//	parts := c.Split(text)
package chunking
