// Package extract turns stored document bytes into plain text.
//
// Router picks a strategy from the MIME type: text formats pass through,
// HTML is rendered to text, office and PDF documents go through docconv,
// and images are described by a vision model. Every failure is wrapped in
// core.ErrExtractionFailed.
package extract
