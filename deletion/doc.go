// Package deletion removes every index entry of a document, then its stored
// bytes, and reports the result to the owning tenant.
package deletion
