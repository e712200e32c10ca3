// Package events announces changes to a tenant's file list.
//
// The ingestion and deletion coordinators publish a FilesChanged event
// whenever a document becomes ready, fails, or is removed. Listeners use it
// to refresh file listings without polling.
package events

import (
	"context"
	"errors"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	// FilesChanged means the file list of a namespace changed.
	FilesChanged Kind = "files_changed"
)

// Event describes a change to one document.
type Event struct {
	Kind        Kind      `json:"kind"`
	TenantID    string    `json:"tenantId"`
	Namespace   string    `json:"namespace"`
	DisplayName string    `json:"displayName"`
	At          time.Time `json:"at"`
}

// Publisher delivers events to listeners.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

// Publish delivers event to every publisher, even when an earlier one fails.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }
