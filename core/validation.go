// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"strings"
)

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Namespace must not be empty or contain a NUL byte
//   - Metadata.DisplayName must not be empty
//   - Text must not be empty unless the chunk is a placeholder
//   - Status must be valid
//
// NOT validated (populated by the index):
//   - ID (derived from namespace and key)
//   - Vector (computed on write)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if err := ValidateNamespace(chunk.Namespace); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	if chunk.Metadata.DisplayName == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyDisplayName)
	}

	if chunk.Text == "" && !chunk.Metadata.Placeholder {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if err := ValidateStatus(chunk.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	return nil
}

// ValidateKnowledgeBase validates a KnowledgeBase according to domain rules.
//
// Validation rules:
//   - TenantID must not be empty
//   - Name must not be blank
func ValidateKnowledgeBase(kb *KnowledgeBase) error {
	if kb == nil {
		return fmt.Errorf("%w: knowledge base is nil", ErrInvalidKnowledgeBase)
	}

	if err := ValidateTenant(kb.TenantID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKnowledgeBase, err)
	}

	if strings.TrimSpace(kb.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidKnowledgeBase, ErrEmptyName)
	}

	return nil
}

// ValidateNotification validates a Notification according to domain rules.
func ValidateNotification(n *Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is nil", ErrInvalidNotification)
	}

	if n.TenantID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNotification, ErrEmptyTenant)
	}

	if err := ValidateNotificationType(n.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNotification, err)
	}

	return nil
}

// ValidateDocumentID validates that both parts of a DocumentID are present.
func ValidateDocumentID(id DocumentID) error {
	if err := ValidateNamespace(id.Namespace); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if id.DisplayName == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDisplayName)
	}
	return nil
}

// ValidateNamespace rejects empty namespaces and namespaces holding a NUL byte.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return ErrEmptyNamespace
	}
	if strings.IndexByte(ns, 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	return nil
}

// ValidateTenant is ValidateNamespace for tenant IDs, which double as the
// tenant namespace.
func ValidateTenant(tenantID string) error {
	if tenantID == "" {
		return ErrEmptyTenant
	}
	if strings.IndexByte(tenantID, 0) >= 0 {
		return fmt.Errorf("%w: tenant %q", ErrInvalidNamespace, tenantID)
	}
	return nil
}

// ValidateStatus validates that a Status has a known value.
func ValidateStatus(status Status) error {
	switch status {
	case StatusPending, StatusReady, StatusError:
		return nil
	}
	return fmt.Errorf("%w: value %q", ErrInvalidStatus, status)
}

// ValidateSourceType validates that a SourceType has a known value.
func ValidateSourceType(source SourceType) error {
	switch source {
	case SourceUploaded, SourceScraped:
		return nil
	}
	return fmt.Errorf("%w: value %q", ErrInvalidSourceType, source)
}

// ValidateNotificationType validates that a NotificationType has a known value.
func ValidateNotificationType(t NotificationType) error {
	switch t {
	case NotificationFileReady, NotificationFileFailed, NotificationFileProcessing:
		return nil
	}
	return fmt.Errorf("%w: value %q", ErrInvalidNotificationType, t)
}
