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

import "errors"

// Pipeline error taxonomy
var (
	// ErrPermissionDenied indicates access to another tenant's namespace or records.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates an unknown knowledge base, document or record.
	ErrNotFound = errors.New("not found")

	// ErrExtractionFailed indicates the content extractor could not produce text.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrIndexWriteFailed indicates a partial or total failure writing chunks.
	ErrIndexWriteFailed = errors.New("index write failed")

	// ErrStorageCleanupFailed indicates a blob could not be removed.
	// It is logged and never surfaced as a user visible failure.
	ErrStorageCleanupFailed = errors.New("storage cleanup failed")
)

// Domain validation errors
var (
	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidKnowledgeBase indicates a KnowledgeBase failed validation.
	ErrInvalidKnowledgeBase = errors.New("invalid knowledge base")

	// ErrInvalidNotification indicates a Notification failed validation.
	ErrInvalidNotification = errors.New("invalid notification")

	// ErrInvalidDocument indicates document level input failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyTenant indicates the tenant ID is empty.
	ErrEmptyTenant = errors.New("tenant cannot be empty")

	// ErrEmptyNamespace indicates the namespace is empty.
	ErrEmptyNamespace = errors.New("namespace cannot be empty")

	// ErrInvalidNamespace indicates a tenant ID or namespace holding a NUL byte,
	// which the index uses as its key separator.
	ErrInvalidNamespace = errors.New("namespace contains a NUL byte")

	// ErrEmptyDisplayName indicates the display name is empty.
	ErrEmptyDisplayName = errors.New("display name cannot be empty")

	// ErrEmptyContent indicates the payload or text is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyName indicates a knowledge base name is empty.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrInvalidStatus indicates an unknown Status value.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidSourceType indicates an unknown SourceType value.
	ErrInvalidSourceType = errors.New("invalid source type")

	// ErrInvalidNotificationType indicates an unknown NotificationType value.
	ErrInvalidNotificationType = errors.New("invalid notification type")
)
