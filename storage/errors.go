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

package storage

import "errors"

var (
	// ErrNotFound indicates that the requested entry, blob or record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates that a record with the same key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidQuery indicates a namespace, limit or vector that cannot be queried.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a record that could not be encoded or decoded.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates a stored record shorter than its encoding requires.
	ErrTruncatedData = errors.New("truncated data")

	// ErrInvalidCursor indicates a pagination cursor that could not be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrBlobTooLarge indicates a blob exceeding the store's size limit.
	ErrBlobTooLarge = errors.New("blob too large")
)
