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

import (
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docket/core"
)

// codecVersion prefixes every encoded record so layouts can evolve.
const codecVersion = 1

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return core.ID(v), nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(c *core.Chunk) []byte {
	var s sizer
	encodeChunk(&s, c)
	w := &writer{bs: make([]byte, s.n)}
	encodeChunk(w, c)
	return w.bs
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	r := &reader{bs: data}
	r.version()
	c := &core.Chunk{
		ID:          core.ID(r.uint64()),
		Namespace:   r.string(),
		Key:         r.string(),
		Text:        r.string(),
		ContentHash: core.ContentHash(r.string()),
		Status:      core.Status(r.string()),
		Error:       r.string(),
		Vector:      r.vector(),
		Metadata: core.ChunkMetadata{
			DisplayName:      r.string(),
			OriginalFilename: r.string(),
			MimeType:         r.string(),
			Category:         r.string(),
			KnowledgeBaseID:  r.string(),
			SourceType:       core.SourceType(r.string()),
			TenantID:         r.string(),
			BlobHandle:       core.BlobHandle(r.string()),
			ChunkIndex:       r.int(),
			TotalChunks:      r.int(),
			Placeholder:      r.bool(),
		},
		InsertedAt: r.time(),
		UpdatedAt:  r.time(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func encodeChunk(e encoder, c *core.Chunk) {
	e.uint64(codecVersion)
	e.uint64(uint64(c.ID))
	e.string(c.Namespace)
	e.string(c.Key)
	e.string(c.Text)
	e.string(string(c.ContentHash))
	e.string(string(c.Status))
	e.string(c.Error)
	e.vector(c.Vector)
	m := c.Metadata
	e.string(m.DisplayName)
	e.string(m.OriginalFilename)
	e.string(m.MimeType)
	e.string(m.Category)
	e.string(m.KnowledgeBaseID)
	e.string(string(m.SourceType))
	e.string(m.TenantID)
	e.string(string(m.BlobHandle))
	e.int(m.ChunkIndex)
	e.int(m.TotalChunks)
	e.bool(m.Placeholder)
	e.time(c.InsertedAt)
	e.time(c.UpdatedAt)
}

// MarshalKnowledgeBase serializes a KnowledgeBase to bytes.
func MarshalKnowledgeBase(kb *core.KnowledgeBase) []byte {
	var s sizer
	encodeKnowledgeBase(&s, kb)
	w := &writer{bs: make([]byte, s.n)}
	encodeKnowledgeBase(w, kb)
	return w.bs
}

// UnmarshalKnowledgeBase deserializes a KnowledgeBase from bytes.
func UnmarshalKnowledgeBase(data []byte) (*core.KnowledgeBase, error) {
	r := &reader{bs: data}
	r.version()
	kb := &core.KnowledgeBase{
		ID:          r.string(),
		TenantID:    r.string(),
		Name:        r.string(),
		Description: r.string(),
		Namespace:   r.string(),
		CreatedAt:   r.time(),
		UpdatedAt:   r.time(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return kb, nil
}

func encodeKnowledgeBase(e encoder, kb *core.KnowledgeBase) {
	e.uint64(codecVersion)
	e.string(kb.ID)
	e.string(kb.TenantID)
	e.string(kb.Name)
	e.string(kb.Description)
	e.string(kb.Namespace)
	e.time(kb.CreatedAt)
	e.time(kb.UpdatedAt)
}

// MarshalNotification serializes a Notification to bytes.
func MarshalNotification(n *core.Notification) []byte {
	var s sizer
	encodeNotification(&s, n)
	w := &writer{bs: make([]byte, s.n)}
	encodeNotification(w, n)
	return w.bs
}

// UnmarshalNotification deserializes a Notification from bytes.
func UnmarshalNotification(data []byte) (*core.Notification, error) {
	r := &reader{bs: data}
	r.version()
	n := &core.Notification{
		ID:          core.ID(r.uint64()),
		TenantID:    r.string(),
		Type:        core.NotificationType(r.string()),
		Title:       r.string(),
		Message:     r.string(),
		DocumentRef: r.string(),
		Read:        r.bool(),
		CreatedAt:   r.time(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return n, nil
}

func encodeNotification(e encoder, n *core.Notification) {
	e.uint64(codecVersion)
	e.uint64(uint64(n.ID))
	e.string(n.TenantID)
	e.string(string(n.Type))
	e.string(n.Title)
	e.string(n.Message)
	e.string(n.DocumentRef)
	e.bool(n.Read)
	e.time(n.CreatedAt)
}

// MarshalJob serializes a Job to bytes.
func MarshalJob(j *core.Job) []byte {
	var s sizer
	encodeJob(&s, j)
	w := &writer{bs: make([]byte, s.n)}
	encodeJob(w, j)
	return w.bs
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*core.Job, error) {
	r := &reader{bs: data}
	r.version()
	j := &core.Job{
		ID:   core.ID(r.uint64()),
		Kind: core.JobKind(r.string()),
		Document: core.DocumentID{
			Namespace:   r.string(),
			DisplayName: r.string(),
		},
		TenantID:        r.string(),
		KnowledgeBaseID: r.string(),
		BlobHandle:      core.BlobHandle(r.string()),
		Filename:        r.string(),
		MimeType:        r.string(),
		Category:        r.string(),
		SourceType:      core.SourceType(r.string()),
		Attempts:        r.int(),
		EnqueuedAt:      r.time(),
		LeasedUntil:     r.time(),
	}
	if r.err != nil {
		return nil, r.err
	}
	return j, nil
}

func encodeJob(e encoder, j *core.Job) {
	e.uint64(codecVersion)
	e.uint64(uint64(j.ID))
	e.string(string(j.Kind))
	e.string(j.Document.Namespace)
	e.string(j.Document.DisplayName)
	e.string(j.TenantID)
	e.string(j.KnowledgeBaseID)
	e.string(string(j.BlobHandle))
	e.string(j.Filename)
	e.string(j.MimeType)
	e.string(j.Category)
	e.string(string(j.SourceType))
	e.int(j.Attempts)
	e.time(j.EnqueuedAt)
	e.time(j.LeasedUntil)
}

// MarshalBlobMeta serializes the attributes stored beside a blob.
func MarshalBlobMeta(filename, mimeType string, size int64) []byte {
	var s sizer
	encodeBlobMeta(&s, filename, mimeType, size)
	w := &writer{bs: make([]byte, s.n)}
	encodeBlobMeta(w, filename, mimeType, size)
	return w.bs
}

// UnmarshalBlobMeta deserializes blob attributes.
func UnmarshalBlobMeta(data []byte) (filename, mimeType string, size int64, err error) {
	r := &reader{bs: data}
	r.version()
	filename = r.string()
	mimeType = r.string()
	size = int64(r.int())
	return filename, mimeType, size, r.err
}

func encodeBlobMeta(e encoder, filename, mimeType string, size int64) {
	e.uint64(codecVersion)
	e.string(filename)
	e.string(mimeType)
	e.int(int(size))
}

// encoder is implemented by sizer and writer so each record layout is
// written exactly once.
type encoder interface {
	uint64(v uint64)
	int(v int)
	string(v string)
	bool(v bool)
	time(v time.Time)
	vector(v []float32)
}

type sizer struct{ n int }

func (s *sizer) uint64(v uint64)  { s.n += varint.Uint64.Size(v) }
func (s *sizer) int(v int)        { s.n += varint.Int.Size(v) }
func (s *sizer) string(v string)  { s.n += ord.String.Size(v) }
func (s *sizer) bool(v bool)      { s.n += ord.Bool.Size(v) }
func (s *sizer) time(v time.Time) { s.n += varint.Int64.Size(unixNano(v)) }
func (s *sizer) vector(v []float32) {
	s.n += varint.Int.Size(len(v))
	for _, f := range v {
		s.n += varint.Uint64.Size(uint64(math.Float32bits(f)))
	}
}

type writer struct {
	bs []byte
	n  int
}

func (w *writer) uint64(v uint64)  { w.n += varint.Uint64.Marshal(v, w.bs[w.n:]) }
func (w *writer) int(v int)        { w.n += varint.Int.Marshal(v, w.bs[w.n:]) }
func (w *writer) string(v string)  { w.n += ord.String.Marshal(v, w.bs[w.n:]) }
func (w *writer) bool(v bool)      { w.n += ord.Bool.Marshal(v, w.bs[w.n:]) }
func (w *writer) time(v time.Time) { w.n += varint.Int64.Marshal(unixNano(v), w.bs[w.n:]) }
func (w *writer) vector(v []float32) {
	w.n += varint.Int.Marshal(len(v), w.bs[w.n:])
	for _, f := range v {
		w.n += varint.Uint64.Marshal(uint64(math.Float32bits(f)), w.bs[w.n:])
	}
}

// reader decodes fields in order and keeps the first error.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
}

func (r *reader) version() {
	v := r.uint64()
	if r.err == nil && v != codecVersion {
		r.err = fmt.Errorf("%w: unknown codec version %d", ErrSerializationFailed, v)
	}
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.n += n
	return v
}

func (r *reader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.n += n
	return v
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return ""
	}
	r.n += n
	return v
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return false
	}
	r.n += n
	return v
}

func (r *reader) time() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	if err != nil {
		r.fail(err)
		return time.Time{}
	}
	r.n += n
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

func (r *reader) vector() []float32 {
	length := r.int()
	if r.err != nil || length == 0 {
		return nil
	}
	if length < 0 || length > len(r.bs)-r.n {
		r.fail(ErrTruncatedData)
		return nil
	}
	v := make([]float32, length)
	for i := range v {
		v[i] = math.Float32frombits(uint32(r.uint64()))
	}
	if r.err != nil {
		return nil
	}
	return v
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
