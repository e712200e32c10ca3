package storage

import (
	"testing"
	"time"

	"github.com/poiesic/docket/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalChunk(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name  string
		chunk *core.Chunk
	}{
		{
			name: "ready chunk with vector",
			chunk: &core.Chunk{
				ID:          core.EntryID("org_1", "Guide (part 2/3)"),
				Namespace:   "org_1",
				Key:         "Guide (part 2/3)",
				Text:        "Second part of the guide.",
				ContentHash: core.HashText("Second part of the guide."),
				Status:      core.StatusReady,
				Vector:      []float32{0.5, -0.25, 0.125, 1e-7},
				Metadata: core.ChunkMetadata{
					DisplayName:      "Guide",
					OriginalFilename: "guide.pdf",
					MimeType:         "application/pdf",
					Category:         "manuals",
					KnowledgeBaseID:  "kb_0123456789abcdef",
					SourceType:       core.SourceUploaded,
					TenantID:         "org_1",
					BlobHandle:       "blob-1",
					ChunkIndex:       1,
					TotalChunks:      3,
				},
				InsertedAt: now,
				UpdatedAt:  now.Add(time.Second),
			},
		},
		{
			name: "error placeholder without text or vector",
			chunk: &core.Chunk{
				Namespace: "org_1",
				Key:       core.PlaceholderKey("Guide"),
				Status:    core.StatusError,
				Error:     "extraction failed",
				Metadata: core.ChunkMetadata{
					DisplayName: "Guide",
					Placeholder: true,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalChunk(tt.chunk)
			decoded, err := UnmarshalChunk(data)
			require.NoError(t, err)

			assert.Equal(t, tt.chunk.ID, decoded.ID)
			assert.Equal(t, tt.chunk.Namespace, decoded.Namespace)
			assert.Equal(t, tt.chunk.Key, decoded.Key)
			assert.Equal(t, tt.chunk.Text, decoded.Text)
			assert.Equal(t, tt.chunk.ContentHash, decoded.ContentHash)
			assert.Equal(t, tt.chunk.Status, decoded.Status)
			assert.Equal(t, tt.chunk.Error, decoded.Error)
			assert.Equal(t, tt.chunk.Metadata, decoded.Metadata)
			assert.True(t, tt.chunk.InsertedAt.Equal(decoded.InsertedAt))
			assert.True(t, tt.chunk.UpdatedAt.Equal(decoded.UpdatedAt))

			if len(tt.chunk.Vector) == 0 {
				assert.Empty(t, decoded.Vector)
			} else {
				assert.Equal(t, tt.chunk.Vector, decoded.Vector)
			}
		})
	}
}

func TestUnmarshalChunk_Truncated(t *testing.T) {
	data := MarshalChunk(&core.Chunk{
		Namespace: "org_1",
		Key:       "Guide",
		Text:      "some text that makes the record longer",
		Status:    core.StatusReady,
	})

	_, err := UnmarshalChunk(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalKnowledgeBase(t *testing.T) {
	kb := &core.KnowledgeBase{
		ID:          "kb_0123456789abcdef",
		TenantID:    "org_1",
		Name:        "Support",
		Description: "Support articles",
		Namespace:   core.NamespaceKey("org_1", "kb_0123456789abcdef"),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	decoded, err := UnmarshalKnowledgeBase(MarshalKnowledgeBase(kb))
	require.NoError(t, err)
	assert.Equal(t, kb.ID, decoded.ID)
	assert.Equal(t, kb.TenantID, decoded.TenantID)
	assert.Equal(t, kb.Name, decoded.Name)
	assert.Equal(t, kb.Description, decoded.Description)
	assert.Equal(t, kb.Namespace, decoded.Namespace)
	assert.True(t, kb.CreatedAt.Equal(decoded.CreatedAt))
}

func TestMarshalUnmarshalNotification(t *testing.T) {
	n := &core.Notification{
		ID:          7,
		TenantID:    "org_1",
		Type:        core.NotificationFileFailed,
		Title:       "File processing failed",
		Message:     `Failed to process "Guide": boom`,
		DocumentRef: "Guide",
		Read:        true,
		CreatedAt:   time.Now().UTC(),
	}

	decoded, err := UnmarshalNotification(MarshalNotification(n))
	require.NoError(t, err)
	assert.Equal(t, n.ID, decoded.ID)
	assert.Equal(t, n.Type, decoded.Type)
	assert.Equal(t, n.Message, decoded.Message)
	assert.Equal(t, n.DocumentRef, decoded.DocumentRef)
	assert.True(t, decoded.Read)
	assert.True(t, n.CreatedAt.Equal(decoded.CreatedAt))
}

func TestMarshalUnmarshalJob(t *testing.T) {
	j := &core.Job{
		ID:              3,
		Kind:            core.JobIngest,
		Document:        core.DocumentID{Namespace: "org_1", DisplayName: "Guide"},
		TenantID:        "org_1",
		KnowledgeBaseID: "",
		BlobHandle:      "blob-1",
		Filename:        "guide.md",
		MimeType:        "text/markdown",
		SourceType:      core.SourceScraped,
		Attempts:        2,
		EnqueuedAt:      time.Now().UTC(),
	}

	decoded, err := UnmarshalJob(MarshalJob(j))
	require.NoError(t, err)
	assert.Equal(t, j.ID, decoded.ID)
	assert.Equal(t, j.Kind, decoded.Kind)
	assert.Equal(t, j.Document, decoded.Document)
	assert.Equal(t, j.BlobHandle, decoded.BlobHandle)
	assert.Equal(t, j.SourceType, decoded.SourceType)
	assert.Equal(t, j.Attempts, decoded.Attempts)
	assert.True(t, decoded.LeasedUntil.IsZero())
	assert.True(t, j.EnqueuedAt.Equal(decoded.EnqueuedAt))
}

func TestMarshalUnmarshalBlobMeta(t *testing.T) {
	data := MarshalBlobMeta("report.pdf", "application/pdf", 123456)

	filename, mimeType, size, err := UnmarshalBlobMeta(data)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", filename)
	assert.Equal(t, "application/pdf", mimeType)
	assert.Equal(t, int64(123456), size)
}
