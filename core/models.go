package core

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID in decimal form.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a decimal ID.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// Status is the processing state of a chunk, and by aggregation of a document.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// SourceType records how a document entered the system.
type SourceType string

const (
	SourceUploaded SourceType = "uploaded"
	SourceScraped  SourceType = "scraped"
)

// DocumentID identifies a logical document: every chunk sharing a display
// name inside one namespace belongs to the same document.
type DocumentID struct {
	Namespace   string
	DisplayName string
}

// String renders the document ID as "namespace/displayName".
func (d DocumentID) String() string {
	return d.Namespace + "/" + d.DisplayName
}

// IsZero reports whether either part of the ID is empty.
func (d DocumentID) IsZero() bool {
	return d.Namespace == "" || d.DisplayName == ""
}

// BlobHandle references raw bytes held by a blob store.
type BlobHandle string

// ContentHash is the hex encoded digest of a chunk's bytes.
type ContentHash string

// ChunkMetadata carries denormalized document attributes on every chunk.
type ChunkMetadata struct {
	DisplayName      string
	OriginalFilename string
	MimeType         string
	Category         string
	KnowledgeBaseID  string
	SourceType       SourceType
	TenantID         string
	BlobHandle       BlobHandle
	ChunkIndex       int
	TotalChunks      int
	Placeholder      bool // Marks the transient entry written while a job is in flight
}

// Chunk is one independently searchable segment of a document.
type Chunk struct {
	ID          ID
	Namespace   string
	Key         string
	Text        string
	ContentHash ContentHash
	Status      Status
	Error       string // Failure reason, only set on error placeholders
	Vector      []float32
	Metadata    ChunkMetadata
	InsertedAt  time.Time
	UpdatedAt   time.Time
}

// Document returns the logical document this chunk belongs to.
func (c *Chunk) Document() DocumentID {
	return DocumentID{Namespace: c.Namespace, DisplayName: c.Metadata.DisplayName}
}

// EntryID derives the deterministic index entry ID for a key in a namespace.
func EntryID(namespace, key string) ID {
	return IDFromContent(namespace + "\x00" + key)
}

// ChunkKey returns the index key for chunk i of total.
// Single chunk documents use the display name itself.
func ChunkKey(displayName string, i, total int) string {
	if total <= 1 {
		return displayName
	}
	return displayName + " (part " + strconv.Itoa(i+1) + "/" + strconv.Itoa(total) + ")"
}

// PlaceholderKey returns the index key of a document's in-flight placeholder.
func PlaceholderKey(displayName string) string {
	return displayName + " (processing)"
}

// KnowledgeBase is a tenant owned partition with its own namespace.
type KnowledgeBase struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	Namespace   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// KnowledgeBaseIDPrefix prefixes every generated knowledge base ID.
const KnowledgeBaseIDPrefix = "kb_"

// NamespaceKey derives the namespace for a tenant and optional knowledge base.
func NamespaceKey(tenantID, knowledgeBaseID string) string {
	if knowledgeBaseID == "" {
		return tenantID
	}
	return tenantID + "_" + knowledgeBaseID
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationFileReady      NotificationType = "file_ready"
	NotificationFileFailed     NotificationType = "file_failed"
	NotificationFileProcessing NotificationType = "file_processing"
)

// Notification is a tenant scoped record of an asynchronous outcome.
type Notification struct {
	ID          ID
	TenantID    string
	Type        NotificationType
	Title       string
	Message     string
	DocumentRef string // Display name of the document the notification is about
	Read        bool
	CreatedAt   time.Time
}

// JobKind names the handler a queued job is dispatched to.
type JobKind string

const (
	JobIngest JobKind = "ingest"
	JobDelete JobKind = "delete"
)

// Job is a durable work item. It carries everything needed to rerun
// ingestion or deletion from the "not yet ready" boundary.
type Job struct {
	ID              ID
	Kind            JobKind
	Document        DocumentID
	TenantID        string
	KnowledgeBaseID string
	BlobHandle      BlobHandle
	Filename        string
	MimeType        string
	Category        string
	SourceType      SourceType
	Attempts        int
	EnqueuedAt      time.Time
	LeasedUntil     time.Time
}

// SearchHit is a chunk returned by an index query with its relevance score.
type SearchHit struct {
	Chunk *Chunk
	Score float32
}

// Page is one slice of a namespace listing.
// An empty NextCursor means the listing is exhausted.
type Page struct {
	Chunks     []*Chunk
	NextCursor string
}

// TrimDisplayName trims a requested display name and falls back to the filename.
func TrimDisplayName(displayName, filename string) string {
	if trimmed := strings.TrimSpace(displayName); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(filename)
}
