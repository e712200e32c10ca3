package badger

import (
	"encoding/binary"

	"github.com/poiesic/docket/core"
)

// Key prefixes for different data types
const (
	chunkPrefix           = "chk:" // chk:<namespace>\x00<BE id> -> chunk
	chunkDocPrefix        = "chd:" // chd:<namespace>\x00<displayName>\x00<BE id> -> id
	chunkReversePrefix    = "chi:" // chi:<BE id> -> namespace
	namespacePrefix       = "ns:"  // ns:<namespace> -> empty
	kbPrefix              = "kb:"  // kb:<id> -> knowledge base
	kbTenantPrefix        = "kbt:" // kbt:<tenant>\x00<id> -> empty
	notificationPrefix    = "ntf:" // ntf:<tenant>\x00<BE id> -> notification
	notificationRevPrefix = "nti:" // nti:<BE id> -> tenant
	notificationIDSeq     = "ntfseq"
	jobPrefix             = "job:" // job:<BE id> -> job
	jobIDSeq              = "jobseq"
	blobPrefix            = "blob:"  // blob:<handle> -> bytes
	blobMetaPrefix        = "blobm:" // blobm:<handle> -> filename\x00mimeType
)

const sep = 0x00

// compositeKey concatenates a prefix with separator-delimited string parts.
// A trailing separator is written after every part so that a scan over
// compositeKey(p, a) never matches entries of a longer sibling like a+"x".
func compositeKey(prefix string, parts ...string) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size+8)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
		buf = append(buf, sep)
	}
	return buf
}

// appendID appends an ID in BigEndian order so lexicographic sort matches numeric order.
func appendID(buf []byte, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// trailingID reads the BigEndian ID stored in the last 8 bytes of key.
func trailingID(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeChunkNamespacePrefix generates the scan prefix for every chunk in a namespace.
func makeChunkNamespacePrefix(namespace string) []byte {
	return compositeKey(chunkPrefix, namespace)
}

// isChunkKeyOf reports whether key is a chunk key directly under prefix.
// A longer key belongs to a namespace that merely starts with the same bytes.
func isChunkKeyOf(key, prefix []byte) bool {
	return len(key) == len(prefix)+8
}

// makeChunkKey generates the primary key for a chunk.
// Format: chk:namespace\x00id
func makeChunkKey(namespace string, id core.ID) []byte {
	return appendID(makeChunkNamespacePrefix(namespace), id)
}

// makeChunkDocPrefix generates the scan prefix for one document's chunks.
// Format: chd:namespace\x00displayName\x00
func makeChunkDocPrefix(doc core.DocumentID) []byte {
	return compositeKey(chunkDocPrefix, doc.Namespace, doc.DisplayName)
}

// makeChunkDocKey generates the secondary index key for a chunk.
func makeChunkDocKey(doc core.DocumentID, id core.ID) []byte {
	return appendID(makeChunkDocPrefix(doc), id)
}

// makeChunkReverseKey generates the id -> namespace lookup key.
func makeChunkReverseKey(id core.ID) []byte {
	return appendID([]byte(chunkReversePrefix), id)
}

// makeNamespaceKey generates the registry key for a namespace.
func makeNamespaceKey(namespace string) []byte {
	return []byte(namespacePrefix + namespace)
}

// makeKnowledgeBaseKey generates the primary key for a knowledge base.
func makeKnowledgeBaseKey(id string) []byte {
	return []byte(kbPrefix + id)
}

// makeKnowledgeBaseTenantPrefix generates the scan prefix for a tenant's knowledge bases.
func makeKnowledgeBaseTenantPrefix(tenantID string) []byte {
	return compositeKey(kbTenantPrefix, tenantID)
}

// makeKnowledgeBaseTenantKey generates the tenant index key for a knowledge base.
func makeKnowledgeBaseTenantKey(tenantID, id string) []byte {
	return append(makeKnowledgeBaseTenantPrefix(tenantID), id...)
}

// makeNotificationTenantPrefix generates the scan prefix for a tenant's notifications.
func makeNotificationTenantPrefix(tenantID string) []byte {
	return compositeKey(notificationPrefix, tenantID)
}

// makeNotificationKey generates the primary key for a notification.
// Sequence IDs make the key order the creation order.
func makeNotificationKey(tenantID string, id core.ID) []byte {
	return appendID(makeNotificationTenantPrefix(tenantID), id)
}

// makeNotificationReverseKey generates the id -> tenant lookup key.
func makeNotificationReverseKey(id core.ID) []byte {
	return appendID([]byte(notificationRevPrefix), id)
}

// makeJobKey generates the key for a queued job.
func makeJobKey(id core.ID) []byte {
	return appendID([]byte(jobPrefix), id)
}

// makeBlobKey generates the key holding a blob's bytes.
func makeBlobKey(handle core.BlobHandle) []byte {
	return []byte(blobPrefix + string(handle))
}

// makeBlobMetaKey generates the key holding a blob's filename and MIME type.
func makeBlobMetaKey(handle core.BlobHandle) []byte {
	return []byte(blobMetaPrefix + string(handle))
}
