package extract

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// OctetStream is the MIME type of content that could not be identified.
const OctetStream = "application/octet-stream"

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeODT  = "application/vnd.oasis.opendocument.text"
)

var extensionTypes = map[string]string{
	".pdf":      "application/pdf",
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".json":     "application/json",
	".html":     "text/html",
	".htm":      "text/html",
	".xhtml":    "application/xhtml+xml",
	".doc":      "application/msword",
	".docx":     mimeDOCX,
	".odt":      mimeODT,
	".rtf":      "application/rtf",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".webp":     "image/webp",
}

// GuessMimeType identifies content by filename extension, then by sniffing
// data, falling back to OctetStream.
func GuessMimeType(filename string, data []byte) string {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}
	if len(data) > 0 {
		if detected := baseType(mimetype.Detect(data).String()); detected != OctetStream {
			return detected
		}
	}
	return OctetStream
}

// baseType strips parameters such as charset from a MIME type.
func baseType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

type strategy int

const (
	unsupported strategy = iota
	passthrough
	htmlText
	office
	image
)

func strategyFor(mimeType string) strategy {
	switch mimeType {
	case "text/html", "application/xhtml+xml":
		return htmlText
	case "application/json", "application/x-ndjson":
		return passthrough
	case "application/pdf", "application/msword", "application/rtf", "text/rtf", mimeDOCX, mimeODT:
		return office
	}
	switch {
	case strings.HasPrefix(mimeType, "text/"):
		return passthrough
	case strings.HasPrefix(mimeType, "image/"):
		return image
	}
	return unsupported
}
