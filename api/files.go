package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/poiesic/docket"
	"github.com/poiesic/docket/catalog"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/ingestion"
	"github.com/poiesic/docket/storage"
)

type receiptResponse struct {
	DisplayName string `json:"displayName"`
	Namespace   string `json:"namespace"`
	Status      string `json:"status,omitempty"`
	BlobHandle  string `json:"blobHandle,omitempty"`
	URL         string `json:"url,omitempty"`
	JobID       string `json:"jobId,omitempty"`
}

func newReceiptResponse(r *ingestion.Receipt) receiptResponse {
	resp := receiptResponse{
		DisplayName: r.Document.DisplayName,
		Namespace:   r.Document.Namespace,
		Status:      string(r.Status),
		BlobHandle:  string(r.BlobHandle),
		URL:         r.URL,
	}
	if r.JobID != 0 {
		resp.JobID = r.JobID.String()
	}
	return resp
}

// tenant reads the tenant set by authenticate. Routes behind it always have one.
func tenant(r *http.Request) string {
	t, _ := TenantFrom(r.Context())
	return t
}

// nameParam returns the unescaped {name} path segment.
func nameParam(r *http.Request) (string, error) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		return "", fmt.Errorf("%w: invalid document name", errBadRequest)
	}
	return name, nil
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: missing file", errBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	receipt, err := s.sys.Ingestion().Ingest(r.Context(), ingestion.Request{
		Data:            data,
		Filename:        header.Filename,
		DisplayName:     r.FormValue("displayName"),
		MimeType:        header.Header.Get("Content-Type"),
		TenantID:        tenant(r),
		KnowledgeBaseID: r.FormValue("knowledgeBaseId"),
		Category:        r.FormValue("category"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newReceiptResponse(receipt))
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	files, err := s.sys.Catalog().List(r.Context(), tenant(r), catalog.Filter{
		KnowledgeBaseID: q.Get("knowledgeBaseId"),
		Category:        q.Get("category"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if files == nil {
		files = []*catalog.File{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	name, err := nameParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	file, err := s.sys.Catalog().Get(r.Context(), tenant(r), r.URL.Query().Get("knowledgeBaseId"), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	name, err := nameParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.sys.DeleteDocument(r.Context(), tenant(r), r.URL.Query().Get("knowledgeBaseId"), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := receiptResponse{DisplayName: receipt.Document.DisplayName, Namespace: receipt.Document.Namespace}
	if receipt.JobID != 0 {
		resp.JobID = receipt.JobID.String()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) retryFile(w http.ResponseWriter, r *http.Request) {
	name, err := nameParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.sys.Ingestion().Retry(r.Context(), tenant(r), r.URL.Query().Get("knowledgeBaseId"), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newReceiptResponse(receipt))
}

type scrapeRequest struct {
	URL             string `json:"url"`
	KnowledgeBaseID string `json:"knowledgeBaseId"`
	Category        string `json:"category"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.sys.Scrape(r.Context(), docket.ScrapeRequest{
		URL:             req.URL,
		TenantID:        tenant(r),
		KnowledgeBaseID: req.KnowledgeBaseID,
		Category:        req.Category,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newReceiptResponse(receipt))
}

// getBlob serves stored bytes for blob stores that hand out local URLs.
func (s *Server) getBlob(w http.ResponseWriter, r *http.Request) {
	handle := core.BlobHandle(chi.URLParam(r, "handle"))
	data, err := s.sys.Blobs().Get(r.Context(), handle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filename := string(handle)
	if d, ok := s.sys.Blobs().(storage.BlobDescriber); ok {
		if name, _, err := d.Describe(r.Context(), handle); err == nil && name != "" {
			filename = name
		}
	}

	h := w.Header()
	h.Set("Content-Type", servedContentType(data))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// activeContentTypes are served as plain text so stored uploads never run
// script in the API's origin.
var activeContentTypes = []string{
	"text/html",
	"application/xhtml+xml",
	"image/svg+xml",
	"text/xml",
	"application/xml",
	"text/javascript",
	"application/javascript",
}

func servedContentType(data []byte) string {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if mimetype.EqualsAny(m.String(), activeContentTypes...) {
			return "text/plain; charset=utf-8"
		}
	}
	return detected.String()
}
