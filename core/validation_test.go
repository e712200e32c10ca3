package core

import (
	"errors"
	"testing"
)

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		wantErr error
	}{
		{
			name: "valid chunk",
			chunk: &Chunk{
				Namespace: "org_1",
				Text:      "Refunds are processed within 5 days.",
				Status:    StatusReady,
				Metadata:  ChunkMetadata{DisplayName: "Refunds"},
			},
			wantErr: nil,
		},
		{
			name: "placeholder may have empty text",
			chunk: &Chunk{
				Namespace: "org_1",
				Status:    StatusPending,
				Metadata:  ChunkMetadata{DisplayName: "Refunds", Placeholder: true},
			},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrInvalidChunk,
		},
		{
			name: "missing namespace",
			chunk: &Chunk{
				Text:     "text",
				Status:   StatusReady,
				Metadata: ChunkMetadata{DisplayName: "Refunds"},
			},
			wantErr: ErrEmptyNamespace,
		},
		{
			name: "namespace with NUL byte",
			chunk: &Chunk{
				Namespace: "acme\x00evil",
				Text:      "text",
				Status:    StatusReady,
				Metadata:  ChunkMetadata{DisplayName: "Refunds"},
			},
			wantErr: ErrInvalidNamespace,
		},
		{
			name: "missing display name",
			chunk: &Chunk{
				Namespace: "org_1",
				Text:      "text",
				Status:    StatusReady,
			},
			wantErr: ErrEmptyDisplayName,
		},
		{
			name: "empty text on regular chunk",
			chunk: &Chunk{
				Namespace: "org_1",
				Status:    StatusReady,
				Metadata:  ChunkMetadata{DisplayName: "Refunds"},
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "unknown status",
			chunk: &Chunk{
				Namespace: "org_1",
				Text:      "text",
				Status:    "archived",
				Metadata:  ChunkMetadata{DisplayName: "Refunds"},
			},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidChunk) {
				t.Errorf("ValidateChunk() error should wrap ErrInvalidChunk")
			}
		})
	}
}

func TestValidateKnowledgeBase(t *testing.T) {
	tests := []struct {
		name    string
		kb      *KnowledgeBase
		wantErr error
	}{
		{name: "valid", kb: &KnowledgeBase{TenantID: "org_1", Name: "Support"}, wantErr: nil},
		{name: "nil", kb: nil, wantErr: ErrInvalidKnowledgeBase},
		{name: "no tenant", kb: &KnowledgeBase{Name: "Support"}, wantErr: ErrEmptyTenant},
		{name: "tenant with NUL byte", kb: &KnowledgeBase{TenantID: "acme\x00evil", Name: "Support"}, wantErr: ErrInvalidNamespace},
		{name: "blank name", kb: &KnowledgeBase{TenantID: "org_1", Name: "  "}, wantErr: ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKnowledgeBase(tt.kb)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateKnowledgeBase() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateKnowledgeBase() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNotification(t *testing.T) {
	valid := &Notification{TenantID: "org_1", Type: NotificationFileReady}
	if err := ValidateNotification(valid); err != nil {
		t.Errorf("ValidateNotification() error = %v, want nil", err)
	}

	if err := ValidateNotification(&Notification{Type: NotificationFileReady}); !errors.Is(err, ErrEmptyTenant) {
		t.Errorf("ValidateNotification() error = %v, want ErrEmptyTenant", err)
	}

	if err := ValidateNotification(&Notification{TenantID: "org_1", Type: "bogus"}); !errors.Is(err, ErrInvalidNotificationType) {
		t.Errorf("ValidateNotification() error = %v, want ErrInvalidNotificationType", err)
	}
}

func TestValidateDocumentID(t *testing.T) {
	if err := ValidateDocumentID(DocumentID{Namespace: "ns", DisplayName: "doc"}); err != nil {
		t.Errorf("ValidateDocumentID() error = %v", err)
	}
	if err := ValidateDocumentID(DocumentID{DisplayName: "doc"}); !errors.Is(err, ErrEmptyNamespace) {
		t.Errorf("ValidateDocumentID() error = %v, want ErrEmptyNamespace", err)
	}
	if err := ValidateDocumentID(DocumentID{Namespace: "ns\x00", DisplayName: "doc"}); !errors.Is(err, ErrInvalidNamespace) {
		t.Errorf("ValidateDocumentID() error = %v, want ErrInvalidNamespace", err)
	}
	if err := ValidateDocumentID(DocumentID{Namespace: "ns"}); !errors.Is(err, ErrEmptyDisplayName) {
		t.Errorf("ValidateDocumentID() error = %v, want ErrEmptyDisplayName", err)
	}
}

func TestValidateSourceType(t *testing.T) {
	for _, s := range []SourceType{SourceUploaded, SourceScraped} {
		if err := ValidateSourceType(s); err != nil {
			t.Errorf("ValidateSourceType(%q) error = %v", s, err)
		}
	}
	if err := ValidateSourceType("emailed"); !errors.Is(err, ErrInvalidSourceType) {
		t.Errorf("ValidateSourceType() error = %v, want ErrInvalidSourceType", err)
	}
}

func TestValidateNamespace(t *testing.T) {
	if err := ValidateNamespace("acme"); err != nil {
		t.Errorf("ValidateNamespace() error = %v", err)
	}
	if err := ValidateNamespace(""); !errors.Is(err, ErrEmptyNamespace) {
		t.Errorf("ValidateNamespace() error = %v, want ErrEmptyNamespace", err)
	}
	if err := ValidateNamespace("acme\x00evil"); !errors.Is(err, ErrInvalidNamespace) {
		t.Errorf("ValidateNamespace() error = %v, want ErrInvalidNamespace", err)
	}
	if err := ValidateTenant(""); !errors.Is(err, ErrEmptyTenant) {
		t.Errorf("ValidateTenant() error = %v, want ErrEmptyTenant", err)
	}
	if err := ValidateTenant("acme\x00"); !errors.Is(err, ErrInvalidNamespace) {
		t.Errorf("ValidateTenant() error = %v, want ErrInvalidNamespace", err)
	}
}
