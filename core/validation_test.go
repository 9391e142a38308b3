package core

import (
	"errors"
	"testing"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name:    "valid document",
			doc:     &Document{Text: "The sky is blue.", SourceID: "a.txt"},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "empty text",
			doc:     &Document{Text: "", SourceID: "a.txt"},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "empty source",
			doc:     &Document{Text: "text", SourceID: ""},
			wantErr: ErrEmptySourceID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		wantErr error
	}{
		{
			name:    "valid chunk",
			chunk:   &Chunk{Text: "abc", SourceID: "a.txt"},
			wantErr: nil,
		},
		{
			name:    "valid chunk with ID 0",
			chunk:   &Chunk{ID: 0, Text: "abc", SourceID: "a.txt", ChunkIndex: 3, Start: 10},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "empty text",
			chunk:   &Chunk{SourceID: "a.txt"},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "empty source",
			chunk:   &Chunk{Text: "abc"},
			wantErr: ErrEmptySourceID,
		},
		{
			name:    "negative start",
			chunk:   &Chunk{Text: "abc", SourceID: "a.txt", Start: -1},
			wantErr: ErrInvalidChunk,
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
		})
	}
}

func TestValidateChunkParams(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "defaults", size: 500, overlap: 100, wantErr: false},
		{name: "no overlap", size: 10, overlap: 0, wantErr: false},
		{name: "overlap one below size", size: 10, overlap: 9, wantErr: false},
		{name: "overlap equals size", size: 10, overlap: 10, wantErr: true},
		{name: "overlap above size", size: 10, overlap: 11, wantErr: true},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
		{name: "negative overlap", size: 10, overlap: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunkParams(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChunkParams(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidChunkParams) {
				t.Errorf("ValidateChunkParams() error should wrap ErrInvalidChunkParams, got %v", err)
			}
		})
	}
}

func TestValidateNamespace(t *testing.T) {
	valid := []string{"default", "docs-v2", "team_a"}
	for _, ns := range valid {
		if err := ValidateNamespace(ns); err != nil {
			t.Errorf("ValidateNamespace(%q) error = %v", ns, err)
		}
	}

	invalid := []string{"", "a:b", "a/b", "a\x00b"}
	for _, ns := range invalid {
		if err := ValidateNamespace(ns); !errors.Is(err, ErrInvalidNamespace) {
			t.Errorf("ValidateNamespace(%q) error = %v, want ErrInvalidNamespace", ns, err)
		}
	}
}
