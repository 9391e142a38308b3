package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "test content",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "long content",
			content:  "This is a much longer piece of content that should still hash consistently",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestChunkID(t *testing.T) {
	base := ChunkID("a.txt", "", 0, "hello")

	if got := ChunkID("a.txt", "", 0, "hello"); got != base {
		t.Errorf("ChunkID() not deterministic: %d vs %d", got, base)
	}

	variants := map[string]ID{
		"different source": ChunkID("b.txt", "", 0, "hello"),
		"different page":   ChunkID("a.txt", "2", 0, "hello"),
		"different start":  ChunkID("a.txt", "", 5, "hello"),
		"different text":   ChunkID("a.txt", "", 0, "hello!"),
	}
	for name, id := range variants {
		if id == base {
			t.Errorf("ChunkID() collided for %s", name)
		}
	}
}

func TestChunk_End(t *testing.T) {
	tests := []struct {
		name  string
		chunk Chunk
		want  int
	}{
		{name: "ascii", chunk: Chunk{Text: "abc", Start: 4}, want: 7},
		{name: "multibyte runes", chunk: Chunk{Text: "äöü", Start: 0}, want: 3},
		{name: "empty", chunk: Chunk{Text: "", Start: 2}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chunk.End(); got != tt.want {
				t.Errorf("End() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint{Provider: "openai", Model: "text-embedding-3-small", Dimension: 1536}

	if got := fp.String(); got != "openai/text-embedding-3-small/1536" {
		t.Errorf("String() = %q", got)
	}

	tests := []struct {
		name  string
		other Fingerprint
		want  bool
	}{
		{name: "identical", other: fp, want: true},
		{name: "unknown dimension", other: Fingerprint{Provider: "openai", Model: "text-embedding-3-small"}, want: true},
		{name: "other model", other: Fingerprint{Provider: "openai", Model: "text-embedding-3-large", Dimension: 1536}, want: false},
		{name: "other provider", other: Fingerprint{Provider: "ollama", Model: "text-embedding-3-small", Dimension: 1536}, want: false},
		{name: "other dimension", other: Fingerprint{Provider: "openai", Model: "text-embedding-3-small", Dimension: 768}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fp.Compatible(tt.other); got != tt.want {
				t.Errorf("Compatible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAnswerResult_Sources(t *testing.T) {
	result := &AnswerResult{
		SourceDocuments: []Chunk{
			{SourceID: "b.txt"},
			{SourceID: "a.pdf"},
			{SourceID: "b.txt"},
		},
	}

	got := result.Sources()
	if len(got) != 2 || got[0] != "b.txt" || got[1] != "a.pdf" {
		t.Errorf("Sources() = %v, want [b.txt a.pdf]", got)
	}

	empty := &AnswerResult{}
	if len(empty.Sources()) != 0 {
		t.Errorf("Sources() on empty result should be empty")
	}
}
