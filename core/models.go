package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives the content ID of a chunk from its origin and text.
// Re-chunking an unchanged document yields the same IDs.
func ChunkID(sourceID string, page string, start int, text string) ID {
	return IDFromContent(sourceID + "\x00" + page + "\x00" + strconv.Itoa(start) + "\x00" + text)
}

// Metadata keys set by the loader and chunker.
const (
	MetaSource     = "source"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaChunkIndex = "chunk_index"
)

// Document is the normalized text of one input file, or one page of it.
type Document struct {
	Text     string
	SourceID string            // Path relative to the corpus root, slash separated
	Metadata map[string]string // Loader supplied metadata (e.g., "page")
}

// Chunk is a contiguous slice of a Document's text.
type Chunk struct {
	ID         ID
	Text       string
	SourceID   string
	ChunkIndex int               // Position of the chunk within its document
	Start      int               // Rune offset of Text within the document
	Metadata   map[string]string // Document metadata plus chunk bookkeeping
}

// End returns the rune offset one past the last rune of the chunk.
func (c *Chunk) End() int {
	return c.Start + len([]rune(c.Text))
}

// IndexEntry is a chunk stored in a vector index together with its embedding.
type IndexEntry struct {
	Chunk  Chunk
	Vector []float32 // Unit length
	Seq    uint64    // Insertion order, assigned by storage
}

// ScoredChunk is a query hit. Lower distance means more similar.
type ScoredChunk struct {
	Chunk    Chunk
	Distance float32
	Seq      uint64
}

// Fingerprint identifies the embedding space an index was built in.
type Fingerprint struct {
	Provider  string
	Model     string
	Dimension int // 0 until the first embedding is seen
}

// String returns the fingerprint as "provider/model/dimension".
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s/%s/%d", f.Provider, f.Model, f.Dimension)
}

// Compatible reports whether vectors from f and other can be compared.
// An unknown dimension on either side matches any dimension.
func (f Fingerprint) Compatible(other Fingerprint) bool {
	if f.Provider != other.Provider || f.Model != other.Model {
		return false
	}
	return f.Dimension == 0 || other.Dimension == 0 || f.Dimension == other.Dimension
}

// IndexManifest describes the published state of a namespace.
// Only entries in the listed generations are visible to queries.
type IndexManifest struct {
	Namespace   string
	Fingerprint Fingerprint
	Generations []uint64
	Count       int
	Version     uint64 // Incremented on every publish
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConversationTurn is one answered question in a session.
type ConversationTurn struct {
	Question  string
	Answer    string
	Order     int
	Timestamp time.Time
}

// AnswerResult is the outcome of a single question.
type AnswerResult struct {
	Answer          string
	SourceDocuments []Chunk
}

// Sources returns the distinct source IDs of the result in first-seen order.
func (r *AnswerResult) Sources() []string {
	seen := make(map[string]bool, len(r.SourceDocuments))
	sources := make([]string, 0, len(r.SourceDocuments))
	for _, chunk := range r.SourceDocuments {
		if seen[chunk.SourceID] {
			continue
		}
		seen[chunk.SourceID] = true
		sources = append(sources, chunk.SourceID)
	}
	return sources
}
