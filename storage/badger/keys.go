package badger

import (
	"encoding/binary"

	"github.com/poiesic/ragchat/core"
)

// Key prefixes for different data types
const (
	manifestPrefix   = "idxman:"
	entryPrefix      = "idxent:"
	chunkIndexPrefix = "idxchk:"
	entrySeq         = "idxentseq"
	generationSeq    = "idxgenseq"
	turnPrefix       = "trnturn:"
)

// makeManifestKey generates the key of a namespace manifest.
// Format: prefix namespace
func makeManifestKey(namespace string) []byte {
	return []byte(manifestPrefix + namespace)
}

// makeGenerationPrefix generates the prefix shared by all entries of a generation.
// Format: prefix namespace : generation
func makeGenerationPrefix(prefix, namespace string, generation uint64) []byte {
	head := prefix + namespace + ":"
	buf := make([]byte, len(head)+8)
	offset := copy(buf, head)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], generation)
	return buf
}

// makeEntryKey generates a composite key for an index entry.
// Format: prefix namespace : generation seq
func makeEntryKey(namespace string, generation, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(makeGenerationPrefix(entryPrefix, namespace, generation), seq)
}

// makeChunkIndexKey generates a composite key marking a chunk as present in a generation.
// Format: prefix namespace : generation chunkID
func makeChunkIndexKey(namespace string, generation uint64, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(makeGenerationPrefix(chunkIndexPrefix, namespace, generation), uint64(id))
}

// makeNamespacePrefix generates the prefix of every key of a namespace under prefix.
func makeNamespacePrefix(prefix, namespace string) []byte {
	return []byte(prefix + namespace + ":")
}

// makeTurnKey generates a composite key for a conversation turn.
// Format: prefix session : order
func makeTurnKey(session string, order int) []byte {
	return binary.BigEndian.AppendUint64(makeSessionPrefix(session), uint64(order))
}

// makeSessionPrefix generates the prefix shared by all turns of a session.
func makeSessionPrefix(session string) []byte {
	return []byte(turnPrefix + session + ":")
}
