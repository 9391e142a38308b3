// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/poiesic/ragchat/core"
)

// Entry values are laid out as
//
//	seq:uint64 | dim:uint32 | dim x float32 | chunk JSON
//
// so a scan can score the vector without decoding the chunk.
const entryHeaderSize = 12

// MarshalEntry serializes an IndexEntry to bytes.
func MarshalEntry(entry *core.IndexEntry) ([]byte, error) {
	chunk, err := json.Marshal(&entry.Chunk)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	buf := make([]byte, entryHeaderSize+4*len(entry.Vector)+len(chunk))
	binary.BigEndian.PutUint64(buf, entry.Seq)
	binary.BigEndian.PutUint32(buf[8:], uint32(len(entry.Vector)))
	offset := entryHeaderSize
	for _, v := range entry.Vector {
		binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(v))
		offset += 4
	}
	copy(buf[offset:], chunk)
	return buf, nil
}

// UnmarshalEntryVector decodes the sequence and vector of an entry and
// returns the undecoded chunk bytes.
func UnmarshalEntryVector(data []byte) (seq uint64, vector []float32, rest []byte, err error) {
	if len(data) < entryHeaderSize {
		return 0, nil, nil, ErrTruncatedData
	}
	seq = binary.BigEndian.Uint64(data)
	dim := int(binary.BigEndian.Uint32(data[8:]))
	end := entryHeaderSize + 4*dim
	if len(data) < end {
		return 0, nil, nil, ErrTruncatedData
	}
	vector = make([]float32, dim)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[entryHeaderSize+4*i:]))
	}
	return seq, vector, data[end:], nil
}

// UnmarshalChunk decodes the chunk part of an entry.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	var chunk core.Chunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &chunk, nil
}

// UnmarshalEntry deserializes an IndexEntry from bytes.
func UnmarshalEntry(data []byte) (*core.IndexEntry, error) {
	seq, vector, rest, err := UnmarshalEntryVector(data)
	if err != nil {
		return nil, err
	}
	chunk, err := UnmarshalChunk(rest)
	if err != nil {
		return nil, err
	}
	return &core.IndexEntry{Chunk: *chunk, Vector: vector, Seq: seq}, nil
}

// MarshalManifest serializes an IndexManifest to bytes.
func MarshalManifest(manifest *core.IndexManifest) ([]byte, error) {
	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalManifest deserializes an IndexManifest from bytes.
func UnmarshalManifest(data []byte) (*core.IndexManifest, error) {
	var manifest core.IndexManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &manifest, nil
}

// MarshalTurn serializes a ConversationTurn to bytes.
func MarshalTurn(turn *core.ConversationTurn) ([]byte, error) {
	data, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalTurn deserializes a ConversationTurn from bytes.
func UnmarshalTurn(data []byte) (*core.ConversationTurn, error) {
	var turn core.ConversationTurn
	if err := json.Unmarshal(data, &turn); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &turn, nil
}
