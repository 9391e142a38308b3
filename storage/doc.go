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


// Package storage provides the storage abstraction layer for ragchat.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic. Two backends implement them: storage/badger (embedded,
// the default) and storage/pgvector (PostgreSQL with the pgvector extension).
//
// # Constructor Return Type Pattern
//
// Public constructors return the repository interfaces:
//
//	repo, err := badger.NewIndexRepository(backend)  // returns storage.IndexRepository
//
// Internal package constructors may return concrete types since they're only
// used within the implementation package.
//
// # Generations
//
// An index namespace is a manifest plus one or more generations of entries.
// Builds stage entries into a fresh generation that no reader sees, then
// Publish swaps the manifest in a single write. Readers only ever follow the
// generations listed in the manifest they loaded, so a build in progress
// never leaks partial results.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
