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


// Package search retrieves the chunks used to answer a question.
//
// The Retriever supports two modes:
//   - Single query: the raw question is sent to the index once
//   - Multi query: the question and three fixed paraphrases are queried
//     concurrently and the hits are merged
//
// Multi-query results are merged in variant order and de-duplicated by
// exact chunk text, keeping the first occurrence. The output therefore does
// not depend on which query finishes first.
//
// Retrieval parameters are passed per call as an immutable Params value.
package search
