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

// Package retrieval answers natural-language questions from a tenant's
// indexed documents.
//
// The Gateway runs a fixed sequence per query:
//   - Resolve the namespace; an unresolvable one yields an empty result
//   - Fetch candidate chunks from the document index
//   - Group chunks by source document, best scoring document first
//   - Classify by document count and shape a bounded context
//
// Answer hands that context to a Summarizer. Many matching documents produce
// a disambiguation question instead of an answer, and a slow or failing
// summarizer produces "no answer" rather than an error.
package retrieval
