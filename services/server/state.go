// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"sync"

	"github.com/masmgr/tsqllint-vscode-extension/services/lint"
)

// documentStore tracks the live text of every open document keyed by
// URI. The editor owns the truth; this is the server's mirror of it.
//
// Thread Safety: Safe for concurrent use.
type documentStore struct {
	mu   sync.RWMutex
	docs map[string]lint.Document
}

func newDocumentStore() *documentStore {
	return &documentStore{
		docs: make(map[string]lint.Document),
	}
}

// put stores or replaces a document snapshot.
func (s *documentStore) put(doc lint.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.URI] = doc
}

// get returns the snapshot for uri.
func (s *documentStore) get(uri string) (lint.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

// remove drops the snapshot for uri.
func (s *documentStore) remove(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// len reports the number of open documents.
func (s *documentStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
