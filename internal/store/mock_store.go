// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu   sync.RWMutex
	docs map[string]*mockDoc // keyed by "collection\x00id"
	seq  int64

	// PingErr is returned from Ping when set
	PingErr error
}

type mockDoc struct {
	seq int64
	doc Document
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		docs: make(map[string]*mockDoc),
	}
}

func mockKey(collection, id string) string {
	return collection + "\x00" + id
}

func copyDocument(d *Document) *Document {
	c := *d
	c.Data = append(json.RawMessage(nil), d.Data...)
	return &c
}

// PutDocument stores or replaces a document.
func (m *MockStore) PutDocument(ctx context.Context, doc *Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := mockKey(doc.Collection, doc.ID)
	if existing, ok := m.docs[key]; ok {
		existing.doc.Data = append(json.RawMessage(nil), doc.Data...)
		existing.doc.UpdatedAt = now
		doc.CreatedAt = existing.doc.CreatedAt
		doc.UpdatedAt = now
		return nil
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	m.seq++
	m.docs[key] = &mockDoc{seq: m.seq, doc: *copyDocument(doc)}
	return nil
}

// AddDocument inserts a document with a generated id.
func (m *MockStore) AddDocument(ctx context.Context, collection string, data json.RawMessage) (*Document, error) {
	doc := &Document{Collection: collection, ID: uuid.New().String(), Data: data}
	if err := m.PutDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a document.
func (m *MockStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[mockKey(collection, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(&d.doc), nil
}

// ListDocuments returns a collection in insertion order.
func (m *MockStore) ListDocuments(ctx context.Context, collection string) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []*mockDoc
	for _, d := range m.docs {
		if d.doc.Collection == collection {
			found = append(found, d)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	docs := make([]*Document, 0, len(found))
	for _, d := range found {
		docs = append(docs, copyDocument(&d.doc))
	}
	return docs, nil
}

// DeleteDocument removes a document.
func (m *MockStore) DeleteDocument(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := mockKey(collection, id)
	if _, ok := m.docs[key]; !ok {
		return ErrNotFound
	}
	delete(m.docs, key)
	return nil
}

// DeleteCollection removes all documents in a collection.
func (m *MockStore) DeleteCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, d := range m.docs {
		if d.doc.Collection == collection {
			delete(m.docs, key)
		}
	}
	return nil
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}
