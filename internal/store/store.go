// ABOUTME: Store interface and document types for rocketlauncher persistence
// ABOUTME: Documents are schema-less JSON bodies grouped into named collections

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidDocument is returned when a document is missing its collection, id or body
var ErrInvalidDocument = errors.New("invalid document")

// Collection names used by the dashboard
const (
	CollectionWorkflows     = "workflows"
	CollectionWebhooks      = "webhooks"
	CollectionAssistants    = "assistants"
	CollectionCompanies     = "companies"
	CollectionMarkdownFiles = "markdownFiles"
	CollectionDocTypes      = "docTypes"
)

// ChatMessagesCollection returns the per-flow transcript collection, chats/{flowId}/messages
func ChatMessagesCollection(flowID string) string {
	return "chats/" + flowID + "/messages"
}

// Document is one schema-less record. Data is always a JSON object.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Reader is the read half of a document store
type Reader interface {
	// ListDocuments returns every document in a collection in insertion order
	ListDocuments(ctx context.Context, collection string) ([]*Document, error)
	GetDocument(ctx context.Context, collection, id string) (*Document, error)
}

// Store defines the interface for document persistence.
// Documents are always fetched and replaced wholesale.
type Store interface {
	Reader

	// PutDocument creates or replaces a document, keeping its original insertion position
	PutDocument(ctx context.Context, doc *Document) error
	// AddDocument inserts a new document with a generated id
	AddDocument(ctx context.Context, collection string, data json.RawMessage) (*Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
	// DeleteCollection removes every document in a collection
	DeleteCollection(ctx context.Context, collection string) error

	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

func validateDocument(doc *Document) error {
	if doc == nil || doc.Collection == "" || doc.ID == "" {
		return ErrInvalidDocument
	}
	if !json.Valid(doc.Data) {
		return ErrInvalidDocument
	}
	return nil
}
