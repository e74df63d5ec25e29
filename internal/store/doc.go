// Package store provides the document store behind the dashboard.
//
// # Architecture
//
// Every entity is a schema-less JSON document inside a named collection,
// fetched and replaced wholesale. The Store interface is the only handle the
// rest of the program gets; it is constructed once in main and passed in.
//
// Collections:
//
//   - workflows, assistants, webhooks: chat backend catalog
//   - companies, markdownFiles, docTypes: document manager data
//   - chats/{flowId}/messages: persisted workflow transcripts
//
// Typed helpers (ListWorkflows, GetAssistant, AppendChatMessage, ...) decode
// documents into structs and stamp the document id onto them.
//
// # SQLite
//
// SQLiteStore keeps all documents in one table ordered by an autoincrement
// sequence, so listing a collection returns insertion order. The pure Go
// driver (modernc.org/sqlite) is the default; "sqlite3" selects the cgo
// driver (github.com/mattn/go-sqlite3).
//
// # Testing
//
// Use NewMockStore() for unit tests, NewSQLiteStore(":memory:") or a file in
// t.TempDir() for integration tests with real SQLite.
package store
