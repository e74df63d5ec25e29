// ABOUTME: Typed views over catalog collections (workflows, assistants, webhooks, ...)
// ABOUTME: Decodes documents wholesale and writes them back by id

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Workflow references an externally hosted prediction flow
type Workflow struct {
	ID            string   `json:"id,omitempty" yaml:"id" toml:"id"`
	Title         string   `json:"title" yaml:"title" toml:"title"`
	Description   string   `json:"description,omitempty" yaml:"description" toml:"description"`
	ChatflowID    string   `json:"chatflowId" yaml:"chatflow_id" toml:"chatflow_id"`
	ExpectedInput []string `json:"expectedInput,omitempty" yaml:"expected_input" toml:"expected_input"`
	ExampleInput  string   `json:"exampleInput,omitempty" yaml:"example_input" toml:"example_input"`
	Category      string   `json:"category,omitempty" yaml:"category" toml:"category"`
	KeyObjectives []string `json:"keyObjectives,omitempty" yaml:"key_objectives" toml:"key_objectives"`
	Steps         []string `json:"steps,omitempty" yaml:"steps" toml:"steps"`
	Tags          []string `json:"tags,omitempty" yaml:"tags" toml:"tags"`
}

// Webhook is an outbound endpoint shown in the chat pickers
type Webhook struct {
	ID     string `json:"id,omitempty" yaml:"id" toml:"id"`
	Label  string `json:"label" yaml:"label" toml:"label"`
	URL    string `json:"url" yaml:"url" toml:"url"`
	Method string `json:"method" yaml:"method" toml:"method"`
}

// Assistant references an external thread-based assistant
type Assistant struct {
	ID          string `json:"id,omitempty" yaml:"id" toml:"id"`
	Name        string `json:"name" yaml:"name" toml:"name"`
	Role        string `json:"role,omitempty" yaml:"role" toml:"role"`
	Description string `json:"description,omitempty" yaml:"description" toml:"description"`
	Avatar      string `json:"avatar,omitempty" yaml:"avatar" toml:"avatar"`
	AssistantID string `json:"assistantId,omitempty" yaml:"assistant_id" toml:"assistant_id"`
}

// Company is a customer record
type Company struct {
	ID        string `json:"id,omitempty" yaml:"id" toml:"id"`
	Name      string `json:"name" yaml:"name" toml:"name"`
	Industry  string `json:"industry,omitempty" yaml:"industry" toml:"industry"`
	Employees int    `json:"employees,omitempty" yaml:"employees" toml:"employees"`
}

// MarkdownFile is a stored markdown document
type MarkdownFile struct {
	ID      string `json:"id,omitempty" yaml:"id" toml:"id"`
	Company string `json:"company" yaml:"company" toml:"company"`
	DocType string `json:"docType" yaml:"doc_type" toml:"doc_type"`
	Title   string `json:"title" yaml:"title" toml:"title"`
	Content string `json:"content" yaml:"content" toml:"content"`
}

// DocTypes holds the list of markdown document categories
type DocTypes struct {
	ID    string   `json:"id,omitempty" yaml:"id" toml:"id"`
	Types []string `json:"types" yaml:"types" toml:"types"`
}

// ChatMessage is one persisted transcript turn under chats/{flowId}/messages
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// listAs decodes every document of a collection into T, stamping the document id
func listAs[T any](ctx context.Context, r Reader, collection string, setID func(*T, string)) ([]T, error) {
	docs, err := r.ListDocuments(ctx, collection)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", collection, doc.ID, err)
		}
		setID(&v, doc.ID)
		out = append(out, v)
	}
	return out, nil
}

// getAs decodes a single document into T
func getAs[T any](ctx context.Context, r Reader, collection, id string, setID func(*T, string)) (*T, error) {
	doc, err := r.GetDocument(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", collection, id, err)
	}
	setID(&v, doc.ID)
	return &v, nil
}

// SaveEntity replaces the document at collection/id with the JSON encoding of v
func SaveEntity(ctx context.Context, s Store, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", collection, id, err)
	}
	return s.PutDocument(ctx, &Document{Collection: collection, ID: id, Data: data})
}

// ListWorkflows returns all workflows
func ListWorkflows(ctx context.Context, r Reader) ([]Workflow, error) {
	return listAs(ctx, r, CollectionWorkflows, func(w *Workflow, id string) { w.ID = id })
}

// GetWorkflow returns a workflow by document id
func GetWorkflow(ctx context.Context, r Reader, id string) (*Workflow, error) {
	return getAs(ctx, r, CollectionWorkflows, id, func(w *Workflow, id string) { w.ID = id })
}

// ListAssistants returns all assistants
func ListAssistants(ctx context.Context, r Reader) ([]Assistant, error) {
	return listAs(ctx, r, CollectionAssistants, func(a *Assistant, id string) { a.ID = id })
}

// GetAssistant returns an assistant by document id
func GetAssistant(ctx context.Context, r Reader, id string) (*Assistant, error) {
	return getAs(ctx, r, CollectionAssistants, id, func(a *Assistant, id string) { a.ID = id })
}

// ListWebhooks returns all webhooks
func ListWebhooks(ctx context.Context, r Reader) ([]Webhook, error) {
	return listAs(ctx, r, CollectionWebhooks, func(w *Webhook, id string) { w.ID = id })
}

// GetWebhook returns a webhook by document id
func GetWebhook(ctx context.Context, r Reader, id string) (*Webhook, error) {
	return getAs(ctx, r, CollectionWebhooks, id, func(w *Webhook, id string) { w.ID = id })
}

// ListChatMessages returns the persisted transcript for a flow in insertion order
func ListChatMessages(ctx context.Context, r Reader, flowID string) ([]ChatMessage, error) {
	return listAs(ctx, r, ChatMessagesCollection(flowID), func(m *ChatMessage, id string) { m.ID = id })
}

// AppendChatMessage adds a turn to a flow's transcript
func AppendChatMessage(ctx context.Context, s Store, flowID string, msg ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding chat message: %w", err)
	}
	_, err = s.AddDocument(ctx, ChatMessagesCollection(flowID), data)
	return err
}

// DeleteChatMessages drops a flow's persisted transcript
func DeleteChatMessages(ctx context.Context, s Store, flowID string) error {
	return s.DeleteCollection(ctx, ChatMessagesCollection(flowID))
}
