package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAssistantsServer is an in-memory stand-in for the Assistants API
type fakeAssistantsServer struct {
	mu       sync.Mutex
	messages map[string][]map[string]any
	polls    int
}

func newFakeAssistantsServer(t *testing.T) *httptest.Server {
	f := &fakeAssistantsServer{messages: map[string][]map[string]any{}}

	mux := http.NewServeMux()
	check := func(r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))
	}

	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		json.NewEncoder(w).Encode(map[string]any{"id": "thread_abc", "object": "thread"})
	})
	mux.HandleFunc("POST /v1/threads/{thread}/messages", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		var body messageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.messages[r.PathValue("thread")] = append([]map[string]any{{
			"id":   "msg",
			"role": body.Role,
			"content": []map[string]any{
				{"type": "text", "text": map[string]any{"value": body.Content, "annotations": []any{}}},
			},
		}}, f.messages[r.PathValue("thread")]...)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"id": "msg"})
	})
	mux.HandleFunc("POST /v1/threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		var body runRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asst_1", body.AssistantID)
		json.NewEncoder(w).Encode(map[string]any{"id": "run_1", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/threads/{thread}/runs/{run}", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		f.mu.Lock()
		f.polls++
		status := "in_progress"
		if f.polls >= 2 {
			status = "completed"
			thread := r.PathValue("thread")
			f.messages[thread] = append([]map[string]any{{
				"id":      "msg_reply",
				"role":    "assistant",
				"content": []map[string]any{{"type": "text", "text": map[string]any{"value": "Hello from the assistant"}}},
			}}, f.messages[thread]...)
		}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("run"), "status": status})
	})
	mux.HandleFunc("GET /v1/threads/{thread}/messages", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": f.messages[r.PathValue("thread")]})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_EndToEndThroughAdapter(t *testing.T) {
	server := newFakeAssistantsServer(t)
	client := NewClient(ClientOptions{BaseURL: server.URL + "/v1/", APIKey: "sk-test", Timeout: 5 * time.Second})
	adapter := NewAdapter(client, "asst_1", Options{PollInterval: 5 * time.Millisecond, RunTimeout: 5 * time.Second})

	reply, err := adapter.Reply(context.Background(), []Turn{{Role: "user", Content: "earlier"}}, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello from the assistant", reply)
	assert.Equal(t, "thread_abc", adapter.ThreadID())
}

func TestClient_ListMessagesDecodesParts(t *testing.T) {
	server := newFakeAssistantsServer(t)
	client := NewClient(ClientOptions{BaseURL: server.URL + "/v1", APIKey: "sk-test"})
	ctx := context.Background()

	require.NoError(t, client.AddMessage(ctx, "t1", "user", "first"))
	require.NoError(t, client.AddMessage(ctx, "t1", "assistant", "second"))

	msgs, err := client.ListMessages(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	text, ok := msgs[0].Text()
	require.True(t, ok)
	assert.Equal(t, "second", text)
	assert.Equal(t, "assistant", msgs[0].Role)
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, APIKey: "bad"})
	_, err := client.CreateThread(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssistantRequestFailed)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Incorrect API key")

	// Through the adapter this surfaces as a thread creation failure
	adapter := NewAdapter(client, "asst_1", Options{})
	_, err = adapter.Reply(context.Background(), nil, "hi")
	assert.ErrorIs(t, err, ErrThreadCreationFailed)
	assert.ErrorIs(t, err, ErrAssistantRequestFailed)
}

func TestClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, APIKey: "k"})
	_, err := client.GetRun(context.Background(), "t", "r")
	assert.ErrorIs(t, err, ErrAssistantRequestFailed)
}

func TestClient_ThreadWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, APIKey: "k"})
	_, err := client.CreateThread(context.Background())
	assert.ErrorIs(t, err, ErrAssistantRequestFailed)
}
