package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftreader/swiftreader/internal/config"
)

func testClient(baseURL string) *Client {
	return NewClient(config.AnthropicConfig{
		APIKey:    "test-key",
		BaseURL:   baseURL,
		Model:     "claude-3-5-sonnet-20241022",
		MaxTokens: 1024,
		Timeout:   5 * time.Second,
	})
}

func upstreamReply(text string) string {
	body := map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"stop_reason": "end_turn",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"model":       "claude-3-5-sonnet-20241022",
		"usage":       map[string]int{"input_tokens": 120, "output_tokens": 80},
	}
	data, _ := json.Marshal(body)
	return string(data)
}

func TestClient_Summarize_ParsesCleanJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		var req struct {
			MaxTokens int `json:"max_tokens"`
			System    []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 1024, req.MaxTokens)
		require.Len(t, req.System, 1)
		assert.Contains(t, req.System[0].Text, "keyPoints")
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		require.NotEmpty(t, req.Messages[0].Content)
		assert.Contains(t, req.Messages[0].Content[0].Text, "Section: Methods")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(upstreamReply(`{"overview":"The study measures X.","keyPoints":["a","b"],"importance":"It grounds Y."}`)))
	}))
	defer srv.Close()

	reply, err := testClient(srv.URL).Summarize(context.Background(), "Methods", "some content")
	require.NoError(t, err)
	assert.False(t, reply.Degraded)
	assert.Equal(t, "The study measures X.", reply.Summary.Overview)
	assert.Equal(t, []string{"a", "b"}, reply.Summary.KeyPoints)
	assert.Equal(t, "It grounds Y.", reply.Summary.Importance)
	assert.Equal(t, 120, reply.InputTokens)
	assert.Equal(t, 80, reply.OutputTokens)
}

func TestClient_Summarize_StripsCodeFences(t *testing.T) {
	fenced := "```json\n{\"overview\":\"Fenced.\",\"keyPoints\":[\"p\"],\"importance\":\"i\"}\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(upstreamReply(fenced)))
	}))
	defer srv.Close()

	reply, err := testClient(srv.URL).Summarize(context.Background(), "", "content")
	require.NoError(t, err)
	assert.False(t, reply.Degraded)
	assert.Equal(t, "Fenced.", reply.Summary.Overview)
}

func TestClient_Summarize_CoercesScalarKeyPoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(upstreamReply(`{"overview":"O.","keyPoints":"only one","importance":"i"}`)))
	}))
	defer srv.Close()

	reply, err := testClient(srv.URL).Summarize(context.Background(), "", "content")
	require.NoError(t, err)
	assert.Equal(t, []string{"only one"}, reply.Summary.KeyPoints)
}

func TestClient_Summarize_DegradesOnUnparseableReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(upstreamReply("Sorry, I can only answer in prose today.")))
	}))
	defer srv.Close()

	reply, err := testClient(srv.URL).Summarize(context.Background(), "", "content")
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, "Sorry, I can only answer in prose today.", reply.Summary.Overview)
	assert.Empty(t, reply.Summary.KeyPoints)
	assert.Empty(t, reply.Summary.Importance)
}

func TestClient_Summarize_RateLimitedIsBusy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"overloaded"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Summarize(context.Background(), "", "content")
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, KindBusy, upstreamErr.Kind)
	assert.Equal(t, "overloaded", upstreamErr.Message)
}

func TestClient_Summarize_ServerErrorIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"api_error","message":"something broke"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Summarize(context.Background(), "", "content")
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, KindFailed, upstreamErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, upstreamErr.Status)
	assert.Equal(t, "something broke", upstreamErr.Message)
}

func TestClient_Summarize_UnreachableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient(srv.URL).Summarize(context.Background(), "", "content")
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, KindUnreachable, upstreamErr.Kind)
}
