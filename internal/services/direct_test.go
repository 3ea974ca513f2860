package services_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MegaGrindStone/chat-widget/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func TestOllamaKeepsHistoryUntilReset(t *testing.T) {
	var requests [][]recordedMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Messages []recordedMessage `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req.Messages)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w,
			`{"model":"llama3","message":{"role":"assistant","content":"Apply early."},"done":true}`+"\n")
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama3", "You help with internships.")
	require.NoError(t, err)

	ctx := context.Background()
	reply, err := o.Chat(ctx, "When?")
	require.NoError(t, err)
	assert.Equal(t, "Apply early.", reply.Response)
	assert.Empty(t, reply.Intent)
	assert.Nil(t, reply.Confidence)

	_, err = o.Chat(ctx, "Why?")
	require.NoError(t, err)
	require.NoError(t, o.Reset(ctx))
	_, err = o.Chat(ctx, "Again")
	require.NoError(t, err)

	require.Len(t, requests, 3)
	assert.Len(t, requests[0], 2)
	assert.Equal(t, "system", requests[0][0].Role)
	assert.Len(t, requests[1], 4)
	assert.Equal(t, "Apply early.", requests[1][2].Content)
	assert.Len(t, requests[2], 2)
}

func TestOpenAIConfidenceFromLogProbs(t *testing.T) {
	var logprobsRequested bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req struct {
			LogProbs bool `json:"logprobs"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		logprobsRequested = req.LogProbs

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "Hi there"},
				"finish_reason": "stop",
				"logprobs": {"content": [
					{"token": "Hi", "logprob": -0.1, "top_logprobs": []},
					{"token": " there", "logprob": -0.3, "top_logprobs": []}
				]}
			}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`)
	}))
	defer srv.Close()

	o := services.NewOpenAI("test-key", srv.URL+"/v1", "gpt-4o-mini", "", discardLogger())
	reply, err := o.Chat(context.Background(), "hello")
	require.NoError(t, err)

	assert.True(t, logprobsRequested)
	assert.Equal(t, "Hi there", reply.Response)
	require.NotNil(t, reply.Confidence)
	assert.InDelta(t, 0.8187, *reply.Confidence, 1e-3)
}

func TestAnthropicCollectsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n"+
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Good \"}}\n\n"+
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"luck!\"}}\n\n"+
			"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	a := services.NewAnthropic("test-key", srv.URL, "claude", "Be brief.", 256)
	reply, err := a.Chat(context.Background(), "Wish me luck")
	require.NoError(t, err)
	assert.Equal(t, "Good luck!", reply.Response)
}

func TestAnthropicStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: error\n"+
			"data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	a := services.NewAnthropic("test-key", srv.URL, "claude", "", 256)
	_, err := a.Chat(context.Background(), "hello")
	require.ErrorContains(t, err, "overloaded_error")
}
