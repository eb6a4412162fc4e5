package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) ChatConfig {
	return ChatConfig{BaseURL: baseURL, APIKey: "test-key", Model: "test-model"}
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "test-model", body.Model)
		require.False(t, body.Stream)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	reply, err := client.Complete(context.Background(), testConfig(server.URL), []ChatMessage{
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", reply)
}

func TestCompleteRateLimitClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	_, err := client.Complete(context.Background(), testConfig(server.URL), nil)
	require.Error(t, err)

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	require.True(t, provErr.RateLimited)
}

func TestCompleteRateLimitByErrorText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	_, err := client.Complete(context.Background(), testConfig(server.URL), nil)

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	require.True(t, provErr.RateLimited)
}

func TestCompleteServerErrorNotRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	_, err := client.Complete(context.Background(), testConfig(server.URL), nil)

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	require.False(t, provErr.RateLimited)
}

func TestStreamCompleteAccumulatesChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream bool `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	var chunks []string
	client := NewOpenAICompatibleClient()
	full, err := client.StreamComplete(context.Background(), testConfig(server.URL), nil, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "Hello", full)
	require.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestStreamCompleteCallbackErrorAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	sinkErr := errors.New("client went away")
	client := NewOpenAICompatibleClient()
	_, err := client.StreamComplete(context.Background(), testConfig(server.URL), nil, func(string) error {
		return sinkErr
	})
	require.ErrorIs(t, err, sinkErr)
}

func TestStreamCompleteRateLimitClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	_, err := client.StreamComplete(context.Background(), testConfig(server.URL), nil, func(string) error {
		return nil
	})

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	require.True(t, provErr.RateLimited)
}
