package collaborator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnthropic_CompleteReturnsConcatenatedText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "hello", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messagesResponse{
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{
				{Type: "text", Text: "part one. "},
				{Type: "text", Text: "part two."},
			},
		})
	}))
	defer server.Close()

	a := New(WithAPIKey("test-key"), WithModel("test-model"))
	a.baseURL = server.URL

	out, err := a.Complete(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "part one. part two.", out)
}

func TestAnthropic_CompleteRejectsMissingAPIKey(t *testing.T) {
	a := New(WithAPIKey(""))

	_, err := a.Complete(context.Background(), "hello")
	require.Error(t, err)
}

func TestAnthropic_CompleteRetriesOnRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("retry-after", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messagesResponse{
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{{Type: "text", Text: "ok"}},
		})
	}))
	defer server.Close()

	a := New(WithAPIKey("test-key"))
	a.baseURL = server.URL

	out, err := a.Complete(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 2, attempts)
}

func TestAnthropic_CompleteReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	a := New(WithAPIKey("test-key"))
	a.baseURL = server.URL

	_, err := a.Complete(context.Background(), "hello")
	require.Error(t, err)
}
