package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_SendsPutWithPromptAndModel(t *testing.T) {
	var got Request
	var method, auth, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(Response{Result: "and I will buy some fruits."})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", "gpt-test", 0)
	result, err := client.Complete(context.Background(), "continue this")

	require.NoError(t, err)
	assert.Equal(t, "and I will buy some fruits.", result, "result")
	assert.Equal(t, http.MethodPut, method, "method")
	assert.Equal(t, "Bearer secret", auth, "auth header")
	assert.Equal(t, "application/json", contentType, "content type")
	assert.Equal(t, "continue this", got.Prompt, "prompt")
	assert.Equal(t, "gpt-test", got.Model, "model")
}

func TestComplete_OmitsAuthAndModelWhenUnset(t *testing.T) {
	var raw map[string]any
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"result":""}`))
	}))
	defer server.Close()

	result, err := NewClient(server.URL, "", "", 0).Complete(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, "", result, "empty result")
	assert.Equal(t, "", auth, "no auth header")
	_, hasModel := raw["model"]
	assert.False(t, hasModel, "model omitted")
}

func TestComplete_BrotliBody(t *testing.T) {
	var got Request
	var encoding string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding = r.Header.Get("Content-Encoding")
		body, _ := io.ReadAll(brotli.NewReader(r.Body))
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "", 0)
	client.Compression = "br"
	result, err := client.Complete(context.Background(), "compressed prompt")

	require.NoError(t, err)
	assert.Equal(t, "ok", result, "result")
	assert.Equal(t, "br", encoding, "content encoding")
	assert.Equal(t, "compressed prompt", got.Prompt, "decoded prompt")
}

func TestComplete_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", "", 0).Complete(context.Background(), "p")

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr), "typed error")
	assert.Equal(t, http.StatusBadGateway, reqErr.StatusCode, "status")
	assert.Equal(t, "upstream down", reqErr.Body, "body")
	assert.Contains(t, err.Error(), "status 502", "message")
}

func TestComplete_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", "", 0).Complete(context.Background(), "p")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response", "message")
}

func TestComplete_Cancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(server.URL, "", "", 0).Complete(ctx, "p")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "cancellation is detectable")
}

func TestComplete_NoEndpoint(t *testing.T) {
	_, err := NewClient("", "", "", 0).Complete(context.Background(), "p")
	assert.True(t, errors.Is(err, ErrNoEndpoint), "no endpoint")
}
