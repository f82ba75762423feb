package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstile/pkg/core"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient(nil)
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.NoError(t, client.Close())
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(&Config{Timeout: 0})
	assert.Error(t, err)
}

func TestClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		assert.Equal(t, "turnstile", r.Header.Get("User-Agent"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))

		w.Header().Set("X-MBX-USED-WEIGHT-1M", "7")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"orderId":1}`))
	}))
	defer server.Close()

	client, err := NewClient(DefaultConfig())
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Send(context.Background(), &core.WireRequest{
		Method:  "POST",
		URL:     server.URL + "/api/v3/order?symbol=BTCUSDT",
		Headers: map[string]string{"X-MBX-APIKEY": "key"},
		Body:    []byte(`{"a":1}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "7", resp.Header("X-MBX-USED-WEIGHT-1M"))
	assert.Equal(t, `{"orderId":1}`, string(resp.Body))
}

func TestClient_Send_JSONBodyIsVerbatim(t *testing.T) {
	const body = "{ \"price\" : \"64000.10\",\n  \"qty\": 1.50000000 }"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer server.Close()

	client, err := NewClient(DefaultConfig())
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Send(context.Background(), &core.WireRequest{Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, body, string(resp.Body))
}

func TestClient_Send_ErrorStatusIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(DefaultConfig())
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Send(context.Background(), &core.WireRequest{Method: "GET", URL: server.URL})

	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "5", resp.Header("Retry-After"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_Send_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(DefaultConfig())
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Send(context.Background(), &core.WireRequest{Method: "GET", URL: url})
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestClient_Send_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, err := NewClient(DefaultConfig())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Send(ctx, &core.WireRequest{Method: "GET", URL: server.URL})
	assert.Error(t, err)
}

func TestClient_Closed(t *testing.T) {
	client, err := NewClient(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.Send(context.Background(), &core.WireRequest{Method: "GET", URL: "http://localhost"})
	assert.ErrorIs(t, err, core.ErrClientClosed)
}
