package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asset-sync/pkg/config"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client := New(&config.FetcherConfig{
		BaseURL:           baseURL,
		AuthToken:         "secret-token",
		Timeout:           5 * time.Second,
		RateLimitInterval: 10 * time.Millisecond,
	}, quietLogger())
	t.Cleanup(client.Close)
	return client
}

func TestFetchAssetCollection(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"1","name":"Reliance Industries","quantity":10},{"id":"2"}]`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	raws, err := client.FetchAssetCollection(context.Background())
	require.NoError(t, err)

	require.Len(t, raws, 2)
	assert.Equal(t, "Reliance Industries", raws[0]["name"])
	assert.Equal(t, 10.0, raws[0]["quantity"])
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "/v1/assets", gotPath)
}

func TestFetchAssetCollectionUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.FetchAssetCollection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestFetchAssetCollectionBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.FetchAssetCollection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}

func TestFetchPrices(t *testing.T) {
	var gotSymbols string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSymbols = r.URL.Query().Get("symbols")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"symbol":"RELIANCE","price":2500,"currency":"INR"}]`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	prices, err := client.FetchPrices(context.Background(), []string{"RELIANCE", "TCS"})
	require.NoError(t, err)

	require.Len(t, prices, 1)
	assert.Equal(t, "RELIANCE", prices[0].Symbol)
	assert.Equal(t, 2500.0, prices[0].Price)
	assert.Equal(t, "RELIANCE,TCS", gotSymbols)
}

func TestFetchPricesNoSymbols(t *testing.T) {
	client := testClient(t, "http://localhost:1")
	prices, err := client.FetchPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, prices)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := New(&config.FetcherConfig{
		BaseURL:           server.URL,
		Timeout:           5 * time.Second,
		RateLimitInterval: time.Hour,
	}, quietLogger())

	// First request consumes the primed slot.
	_, err := client.FetchAssetCollection(context.Background())
	require.NoError(t, err)

	// The second blocks on the limiter until the context gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.FetchAssetCollection(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	client.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	// The primed slot still serves a request before shutdown.
	_, err := client.FetchAssetCollection(context.Background())
	require.NoError(t, err)

	client.Close()
	client.Close()
}
