package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asset-sync/internal/cache"
	"github.com/asset-sync/internal/market"
	"github.com/asset-sync/internal/scheduler"
	"github.com/asset-sync/internal/storage"
	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/models"
)

type stubFetcher struct {
	raws      []models.RawAsset
	prices    []models.PriceUpdate
	pricesErr error
}

func (f *stubFetcher) FetchAssetCollection(ctx context.Context) ([]models.RawAsset, error) {
	return f.raws, nil
}

func (f *stubFetcher) FetchPrices(ctx context.Context, symbols []string) ([]models.PriceUpdate, error) {
	return f.prices, f.pricesErr
}

func testServer(t *testing.T, fetcher *stubFetcher) (*Server, *cache.Cache) {
	return testServerWithHub(t, fetcher, nil)
}

func testServerWithHub(t *testing.T, fetcher *stubFetcher, hub *Hub) (*Server, *cache.Cache) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		Cache: config.CacheConfig{
			KeyPrefix:     "test",
			CollectionTTL: 5 * time.Minute,
			PriceTTL:      30 * time.Second,
			ChartTTL:      24 * time.Hour,
			MaxBytes:      10 << 20,
		},
		Scheduler: config.SchedulerConfig{
			UpdateInterval:     5 * time.Minute,
			MaxRetries:         3,
			RetryDelay:         time.Second,
			StaleAfter:         time.Hour,
			MarketRefreshAfter: 5 * time.Minute,
		},
		Market: config.MarketConfig{
			Timezone:      "Asia/Kolkata",
			PreMarketHour: 8,
			OpenHour:      9,
			CloseHour:     16,
			AfterHoursEnd: 18,
		},
		Monitoring: config.MonitoringConfig{HealthCheckEnabled: true},
	}

	c := cache.New(storage.NewMemoryStore(), &cfg.Cache, log, nil)

	hours, err := market.NewHours(&cfg.Market)
	require.NoError(t, err)

	sched := scheduler.New(&cfg.Scheduler, c, fetcher, hours, log, nil)
	t.Cleanup(sched.Destroy)

	return NewServer(cfg, log, c, sched, hub), c
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetAssetsEmptyCache(t *testing.T) {
	s, _ := testServer(t, &stubFetcher{})

	rec := doRequest(t, s, "GET", "/api/assets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assets, ok := body["assets"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, assets)
	assert.Nil(t, body["last_update"])
}

func TestGetAssetsReturnsCachedCollection(t *testing.T) {
	s, c := testServer(t, &stubFetcher{})
	require.NoError(t, c.SetAssets(context.Background(), []models.NormalizedAsset{
		{ID: "1", Name: "Reliance Industries"},
		{ID: "2", Name: "Tata Motors"},
	}))

	rec := doRequest(t, s, "GET", "/api/assets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assets, ok := body["assets"].([]interface{})
	require.True(t, ok)
	assert.Len(t, assets, 2)
}

func TestGetAssetByID(t *testing.T) {
	s, c := testServer(t, &stubFetcher{})
	require.NoError(t, c.SetAssets(context.Background(), []models.NormalizedAsset{
		{ID: "7", Name: "HDFC Bank"},
	}))

	rec := doRequest(t, s, "GET", "/api/assets/7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var asset models.NormalizedAsset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asset))
	assert.Equal(t, "HDFC Bank", asset.Name)

	rec = doRequest(t, s, "GET", "/api/assets/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPrices(t *testing.T) {
	s, _ := testServer(t, &stubFetcher{prices: []models.PriceUpdate{
		{Symbol: "RELIANCE", Price: 2500, Currency: "INR"},
	}})

	rec := doRequest(t, s, "GET", "/api/prices?symbols=RELIANCE", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	prices, ok := body["prices"].([]interface{})
	require.True(t, ok)
	assert.Len(t, prices, 1)
	assert.Nil(t, body["stale"])
}

func TestGetPricesRequiresSymbols(t *testing.T) {
	s, _ := testServer(t, &stubFetcher{})
	rec := doRequest(t, s, "GET", "/api/prices", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPricesFallsBackToCache(t *testing.T) {
	s, c := testServer(t, &stubFetcher{pricesErr: errors.New("upstream down")})
	require.NoError(t, c.SetPrices(context.Background(), []models.PriceUpdate{
		{Symbol: "RELIANCE", Price: 2490, Currency: "INR"},
	}))

	rec := doRequest(t, s, "GET", "/api/prices?symbols=RELIANCE,TCS", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["stale"])
	prices, ok := body["prices"].([]interface{})
	require.True(t, ok)
	assert.Len(t, prices, 1)
}

func TestGetPricesNoFallbackAvailable(t *testing.T) {
	s, _ := testServer(t, &stubFetcher{pricesErr: errors.New("upstream down")})
	rec := doRequest(t, s, "GET", "/api/prices?symbols=RELIANCE", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetMarketStatus(t *testing.T) {
	s, _ := testServer(t, &stubFetcher{})

	rec := doRequest(t, s, "GET", "/api/market/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.MarketStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.NotEmpty(t, status.Session)
	assert.NotNil(t, status.NextOpen)
}

func TestPostRefreshIsAccepted(t *testing.T) {
	s, c := testServer(t, &stubFetcher{raws: []models.RawAsset{{"id": "1", "name": "Fresh Asset"}}})

	rec := doRequest(t, s, "POST", "/api/refresh", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		assets, ok := c.Assets(context.Background())
		return ok && len(assets) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPostLifecycle(t *testing.T) {
	s, c := testServer(t, &stubFetcher{})
	require.NoError(t, c.SetLastSuccessfulUpdate(context.Background(), time.Now()))

	rec := doRequest(t, s, "POST", "/api/lifecycle", `{"state":"background"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, "POST", "/api/lifecycle", `{"state":"foreground"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, "POST", "/api/lifecycle", `{"state":"hibernate"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, "POST", "/api/lifecycle", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCache(t *testing.T) {
	s, c := testServer(t, &stubFetcher{})
	require.NoError(t, c.SetAssets(context.Background(), []models.NormalizedAsset{{ID: "1"}}))

	rec := doRequest(t, s, "DELETE", "/api/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := c.Assets(context.Background())
	assert.False(t, ok)
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t, &stubFetcher{})
	rec := doRequest(t, s, "GET", "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
