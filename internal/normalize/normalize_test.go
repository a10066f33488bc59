package normalize

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asset-sync/pkg/models"
)

var testNow = time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

func TestAssetCompleteRecord(t *testing.T) {
	raw := map[string]interface{}{
		"id":                   "42",
		"name":                 "Reliance Industries",
		"assetKind":            "stock",
		"symbol":               "RELIANCE",
		"currency":             "INR",
		"quantity":             10.0,
		"averagePurchasePrice": 2400.0,
		"currentPrice":         2500.0,
		"totalValue":           25000.0,
		"lastUpdated":          "2024-03-11T15:30:00Z",
	}

	asset := Asset(raw, testNow)

	assert.Equal(t, "42", asset.ID)
	assert.Equal(t, "Reliance Industries", asset.Name)
	assert.Equal(t, models.AssetKindStock, asset.Kind)
	require.NotNil(t, asset.Tradable)
	assert.Equal(t, "RELIANCE", asset.Tradable.Symbol)
	assert.Equal(t, 2500.0, asset.Tradable.CurrentPrice)
	assert.Equal(t, 25000.0, asset.TotalValue)
	assert.Equal(t, 1000.0, asset.TotalGainLoss)
	assert.InDelta(t, 4.1666, asset.TotalGainLossPercent, 0.001)
	assert.Equal(t, time.Date(2024, 3, 11, 15, 30, 0, 0, time.UTC), asset.LastUpdated)
}

func TestAssetMalformedFieldsDegrade(t *testing.T) {
	raw := map[string]interface{}{
		"id":         "1",
		"totalValue": "abc",
		"name":       "",
	}

	asset := Asset(raw, testNow)

	assert.Equal(t, "1", asset.ID)
	assert.Equal(t, FallbackName, asset.Name)
	assert.Equal(t, 0.0, asset.TotalValue)
	require.NotNil(t, asset.Tradable)
	assert.Equal(t, FallbackSymbol, asset.Tradable.Symbol)
	assert.Equal(t, models.DefaultCurrency, asset.Tradable.Currency)
}

func TestAssetNilInput(t *testing.T) {
	asset := Asset(nil, testNow)

	assert.Equal(t, "unknown", asset.ID)
	assert.Equal(t, FallbackName, asset.Name)
	assert.Equal(t, models.AssetKindStock, asset.Kind)
	require.NotNil(t, asset.Tradable)
	assert.Equal(t, FallbackSymbol, asset.Tradable.Symbol)
	assert.Equal(t, testNow, asset.LastUpdated)
}

func TestAssetNonMapInput(t *testing.T) {
	for _, raw := range []interface{}{"not-a-map", 17, []string{"a"}} {
		asset := Asset(raw, testNow)
		assert.Equal(t, FallbackName, asset.Name)
		assert.Equal(t, "unknown", asset.ID)
	}
}

func TestAssetRejectsNonFiniteNumbers(t *testing.T) {
	raw := map[string]interface{}{
		"id":           "7",
		"name":         "Weird Corp",
		"quantity":     math.NaN(),
		"currentPrice": math.Inf(1),
		"totalValue":   math.Inf(-1),
	}

	asset := Asset(raw, testNow)

	require.NotNil(t, asset.Tradable)
	assert.Equal(t, 0.0, asset.Tradable.Quantity)
	assert.Equal(t, 0.0, asset.Tradable.CurrentPrice)
	assert.Equal(t, 0.0, asset.TotalValue)
}

func TestAssetNumericStringsCoerce(t *testing.T) {
	raw := map[string]interface{}{
		"id":           "9",
		"name":         "Tata Motors",
		"quantity":     "5",
		"currentPrice": " 950.50 ",
	}

	asset := Asset(raw, testNow)

	require.NotNil(t, asset.Tradable)
	assert.Equal(t, 5.0, asset.Tradable.Quantity)
	assert.Equal(t, 950.50, asset.Tradable.CurrentPrice)
	assert.Equal(t, 4752.5, asset.TotalValue)
}

func TestAssetCurrentPriceFallsBackToPurchasePrice(t *testing.T) {
	raw := map[string]interface{}{
		"id":                   "3",
		"name":                 "HDFC Bank",
		"quantity":             2.0,
		"averagePurchasePrice": 1500.0,
	}

	asset := Asset(raw, testNow)

	require.NotNil(t, asset.Tradable)
	assert.Equal(t, 1500.0, asset.Tradable.CurrentPrice)
	assert.Equal(t, 3000.0, asset.TotalValue)
	assert.Equal(t, 0.0, asset.TotalGainLoss)
}

func TestAssetSnakeCaseAliases(t *testing.T) {
	raw := map[string]interface{}{
		"id":                     "11",
		"name":                   "Infosys",
		"asset_kind":             "etf",
		"current_price":          100.0,
		"average_purchase_price": 80.0,
		"quantity":               1.0,
	}

	asset := Asset(raw, testNow)

	assert.Equal(t, models.AssetKindETF, asset.Kind)
	require.NotNil(t, asset.Tradable)
	assert.Equal(t, 100.0, asset.Tradable.CurrentPrice)
	assert.Equal(t, 20.0, asset.TotalGainLoss)
	assert.Equal(t, 25.0, asset.TotalGainLossPercent)
}

func TestAssetPhysicalVariant(t *testing.T) {
	raw := map[string]interface{}{
		"id":                 "gold-1",
		"name":               "Sovereign Gold",
		"assetKind":          "gold",
		"quantity":           8.0,
		"purchasePrice":      6000.0,
		"currentMarketPrice": 6500.0,
	}

	asset := Asset(raw, testNow)

	assert.Equal(t, models.AssetKindGold, asset.Kind)
	assert.Nil(t, asset.Tradable)
	require.NotNil(t, asset.Physical)
	assert.Equal(t, models.DefaultUnit, asset.Physical.Unit)
	require.NotNil(t, asset.Physical.CurrentMarketPrice)
	assert.Equal(t, 6500.0, *asset.Physical.CurrentMarketPrice)
	assert.Equal(t, 52000.0, asset.TotalValue)
}

func TestAssetPhysicalMissingMarketPrice(t *testing.T) {
	raw := map[string]interface{}{
		"id":            "silver-1",
		"name":          "Silver Bars",
		"assetKind":     "silver",
		"quantity":      3.0,
		"purchasePrice": 700.0,
	}

	asset := Asset(raw, testNow)

	require.NotNil(t, asset.Physical)
	assert.Nil(t, asset.Physical.CurrentMarketPrice)
	assert.Equal(t, 2100.0, asset.TotalValue)
}

func TestAssetUnknownKindDefaultsToStock(t *testing.T) {
	raw := map[string]interface{}{
		"id":        "5",
		"name":      "Mystery Holding",
		"assetKind": "collectible",
	}

	asset := Asset(raw, testNow)
	assert.Equal(t, models.AssetKindStock, asset.Kind)
	assert.NotNil(t, asset.Tradable)
}

func TestSynthesizeSymbol(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Reliance Industries", "RI"},
		{"State Bank of India", "SBOI"},
		{"One Two Three Four Five", "OTTF"},
		{"solo", "S"},
	}
	for _, tc := range tests {
		raw := map[string]interface{}{"id": "x", "name": tc.name}
		asset := Asset(raw, testNow)
		require.NotNil(t, asset.Tradable)
		assert.Equal(t, tc.want, asset.Tradable.Symbol, tc.name)
	}
}

func TestIdentityFallsBackToNameSlug(t *testing.T) {
	asset := Asset(map[string]interface{}{"name": "Tata Steel"}, testNow)
	assert.Equal(t, "tata-steel", asset.ID)

	asset = Asset(map[string]interface{}{"id": 314.0, "name": "Numeric"}, testNow)
	assert.Equal(t, "314", asset.ID)
}

func TestCollectionCountsFallbacks(t *testing.T) {
	raws := []models.RawAsset{
		{"id": "1", "name": "Good Asset", "quantity": 1.0, "currentPrice": 10.0},
		nil,
		{"id": "2", "name": "Also Good"},
	}

	assets, fallbacks := Collection(raws, testNow)

	require.Len(t, assets, 3)
	assert.Equal(t, 1, fallbacks)
	assert.Equal(t, "Good Asset", assets[0].Name)
	assert.Equal(t, FallbackName, assets[1].Name)
	assert.Equal(t, "Also Good", assets[2].Name)
}

func TestCollectionEmpty(t *testing.T) {
	assets, fallbacks := Collection(nil, testNow)
	assert.Empty(t, assets)
	assert.Zero(t, fallbacks)
}
