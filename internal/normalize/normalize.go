// Package normalize converts raw, partially populated, or malformed
// asset payloads into complete render-safe records. It never fails:
// every invalid field degrades to a documented fallback, and a record
// that cannot be normalized at all becomes a placeholder instead of
// poisoning the batch.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/asset-sync/pkg/models"
)

// FallbackName replaces an absent or empty display name.
const FallbackName = "Unknown Asset"

// FallbackSymbol replaces a symbol that cannot be synthesized.
const FallbackSymbol = "N/A"

// Collection normalizes a batch. One bad record never drops out of the
// collection; it normalizes to a fallback display record instead. The
// second return value counts how many records needed that fallback.
func Collection(raws []models.RawAsset, now time.Time) ([]models.NormalizedAsset, int) {
	assets := make([]models.NormalizedAsset, 0, len(raws))
	fallbacks := 0
	for _, raw := range raws {
		asset, ok := normalizeOne(raw, now)
		if !ok {
			fallbacks++
		}
		assets = append(assets, asset)
	}
	return assets, fallbacks
}

// Asset normalizes a single record of any shape.
func Asset(raw interface{}, now time.Time) models.NormalizedAsset {
	asset, _ := normalizeOne(raw, now)
	return asset
}

func normalizeOne(raw interface{}, now time.Time) (asset models.NormalizedAsset, ok bool) {
	ok = true
	defer func() {
		if r := recover(); r != nil {
			asset = Fallback(raw, now)
			ok = false
		}
	}()

	fields, isMap := raw.(map[string]interface{})
	if !isMap || fields == nil {
		return Fallback(raw, now), false
	}

	name := str(lookup(fields, "name"), FallbackName)
	kind := parseKind(lookup(fields, "assetKind", "asset_kind", "assetType", "asset_type", "type"))

	asset = models.NormalizedAsset{
		ID:   identity(fields, name),
		Name: name,
		Kind: kind,
	}

	switch {
	case kind.IsTradable():
		asset.Tradable = tradable(fields, name)
	case kind.IsPhysical():
		asset.Physical = physical(fields)
	}

	asset.TotalValue = totalValue(fields, asset)
	asset.TotalGainLoss = gainLoss(fields, asset)
	asset.TotalGainLossPercent = gainLossPercent(fields, asset)

	asset.LastUpdated = timestamp(lookup(fields, "lastUpdated", "last_updated"), now)
	asset.CreatedAt = timestamp(lookup(fields, "createdAt", "created_at"), now)
	asset.UpdatedAt = timestamp(lookup(fields, "updatedAt", "updated_at"), now)

	return asset, true
}

// Fallback is the display record produced when a payload cannot be
// normalized field by field. It is flat, neutral, and safe to render.
func Fallback(raw interface{}, now time.Time) models.NormalizedAsset {
	id := "unknown"
	if fields, isMap := raw.(map[string]interface{}); isMap && fields != nil {
		id = identity(fields, FallbackName)
	}
	return models.NormalizedAsset{
		ID:   id,
		Name: FallbackName,
		Kind: models.AssetKindStock,
		Tradable: &models.TradableDetails{
			Symbol:   FallbackSymbol,
			Currency: models.DefaultCurrency,
		},
		LastUpdated: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func tradable(fields map[string]interface{}, name string) *models.TradableDetails {
	quantity := number(lookup(fields, "quantity"), 0)
	avgPrice := number(lookup(fields, "averagePurchasePrice", "average_purchase_price"), 0)
	// A missing live price falls back to the purchase price, the best
	// related value already validated.
	currentPrice := number(lookup(fields, "currentPrice", "current_price"), avgPrice)

	return &models.TradableDetails{
		Symbol:               str(lookup(fields, "symbol"), synthesizeSymbol(name)),
		Currency:             str(lookup(fields, "currency"), models.DefaultCurrency),
		Quantity:             quantity,
		AveragePurchasePrice: avgPrice,
		CurrentPrice:         currentPrice,
		DailyChange:          number(lookup(fields, "dailyChange", "daily_change"), 0),
		DailyChangePercent:   number(lookup(fields, "dailyChangePercent", "daily_change_percent"), 0),
	}
}

func physical(fields map[string]interface{}) *models.PhysicalDetails {
	details := &models.PhysicalDetails{
		Quantity:      number(lookup(fields, "quantity"), 0),
		Unit:          str(lookup(fields, "unit"), models.DefaultUnit),
		PurchasePrice: number(lookup(fields, "purchasePrice", "purchase_price"), 0),
	}
	if v, present := present(fields, "currentMarketPrice", "current_market_price"); present {
		if price, valid := finite(v); valid {
			details.CurrentMarketPrice = &price
		}
	}
	return details
}

func totalValue(fields map[string]interface{}, asset models.NormalizedAsset) float64 {
	fallback := 0.0
	switch {
	case asset.Tradable != nil:
		fallback = asset.Tradable.Quantity * asset.Tradable.CurrentPrice
	case asset.Physical != nil:
		price := asset.Physical.PurchasePrice
		if asset.Physical.CurrentMarketPrice != nil {
			price = *asset.Physical.CurrentMarketPrice
		}
		fallback = asset.Physical.Quantity * price
	}
	return number(lookup(fields, "totalValue", "total_value"), fallback)
}

func gainLoss(fields map[string]interface{}, asset models.NormalizedAsset) float64 {
	fallback := 0.0
	if asset.Tradable != nil {
		fallback = asset.TotalValue - asset.Tradable.Quantity*asset.Tradable.AveragePurchasePrice
	}
	return number(lookup(fields, "totalGainLoss", "total_gain_loss"), fallback)
}

func gainLossPercent(fields map[string]interface{}, asset models.NormalizedAsset) float64 {
	fallback := 0.0
	if asset.Tradable != nil {
		basis := asset.Tradable.Quantity * asset.Tradable.AveragePurchasePrice
		if basis > 0 {
			fallback = asset.TotalGainLoss / basis * 100
		}
	}
	return number(lookup(fields, "totalGainLossPercent", "total_gain_loss_percent"), fallback)
}

func identity(fields map[string]interface{}, name string) string {
	if id := str(lookup(fields, "id"), ""); id != "" {
		return id
	}
	// Numeric ids arrive as JSON numbers; keep them stable as strings.
	if v, valid := finite(lookup(fields, "id")); valid {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if name != "" && name != FallbackName {
		return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
	}
	return "unknown"
}

func parseKind(v interface{}) models.AssetKind {
	kind := models.AssetKind(strings.ToLower(str(v, "")))
	if kind.Valid() {
		return kind
	}
	return models.AssetKindStock
}

// lookup returns the first present key, so camelCase payloads and
// snake_case payloads both resolve.
func lookup(fields map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, present := fields[key]; present {
			return v
		}
	}
	return nil
}

func present(fields map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, exists := fields[key]; exists {
			return v, true
		}
	}
	return nil, false
}

// number accepts a finite number, or a string parseable to one, and
// returns fallback otherwise. NaN and infinities never pass through.
func number(v interface{}, fallback float64) float64 {
	if f, valid := finite(v); valid {
		return f
	}
	return fallback
}

func finite(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	}
	return 0, false
}

// str accepts a string that is non-empty after trimming.
func str(v interface{}, fallback string) string {
	if s, isString := v.(string); isString {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// synthesizeSymbol builds a placeholder ticker from the first letters
// of the asset name.
func synthesizeSymbol(name string) string {
	if name == "" || name == FallbackName {
		return FallbackSymbol
	}
	var initials []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			initials = append(initials, r)
			break
		}
		if len(initials) >= 4 {
			break
		}
	}
	if len(initials) == 0 {
		return FallbackSymbol
	}
	return strings.ToUpper(string(initials))
}

func timestamp(v interface{}, now time.Time) time.Time {
	if s, isString := v.(string); isString {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return now
}
