package models

import (
	"time"
)

// AssetKind discriminates the variant of a holding.
type AssetKind string

const (
	AssetKindStock     AssetKind = "stock"
	AssetKindETF       AssetKind = "etf"
	AssetKindBond      AssetKind = "bond"
	AssetKindCrypto    AssetKind = "crypto"
	AssetKindGold      AssetKind = "gold"
	AssetKindSilver    AssetKind = "silver"
	AssetKindCommodity AssetKind = "commodity"
)

// DefaultCurrency is used when a tradable record carries no currency.
const DefaultCurrency = "INR"

// DefaultUnit is used when a physical record carries no unit.
const DefaultUnit = "units"

// IsTradable reports whether the kind trades on an exchange with a symbol.
func (k AssetKind) IsTradable() bool {
	switch k {
	case AssetKindStock, AssetKindETF, AssetKindBond, AssetKindCrypto:
		return true
	}
	return false
}

// IsPhysical reports whether the kind is a physically held commodity.
func (k AssetKind) IsPhysical() bool {
	switch k {
	case AssetKindGold, AssetKindSilver, AssetKindCommodity:
		return true
	}
	return false
}

// Valid reports whether the kind is one of the known variants.
func (k AssetKind) Valid() bool {
	return k.IsTradable() || k.IsPhysical()
}

// RawAsset is one undecoded holding as returned by the remote API.
// The normalizer accepts any shape here and never fails on it.
type RawAsset = map[string]interface{}

// TradableDetails holds the fields specific to exchange-traded kinds.
type TradableDetails struct {
	Symbol               string  `json:"symbol"`
	Currency             string  `json:"currency"`
	Quantity             float64 `json:"quantity"`
	AveragePurchasePrice float64 `json:"average_purchase_price"`
	CurrentPrice         float64 `json:"current_price"`
	DailyChange          float64 `json:"daily_change"`
	DailyChangePercent   float64 `json:"daily_change_percent"`
}

// PhysicalDetails holds the fields specific to physically held kinds.
type PhysicalDetails struct {
	Quantity           float64  `json:"quantity"`
	Unit               string   `json:"unit"`
	PurchasePrice      float64  `json:"purchase_price"`
	CurrentMarketPrice *float64 `json:"current_market_price,omitempty"`
}

// NormalizedAsset is the canonical, render-safe representation of one holding.
// Every declared field is always populated; invalid input is replaced by a
// documented fallback before a value ever reaches this struct.
type NormalizedAsset struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Kind                 AssetKind        `json:"asset_kind"`
	TotalValue           float64          `json:"total_value"`
	TotalGainLoss        float64          `json:"total_gain_loss"`
	TotalGainLossPercent float64          `json:"total_gain_loss_percent"`
	Tradable             *TradableDetails `json:"tradable,omitempty"`
	Physical             *PhysicalDetails `json:"physical,omitempty"`
	LastUpdated          time.Time        `json:"last_updated"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Symbol returns the tradable symbol, or empty for physical holdings.
func (a *NormalizedAsset) Symbol() string {
	if a.Tradable != nil {
		return a.Tradable.Symbol
	}
	return ""
}
