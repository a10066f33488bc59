package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssetKindClassification(t *testing.T) {
	for _, kind := range []AssetKind{AssetKindStock, AssetKindETF, AssetKindBond, AssetKindCrypto} {
		assert.True(t, kind.IsTradable(), string(kind))
		assert.False(t, kind.IsPhysical(), string(kind))
		assert.True(t, kind.Valid(), string(kind))
	}
	for _, kind := range []AssetKind{AssetKindGold, AssetKindSilver, AssetKindCommodity} {
		assert.True(t, kind.IsPhysical(), string(kind))
		assert.False(t, kind.IsTradable(), string(kind))
		assert.True(t, kind.Valid(), string(kind))
	}
	assert.False(t, AssetKind("collectible").Valid())
	assert.False(t, AssetKind("").Valid())
}

func TestSymbol(t *testing.T) {
	tradable := NormalizedAsset{
		Kind:     AssetKindStock,
		Tradable: &TradableDetails{Symbol: "RELIANCE"},
	}
	assert.Equal(t, "RELIANCE", tradable.Symbol())

	physical := NormalizedAsset{
		Kind:     AssetKindGold,
		Physical: &PhysicalDetails{Quantity: 8},
	}
	assert.Equal(t, "", physical.Symbol())
}
