package model

import (
	"strings"
	"time"
)

// AssetClass groups symbols by market.
type AssetClass string

const (
	AssetStock  AssetClass = "stock"
	AssetCrypto AssetClass = "crypto"
	AssetForex  AssetClass = "forex"
	AssetOther  AssetClass = "other"
)

// ParseAssetClass maps provider class names (us_equity, crypto, ...) to an AssetClass.
func ParseAssetClass(s string) AssetClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stock", "us_equity", "equity":
		return AssetStock
	case "crypto":
		return AssetCrypto
	case "forex", "fx":
		return AssetForex
	default:
		return AssetOther
	}
}

// Symbol is a tradable instrument that alerts can target.
type Symbol struct {
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name"`
	AssetClass AssetClass `json:"asset_class"`
	Exchange   string     `json:"exchange"`
	Tradable   bool       `json:"tradable"`
	Available  bool       `json:"available"`
	AddedAt    time.Time  `json:"added_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Asset is one entry of the external asset catalog.
type Asset struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Class    string `json:"class"`
	Exchange string `json:"exchange"`
	Tradable bool   `json:"tradable"`
}
