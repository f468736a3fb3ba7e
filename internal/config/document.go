// Package config loads the hot-reloadable bands document: the JSON file
// (optionally templated) describing one pair's buy and sell bands and rate
// limits, which an operator edits while the keeper is running. Unlike
// package settings, changes here take effect on the next poll without a
// process restart.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/bands"
	"github.com/makerdao/market-maker-keeper/internal/limits"
)

// BandSpec is the on-disk representation of one band. Field names match the
// bands document's JSON schema.
type BandSpec struct {
	MinMargin  float64 `json:"minMargin"`
	AvgMargin  float64 `json:"avgMargin"`
	MaxMargin  float64 `json:"maxMargin"`
	MinAmount  float64 `json:"minAmount"`
	AvgAmount  float64 `json:"avgAmount"`
	MaxAmount  float64 `json:"maxAmount"`
	DustCutoff float64 `json:"dustCutoff"`
}

func (s BandSpec) toBand() bands.Band {
	return bands.Band{
		MinMargin:  decimal.NewFromFloat(s.MinMargin),
		AvgMargin:  decimal.NewFromFloat(s.AvgMargin),
		MaxMargin:  decimal.NewFromFloat(s.MaxMargin),
		MinAmount:  decimal.NewFromFloat(s.MinAmount),
		AvgAmount:  decimal.NewFromFloat(s.AvgAmount),
		MaxAmount:  decimal.NewFromFloat(s.MaxAmount),
		DustCutoff: decimal.NewFromFloat(s.DustCutoff),
	}
}

// LimitSpec is the on-disk representation of one rate-limit rule, e.g.
// {"period": "1h", "amount": 50}.
type LimitSpec struct {
	Period string  `json:"period"`
	Amount float64 `json:"amount"`
}

// Document is the parsed form of a bands file.
type Document struct {
	Pair       string      `json:"pair"`
	Buy        []BandSpec  `json:"buyBands"`
	Sell       []BandSpec  `json:"sellBands"`
	BuyLimits  []LimitSpec `json:"buyLimits"`
	SellLimits []LimitSpec `json:"sellLimits"`
}

// BandSet converts the document's buy/sell band specs into a bands.BandSet.
func (d Document) BandSet() (bands.BandSet, error) {
	bs := bands.BandSet{
		Buy:  make([]bands.BuyBand, len(d.Buy)),
		Sell: make([]bands.SellBand, len(d.Sell)),
	}
	for i, s := range d.Buy {
		bs.Buy[i] = bands.BuyBand{Band: s.toBand()}
	}
	for i, s := range d.Sell {
		bs.Sell[i] = bands.SellBand{Band: s.toBand()}
	}
	if err := bs.Validate(); err != nil {
		return bands.BandSet{}, err
	}
	return bs, nil
}

// Limits builds the buy-side and sell-side rate limiters described by the
// document.
func (d Document) Limits() (buy, sell *limits.Limits, err error) {
	buyRules, err := parseRules(d.BuyLimits)
	if err != nil {
		return nil, nil, fmt.Errorf("config: buyLimits: %w", err)
	}
	sellRules, err := parseRules(d.SellLimits)
	if err != nil {
		return nil, nil, fmt.Errorf("config: sellLimits: %w", err)
	}
	return limits.NewLimits(buyRules...), limits.NewLimits(sellRules...), nil
}

func parseRules(specs []LimitSpec) ([]*limits.Limit, error) {
	rules := make([]*limits.Limit, 0, len(specs))
	for _, s := range specs {
		r, err := limits.NewLimit(decimal.NewFromFloat(s.Amount), s.Period)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// deprecatedAmountKeys are pre-generalization band property names from
// before the keeper supported arbitrary pairs, when amounts were named
// after the WETH/SAI pair the original kept used. A bands document that
// still carries one of these silently loses the value it holds, since
// BandSpec has no field for it, so Parse rejects it outright instead.
var deprecatedAmountKeys = []string{
	"minWEthAmount", "avgWEthAmount", "maxWEthAmount",
	"minSaiAmount", "avgSaiAmount", "maxSaiAmount",
}

// ValidateLegacyKeys checks each raw band object in a bands document for
// deprecated WETH/SAI-named amount keys and returns an error naming the
// first one found.
func ValidateLegacyKeys(raw []byte) error {
	var doc struct {
		Buy  []map[string]json.RawMessage `json:"buyBands"`
		Sell []map[string]json.RawMessage `json:"sellBands"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config: parse bands document: %w", err)
	}
	if err := checkLegacyKeys("buyBands", doc.Buy); err != nil {
		return err
	}
	if err := checkLegacyKeys("sellBands", doc.Sell); err != nil {
		return err
	}
	return nil
}

func checkLegacyKeys(section string, specs []map[string]json.RawMessage) error {
	for i, spec := range specs {
		for _, key := range deprecatedAmountKeys {
			if _, present := spec[key]; present {
				return fmt.Errorf("config: %s[%d] uses deprecated key %q; use minAmount, avgAmount and maxAmount instead", section, i, key)
			}
		}
	}
	return nil
}

// Parse decodes raw JSON bytes into a Document.
func Parse(raw []byte) (Document, error) {
	if err := ValidateLegacyKeys(raw); err != nil {
		return Document{}, err
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("config: parse bands document: %w", err)
	}
	return doc, nil
}
