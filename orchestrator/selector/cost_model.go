// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CostPerUnitKey is the cost model field holding the per-unit price.
const CostPerUnitKey = "cost_per_unit"

// ExtractCost returns the per-unit cost of an implementation. Numbers and
// numeric strings are accepted; anything else counts as 0.
func ExtractCost(costModel map[string]interface{}) float64 {
	if costModel == nil {
		return 0
	}
	raw, ok := costModel[CostPerUnitKey]
	if !ok {
		return 0
	}

	var v float64
	switch c := raw.(type) {
	case float64:
		v = c
	case float32:
		v = float64(c)
	case int:
		v = float64(c)
	case int64:
		v = float64(c)
	case uint64:
		v = float64(c)
	case json.Number:
		f, err := c.Float64()
		if err != nil {
			return 0
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0
		}
		v = f
	default:
		return 0
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
