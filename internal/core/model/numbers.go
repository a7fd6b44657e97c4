// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// decimalString covers the string backed number types returned by store
// SDKs, such as the DynamoDB attribute value Number and json.Number.
type decimalString interface {
	String() string
	Float64() (float64, error)
}

// NormalizeNumbers walks maps and slices in v and converts arbitrary
// precision numbers: whole values become int64, everything else float64.
// Other values are returned unchanged.
func NormalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = NormalizeNumbers(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = NormalizeNumbers(item)
		}
		return out
	case decimal.Decimal:
		return fromDecimal(t)
	case *big.Rat:
		if t == nil {
			return nil
		}
		return fromDecimal(decimal.NewFromBigRat(t, 18))
	case decimalString:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return v
		}
		return fromDecimal(d)
	default:
		return v
	}
}

func fromDecimal(d decimal.Decimal) interface{} {
	if d.IsInteger() {
		return d.IntPart()
	}
	return d.InexactFloat64()
}
