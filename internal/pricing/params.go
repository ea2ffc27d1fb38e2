package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	ParamMinQuantity        = "min_quantity"
	ParamDiscountPercentage = "discount_percentage"
	ParamUserTier           = "user_tier"
)

var errParamType = errors.New("unsupported parameter type")

// Parameters arrive as decoded JSON (float64, json.Number, string) or as Go
// values when rules are built in code.
func paramDecimal(params map[string]any, key string) (decimal.Decimal, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return decimal.Zero, false, nil
	}
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true, nil
	case float64:
		return decimal.NewFromFloat(v), true, nil
	case float32:
		return decimal.NewFromFloat32(v), true, nil
	case int:
		return decimal.NewFromInt(int64(v)), true, nil
	case int32:
		return decimal.NewFromInt32(v), true, nil
	case int64:
		return decimal.NewFromInt(v), true, nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil, err
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil, err
	default:
		return decimal.Zero, false, fmt.Errorf("%s: %w %T", key, errParamType, raw)
	}
}

func paramInt(params map[string]any, key string) (int, bool, error) {
	d, ok, err := paramDecimal(params, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if !d.Equal(d.Truncate(0)) || d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, false, fmt.Errorf("%s: expected an integer, got %s", key, d)
	}
	return int(d.IntPart()), true, nil
}

func paramString(params map[string]any, key string) (string, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("%s: %w %T", key, errParamType, raw)
	}
	return s, true, nil
}

// percentLabel renders 0.1 as "10".
func percentLabel(pct decimal.Decimal) string {
	return pct.Mul(decimal.NewFromInt(100)).String()
}
