// Package amount converts between human-readable decimal amounts and the
// opaque base-unit integers the ledger operates on. A token with 6 decimals
// stores 0.05 as 50000 base units.
package amount

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnsupportedType reports an input value of a type the converter does not handle.
var ErrUnsupportedType = errors.New("unsupported amount type")

// ToBase converts a human decimal amount to base units for a token with the
// given number of decimals.
//
// Supported input types for iamount: string, float64, int64, decimal.Decimal,
// *decimal.Decimal. Any other type results in an error.
func ToBase(iamount any, decimals int32) (base *big.Int, err error) {
	amount := decimal.NewFromFloat(0)
	switch v := iamount.(type) {
	case string:
		amount, err = decimal.NewFromString(v)
		if err != nil {
			zap.L().Error("Failed to convert string to decimal", zap.Error(err))
			return nil, err
		}
	case float64:
		amount = decimal.NewFromFloat(v)
	case int64:
		amount = decimal.NewFromInt(v)
	case decimal.Decimal:
		amount = v
	case *decimal.Decimal:
		amount = *v
	default:
		return nil, ErrUnsupportedType
	}

	result := amount.Shift(decimals).Truncate(0)

	base = new(big.Int)
	base.SetString(result.String(), 10)
	return base, nil
}

// FromBase converts a base-unit amount into a decimal value for a token with
// the given number of decimals.
//
// Supported input types for ivalue: string, *big.Int, int. Any other type
// results in decimal.Zero and logs an error.
func FromBase(ivalue any, decimals int32) decimal.Decimal {
	value := new(big.Int)
	switch v := ivalue.(type) {
	case string:
		value.SetString(v, 10)
	case *big.Int:
		value = v
	case int:
		value.SetInt64(int64(v))
	default:
		zap.L().Error("Unsupported type")
		return decimal.Zero
	}

	num, err := decimal.NewFromString(value.String())
	if err != nil {
		zap.L().Error("Failed to convert string to decimal", zap.Error(err))
		return decimal.Zero
	}
	return num.Shift(-decimals)
}
