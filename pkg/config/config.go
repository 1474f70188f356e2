// Package config defines the runtime configuration for the ledger: platform
// fee settings, the treasury account, token precision, and debug mode. It also
// provides validation and defaulting helpers.
package config

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// BasisPointsDenominator is the number of basis points in 100%.
	BasisPointsDenominator = 10000
	// MaxPlatformFeeBps caps the platform fee at 20%.
	MaxPlatformFeeBps = 2000
	// DefaultTokenDecimals is the precision assumed for tokens when the
	// configuration does not specify one (6 decimals, USDC-style).
	DefaultTokenDecimals = 6
)

// Config holds all settings required to initialize the payment ledger.
// Use Validate to fill implicit defaults and to check for required fields.
type Config struct {
	// PlatformFeeBps is the platform fee in basis points retained by the
	// treasury on every payment. Bounded by MaxPlatformFeeBps.
	PlatformFeeBps uint32 `json:"platform_fee_bps" yaml:"platform_fee_bps"`
	// Treasury receives the platform fee as earnings (required).
	Treasury common.Address `json:"treasury" yaml:"treasury"`
	// TokenDecimals is the decimal precision used by amount conversion
	// helpers. Default: DefaultTokenDecimals.
	TokenDecimals int32 `json:"token_decimals" yaml:"token_decimals"`
	// Debug enables verbose logging.
	Debug bool `json:"debug" yaml:"debug"`
}

// Validate normalizes the configuration by applying implicit defaults for
// TokenDecimals and verifies that the treasury is set and the platform fee is
// within bounds.
func (c *Config) Validate() error {

	if c.TokenDecimals == 0 {
		c.TokenDecimals = DefaultTokenDecimals
	}

	if c.Treasury == (common.Address{}) {
		return errors.New("treasury address is required")
	}

	if c.PlatformFeeBps > MaxPlatformFeeBps {
		return errors.New("platform fee exceeds maximum")
	}

	return nil
}
