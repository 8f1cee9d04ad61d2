// Package terms holds the economic tunables of the settlement core
package terms

import (
	"errors"
	"fmt"
)

// Defaults used when nothing is configured
const (
	DefaultPersistenceCost    = 10
	DefaultProtocolFeePercent = 5
	DefaultPromotionThreshold = 100
)

// Validation errors
var (
	ErrInvalidTerms         = errors.New("invalid settlement terms")
	ErrNegativeCost         = errors.New("persistence cost must not be negative")
	ErrFeePercentOutOfRange = errors.New("protocol fee percent must be between 0 and 100")
	ErrThresholdNotPositive = errors.New("promotion threshold must be positive")
)

// Config is the full set of tunables the core needs
type Config struct {
	PersistenceCost    int64 `env:"PERSISTENCE_COST" envDefault:"10"`
	ProtocolFeePercent int64 `env:"PROTOCOL_FEE_PERCENT" envDefault:"5"`
	PromotionThreshold int64 `env:"PROMOTION_THRESHOLD" envDefault:"100"`
}

// Default returns the default terms
func Default() Config {
	return Config{
		PersistenceCost:    DefaultPersistenceCost,
		ProtocolFeePercent: DefaultProtocolFeePercent,
		PromotionThreshold: DefaultPromotionThreshold,
	}
}

// Validate checks every tunable is within its domain
func (c Config) Validate() error {
	if c.PersistenceCost < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTerms, ErrNegativeCost)
	}
	if c.ProtocolFeePercent < 0 || c.ProtocolFeePercent > 100 {
		return fmt.Errorf("%w: %w", ErrInvalidTerms, ErrFeePercentOutOfRange)
	}
	if c.PromotionThreshold < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidTerms, ErrThresholdNotPositive)
	}
	return nil
}
