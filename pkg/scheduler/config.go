package scheduler

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config bounds the resources one running execution may consume.
type Config struct {
	// MaxConcurrency caps how many nodes of a single execution run at once.
	MaxConcurrency int `validate:"required,gte=1"`

	// GlobalSlots caps node work across all executions. Zero disables the
	// global limit.
	GlobalSlots int `validate:"gte=0"`

	// NodeTimeout bounds a single node dispatch, retries included.
	NodeTimeout time.Duration `validate:"required,gt=0"`

	// HardStopGrace is how long cancellation waits for in-flight nodes to
	// acknowledge before they are force-marked cancelled.
	HardStopGrace time.Duration `validate:"required,gt=0"`

	// RetryAttempts is the total number of tries for a node whose executor
	// is unavailable.
	RetryAttempts int `validate:"required,gte=1"`

	// RetryBaseDelay is the backoff base; the delay doubles per attempt.
	RetryBaseDelay time.Duration `validate:"required,gt=0"`
}

// DefaultConfig returns the defaults used by the binaries.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		GlobalSlots:    64,
		NodeTimeout:    5 * time.Minute,
		HardStopGrace:  10 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid scheduler config: %w", err)
	}

	return nil
}
