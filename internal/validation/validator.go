package validation

import (
	"time"

	"github.com/fastmem/fastmem/internal/errors"
)

const (
	// Size limits
	MaxKeySize   = 1024             // 1 KB
	MaxValueSize = 10 * 1024 * 1024 // 10 MB
	MaxIndexName = 256
)

// Validator validates engine operation inputs
type Validator struct {
	maxKeySize   int
	maxValueSize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxKeySize:   MaxKeySize,
		maxValueSize: MaxValueSize,
	}
}

// NewValidatorWithLimits creates a validator with custom limits
func NewValidatorWithLimits(maxKeySize, maxValueSize int) *Validator {
	return &Validator{
		maxKeySize:   maxKeySize,
		maxValueSize: maxValueSize,
	}
}

// ValidateKey validates a key
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return errors.InvalidArgument("key must not be empty", nil)
	}
	if len(key) > v.maxKeySize {
		return errors.KeyTooLarge(len(key), v.maxKeySize)
	}
	return nil
}

// ValidatePayload validates a value, element, member or field payload
func (v *Validator) ValidatePayload(data []byte) error {
	if len(data) > v.maxValueSize {
		return errors.ValueTooLarge(len(data), v.maxValueSize)
	}
	return nil
}

// ValidateTTL validates a time-to-live; zero means no expiry
func (v *Validator) ValidateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return errors.InvalidArgument("ttl must not be negative", nil)
	}
	return nil
}

// ValidateIndexName validates an index name
func (v *Validator) ValidateIndexName(name string) error {
	if name == "" {
		return errors.InvalidArgument("index name must not be empty", nil)
	}
	if len(name) > MaxIndexName {
		return errors.InvalidArgument("index name too long", nil)
	}
	return nil
}
