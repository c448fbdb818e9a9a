package validation_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fastmem/fastmem/internal/errors"
	"github.com/fastmem/fastmem/internal/validation"
)

func TestValidateKey(t *testing.T) {
	v := validation.NewValidator()

	assert.NoError(t, v.ValidateKey("users:1"))
	assert.Error(t, v.ValidateKey(""))
	assert.Error(t, v.ValidateKey(strings.Repeat("k", validation.MaxKeySize+1)))

	err := v.ValidateKey("")
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))
}

func TestValidatePayload(t *testing.T) {
	v := validation.NewValidatorWithLimits(16, 8)

	assert.NoError(t, v.ValidatePayload([]byte("small")))
	assert.NoError(t, v.ValidatePayload(nil))
	assert.Error(t, v.ValidatePayload([]byte("nine bytes")))
}

func TestValidateTTL(t *testing.T) {
	v := validation.NewValidator()

	assert.NoError(t, v.ValidateTTL(0))
	assert.NoError(t, v.ValidateTTL(time.Minute))
	assert.Error(t, v.ValidateTTL(-time.Second))
}

func TestValidateIndexName(t *testing.T) {
	v := validation.NewValidator()

	assert.NoError(t, v.ValidateIndexName("by-email"))
	assert.Error(t, v.ValidateIndexName(""))
	assert.Error(t, v.ValidateIndexName(strings.Repeat("n", validation.MaxIndexName+1)))
}
