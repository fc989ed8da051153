package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInputReportsEveryMistypedField(t *testing.T) {
	var in RecordTradeInput
	err := DecodeInput([]byte(`{"action":"buy","token_symbol":7,"quantity":true,"price_entry":"160","is_simulated":"yes"}`), &in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"is_simulated", "quantity", "token_symbol"}, verr.FieldNames())

	// well typed fields are still decoded
	assert.Equal(t, "buy", string(in.Action))
	require.NotNil(t, in.PriceEntry)
	assert.Equal(t, "160", in.PriceEntry.String())
}

func TestDecodeInputBody(t *testing.T) {
	for name, body := range map[string]string{
		"empty":     "  ",
		"array":     `[1,2]`,
		"scalar":    `"trade"`,
		"truncated": `{"action":`,
	} {
		t.Run(name, func(t *testing.T) {
			var in ExitInput
			err := DecodeInput([]byte(body), &in)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, []string{"body"}, verr.FieldNames())
		})
	}
}

func TestDecodeInputIgnoresUnknownFields(t *testing.T) {
	var in ExitInput
	require.NoError(t, DecodeInput([]byte(`{"price_exit":"170","colour":"blue"}`), &in))
	assert.Equal(t, "170", in.PriceExit.String())
}

func TestValidationErrorOrder(t *testing.T) {
	verr := &ValidationError{}
	assert.NoError(t, verr.OrNil())

	verr.Add("quantity", "is required")
	verr.Add("action", "is required")
	err := verr.OrNil()
	require.Error(t, err)
	assert.Equal(t, "validation failed: action: is required; quantity: is required", err.Error())
	assert.True(t, verr.Has("quantity"))
	assert.False(t, verr.Has("fees"))
}
