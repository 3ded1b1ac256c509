package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/docwatch/internal/errors"
	"github.com/listenupapp/docwatch/internal/validation"
)

type testSettings struct {
	Mode     string `json:"mode" validate:"required,oneof=content stat"`
	WindowMs int    `json:"windowMs" validate:"gte=50,lte=5000"`
	Retries  int    `validate:"gt=0"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(testSettings{Mode: "content", WindowMs: 300, Retries: 1})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		in        testSettings
		wantField string
		wantMsg   string
	}{
		{"missing mode", testSettings{WindowMs: 300, Retries: 1}, "mode", "is required"},
		{"unknown mode", testSettings{Mode: "mtime", WindowMs: 300, Retries: 1}, "mode", "must be one of: content stat"},
		{"window too small", testSettings{Mode: "stat", WindowMs: 10, Retries: 1}, "windowMs", "must be at least 50"},
		{"window too large", testSettings{Mode: "stat", WindowMs: 9000, Retries: 1}, "windowMs", "must not exceed 5000"},
		{"untagged field uses struct name", testSettings{Mode: "stat", WindowMs: 300}, "Retries", "must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))

			var domainErr *errors.Error
			require.True(t, errors.As(err, &domainErr))
			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}
