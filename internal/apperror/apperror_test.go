package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     *AppError
		kind    error
		message string
		field   string
	}{
		{"not found", NotFound("profile", "abc123"), ErrNotFound, "profile not found with id abc123", ""},
		{"not found message", NotFoundMessage("User not found"), ErrNotFound, "User not found", ""},
		{"validation", ValidationFailed("role", "Invalid role"), ErrValidation, "Invalid role", "role"},
		{"conflict", Conflict("webhook event", "evt_1"), ErrConflict, "webhook event conflict with id evt_1", ""},
		{"forbidden", Forbidden("Cannot modify owner accounts"), ErrForbidden, "Cannot modify owner accounts", ""},
		{"unauthorized", Unauthorized(), ErrUnauthorized, "Unauthorized", ""},
		{"misconfigured", Misconfigured("Billing product not configured"), ErrConfiguration, "Billing product not configured", ""},
		{"upstream without cause", Upstream("Checkout failed", nil), ErrUpstream, "Checkout failed", ""},
	}

	all := []error{ErrNotFound, ErrValidation, ErrConflict, ErrForbidden, ErrUnauthorized, ErrConfiguration, ErrUpstream}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
			assert.Equal(t, tt.field, tt.err.Field)
			for _, k := range all {
				assert.Equal(t, k == tt.kind, errors.Is(tt.err, k), "errors.Is(%v)", k)
			}
		})
	}
}

func TestUpstream_KeepsCause(t *testing.T) {
	cause := errors.New("card_declined")
	err := Upstream("Failed to cancel subscription", cause)

	assert.Equal(t, "Failed to cancel subscription: card_declined", err.Error())
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
}

func TestAs_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("looking up profile: %w", NotFoundMessage("Profile not found"))

	var appErr *AppError
	if assert.ErrorAs(t, wrapped, &appErr) {
		assert.Equal(t, "Profile not found", appErr.Message)
	}
	assert.ErrorIs(t, wrapped, ErrNotFound)
}
