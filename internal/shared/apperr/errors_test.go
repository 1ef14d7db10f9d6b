package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("cancel group: %w", PolicyViolation(CodeCancellationWindow, "2h left, policy requires 24h"))

	assert.True(t, errors.Is(err, ErrPolicyViolation))
	assert.True(t, errors.Is(err, ErrCancellationWindow))
	assert.False(t, errors.Is(err, ErrAlreadyStarted))
	assert.False(t, errors.Is(err, ErrInvalidTransition))
}

func TestInvalidTransitionMessage(t *testing.T) {
	err := InvalidTransition("booking_group", "g-1", "pending", "confirmed")

	assert.Equal(t, "invalid transition: booking_group g-1: expected pending, got confirmed", err.Error())

	var detail *Error
	require.True(t, errors.As(fmt.Errorf("wrap: %w", err), &detail))
	assert.Equal(t, "confirmed", detail.Actual)
}

func TestPaymentFailureUnwraps(t *testing.T) {
	cause := errors.New("card_declined")
	err := PaymentFailure("capture", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPaymentFailure)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		InvalidTransition("x", "1", "a", "b"):  http.StatusConflict,
		PolicyViolation(CodeBelowMinimum, ""): http.StatusUnprocessableEntity,
		PaymentFailure("charge", nil):         http.StatusPaymentRequired,
		NotFound("x", "1"):                    http.StatusNotFound,
		Validation("bad"):                     http.StatusBadRequest,
		Forbidden("nope"):                     http.StatusForbidden,
		InvariantBreach("x", "1", "boom"):     http.StatusInternalServerError,
		errors.New("plain"):                   http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}
