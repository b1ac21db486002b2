package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greenworld/greenworld/internal/errors"
)

func TestError_MessageAndCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := errors.New(errors.CodeNotFound,
		errors.WithMessagef("slot %s is empty", "d1"),
		errors.WithCause(cause),
	)

	require.Equal(t, errors.CodeNotFound, err.Code)
	require.Equal(t, "slot d1 is empty", err.Message)
	require.ErrorIs(t, err, cause)
}

func TestIs_SeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", errors.New(errors.CodeInsufficientFunds))

	require.True(t, errors.Is(err, errors.CodeInsufficientFunds))
	require.False(t, errors.Is(err, errors.CodeNotFound))
	require.False(t, errors.Is(stderrors.New("plain"), errors.CodeInternal))
}

func TestConvert(t *testing.T) {
	orig := errors.New(errors.CodeAlreadyExists)
	require.Same(t, orig, errors.Convert(fmt.Errorf("wrap: %w", orig)))

	conv := errors.Convert(stderrors.New("plain"))
	require.Equal(t, errors.CodeInternal, conv.Code)
}

func TestHTTPStatusCode(t *testing.T) {
	tests := map[errors.Code]int{
		errors.CodeInvalidArgument:   http.StatusBadRequest,
		errors.CodeNotFound:          http.StatusNotFound,
		errors.CodeAlreadyExists:     http.StatusConflict,
		errors.CodeInsufficientFunds: http.StatusPaymentRequired,
		errors.CodeUnauthenticated:   http.StatusUnauthorized,
		errors.CodeUnavailable:       http.StatusServiceUnavailable,
		errors.CodeInternal:          http.StatusInternalServerError,
	}

	for code, want := range tests {
		require.Equal(t, want, errors.New(code).HTTPStatusCode(), "code %s", code)
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := map[int]errors.Code{
		http.StatusBadRequest:          errors.CodeInvalidArgument,
		http.StatusUnauthorized:        errors.CodeUnauthenticated,
		http.StatusPaymentRequired:     errors.CodeInsufficientFunds,
		http.StatusNotFound:            errors.CodeNotFound,
		http.StatusConflict:            errors.CodeAlreadyExists,
		http.StatusInternalServerError: errors.CodeInternal,
		http.StatusBadGateway:          errors.CodeInternal,
		http.StatusTeapot:              errors.CodeInvalidArgument,
	}

	for status, want := range tests {
		require.Equal(t, want, errors.FromHTTPStatus(status), "status %d", status)
	}
}
