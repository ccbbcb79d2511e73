package apperrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("TestError", func(t *testing.T) {
		ErrBaseErr := New("base error")
		assert.Equal(t, "base error", ErrBaseErr.Error())
		assert.Equal(t, "msg", ErrBaseErr.New("msg").Error())
		assert.ErrorIs(t, ErrBaseErr, ErrBaseErr)

		ErrFirstLevel := ErrBaseErr.New("first level")
		assert.Equal(t, "first level", ErrFirstLevel.Error())
		assert.ErrorIs(t, ErrFirstLevel, ErrBaseErr)

		ErrAnotherErr := New("another error")
		ErrAnotherErrMsg := ErrAnotherErr.Msg("another error msg")
		ErrWrappedErr := ErrFirstLevel.Err(ErrAnotherErrMsg)
		assert.Equal(t, "first level", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, ErrFirstLevel)
		assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErr)
		assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErrMsg)

		err := errors.New("error")
		ErrWrappedErr = ErrFirstLevel.MsgErr("msg", err)
		assert.Equal(t, "msg", ErrWrappedErr.Error())
		assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
		assert.ErrorIs(t, ErrWrappedErr, err)

		goErr := fmt.Errorf("driver exploded")
		ErrWrappedGoErr := ErrFirstLevel.Err(goErr)
		assert.ErrorIs(t, ErrWrappedGoErr, goErr)
		assert.Equal(t, "first level; driver exploded", ErrWrappedGoErr.ErrorAll())
	})
}

func TestDetails(t *testing.T) {
	ErrTimeout := New("QR Code generation timeout").SetStatusCode(http.StatusInternalServerError)
	derived := ErrTimeout.WithDetails("no QR code within 30s")

	assert.Equal(t, "QR Code generation timeout", derived.Error())
	assert.Equal(t, "no QR code within 30s", derived.Details())
	assert.Equal(t, http.StatusInternalServerError, derived.StatusCode())
	assert.ErrorIs(t, derived, ErrTimeout)
	assert.Empty(t, ErrTimeout.Details(), "template must not be mutated")

	// details survive further wrapping
	wrapped := derived.Err(fmt.Errorf("context deadline exceeded"))
	assert.Equal(t, "no QR code within 30s", wrapped.Details())
	assert.ErrorIs(t, wrapped, ErrTimeout)
}

func TestStatusCodeInheritance(t *testing.T) {
	ErrParent := New("parent").SetStatusCode(http.StatusNotFound)
	child := ErrParent.New("child")
	assert.Equal(t, http.StatusNotFound, child.StatusCode())

	overridden := child.SetStatusCode(http.StatusConflict)
	assert.Equal(t, http.StatusConflict, overridden.StatusCode())
	assert.Equal(t, http.StatusNotFound, child.StatusCode())
}
