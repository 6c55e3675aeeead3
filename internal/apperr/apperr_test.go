package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("accept: %w", New(KindExpired, "invitation expired"))
	assert.Equal(t, KindExpired, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestSentinelsMatchByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindAlreadyAccepted, "invitation already accepted"))
	assert.ErrorIs(t, err, ErrAlreadyAccepted)
	assert.NotErrorIs(t, err, ErrExpired)
}

func TestUnauthorizedIsUniform(t *testing.T) {
	assert.Equal(t, Unauthorized().Error(), Unauthorized().Error())
	assert.Equal(t, "invalid credentials", Unauthorized().Message)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindInternal, "load invitation", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}
