package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestFactoryMessages(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Invalid log level", f.New(errors.ErrInvalidLogLevel).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "Invalid argument provided: speed", f.WithData(errors.ErrInvalidArgument, "speed").Error())

	wrapped := f.Wrap(errors.ErrOperationFailed, fmt.Errorf("boom"))
	assert.Equal(t, "Operation failed: boom", wrapped.Error())
	assert.Equal(t, errors.ErrOperationFailed, wrapped.Code())
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrNotFound)
	outer := f.Wrap(errors.ErrOperationFailed, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrOperationFailed))
	assert.True(t, errors.HasCode(outer, errors.ErrNotFound))
	assert.False(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.ErrNotFound))
	assert.True(t, errors.Is(outer, f.New(errors.ErrOperationFailed)))
}

func TestWithCopies(t *testing.T) {
	base := errors.New().Wrap(errors.ErrOperationFailed, fmt.Errorf("disk full"))
	detailed := base.WithMessage("flush").WithData(map[string]int{"rows": 3})

	assert.Equal(t, "flush: map[rows:3]: disk full", detailed.Error())
	assert.Equal(t, "Operation failed: disk full", base.Error())
	assert.True(t, errors.Is(detailed, base))
}
