package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errWidgetMissing = NotFound("widget_not_found")

func TestErrorMatchesSentinelAndKind(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", errWidgetMissing)

	assert.True(t, errors.Is(wrapped, errWidgetMissing))
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestDistinctCodesDoNotMatch(t *testing.T) {
	other := NotFound("gadget_not_found")
	assert.False(t, errors.Is(other, errWidgetMissing))
}

func TestWithMessageKeepsIdentity(t *testing.T) {
	err := errWidgetMissing.WithMessage("widget %d", 42)

	assert.True(t, errors.Is(err, errWidgetMissing))
	assert.Equal(t, "widget_not_found: widget 42", err.Error())
	assert.Equal(t, "widget 42", err.Message())
}

func TestKindOfUnknownIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := errors.New("driver failure")
	err := ErrInternal.Wrap(cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrInternal))
}
