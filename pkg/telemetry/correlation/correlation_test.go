package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCorrelationIDMintsULID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)
	assert.Equal(t, id, ExtractCorrelationID(ctx))

	again, same := EnsureCorrelationID(ctx, "other")
	assert.Equal(t, id, same)
	assert.Equal(t, ctx, again)
}

func TestEnsureCorrelationIDAdoptsCandidate(t *testing.T) {
	_, id := EnsureCorrelationID(context.Background(), "  ", " req-77 ")
	assert.Equal(t, "req-77", id)

	_, id = EnsureCorrelationID(context.Background(), strings.Repeat("x", maxLen+1))
	assert.Len(t, id, 26)
}

func TestExtractWithoutID(t *testing.T) {
	assert.Empty(t, ExtractCorrelationID(context.Background()))
	assert.Empty(t, ExtractCorrelationID(nil)) //nolint:staticcheck
}
