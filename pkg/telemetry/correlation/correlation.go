// Package correlation tags a request or batch run with one id that audit rows
// and log lines share.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Header carries a caller supplied correlation id over HTTP.
const Header = "X-Correlation-ID"

const maxLen = 128

type key struct{}

// ExtractCorrelationID returns the id on ctx, or "" when there is none.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

func WithID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxLen {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// EnsureCorrelationID keeps an existing id, adopts candidate when usable and
// otherwise mints a ULID. Batch runs use the result as their run id.
func EnsureCorrelationID(ctx context.Context, candidate ...string) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	for _, c := range candidate {
		if next := WithID(ctx, c); next != ctx {
			return next, ExtractCorrelationID(next)
		}
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, key{}, id), id
}
