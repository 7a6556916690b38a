package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/adbilling/internal/actorcontext"
	"github.com/smallbiznis/adbilling/pkg/errs"
)

type Source string

const (
	SourceFile     Source = "file"
	SourceOverride Source = "override"
)

type Entry struct {
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	Source    Source     `json:"source"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type SetRequest struct {
	Value string `json:"value" validate:"required,max=256"`
}

type Service interface {
	Snapshot(ctx context.Context) (Settings, error)
	List(ctx context.Context) ([]Entry, error)
	Set(ctx context.Context, actor actorcontext.Actor, key string, value string) (Entry, error)
}

var (
	ErrUnknownKey   = errs.ValidationField("key", "unknown_config_key")
	ErrInvalidValue = errs.ValidationField("value", "invalid_config_value")
	ErrInvalidActor = errs.Forbidden("config_actor_required")
)
