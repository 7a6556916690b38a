package authorization

import (
	"context"

	"github.com/smallbiznis/adbilling/internal/actorcontext"
	"github.com/smallbiznis/adbilling/pkg/errs"
)

type Service interface {
	Authorize(ctx context.Context, actor actorcontext.Actor, object string, action string) error
}

var (
	ErrForbidden     = errs.Forbidden("forbidden")
	ErrInvalidActor  = errs.Forbidden("invalid_actor")
	ErrInvalidObject = errs.Validation("invalid_object")
	ErrInvalidAction = errs.Validation("invalid_action")
)
