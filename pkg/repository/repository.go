package repository

import (
	"context"

	"github.com/smallbiznis/adbilling/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a thin generic store over a gorm model.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	FindForUpdate(ctx context.Context, id any) (*T, error)
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
	Create(ctx context.Context, resource *T) error
	Upsert(ctx context.Context, resource *T, conflict clause.OnConflict) (int64, error)
	Update(ctx context.Context, resourceID any, resource any) error
	BatchCreate(ctx context.Context, resources []*T) error
}
