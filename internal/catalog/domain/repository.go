package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository reads collaborator records. db may be a transaction.
type Repository interface {
	GetCampaign(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Campaign, error)
	ListCampaigns(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Campaign, error)
	GetAdvertiser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Advertiser, error)
	ListAdvertisers(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]Advertiser, error)
	GetPartner(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Partner, error)
	ListPartners(ctx context.Context, db *gorm.DB) ([]Partner, error)
	ListDeviceIDs(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) ([]snowflake.ID, error)
}
