package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/adbilling/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetCampaign(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Campaign, error) {
	var campaign domain.Campaign
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

func (r *repo) ListCampaigns(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Campaign, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var campaigns []domain.Campaign
	err := db.WithContext(ctx).Where("id IN ?", ids).Order("id asc").Find(&campaigns).Error
	return campaigns, err
}

func (r *repo) GetAdvertiser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Advertiser, error) {
	var advertiser domain.Advertiser
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&advertiser).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &advertiser, nil
}

func (r *repo) ListAdvertisers(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]domain.Advertiser, error) {
	out := make(map[snowflake.ID]domain.Advertiser, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var advertisers []domain.Advertiser
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&advertisers).Error; err != nil {
		return nil, err
	}
	for _, a := range advertisers {
		out[a.ID] = a
	}
	return out, nil
}

func (r *repo) GetPartner(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Partner, error) {
	var partner domain.Partner
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&partner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &partner, nil
}

func (r *repo) ListPartners(ctx context.Context, db *gorm.DB) ([]domain.Partner, error) {
	var partners []domain.Partner
	err := db.WithContext(ctx).Order("id asc").Find(&partners).Error
	return partners, err
}

func (r *repo) ListDeviceIDs(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("partner_id = ?", partnerID).
		Order("id asc").
		Pluck("id", &ids).Error
	return ids, err
}
