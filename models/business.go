package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/utils"
	"github.com/shopspring/decimal"
)

type Business struct {
	ID                uuid.UUID       `gorm:"primary_key" json:"id"`
	Name              string          `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ContactName       string          `gorm:"size:100" json:"contact_name"`
	Email             string          `gorm:"size:255" json:"email"`
	Timezone          string          `gorm:"size:50" json:"timezone"`
	DefaultDailyHours decimal.Decimal `gorm:"type:decimal(20,4);default:8" json:"default_daily_hours"`
	IsActive          *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name              string          `json:"name" binding:"required"`
	ContactName       string          `json:"contact_name"`
	Email             string          `json:"email" binding:"required"`
	Timezone          string          `json:"timezone"`
	DefaultDailyHours decimal.Decimal `json:"default_daily_hours"`
}

func (b *Business) StoreRedis() error {
	return config.SetRedisObject("Business:"+b.ID.String(), b, 0)
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	// only admin have access

	db := config.GetDB()

	BID := uuid.New()
	timezone := "Asia/Yangon"
	if input.Timezone != "" {
		timezone = input.Timezone
	}
	dailyHours := input.DefaultDailyHours
	if dailyHours.IsZero() {
		dailyHours = decimal.NewFromInt(8)
	}

	business := Business{
		ID:                BID,
		Name:              input.Name,
		ContactName:       input.ContactName,
		Email:             input.Email,
		Timezone:          timezone,
		DefaultDailyHours: dailyHours,
		IsActive:          utils.NewTrue(),
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&business).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	// every business starts with the core modules enabled
	for _, name := range defaultModuleNames {
		module := Module{BusinessId: BID.String(), Name: name, Actions: "*"}
		if err := tx.WithContext(ctx).Create(&module).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &business, nil
}

func GetBusinessById(ctx context.Context, id string) (*Business, error) {

	var result Business

	exists, err := config.GetRedisObject("Business:"+id, &result)
	if err != nil {
		return nil, err
	}

	if !exists {
		db := config.GetDB()
		// db query
		err := db.WithContext(ctx).Where("id = ?", id).First(&result).Error
		if err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		// caching
		if err := result.StoreRedis(); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

func GetBusiness(ctx context.Context) (*Business, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return GetBusinessById(ctx, businessId)
}
