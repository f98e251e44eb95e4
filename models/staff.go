package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/utils"
	"github.com/shopspring/decimal"
)

// Staff is the person collaborator: the engine only needs identity, nominal
// daily hours and the timesheet-approval capability.
type Staff struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	BusinessId           string          `gorm:"index;not null" json:"business_id" binding:"required"`
	Name                 string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Email                string          `gorm:"index;size:255" json:"email"`
	Password             string          `gorm:"size:255" json:"-"`
	DailyHours           decimal.Decimal `gorm:"type:decimal(20,4);default:8" json:"daily_hours"`
	CanApproveTimesheets *bool           `gorm:"not null;default:false" json:"can_approve_timesheets"`
	IsAdmin              *bool           `gorm:"not null;default:false" json:"is_admin"`
	IsActive             *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStaff struct {
	Name                 string          `json:"name" binding:"required"`
	Email                string          `json:"email"`
	DailyHours           decimal.Decimal `json:"daily_hours"`
	CanApproveTimesheets *bool           `json:"can_approve_timesheets"`
}

func (s Staff) GetBusinessId() string {
	return s.BusinessId
}

func (input *NewStaff) validate(ctx context.Context, businessId string, id int) error {
	if input.Email != "" {
		if !utils.IsValidEmail(input.Email) {
			return errors.New("invalid email")
		}
		if err := utils.ValidateUnique[Staff](ctx, businessId, "email", input.Email, id); err != nil {
			return err
		}
	}
	if input.DailyHours.IsNegative() {
		return errors.New("daily hours must not be negative")
	}
	return nil
}

func CreateStaff(ctx context.Context, input *NewStaff) (*Staff, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}
	dailyHours := input.DailyHours
	if dailyHours.IsZero() {
		dailyHours = business.DefaultDailyHours
	}
	canApprove := utils.DereferencePtr(input.CanApproveTimesheets)

	staff := Staff{
		BusinessId:           businessId,
		Name:                 input.Name,
		Email:                input.Email,
		DailyHours:           dailyHours,
		CanApproveTimesheets: &canApprove,
		IsAdmin:              utils.NewFalse(),
		IsActive:             utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&staff).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Staff](businessId); err != nil {
		return nil, err
	}
	return &staff, nil
}

func GetStaff(ctx context.Context, id int) (*Staff, error) {
	return GetResource[Staff](ctx, id)
}

func GetAllStaff(ctx context.Context) ([]*Staff, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	// first try redis cache
	results, err := utils.RetrieveRedisList[Staff](businessId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[Staff](ctx, businessId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[Staff](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// canApproveTimesheetsFor implements the approval authorization contract:
// the approver must be the project's designated manager or hold the
// timesheet-approval capability. No role-name matching.
func (s *Staff) canApproveTimesheetsFor(project *Project) bool {
	if project != nil && project.ManagerId == s.ID {
		return true
	}
	return utils.DereferencePtr(s.CanApproveTimesheets)
}
