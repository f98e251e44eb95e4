package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/utils"
)

// Project is the owning collaborator for allocations and timesheets. The
// engine needs its identity and designated manager (timesheet approver).
type Project struct {
	ID         int           `gorm:"primary_key" json:"id"`
	BusinessId string        `gorm:"index;not null" json:"business_id" binding:"required"`
	Name       string        `gorm:"index;size:255;not null" json:"name" binding:"required"`
	ManagerId  int           `gorm:"index" json:"manager_id"`
	Status     ProjectStatus `gorm:"type:enum('Active', 'Archived');default:Active" json:"status"`
	CreatedAt  time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProject struct {
	Name      string `json:"name" binding:"required"`
	ManagerId int    `json:"manager_id"`
}

func (p Project) GetBusinessId() string {
	return p.BusinessId
}

func (input *NewProject) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateUnique[Project](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if input.ManagerId > 0 {
		if err := utils.ValidateResourceId[Staff](ctx, businessId, input.ManagerId); err != nil {
			return errors.New("manager not found")
		}
	}
	return nil
}

func CreateProject(ctx context.Context, input *NewProject) (*Project, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	project := Project{
		BusinessId: businessId,
		Name:       input.Name,
		ManagerId:  input.ManagerId,
		Status:     ProjectStatusActive,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Project](businessId); err != nil {
		return nil, err
	}
	return &project, nil
}

func GetProject(ctx context.Context, id int) (*Project, error) {
	return GetResource[Project](ctx, id)
}

func GetProjects(ctx context.Context) ([]*Project, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	results, err := utils.RetrieveRedisList[Project](businessId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[Project](ctx, businessId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[Project](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
