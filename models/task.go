package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/utils"
)

// Task belongs to the optional Tasks module. Allocations and timesheets carry a
// nullable task reference; resolveTask returns "no task" uniformly whether the
// reference is nil, the record is gone, or the module is not installed.
type Task struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id" binding:"required"`
	ProjectId  int       `gorm:"index;not null" json:"project_id" binding:"required"`
	Name       string    `gorm:"size:255;not null" json:"name" binding:"required"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTask struct {
	ProjectId int    `json:"project_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
}

func (t Task) GetBusinessId() string {
	return t.BusinessId
}

func CreateTask(ctx context.Context, input *NewTask) (*Task, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !IsModuleEnabled(ctx, businessId, ModuleNameTasks) {
		return nil, errors.New("tasks module is not enabled")
	}
	if err := utils.ValidateResourceId[Project](ctx, businessId, input.ProjectId); err != nil {
		return nil, errors.New("project not found")
	}

	task := Task{
		BusinessId: businessId,
		ProjectId:  input.ProjectId,
		Name:       input.Name,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// resolveTask degrades to (nil, nil) when taskId is nil, the Tasks module is
// absent, or the row no longer exists.
func resolveTask(ctx context.Context, businessId string, taskId *int) (*Task, error) {
	if taskId == nil || *taskId == 0 {
		return nil, nil
	}
	if !IsModuleEnabled(ctx, businessId, ModuleNameTasks) {
		return nil, nil
	}
	task, err := utils.FetchModel[Task](ctx, businessId, *taskId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

// validateTaskRef checks the optional task reference on allocation/timesheet
// input. When the Tasks module is absent the reference is ignored (returns
// nil id) rather than rejected.
func validateTaskRef(ctx context.Context, businessId string, projectId int, taskId *int) (*int, error) {
	if taskId == nil || *taskId == 0 {
		return nil, nil
	}
	if !IsModuleEnabled(ctx, businessId, ModuleNameTasks) {
		return nil, nil
	}
	count, err := utils.ResourceCountWhere[Task](ctx, businessId, "id = ? AND project_id = ?", *taskId, projectId)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errors.New("task not found")
	}
	return taskId, nil
}
