package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/utils"
)

// ModuleNameTasks gates the optional task relationship: when a business does not
// have this module, task accessors resolve to "no task" instead of failing.
const ModuleNameTasks = "Tasks"

var defaultModuleNames = []string{"Projects", "Allocations", "Timesheets"}

type Module struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id" binding:"required"`
	Name       string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Actions    string    `gorm:"not null" json:"action" binding:"required"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m Module) GetBusinessId() string {
	return m.BusinessId
}

/*
cache
	ModuleEnabled:$businessId:$name
*/

// IsModuleEnabled reports whether the named module is installed for the business.
// Errors degrade to false so callers treat "module table unreachable" and
// "module absent" identically.
func IsModuleEnabled(ctx context.Context, businessId string, name string) bool {
	cacheKey := fmt.Sprintf("ModuleEnabled:%s:%s", businessId, name)
	var enabled bool
	exists, err := config.GetRedisObject(cacheKey, &enabled)
	if err == nil && exists {
		return enabled
	}

	count, err := utils.ResourceCountWhere[Module](ctx, businessId, "name = ?", name)
	if err != nil {
		return false
	}
	enabled = count > 0
	_ = config.SetRedisObject(cacheKey, &enabled, utils.GetCacheLifespan())
	return enabled
}

func EnableModule(ctx context.Context, businessId string, name string) error {
	count, err := utils.ResourceCountWhere[Module](ctx, businessId, "name = ?", name)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	db := config.GetDB()
	module := Module{BusinessId: businessId, Name: name, Actions: "*"}
	if err := db.WithContext(ctx).Create(&module).Error; err != nil {
		return err
	}
	return config.RemoveRedisKey(fmt.Sprintf("ModuleEnabled:%s:%s", businessId, name))
}
