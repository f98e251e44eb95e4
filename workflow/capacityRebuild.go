package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/models"
	"github.com/mmdatafocus/projects_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("piti-projects")

// RebuildCapacityForStaff resynchronizes one staff member's capacity ledger
// over [from, to] in a single transaction. Safe to run at any time; the
// per-staff advisory lock serializes it against live mutations.
func RebuildCapacityForStaff(tx *gorm.DB, logger *logrus.Logger, ctx context.Context, businessId string, staffId int, from, to time.Time) error {
	if tx == nil {
		return fmt.Errorf("rebuild capacity: tx is nil")
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	if businessId == "" || staffId <= 0 {
		return fmt.Errorf("rebuild capacity: invalid scope")
	}
	if to.Before(from) {
		return fmt.Errorf("rebuild capacity: inverted date range")
	}

	ctx, span := tracer.Start(ctx, "capacity.rebuild")
	defer span.End()

	logger.WithFields(logrus.Fields{
		"business_id": businessId,
		"staff_id":    staffId,
		"from":        from.Format(time.RFC3339),
		"to":          to.Format(time.RFC3339),
	}).Info("capacity.rebuild.start")

	if err := models.RebuildStaffCapacityTx(tx, ctx, businessId, staffId, from, to); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"business_id": businessId,
		"staff_id":    staffId,
	}).Info("capacity.rebuild.end")

	return nil
}

// RebuildCapacityForBusiness rebuilds every active staff member's ledger over
// [from, to]. Each staff member gets their own transaction so one failure
// does not roll back the rest; the first error is returned after the loop
// finishes.
func RebuildCapacityForBusiness(ctx context.Context, from, to time.Time) error {
	logger := config.GetLogger()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return fmt.Errorf("rebuild capacity: business id is required")
	}

	// best-effort cross-instance gate; the per-staff advisory locks are the
	// real serialization
	if err := utils.BusinessLock(ctx, businessId, "capacity_rebuild", "workflow", "RebuildCapacityForBusiness"); err != nil {
		return err
	}

	staff, err := models.GetAllStaff(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	rebuilt := 0
	for _, s := range staff {
		if !utils.DereferencePtr(s.IsActive, true) {
			continue
		}
		tx := config.GetDB().Begin()
		if err := RebuildCapacityForStaff(tx, logger, ctx, businessId, s.ID, from, to); err != nil {
			tx.Rollback()
			config.LogError(logger, "workflow", "RebuildCapacityForBusiness", "rebuild failed for staff", s.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := tx.Commit().Error; err != nil {
			config.LogError(logger, "workflow", "RebuildCapacityForBusiness", "commit failed for staff", s.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		rebuilt++
	}

	logger.WithFields(logrus.Fields{
		"business_id": businessId,
		"staff_count": len(staff),
		"rebuilt":     rebuilt,
	}).Info("capacity.rebuild.business_done")

	return firstErr
}
