package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"gorm.io/gorm"
)

// Scope validation must reject bad input before any database work happens;
// these run without a DB connection.
func TestRebuildCapacityForStaffScopeValidation(t *testing.T) {
	ctx := context.Background()
	logger := config.GetLogger()
	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	if err := RebuildCapacityForStaff(nil, logger, ctx, "biz", 1, from, to); err == nil {
		t.Fatal("nil tx must be rejected")
	}

	tx := &gorm.DB{}
	if err := RebuildCapacityForStaff(tx, logger, ctx, "", 1, from, to); err == nil {
		t.Fatal("empty business id must be rejected")
	}
	if err := RebuildCapacityForStaff(tx, logger, ctx, "biz", 0, from, to); err == nil {
		t.Fatal("non-positive staff id must be rejected")
	}
	if err := RebuildCapacityForStaff(tx, logger, ctx, "biz", 1, to, from); err == nil {
		t.Fatal("inverted date range must be rejected")
	}
}

func TestRebuildCapacityForBusinessRequiresBusinessContext(t *testing.T) {
	if err := RebuildCapacityForBusiness(context.Background(), time.Now(), time.Now()); err == nil {
		t.Fatal("missing business id in context must be rejected")
	}
}
