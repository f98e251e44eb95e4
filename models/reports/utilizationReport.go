package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/models"
	"github.com/mmdatafocus/projects_backend/utils"
	"github.com/shopspring/decimal"
)

// StaffUtilization is one staff member's capacity totals over the requested
// range, summed from the capacity ledger (per-day truth, not the allocation
// accessors' calendar approximations).
type StaffUtilization struct {
	StaffId               int             `json:"staff_id"`
	StaffName             string          `json:"staff_name"`
	AvailableHours        decimal.Decimal `json:"available_hours"`
	AllocatedHours        decimal.Decimal `json:"allocated_hours"`
	UtilizedHours         decimal.Decimal `json:"utilized_hours"`
	WorkingDays           int             `json:"working_days"`
	OverallocatedDays     int             `json:"overallocated_days"`
	RemainingHours        decimal.Decimal `json:"remaining_hours"`
	UtilizationPercentage decimal.Decimal `json:"utilization_percentage"`
	AllocationPercentage  decimal.Decimal `json:"allocation_percentage"`
}

var hundred = decimal.NewFromInt(100)

// reportDate matches the ledger's storage convention: the calendar date in
// the business timezone, kept as midnight UTC.
func reportDate(t time.Time, timezone string) time.Time {
	d, err := utils.ConvertToDate(t, timezone)
	if err != nil {
		d = t
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func GetUtilizationReport(ctx context.Context, fromDate, toDate time.Time) ([]*StaffUtilization, error) {
	started := time.Now()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	business, err := models.GetBusiness(ctx)
	if err != nil {
		return nil, errors.New("business id is required")
	}
	fromDate = reportDate(fromDate, business.Timezone)
	toDate = reportDate(toDate, business.Timezone)

	cacheKey := fmt.Sprintf("report:utilization:%s:%s:%s",
		businessId, fromDate.Format("2006-01-02"), toDate.Format("2006-01-02"))
	if reportCacheEnabled() {
		var cached []*StaffUtilization
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	db := config.GetDB()

	var results []*StaffUtilization
	query := db.WithContext(ctx).Raw(`
		SELECT
			rc.staff_id,
			s.name AS staff_name,
			SUM(rc.available_hours) AS available_hours,
			SUM(rc.allocated_hours) AS allocated_hours,
			SUM(rc.utilized_hours) AS utilized_hours,
			SUM(CASE WHEN rc.is_working_day = 1 THEN 1 ELSE 0 END) AS working_days,
			SUM(CASE WHEN rc.allocated_hours > rc.available_hours THEN 1 ELSE 0 END) AS overallocated_days
		FROM resource_capacities AS rc
		JOIN staffs AS s ON s.id = rc.staff_id AND s.business_id = rc.business_id
		WHERE
			rc.business_id = ?
			AND rc.date >= ?
			AND rc.date <= ?
		GROUP BY
			rc.staff_id,
			s.name
		ORDER BY
			s.name;
	`, businessId, fromDate, toDate)

	if err := query.Scan(&results).Error; err != nil {
		return nil, err
	}

	for _, row := range results {
		remaining := row.AvailableHours.Sub(row.AllocatedHours)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		row.RemainingHours = remaining
		if row.AvailableHours.IsPositive() {
			row.UtilizationPercentage = row.UtilizedHours.Div(row.AvailableHours).Mul(hundred)
			row.AllocationPercentage = row.AllocatedHours.Div(row.AvailableHours).Mul(hundred)
		}
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, results, reportCacheTTL())
	}
	logSlowReport(ctx, "utilization", started, map[string]any{"from": fromDate, "to": toDate})

	return results, nil
}
