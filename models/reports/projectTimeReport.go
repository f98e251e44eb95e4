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

// ProjectTime is one project's logged-time totals over the requested range.
// Draft and rejected entries are excluded; the money columns come straight
// from the persisted derived amounts.
type ProjectTime struct {
	ProjectId      int             `json:"project_id"`
	ProjectName    string          `json:"project_name"`
	EntryCount     int             `json:"entry_count"`
	TotalHours     decimal.Decimal `json:"total_hours"`
	BillableHours  decimal.Decimal `json:"billable_hours"`
	CostAmount     decimal.Decimal `json:"cost_amount"`
	BillableAmount decimal.Decimal `json:"billable_amount"`
}

func GetProjectTimeReport(ctx context.Context, fromDate, toDate time.Time) ([]*ProjectTime, error) {
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

	cacheKey := fmt.Sprintf("report:project_time:%s:%s:%s",
		businessId, fromDate.Format("2006-01-02"), toDate.Format("2006-01-02"))
	if reportCacheEnabled() {
		var cached []*ProjectTime
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	db := config.GetDB()

	var results []*ProjectTime
	query := db.WithContext(ctx).Raw(`
		SELECT
			ts.project_id,
			p.name AS project_name,
			COUNT(ts.id) AS entry_count,
			SUM(ts.hours) AS total_hours,
			SUM(CASE WHEN ts.is_billable = 1 THEN ts.hours ELSE 0 END) AS billable_hours,
			SUM(ts.cost_amount) AS cost_amount,
			SUM(ts.billable_amount) AS billable_amount
		FROM timesheets AS ts
		JOIN projects AS p ON p.id = ts.project_id AND p.business_id = ts.business_id
		WHERE
			ts.business_id = ?
			AND ts.date >= ?
			AND ts.date <= ?
			AND ts.status IN ('Submitted', 'Approved', 'Invoiced')
			AND ts.deleted_at IS NULL
		GROUP BY
			ts.project_id,
			p.name
		ORDER BY
			p.name;
	`, businessId, fromDate, toDate)

	if err := query.Scan(&results).Error; err != nil {
		return nil, err
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, results, reportCacheTTL())
	}
	logSlowReport(ctx, "project_time", started, map[string]any{"from": fromDate, "to": toDate})

	return results, nil
}
