package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/utils"
	"github.com/shopspring/decimal"
)

// CapacityConflict describes one over-committed overlap between two
// allocations of the same staff member. OverlapEnd is nil when both ranges
// are open-ended.
type CapacityConflict struct {
	Allocation      *ResourceAllocation `json:"allocation"`
	TotalPercentage decimal.Decimal     `json:"total_percentage"`
	OverlapStart    time.Time           `json:"overlap_start"`
	OverlapEnd      *time.Time          `json:"overlap_end"`
}

// allocationsOverlap reports whether a and b belong to the same staff member
// and their date ranges intersect. An absent end date is treated as unbounded
// for comparison only; no sentinel date is ever stored.
func allocationsOverlap(a, b *ResourceAllocation) bool {
	if a.StaffId != b.StaffId {
		return false
	}
	// a starts after b ends
	if b.EndDate != nil && a.StartDate.After(*b.EndDate) {
		return false
	}
	// b starts after a ends
	if a.EndDate != nil && b.StartDate.After(*a.EndDate) {
		return false
	}
	return true
}

// combinedPercentage is the plain sum of the two allocation percentages: the
// over-commitment figure is not time-weighted, so two 60% allocations that
// share even one day are a 120% conflict for their whole overlap window.
func combinedPercentage(a, b *ResourceAllocation) decimal.Decimal {
	return a.AllocationPercentage.Add(b.AllocationPercentage)
}

// overlapWindow is [max(starts), min(ends)]; the end is nil when both ranges
// are open-ended.
func overlapWindow(a, b *ResourceAllocation) (time.Time, *time.Time) {
	start := a.StartDate
	if b.StartDate.After(start) {
		start = b.StartDate
	}
	var end *time.Time
	switch {
	case a.EndDate == nil:
		end = b.EndDate
	case b.EndDate == nil:
		end = a.EndDate
	case a.EndDate.Before(*b.EndDate):
		end = a.EndDate
	default:
		end = b.EndDate
	}
	return start, end
}

// conflictsAmong runs the conflict scan over an in-memory candidate set:
// every candidate overlapping the target with a combined percentage above
// 100 yields a conflict record. Candidates must already be restricted to the
// countable statuses and must not include the target itself.
func conflictsAmong(target *ResourceAllocation, candidates []*ResourceAllocation) []*CapacityConflict {
	conflicts := []*CapacityConflict{}
	for _, other := range candidates {
		if !allocationsOverlap(target, other) {
			continue
		}
		total := combinedPercentage(target, other)
		if total.LessThanOrEqual(hundred) {
			continue
		}
		start, end := overlapWindow(target, other)
		conflicts = append(conflicts, &CapacityConflict{
			Allocation:      other,
			TotalPercentage: total,
			OverlapStart:    start,
			OverlapEnd:      end,
		})
	}
	return conflicts
}

// CheckCapacityConflicts scans the staff member's other planned/active
// allocations for over-committed overlaps with the given allocation. It is
// advisory and read-only: the caller decides whether to block or warn.
// allocation.ID may be zero for a not-yet-persisted candidate.
func CheckCapacityConflicts(ctx context.Context, allocation *ResourceAllocation) ([]*CapacityConflict, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}
	// persisted rows carry normalized dates; reduce a not-yet-persisted
	// candidate the same way so boundary days compare identically
	allocation = allocation.normalizedForComparison(business.Timezone)

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("business_id = ? AND staff_id = ?", businessId, allocation.StaffId).
		Where("status IN ?", []AllocationStatus{AllocationStatusPlanned, AllocationStatusActive})
	if allocation.ID > 0 {
		dbCtx = dbCtx.Where("id <> ?", allocation.ID)
	}
	// range pre-filter; the precise overlap test runs in conflictsAmong
	if allocation.EndDate != nil {
		dbCtx = dbCtx.Where("start_date <= ?", *allocation.EndDate)
	}
	dbCtx = dbCtx.Where("end_date IS NULL OR end_date >= ?", allocation.StartDate)

	var candidates []*ResourceAllocation
	if err := dbCtx.Find(&candidates).Error; err != nil {
		return nil, err
	}

	return conflictsAmong(allocation, candidates), nil
}
