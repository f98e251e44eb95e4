package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recompute horizon for open-ended allocations: capacity rows are only
// maintained this far ahead of the mutation date. Nightly rebuilds extend
// the window as time passes.
const allocationRecomputeHorizonDays = 370

// InvalidStateError reports a lifecycle transition attempted from a state
// that does not allow it.
type InvalidStateError struct {
	Entity string
	From   string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s cannot be %s from status %s", e.Entity, e.Op, e.From)
}

type ResourceAllocation struct {
	ID                   int              `gorm:"primary_key" json:"id"`
	BusinessId           string           `gorm:"index;not null" json:"business_id" binding:"required"`
	StaffId              int              `gorm:"index;not null" json:"staff_id" binding:"required"`
	ProjectId            int              `gorm:"index;not null" json:"project_id" binding:"required"`
	TaskId               *int             `gorm:"index" json:"task_id"`
	Phase                string           `gorm:"size:100" json:"phase"`
	AllocationNumber     string           `gorm:"size:255;not null" json:"allocation_number"`
	SequenceNo           decimal.Decimal  `gorm:"type:decimal(15);not null" json:"sequence_no"`
	StartDate            time.Time        `gorm:"not null;index" json:"start_date" binding:"required"`
	EndDate              *time.Time       `gorm:"index" json:"end_date"`
	AllocationPercentage decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"allocation_percentage"`
	HoursPerDay          decimal.Decimal  `gorm:"type:decimal(20,4);default:8" json:"hours_per_day"`
	Status               AllocationStatus `gorm:"type:enum('Planned', 'Active', 'Completed', 'Cancelled');default:Planned" json:"status"`
	IsConfirmed          *bool            `gorm:"not null;default:false" json:"is_confirmed"`
	IsBillable           *bool            `gorm:"not null;default:true" json:"is_billable"`
	Notes                string           `gorm:"type:text" json:"notes"`
	CreatedAt            time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt   `gorm:"index" json:"-"`
}

type NewResourceAllocation struct {
	StaffId              int             `json:"staff_id" binding:"required"`
	ProjectId            int             `json:"project_id" binding:"required"`
	TaskId               *int            `json:"task_id"`
	Phase                string          `json:"phase"`
	StartDate            time.Time       `json:"start_date" binding:"required"`
	EndDate              *time.Time      `json:"end_date"`
	AllocationPercentage decimal.Decimal `json:"allocation_percentage" binding:"required"`
	HoursPerDay          decimal.Decimal `json:"hours_per_day"`
	IsConfirmed          *bool           `json:"is_confirmed"`
	IsBillable           *bool           `json:"is_billable"`
	Notes                string          `json:"notes"`
}

func (a ResourceAllocation) GetBusinessId() string {
	return a.BusinessId
}

func (a ResourceAllocation) GetId() int {
	return a.ID
}

/* derived accessors (no stored state) */

var hundred = decimal.NewFromInt(100)

// DailyAllocatedHours is hours_per_day scaled by the allocation percentage.
func (a *ResourceAllocation) DailyAllocatedHours() decimal.Decimal {
	return a.HoursPerDay.Mul(a.AllocationPercentage).Div(hundred)
}

// WeeklyAllocatedHours and MonthlyAllocatedHours use a fixed-calendar
// approximation (5 working days a week, 22 a month); they are planning
// estimates, not the capacity ledger's per-day truth.
func (a *ResourceAllocation) WeeklyAllocatedHours() decimal.Decimal {
	return a.DailyAllocatedHours().Mul(decimal.NewFromInt(5))
}

func (a *ResourceAllocation) MonthlyAllocatedHours() decimal.Decimal {
	return a.DailyAllocatedHours().Mul(decimal.NewFromInt(22))
}

// TotalAllocatedHours multiplies daily hours by the Mon-Fri weekday count of
// [start_date, end_date]. Weekends are excluded by calendar rule regardless of
// capacity-row overrides. Zero for open-ended allocations.
func (a *ResourceAllocation) TotalAllocatedHours() decimal.Decimal {
	if a.EndDate == nil {
		return decimal.Zero
	}
	return a.DailyAllocatedHours().Mul(decimal.NewFromInt(int64(countWeekdays(a.StartDate, *a.EndDate))))
}

// covers reports whether the allocation's range includes date
// (absent end date = unbounded).
func (a *ResourceAllocation) covers(date time.Time) bool {
	if date.Before(a.StartDate) {
		return false
	}
	return a.EndDate == nil || !date.After(*a.EndDate)
}

func (a *ResourceAllocation) isCountedInCapacity() bool {
	return a.Status == AllocationStatusPlanned || a.Status == AllocationStatusActive
}

func countWeekdays(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if isWeekday(d) {
			count++
		}
	}
	return count
}

func isWeekday(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

/* store operations */

// validate input for both create & update. (id = 0 for create)
func (input *NewResourceAllocation) validate(ctx context.Context, businessId string, _ int) error {
	// exists staff
	if err := utils.ValidateResourceId[Staff](ctx, businessId, input.StaffId); err != nil {
		return errors.New("staff not found")
	}

	// exists project
	if err := utils.ValidateResourceId[Project](ctx, businessId, input.ProjectId); err != nil {
		return errors.New("project not found")
	}

	// percentage above zero; deliberately no upper cap at the single-row level,
	// over-commitment is a derived condition across overlapping rows
	if !input.AllocationPercentage.IsPositive() {
		return errors.New("allocation percentage must be greater than zero")
	}

	if input.HoursPerDay.IsNegative() {
		return errors.New("hours per day must be greater than zero")
	}

	if input.EndDate != nil && input.EndDate.Before(input.StartDate) {
		return errors.New("end date must not be before start date")
	}

	return nil
}

func CreateResourceAllocation(ctx context.Context, input *NewResourceAllocation) (*ResourceAllocation, error) {

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
	taskId, err := validateTaskRef(ctx, businessId, input.ProjectId, input.TaskId)
	if err != nil {
		return nil, err
	}

	hoursPerDay := input.HoursPerDay
	if hoursPerDay.IsZero() {
		staff, err := GetStaff(ctx, input.StaffId)
		if err != nil {
			return nil, err
		}
		hoursPerDay = staff.DailyHours
	}

	startDate := normalizeDate(input.StartDate, business.Timezone)
	var endDate *time.Time
	if input.EndDate != nil {
		d := normalizeDate(*input.EndDate, business.Timezone)
		endDate = &d
	}

	isConfirmed := utils.DereferencePtr(input.IsConfirmed)
	status := AllocationStatusPlanned
	if isConfirmed {
		status = AllocationStatusActive
	}

	allocation := ResourceAllocation{
		BusinessId:           businessId,
		StaffId:              input.StaffId,
		ProjectId:            input.ProjectId,
		TaskId:               taskId,
		Phase:                input.Phase,
		StartDate:            startDate,
		EndDate:              endDate,
		AllocationPercentage: input.AllocationPercentage,
		HoursPerDay:          hoursPerDay,
		Status:               status,
		IsConfirmed:          &isConfirmed,
		IsBillable:           utils.NewTrue(),
		Notes:                input.Notes,
	}
	if input.IsBillable != nil {
		allocation.IsBillable = input.IsBillable
	}

	seqNo, err := utils.GetSequence[ResourceAllocation](ctx, businessId)
	if err != nil {
		return nil, err
	}
	allocation.SequenceNo = decimal.NewFromInt(seqNo)
	allocation.AllocationNumber = "RA-" + fmt.Sprint(seqNo)

	err = withCapacityLock(businessId, []int{allocation.StaffId}, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&allocation).Error; err != nil {
			return err
		}
		// capacity rows are a cache of this table; refresh the touched range
		// in the same transaction, serialized against other writers
		from, to := allocation.recomputeWindow(time.Now().UTC())
		return recomputeAllocatedRangeTx(tx, ctx, businessId, allocation.StaffId, from, to)
	})
	if err != nil {
		return nil, err
	}

	return &allocation, nil
}

func UpdateResourceAllocation(ctx context.Context, id int, input *NewResourceAllocation) (*ResourceAllocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	beforeUpdate, err := utils.FetchModel[ResourceAllocation](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if beforeUpdate.Status == AllocationStatusCompleted || beforeUpdate.Status == AllocationStatusCancelled {
		return nil, &InvalidStateError{Entity: "allocation", From: string(beforeUpdate.Status), Op: "updated"}
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}
	taskId, err := validateTaskRef(ctx, businessId, input.ProjectId, input.TaskId)
	if err != nil {
		return nil, err
	}

	hoursPerDay := input.HoursPerDay
	if hoursPerDay.IsZero() {
		hoursPerDay = beforeUpdate.HoursPerDay
	}

	startDate := normalizeDate(input.StartDate, business.Timezone)
	var endDate *time.Time
	if input.EndDate != nil {
		d := normalizeDate(*input.EndDate, business.Timezone)
		endDate = &d
	}

	update := ResourceAllocation{
		ID:         id,
		BusinessId: businessId,
	}

	// a reassignment touches two ledgers; lock both staff members
	err = withCapacityLock(businessId, []int{beforeUpdate.StaffId, input.StaffId}, func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).Model(&update).Updates(map[string]interface{}{
			"StaffId":              input.StaffId,
			"ProjectId":            input.ProjectId,
			"TaskId":               taskId,
			"Phase":                input.Phase,
			"StartDate":            startDate,
			"EndDate":              endDate,
			"AllocationPercentage": input.AllocationPercentage,
			"HoursPerDay":          hoursPerDay,
			"Notes":                input.Notes,
		}).Error
		if err != nil {
			return err
		}

		// both the old and the new range can change sums; refresh their union,
		// covering staff reassignment as well
		now := time.Now().UTC()
		oldFrom, oldTo := beforeUpdate.recomputeWindow(now)
		if err := recomputeAllocatedRangeTx(tx, ctx, businessId, beforeUpdate.StaffId, oldFrom, oldTo); err != nil {
			return err
		}
		after := ResourceAllocation{StartDate: startDate, EndDate: endDate}
		newFrom, newTo := after.recomputeWindow(now)
		return recomputeAllocatedRangeTx(tx, ctx, businessId, input.StaffId, newFrom, newTo)
	})
	if err != nil {
		return nil, err
	}

	return utils.FetchModel[ResourceAllocation](ctx, businessId, id)
}

// ConfirmResourceAllocation moves a planned allocation to active.
func ConfirmResourceAllocation(ctx context.Context, id int) (*ResourceAllocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	allocation, err := utils.FetchModel[ResourceAllocation](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if allocation.Status != AllocationStatusPlanned {
		return nil, &InvalidStateError{Entity: "allocation", From: string(allocation.Status), Op: "confirmed"}
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(allocation).Updates(map[string]interface{}{
		"Status":      AllocationStatusActive,
		"IsConfirmed": true,
	}).Error
	if err != nil {
		return nil, err
	}
	allocation.Status = AllocationStatusActive
	allocation.IsConfirmed = utils.NewTrue()
	return allocation, nil
}

// CancelResourceAllocation cancels any non-completed allocation and releases
// its capacity.
func CancelResourceAllocation(ctx context.Context, id int) (*ResourceAllocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	allocation, err := utils.FetchModel[ResourceAllocation](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if allocation.Status == AllocationStatusCompleted {
		return nil, &InvalidStateError{Entity: "allocation", From: string(allocation.Status), Op: "cancelled"}
	}

	err = withCapacityLock(businessId, []int{allocation.StaffId}, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Model(allocation).Update("Status", AllocationStatusCancelled).Error; err != nil {
			return err
		}
		from, to := allocation.recomputeWindow(time.Now().UTC())
		return recomputeAllocatedRangeTx(tx, ctx, businessId, allocation.StaffId, from, to)
	})
	if err != nil {
		return nil, err
	}

	allocation.Status = AllocationStatusCancelled
	return allocation, nil
}

func DeleteResourceAllocation(ctx context.Context, id int) (*ResourceAllocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	allocation, err := utils.FetchModel[ResourceAllocation](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	err = withCapacityLock(businessId, []int{allocation.StaffId}, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Delete(allocation).Error; err != nil {
			return err
		}
		from, to := allocation.recomputeWindow(time.Now().UTC())
		return recomputeAllocatedRangeTx(tx, ctx, businessId, allocation.StaffId, from, to)
	})
	if err != nil {
		return nil, err
	}

	return allocation, nil
}

func GetResourceAllocation(ctx context.Context, id int) (*ResourceAllocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[ResourceAllocation](ctx, businessId, id)
}

func GetResourceAllocations(ctx context.Context, staffId *int, projectId *int) ([]*ResourceAllocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if staffId != nil && *staffId > 0 {
		dbCtx = dbCtx.Where("staff_id = ?", *staffId)
	}
	if projectId != nil && *projectId > 0 {
		dbCtx = dbCtx.Where("project_id = ?", *projectId)
	}
	var results []*ResourceAllocation
	if err := dbCtx.Order("start_date").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetTask resolves the optional task reference; see resolveTask for the
// degradation contract.
func (a *ResourceAllocation) GetTask(ctx context.Context) (*Task, error) {
	return resolveTask(ctx, a.BusinessId, a.TaskId)
}

// normalizedForComparison returns a copy with both dates reduced to their
// business-calendar days. Used for candidates that never went through
// create/update, so datetime-bearing input compares like stored rows.
func (a *ResourceAllocation) normalizedForComparison(timezone string) *ResourceAllocation {
	n := *a
	n.StartDate = normalizeDate(a.StartDate, timezone)
	if a.EndDate != nil {
		d := normalizeDate(*a.EndDate, timezone)
		n.EndDate = &d
	}
	return &n
}

// recomputeWindow is the capacity date range a mutation of this allocation
// touches: the allocation's own range, with an open end capped to the horizon.
func (a *ResourceAllocation) recomputeWindow(now time.Time) (time.Time, time.Time) {
	horizon := dateOnly(now).AddDate(0, 0, allocationRecomputeHorizonDays)
	if a.EndDate != nil && a.EndDate.Before(horizon) {
		return a.StartDate, *a.EndDate
	}
	return a.StartDate, horizon
}

// normalizeDate reduces t to its calendar date in the business timezone,
// stored as midnight UTC so date comparisons are exact.
func normalizeDate(t time.Time, timezone string) time.Time {
	d, err := utils.ConvertToDate(t, timezone)
	if err != nil {
		d = t
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
