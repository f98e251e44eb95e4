package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/projects_backend/config"
	"github.com/mmdatafocus/projects_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ResourceCapacity is one person-day of the capacity ledger.
//
// Grain: (business_id, staff_id, date).
// allocated_hours and utilized_hours are caches of live aggregations over
// resource_allocations and timesheets; they are rebuilt by the recompute
// functions and must never be hand-edited.
type ResourceCapacity struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null;uniqueIndex:idx_rc_staff_date,priority:1" json:"business_id"`
	StaffId        int             `gorm:"not null;uniqueIndex:idx_rc_staff_date,priority:2" json:"staff_id"`
	Date           time.Time       `gorm:"not null;uniqueIndex:idx_rc_staff_date,priority:3" json:"date"`
	AvailableHours decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_hours"`
	AllocatedHours decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"allocated_hours"`
	UtilizedHours  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"utilized_hours"`
	IsWorkingDay   *bool           `gorm:"not null;default:true" json:"is_working_day"`
	LeaveType      *LeaveType      `gorm:"type:enum('Annual', 'Sick', 'Unpaid', 'Holiday', 'Other');default:null" json:"leave_type"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c ResourceCapacity) GetBusinessId() string {
	return c.BusinessId
}

/* derived accessors */

func (c *ResourceCapacity) RemainingHours() decimal.Decimal {
	remaining := c.AvailableHours.Sub(c.AllocatedHours)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

func (c *ResourceCapacity) UtilizationPercentage() decimal.Decimal {
	if c.AvailableHours.IsZero() {
		return decimal.Zero
	}
	return c.UtilizedHours.Div(c.AvailableHours).Mul(hundred)
}

func (c *ResourceCapacity) AllocationPercentageOfCapacity() decimal.Decimal {
	if c.AvailableHours.IsZero() {
		return decimal.Zero
	}
	return c.AllocatedHours.Div(c.AvailableHours).Mul(hundred)
}

func (c *ResourceCapacity) IsOverallocated() bool {
	return c.AllocatedHours.GreaterThan(c.AvailableHours)
}

func (c *ResourceCapacity) IsFullyAllocated() bool {
	return c.AllocatedHours.GreaterThanOrEqual(c.AvailableHours)
}

/* overrides used by the HR leave/holiday collaborator */

func (c *ResourceCapacity) MarkAsLeave(leaveType LeaveType) {
	c.IsWorkingDay = utils.NewFalse()
	c.AvailableHours = decimal.Zero
	c.LeaveType = &leaveType
}

func (c *ResourceCapacity) MarkAsWorkingDay(hours decimal.Decimal) {
	c.IsWorkingDay = utils.NewTrue()
	c.AvailableHours = hours
	c.LeaveType = nil
}

// capacityDefaults is the generated shape of a fresh row: nominal hours on
// weekdays, a zero-hour non-working day on weekends. Holiday calendars and
// approved leave arrive later through the explicit overrides.
func capacityDefaults(date time.Time, nominalHours decimal.Decimal) (decimal.Decimal, bool) {
	if isWeekday(date) {
		return nominalHours, true
	}
	return decimal.Zero, false
}

/* recompute serialization */

// Capacity recomputes are read-modify-write on the cached columns; serialize
// them per staff member with a MySQL advisory lock. GET_LOCK is
// connection-scoped, so this must run on the same *gorm.DB as the recompute
// transaction.
func acquireCapacityLock(tx *gorm.DB, businessId string, staffId int) error {
	lockName := fmt.Sprintf("capacity:%s:%d", businessId, staffId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire capacity lock for staff_id=%d", staffId)
	}
	return nil
}

func releaseCapacityLock(tx *gorm.DB, businessId string, staffId int) {
	lockName := fmt.Sprintf("capacity:%s:%d", businessId, staffId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// withCapacityLock runs fn in one transaction holding the advisory locks for
// the given staff members. COMMIT does not release GET_LOCK, it stays with the
// pooled connection, so the deferred releases must fire inside the transaction
// callback while the connection is still bound to the live transaction.
func withCapacityLock(businessId string, staffIds []int, fn func(tx *gorm.DB) error) error {
	return config.GetDB().Transaction(func(tx *gorm.DB) error {
		for _, staffId := range capacityLockOrder(staffIds) {
			if err := acquireCapacityLock(tx, businessId, staffId); err != nil {
				return err
			}
			defer releaseCapacityLock(tx, businessId, staffId)
		}
		return fn(tx)
	})
}

// capacityLockOrder dedupes and sorts so every transaction takes multi-staff
// locks in the same sequence.
func capacityLockOrder(staffIds []int) []int {
	ids := utils.UniqueSlice(staffIds)
	sort.Ints(ids)
	return ids
}

/* ledger operations */

// GenerateCapacityForStaff lazily creates capacity rows for every date in
// [from, to]. Idempotent: existing rows (including manual leave overrides)
// are never touched.
func GenerateCapacityForStaff(ctx context.Context, staffId int, from, to time.Time) error {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Staff](ctx, businessId, staffId); err != nil {
		return errors.New("staff not found")
	}
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return err
	}
	from = normalizeDate(from, business.Timezone)
	to = normalizeDate(to, business.Timezone)
	if to.Before(from) {
		return errors.New("end date must not be before start date")
	}

	return withCapacityLock(businessId, []int{staffId}, func(tx *gorm.DB) error {
		return generateRangeTx(tx, ctx, businessId, staffId, from, to)
	})
}

func generateRangeTx(tx *gorm.DB, ctx context.Context, businessId string, staffId int, from, to time.Time) error {
	nominal, err := nominalDailyHours(tx, ctx, businessId, staffId)
	if err != nil {
		return err
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		available, working := capacityDefaults(d, nominal)
		row := ResourceCapacity{
			BusinessId:     businessId,
			StaffId:        staffId,
			Date:           d,
			AvailableHours: available,
			IsWorkingDay:   &working,
		}
		// firstOrNew semantics: create only when absent
		err := tx.WithContext(ctx).
			Where("business_id = ? AND staff_id = ? AND date = ?", businessId, staffId, d).
			FirstOrCreate(&row).Error
		if err != nil {
			// a concurrent generator may win the insert race; the unique
			// index makes that loss harmless
			var mysqlErr *mysqldriver.MySQLError
			if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
				continue
			}
			return err
		}
	}
	return nil
}

func nominalDailyHours(tx *gorm.DB, ctx context.Context, businessId string, staffId int) (decimal.Decimal, error) {
	var staff Staff
	if err := tx.WithContext(ctx).Where("business_id = ?", businessId).First(&staff, staffId).Error; err != nil {
		return decimal.Zero, utils.ErrorRecordNotFound
	}
	if staff.DailyHours.IsPositive() {
		return staff.DailyHours, nil
	}
	return decimal.NewFromInt(8), nil
}

// RecomputeAllocatedHours resynchronizes the allocated_hours cache for one
// person-day: the row is created with defaults if absent, then set to the sum
// of daily allocated hours over every planned/active allocation covering the
// date.
func RecomputeAllocatedHours(ctx context.Context, staffId int, date time.Time) error {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return err
	}
	date = normalizeDate(date, business.Timezone)

	return withCapacityLock(businessId, []int{staffId}, func(tx *gorm.DB) error {
		return recomputeAllocatedRangeTx(tx, ctx, businessId, staffId, date, date)
	})
}

// recomputeAllocatedRangeTx rebuilds allocated_hours for every date in
// [from, to] inside the caller's transaction. Rows are created with defaults
// where missing. Mutation paths for allocations must call this over the
// touched range in the same transaction; that is the materialized-view
// contract keeping the cache equal to the live sum.
func recomputeAllocatedRangeTx(tx *gorm.DB, ctx context.Context, businessId string, staffId int, from, to time.Time) error {
	if to.Before(from) {
		return nil
	}
	if err := generateRangeTx(tx, ctx, businessId, staffId, from, to); err != nil {
		return err
	}

	var allocations []*ResourceAllocation
	dbCtx := tx.WithContext(ctx).
		Where("business_id = ? AND staff_id = ?", businessId, staffId).
		Where("status IN ?", []AllocationStatus{AllocationStatusPlanned, AllocationStatusActive}).
		Where("start_date <= ?", to).
		Where("end_date IS NULL OR end_date >= ?", from)
	if err := dbCtx.Find(&allocations).Error; err != nil {
		return err
	}

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		allocated := decimal.Zero
		for _, a := range allocations {
			if a.covers(d) {
				allocated = allocated.Add(a.DailyAllocatedHours())
			}
		}
		err := tx.WithContext(ctx).Model(&ResourceCapacity{}).
			Where("business_id = ? AND staff_id = ? AND date = ?", businessId, staffId, d).
			Update("allocated_hours", allocated).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// RecomputeUtilizedHours resynchronizes the utilized_hours cache for one
// person-day from submitted, approved and invoiced timesheets. Silently
// no-ops when no
// capacity row exists yet; callers generate first.
func RecomputeUtilizedHours(ctx context.Context, staffId int, date time.Time) error {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return err
	}
	date = normalizeDate(date, business.Timezone)

	return withCapacityLock(businessId, []int{staffId}, func(tx *gorm.DB) error {
		return recomputeUtilizedTx(tx, ctx, businessId, staffId, date)
	})
}

func recomputeUtilizedTx(tx *gorm.DB, ctx context.Context, businessId string, staffId int, date time.Time) error {
	var count int64
	err := tx.WithContext(ctx).Model(&ResourceCapacity{}).
		Where("business_id = ? AND staff_id = ? AND date = ?", businessId, staffId, date).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	var utilized *decimal.Decimal
	err = tx.WithContext(ctx).Model(&Timesheet{}).
		Select("sum(hours)").
		Where("business_id = ? AND staff_id = ? AND date = ?", businessId, staffId, date).
		Where("status IN ?", []TimesheetStatus{TimesheetStatusApproved, TimesheetStatusSubmitted, TimesheetStatusInvoiced}).
		Scan(&utilized).Error
	if err != nil {
		return err
	}
	sum := decimal.Zero
	if utilized != nil {
		sum = *utilized
	}

	return tx.WithContext(ctx).Model(&ResourceCapacity{}).
		Where("business_id = ? AND staff_id = ? AND date = ?", businessId, staffId, date).
		Update("utilized_hours", sum).Error
}

// MarkCapacityAsLeave overrides one person-day as leave (HR collaborator
// entry point). The row is generated first if absent.
func MarkCapacityAsLeave(ctx context.Context, staffId int, date time.Time, leaveType LeaveType) (*ResourceCapacity, error) {
	return overrideCapacityDay(ctx, staffId, date, func(row *ResourceCapacity) {
		row.MarkAsLeave(leaveType)
	})
}

// MarkCapacityAsWorkingDay reverses a leave/holiday override.
func MarkCapacityAsWorkingDay(ctx context.Context, staffId int, date time.Time, hours decimal.Decimal) (*ResourceCapacity, error) {
	if !hours.IsPositive() {
		return nil, errors.New("available hours must be greater than zero")
	}
	return overrideCapacityDay(ctx, staffId, date, func(row *ResourceCapacity) {
		row.MarkAsWorkingDay(hours)
	})
}

func overrideCapacityDay(ctx context.Context, staffId int, date time.Time, apply func(*ResourceCapacity)) (*ResourceCapacity, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}
	date = normalizeDate(date, business.Timezone)

	var row ResourceCapacity
	err = withCapacityLock(businessId, []int{staffId}, func(tx *gorm.DB) error {
		if err := generateRangeTx(tx, ctx, businessId, staffId, date, date); err != nil {
			return err
		}

		err := tx.WithContext(ctx).
			Where("business_id = ? AND staff_id = ? AND date = ?", businessId, staffId, date).
			First(&row).Error
		if err != nil {
			return err
		}

		apply(&row)

		return tx.WithContext(ctx).Model(&row).Updates(map[string]interface{}{
			"AvailableHours": row.AvailableHours,
			"IsWorkingDay":   row.IsWorkingDay,
			"LeaveType":      row.LeaveType,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// RebuildStaffCapacityTx fully resynchronizes one staff member's ledger over
// [from, to] inside the caller's transaction: rows are generated where
// missing, then both cached sums are recomputed for every date. Used by the
// bulk rebuild workflow and the maintenance command.
func RebuildStaffCapacityTx(tx *gorm.DB, ctx context.Context, businessId string, staffId int, from, to time.Time) error {
	if err := acquireCapacityLock(tx, businessId, staffId); err != nil {
		return err
	}
	defer releaseCapacityLock(tx, businessId, staffId)

	if err := recomputeAllocatedRangeTx(tx, ctx, businessId, staffId, from, to); err != nil {
		return err
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if err := recomputeUtilizedTx(tx, ctx, businessId, staffId, d); err != nil {
			return err
		}
	}
	return nil
}

// GetCapacityRange returns the person's capacity rows for [from, to],
// lazily generating missing dates first.
func GetCapacityRange(ctx context.Context, staffId int, from, to time.Time) ([]*ResourceCapacity, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := GenerateCapacityForStaff(ctx, staffId, from, to); err != nil {
		return nil, err
	}
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}
	from = normalizeDate(from, business.Timezone)
	to = normalizeDate(to, business.Timezone)

	db := config.GetDB()
	var rows []*ResourceCapacity
	err = db.WithContext(ctx).
		Where("business_id = ? AND staff_id = ? AND date BETWEEN ? AND ?", businessId, staffId, from, to).
		Order("date").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
