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

// Timesheet is one logged work entry. cost_amount and billable_amount are
// derived from hours and the rates on every create/update; they are never
// writable independently.
//
// State machine: Draft -> Submitted -> {Approved, Rejected}; Approved ->
// Invoiced (terminal). Draft and Rejected entries may be edited; editing a
// rejected entry returns it to Draft so the resubmission always starts there.
type Timesheet struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	StaffId         int             `gorm:"index;not null" json:"staff_id" binding:"required"`
	ProjectId       int             `gorm:"index;not null" json:"project_id" binding:"required"`
	TaskId          *int            `gorm:"index" json:"task_id"`
	TimesheetNumber string          `gorm:"size:255;not null" json:"timesheet_number"`
	SequenceNo      decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	Date            time.Time       `gorm:"not null;index" json:"date" binding:"required"`
	Hours           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"hours"`
	Description     string          `gorm:"type:text" json:"description"`
	IsBillable      *bool           `gorm:"not null;default:true" json:"is_billable"`
	BillingRate     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"billing_rate"`
	CostRate        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_rate"`
	CostAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_amount"`
	BillableAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"billable_amount"`
	Status          TimesheetStatus `gorm:"type:enum('Draft', 'Submitted', 'Approved', 'Rejected', 'Invoiced');default:Draft" json:"status"`
	ApprovedBy      *int            `json:"approved_by"`
	ApprovedAt      *time.Time      `json:"approved_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

type NewTimesheet struct {
	StaffId     int             `json:"staff_id" binding:"required"`
	ProjectId   int             `json:"project_id" binding:"required"`
	TaskId      *int            `json:"task_id"`
	Date        time.Time       `json:"date" binding:"required"`
	Hours       decimal.Decimal `json:"hours" binding:"required"`
	Description string          `json:"description"`
	IsBillable  *bool           `json:"is_billable"`
	BillingRate decimal.Decimal `json:"billing_rate"`
	CostRate    decimal.Decimal `json:"cost_rate"`
}

func (t Timesheet) GetBusinessId() string {
	return t.BusinessId
}

func (t Timesheet) GetId() int {
	return t.ID
}

// computeAmounts derives the money columns from hours and rates. Idempotent;
// runs on every create and update before persisting.
func (t *Timesheet) computeAmounts() {
	t.CostAmount = t.Hours.Mul(t.CostRate)
	if utils.DereferencePtr(t.IsBillable) {
		t.BillableAmount = t.Hours.Mul(t.BillingRate)
	} else {
		t.BillableAmount = decimal.Zero
	}
}

// isCountedInUtilization mirrors the utilized_hours aggregation rule:
// submitted and approved entries count, and invoicing an approved entry does
// not take its hours back out of the ledger.
func (t *Timesheet) isCountedInUtilization() bool {
	return t.Status == TimesheetStatusApproved ||
		t.Status == TimesheetStatusSubmitted ||
		t.Status == TimesheetStatusInvoiced
}

func (input *NewTimesheet) validate(ctx context.Context, businessId string, _ int) error {
	if err := utils.ValidateResourceId[Staff](ctx, businessId, input.StaffId); err != nil {
		return errors.New("staff not found")
	}
	if err := utils.ValidateResourceId[Project](ctx, businessId, input.ProjectId); err != nil {
		return errors.New("project not found")
	}
	if !input.Hours.IsPositive() {
		return errors.New("hours must be greater than zero")
	}
	if input.BillingRate.IsNegative() {
		return errors.New("billing rate must not be negative")
	}
	if input.CostRate.IsNegative() {
		return errors.New("cost rate must not be negative")
	}
	return nil
}

func CreateTimesheet(ctx context.Context, input *NewTimesheet) (*Timesheet, error) {

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

	isBillable := utils.NewTrue()
	if input.IsBillable != nil {
		isBillable = input.IsBillable
	}

	timesheet := Timesheet{
		BusinessId:  businessId,
		StaffId:     input.StaffId,
		ProjectId:   input.ProjectId,
		TaskId:      taskId,
		Date:        normalizeDate(input.Date, business.Timezone),
		Hours:       input.Hours,
		Description: input.Description,
		IsBillable:  isBillable,
		BillingRate: input.BillingRate,
		CostRate:    input.CostRate,
		Status:      TimesheetStatusDraft,
	}
	timesheet.computeAmounts()

	db := config.GetDB()
	tx := db.Begin()

	seqNo, err := utils.GetSequence[Timesheet](ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	timesheet.SequenceNo = decimal.NewFromInt(seqNo)
	timesheet.TimesheetNumber = "TS-" + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&timesheet).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	// a draft does not count towards utilization; no recompute here
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &timesheet, nil
}

// UpdateTimesheet edits a draft or rejected entry. Editing a rejected entry
// returns it to draft, clearing the rejection audit fields, so resubmission
// always starts from draft. ok=false signals an entry whose state forbids
// editing.
func UpdateTimesheet(ctx context.Context, id int, input *NewTimesheet) (*Timesheet, bool, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, false, errors.New("business id is required")
	}

	beforeUpdate, err := utils.FetchModel[Timesheet](ctx, businessId, id)
	if err != nil {
		return nil, false, err
	}
	if beforeUpdate.Status != TimesheetStatusDraft && beforeUpdate.Status != TimesheetStatusRejected {
		return beforeUpdate, false, nil
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, false, err
	}

	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, false, err
	}
	taskId, err := validateTaskRef(ctx, businessId, input.ProjectId, input.TaskId)
	if err != nil {
		return nil, false, err
	}

	isBillable := beforeUpdate.IsBillable
	if input.IsBillable != nil {
		isBillable = input.IsBillable
	}

	update := Timesheet{
		Hours:       input.Hours,
		IsBillable:  isBillable,
		BillingRate: input.BillingRate,
		CostRate:    input.CostRate,
	}
	update.computeAmounts()

	db := config.GetDB()
	err = db.WithContext(ctx).
		Model(&Timesheet{ID: id, BusinessId: businessId}).
		Updates(map[string]interface{}{
			"StaffId":        input.StaffId,
			"ProjectId":      input.ProjectId,
			"TaskId":         taskId,
			"Date":           normalizeDate(input.Date, business.Timezone),
			"Hours":          input.Hours,
			"Description":    input.Description,
			"IsBillable":     isBillable,
			"BillingRate":    input.BillingRate,
			"CostRate":       input.CostRate,
			"CostAmount":     update.CostAmount,
			"BillableAmount": update.BillableAmount,
			"Status":         TimesheetStatusDraft,
			"ApprovedBy":     nil,
			"ApprovedAt":     nil,
		}).Error
	if err != nil {
		return nil, false, err
	}

	timesheet, err := utils.FetchModel[Timesheet](ctx, businessId, id)
	if err != nil {
		return nil, false, err
	}
	return timesheet, true, nil
}

// SubmitTimesheet moves a draft entry to submitted. ok=false for any other
// state; the caller surfaces the message. Submitted entries count towards
// utilization, so the capacity day is recomputed in the same transaction.
func SubmitTimesheet(ctx context.Context, id int) (*Timesheet, bool, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, false, errors.New("business id is required")
	}
	timesheet, err := utils.FetchModel[Timesheet](ctx, businessId, id)
	if err != nil {
		return nil, false, err
	}
	if timesheet.Status != TimesheetStatusDraft {
		return timesheet, false, nil
	}

	err = transitionAndRecompute(ctx, businessId, timesheet, map[string]interface{}{
		"Status": TimesheetStatusSubmitted,
	})
	if err != nil {
		return nil, false, err
	}
	timesheet.Status = TimesheetStatusSubmitted
	return timesheet, true, nil
}

// ApproveTimesheet approves a submitted entry. ok=false when the entry is not
// submitted, the approver is the entry's own author, or the approver is
// neither the project's manager nor a timesheet approver.
func ApproveTimesheet(ctx context.Context, id int, approverId int) (*Timesheet, bool, error) {
	return reviewTimesheet(ctx, id, approverId, TimesheetStatusApproved)
}

// RejectTimesheet records a rejection with the same audit fields as an
// approval. Same guards as ApproveTimesheet.
func RejectTimesheet(ctx context.Context, id int, approverId int) (*Timesheet, bool, error) {
	return reviewTimesheet(ctx, id, approverId, TimesheetStatusRejected)
}

func reviewTimesheet(ctx context.Context, id int, approverId int, outcome TimesheetStatus) (*Timesheet, bool, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, false, errors.New("business id is required")
	}
	timesheet, err := utils.FetchModel[Timesheet](ctx, businessId, id)
	if err != nil {
		return nil, false, err
	}
	if timesheet.Status != TimesheetStatusSubmitted {
		return timesheet, false, nil
	}
	if approverId == timesheet.StaffId {
		return timesheet, false, nil
	}
	approver, err := GetStaff(ctx, approverId)
	if err != nil {
		return nil, false, err
	}
	project, err := GetProject(ctx, timesheet.ProjectId)
	if err != nil {
		return nil, false, err
	}
	if !approver.canApproveTimesheetsFor(project) {
		return timesheet, false, nil
	}

	now := time.Now().UTC()
	err = transitionAndRecompute(ctx, businessId, timesheet, map[string]interface{}{
		"Status":     outcome,
		"ApprovedBy": approverId,
		"ApprovedAt": now,
	})
	if err != nil {
		return nil, false, err
	}
	timesheet.Status = outcome
	timesheet.ApprovedBy = &approverId
	timesheet.ApprovedAt = &now
	return timesheet, true, nil
}

// transitionAndRecompute applies a status transition and resynchronizes the
// entry's capacity day inside one transaction, serialized per staff member.
// The capacity row is generated first so the recompute never silently no-ops.
func transitionAndRecompute(ctx context.Context, businessId string, timesheet *Timesheet, updates map[string]interface{}) error {

	return withCapacityLock(businessId, []int{timesheet.StaffId}, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Model(timesheet).Updates(updates).Error; err != nil {
			return err
		}
		if err := generateRangeTx(tx, ctx, businessId, timesheet.StaffId, timesheet.Date, timesheet.Date); err != nil {
			return err
		}
		return recomputeUtilizedTx(tx, ctx, businessId, timesheet.StaffId, timesheet.Date)
	})
}

// InvoiceTimesheet moves an approved entry to the terminal invoiced state.
// ok=false for any other state. Invoiced hours remain part of utilization.
func InvoiceTimesheet(ctx context.Context, id int) (*Timesheet, bool, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, false, errors.New("business id is required")
	}
	timesheet, err := utils.FetchModel[Timesheet](ctx, businessId, id)
	if err != nil {
		return nil, false, err
	}
	if timesheet.Status != TimesheetStatusApproved {
		return timesheet, false, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(timesheet).Update("Status", TimesheetStatusInvoiced).Error
	if err != nil {
		return nil, false, err
	}
	timesheet.Status = TimesheetStatusInvoiced
	return timesheet, true, nil
}

// DeleteTimesheet withdraws an entry while still in draft (soft delete).
// ok=false once the entry has left draft.
func DeleteTimesheet(ctx context.Context, id int) (*Timesheet, bool, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, false, errors.New("business id is required")
	}
	timesheet, err := utils.FetchModel[Timesheet](ctx, businessId, id)
	if err != nil {
		return nil, false, err
	}
	if timesheet.Status != TimesheetStatusDraft {
		return timesheet, false, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(timesheet).Error; err != nil {
		return nil, false, err
	}
	return timesheet, true, nil
}

func GetTimesheet(ctx context.Context, id int) (*Timesheet, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Timesheet](ctx, businessId, id)
}

func GetTimesheets(ctx context.Context, staffId *int, projectId *int, status *TimesheetStatus, from, to *time.Time) ([]*Timesheet, error) {
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
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if from != nil {
		dbCtx = dbCtx.Where("date >= ?", *from)
	}
	if to != nil {
		dbCtx = dbCtx.Where("date <= ?", *to)
	}
	var results []*Timesheet
	if err := dbCtx.Order("date").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetTask resolves the optional task reference; see resolveTask for the
// degradation contract.
func (t *Timesheet) GetTask(ctx context.Context) (*Task, error) {
	return resolveTask(ctx, t.BusinessId, t.TaskId)
}
