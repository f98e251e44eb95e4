package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeAmounts(t *testing.T) {
	ts := &Timesheet{
		Hours:       decimal.NewFromInt(8),
		CostRate:    decimal.NewFromInt(20),
		BillingRate: decimal.NewFromInt(50),
		IsBillable:  boolPtr(true),
	}
	ts.computeAmounts()

	if !ts.CostAmount.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("cost amount = %s, want 160", ts.CostAmount)
	}
	if !ts.BillableAmount.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("billable amount = %s, want 400", ts.BillableAmount)
	}
}

func TestComputeAmountsNonBillable(t *testing.T) {
	ts := &Timesheet{
		Hours:       decimal.NewFromInt(8),
		CostRate:    decimal.NewFromInt(20),
		BillingRate: decimal.NewFromInt(50),
		IsBillable:  boolPtr(false),
	}
	ts.computeAmounts()

	if !ts.CostAmount.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("cost amount = %s, want 160", ts.CostAmount)
	}
	if !ts.BillableAmount.IsZero() {
		t.Fatalf("non-billable amount = %s, want 0", ts.BillableAmount)
	}

	// nil flag behaves like non-billable
	ts.IsBillable = nil
	ts.BillableAmount = decimal.NewFromInt(999)
	ts.computeAmounts()
	if !ts.BillableAmount.IsZero() {
		t.Fatalf("nil-flag billable amount = %s, want 0", ts.BillableAmount)
	}
}

// Amount computation is idempotent and always derived: recomputing after an
// hours change overwrites any stale figures.
func TestComputeAmountsIdempotent(t *testing.T) {
	ts := &Timesheet{
		Hours:       decimal.NewFromInt(8),
		CostRate:    decimal.NewFromInt(20),
		BillingRate: decimal.NewFromInt(50),
		IsBillable:  boolPtr(true),
	}
	ts.computeAmounts()
	ts.computeAmounts()
	if !ts.CostAmount.Equal(decimal.NewFromInt(160)) || !ts.BillableAmount.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("double recompute drifted: cost=%s billable=%s", ts.CostAmount, ts.BillableAmount)
	}

	ts.Hours = decimal.NewFromInt(4)
	ts.computeAmounts()
	if !ts.CostAmount.Equal(decimal.NewFromInt(80)) || !ts.BillableAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("recompute after edit: cost=%s billable=%s, want 80/200", ts.CostAmount, ts.BillableAmount)
	}
}

func TestIsCountedInUtilization(t *testing.T) {
	ts := &Timesheet{}
	for status, want := range map[TimesheetStatus]bool{
		TimesheetStatusDraft:     false,
		TimesheetStatusSubmitted: true,
		TimesheetStatusApproved:  true,
		TimesheetStatusRejected:  false,
		TimesheetStatusInvoiced:  true,
	} {
		ts.Status = status
		if ts.isCountedInUtilization() != want {
			t.Fatalf("status %s counted=%v, want %v", status, !want, want)
		}
	}
}
