package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCapacityDefaults(t *testing.T) {
	nominal := decimal.NewFromInt(8)

	// Mon 2026-01-05
	available, working := capacityDefaults(date(2026, 1, 5), nominal)
	if !working || !available.Equal(nominal) {
		t.Fatalf("weekday default = (%s, %v), want (8, true)", available, working)
	}

	// Sat 2026-01-10
	available, working = capacityDefaults(date(2026, 1, 10), nominal)
	if working || !available.IsZero() {
		t.Fatalf("weekend default = (%s, %v), want (0, false)", available, working)
	}
}

func TestCapacityDerivedAccessors(t *testing.T) {
	c := &ResourceCapacity{
		AvailableHours: decimal.NewFromInt(8),
		AllocatedHours: decimal.NewFromInt(6),
		UtilizedHours:  decimal.NewFromInt(4),
	}

	if got := c.RemainingHours(); !got.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("remaining = %s, want 2", got)
	}
	if got := c.UtilizationPercentage(); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("utilization = %s, want 50", got)
	}
	if got := c.AllocationPercentageOfCapacity(); !got.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("allocation pct = %s, want 75", got)
	}
	if c.IsOverallocated() {
		t.Fatal("6/8 must not be overallocated")
	}
	if c.IsFullyAllocated() {
		t.Fatal("6/8 must not be fully allocated")
	}

	c.AllocatedHours = decimal.NewFromInt(8)
	if !c.IsFullyAllocated() || c.IsOverallocated() {
		t.Fatal("8/8 is fully allocated but not overallocated")
	}
	c.AllocatedHours = decimal.NewFromInt(9)
	if !c.IsOverallocated() {
		t.Fatal("9/8 must be overallocated")
	}
	// remaining never goes negative
	if got := c.RemainingHours(); !got.IsZero() {
		t.Fatalf("remaining = %s, want 0", got)
	}
}

// A non-working day has zero available hours, yet allocations covering it
// still count: any allocated hours make it overallocated.
func TestZeroAvailableDay(t *testing.T) {
	c := &ResourceCapacity{
		AvailableHours: decimal.Zero,
		AllocatedHours: decimal.NewFromInt(4),
		UtilizedHours:  decimal.NewFromInt(2),
	}

	if !c.IsOverallocated() {
		t.Fatal("any allocation on a zero-hour day is overallocation")
	}
	if got := c.UtilizationPercentage(); !got.IsZero() {
		t.Fatalf("utilization with 0 available = %s, want 0", got)
	}
	if got := c.AllocationPercentageOfCapacity(); !got.IsZero() {
		t.Fatalf("allocation pct with 0 available = %s, want 0", got)
	}
}

func TestLeaveOverrides(t *testing.T) {
	c := &ResourceCapacity{
		AvailableHours: decimal.NewFromInt(8),
		IsWorkingDay:   boolPtr(true),
	}

	c.MarkAsLeave(LeaveTypeSick)
	if c.IsWorkingDay == nil || *c.IsWorkingDay {
		t.Fatal("leave day must not be a working day")
	}
	if !c.AvailableHours.IsZero() {
		t.Fatalf("leave day available = %s, want 0", c.AvailableHours)
	}
	if c.LeaveType == nil || *c.LeaveType != LeaveTypeSick {
		t.Fatalf("leave type = %v, want Sick", c.LeaveType)
	}

	c.MarkAsWorkingDay(decimal.NewFromInt(6))
	if c.IsWorkingDay == nil || !*c.IsWorkingDay {
		t.Fatal("working-day override must set is_working_day")
	}
	if !c.AvailableHours.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("override available = %s, want 6", c.AvailableHours)
	}
	if c.LeaveType != nil {
		t.Fatalf("leave type must be cleared, got %v", *c.LeaveType)
	}
}

func boolPtr(b bool) *bool { return &b }

// Reassignments lock two ledgers; the order must be deterministic so two
// concurrent transactions can never take them in opposite sequence.
func TestCapacityLockOrder(t *testing.T) {
	got := capacityLockOrder([]int{7, 3, 7})
	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Fatalf("lock order = %v, want [3 7]", got)
	}
	if got := capacityLockOrder([]int{5, 5}); len(got) != 1 || got[0] != 5 {
		t.Fatalf("same-staff lock order = %v, want [5]", got)
	}
}

func TestRecomputeWindowCoversAllocationDates(t *testing.T) {
	// the mutation recompute window and covers() agree on boundary days
	a := alloc(1, date(2026, 1, 5), datePtr(date(2026, 1, 9)), 50)
	from, to := a.recomputeWindow(time.Now().UTC())
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !a.covers(d) {
			t.Fatalf("window date %s not covered by the allocation", d)
		}
	}
}
