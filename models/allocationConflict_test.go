package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func alloc(staffId int, start time.Time, end *time.Time, pct int64) *ResourceAllocation {
	return &ResourceAllocation{
		StaffId:              staffId,
		StartDate:            start,
		EndDate:              end,
		AllocationPercentage: decimal.NewFromInt(pct),
		HoursPerDay:          decimal.NewFromInt(8),
		Status:               AllocationStatusPlanned,
	}
}

func datePtr(t time.Time) *time.Time { return &t }

func TestAllocationsOverlapSymmetry(t *testing.T) {
	pairs := []struct {
		name string
		a, b *ResourceAllocation
	}{
		{"disjoint", alloc(1, date(2026, 1, 5), datePtr(date(2026, 1, 9)), 50), alloc(1, date(2026, 2, 2), datePtr(date(2026, 2, 6)), 50)},
		{"adjacent same day", alloc(1, date(2026, 1, 5), datePtr(date(2026, 1, 9)), 50), alloc(1, date(2026, 1, 9), datePtr(date(2026, 1, 16)), 50)},
		{"nested", alloc(1, date(2026, 1, 1), datePtr(date(2026, 3, 31)), 50), alloc(1, date(2026, 2, 1), datePtr(date(2026, 2, 10)), 50)},
		{"open-ended vs bounded", alloc(1, date(2026, 1, 5), nil, 50), alloc(1, date(2026, 6, 1), datePtr(date(2026, 6, 5)), 50)},
		{"both open-ended", alloc(1, date(2026, 1, 5), nil, 50), alloc(1, date(2027, 1, 5), nil, 50)},
		{"different staff", alloc(1, date(2026, 1, 5), datePtr(date(2026, 1, 9)), 50), alloc(2, date(2026, 1, 5), datePtr(date(2026, 1, 9)), 50)},
	}
	for _, p := range pairs {
		t.Run(p.name, func(t *testing.T) {
			if allocationsOverlap(p.a, p.b) != allocationsOverlap(p.b, p.a) {
				t.Fatalf("overlap not symmetric for %s", p.name)
			}
		})
	}
}

func TestAllocationsOverlap(t *testing.T) {
	a := alloc(1, date(2026, 1, 5), datePtr(date(2026, 1, 9)), 50)

	if allocationsOverlap(a, alloc(1, date(2026, 1, 12), datePtr(date(2026, 1, 16)), 50)) {
		t.Fatal("disjoint ranges must not overlap")
	}
	if !allocationsOverlap(a, alloc(1, date(2026, 1, 9), datePtr(date(2026, 1, 16)), 50)) {
		t.Fatal("ranges sharing a boundary day must overlap")
	}
	if !allocationsOverlap(a, alloc(1, date(2026, 1, 1), nil, 50)) {
		t.Fatal("open-ended range starting earlier must overlap")
	}
	if allocationsOverlap(a, alloc(2, date(2026, 1, 5), datePtr(date(2026, 1, 9)), 50)) {
		t.Fatal("different staff never overlap")
	}
}

func TestConflictThreshold(t *testing.T) {
	target := alloc(1, date(2026, 1, 5), datePtr(date(2026, 1, 9)), 60)

	// combined exactly 100: no conflict
	ok := conflictsAmong(target, []*ResourceAllocation{
		alloc(1, date(2026, 1, 7), datePtr(date(2026, 1, 14)), 40),
	})
	if len(ok) != 0 {
		t.Fatalf("combined=100 must not conflict, got %d", len(ok))
	}

	// combined 101: conflict
	over := conflictsAmong(target, []*ResourceAllocation{
		alloc(1, date(2026, 1, 7), datePtr(date(2026, 1, 14)), 41),
	})
	if len(over) != 1 {
		t.Fatalf("combined=101 must conflict, got %d", len(over))
	}
	if !over[0].TotalPercentage.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("total percentage = %s, want 101", over[0].TotalPercentage)
	}
}

func TestOverlapWindowOpenEnded(t *testing.T) {
	a := alloc(1, date(2026, 1, 5), nil, 60)
	b := alloc(1, date(2026, 2, 1), nil, 60)

	start, end := overlapWindow(a, b)
	if !start.Equal(date(2026, 2, 1)) {
		t.Fatalf("overlap start = %s, want 2026-02-01", start)
	}
	if end != nil {
		t.Fatalf("overlap of two open-ended ranges must have nil end, got %s", end)
	}
}

// A person holds Mon-Fri at 50% and Wed-Sun at 60%: the midweek overlap is one
// 110% conflict covering Wed through Fri.
func TestMidweekOverlapConflict(t *testing.T) {
	mon, fri := date(2026, 1, 5), date(2026, 1, 9)
	wed, sun := date(2026, 1, 7), date(2026, 1, 11)

	p1 := alloc(1, mon, &fri, 50)
	p2 := alloc(1, wed, &sun, 60)

	conflicts := conflictsAmong(p2, []*ResourceAllocation{p1})
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if !c.TotalPercentage.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("total percentage = %s, want 110", c.TotalPercentage)
	}
	if !c.OverlapStart.Equal(wed) {
		t.Fatalf("overlap start = %s, want %s", c.OverlapStart, wed)
	}
	if c.OverlapEnd == nil || !c.OverlapEnd.Equal(fri) {
		t.Fatalf("overlap end = %v, want %s", c.OverlapEnd, fri)
	}
	if c.Allocation != p1 {
		t.Fatal("conflict must reference the other allocation")
	}
}
