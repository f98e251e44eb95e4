package models

import "errors"

type AllocationStatus string

const (
	AllocationStatusPlanned   AllocationStatus = "Planned"
	AllocationStatusActive    AllocationStatus = "Active"
	AllocationStatusCompleted AllocationStatus = "Completed"
	AllocationStatusCancelled AllocationStatus = "Cancelled"
)

func ParseAllocationStatus(s string) (AllocationStatus, error) {
	switch AllocationStatus(s) {
	case AllocationStatusPlanned, AllocationStatusActive, AllocationStatusCompleted, AllocationStatusCancelled:
		return AllocationStatus(s), nil
	}
	return "", errors.New("invalid allocation status")
}

type TimesheetStatus string

const (
	TimesheetStatusDraft     TimesheetStatus = "Draft"
	TimesheetStatusSubmitted TimesheetStatus = "Submitted"
	TimesheetStatusApproved  TimesheetStatus = "Approved"
	TimesheetStatusRejected  TimesheetStatus = "Rejected"
	TimesheetStatusInvoiced  TimesheetStatus = "Invoiced"
)

func ParseTimesheetStatus(s string) (TimesheetStatus, error) {
	switch TimesheetStatus(s) {
	case TimesheetStatusDraft, TimesheetStatusSubmitted, TimesheetStatusApproved, TimesheetStatusRejected, TimesheetStatusInvoiced:
		return TimesheetStatus(s), nil
	}
	return "", errors.New("invalid timesheet status")
}

type LeaveType string

const (
	LeaveTypeAnnual  LeaveType = "Annual"
	LeaveTypeSick    LeaveType = "Sick"
	LeaveTypeUnpaid  LeaveType = "Unpaid"
	LeaveTypeHoliday LeaveType = "Holiday"
	LeaveTypeOther   LeaveType = "Other"
)

func ParseLeaveType(s string) (LeaveType, error) {
	switch LeaveType(s) {
	case LeaveTypeAnnual, LeaveTypeSick, LeaveTypeUnpaid, LeaveTypeHoliday, LeaveTypeOther:
		return LeaveType(s), nil
	}
	return "", errors.New("invalid leave type")
}

type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "Active"
	ProjectStatusArchived ProjectStatus = "Archived"
)
