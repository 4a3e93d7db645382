package models

import "fmt"

// Typed domain errors. The HTTP layer switches on these to pick a status
// code; everything else is treated as a 500.

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type NotFoundError struct {
	Resource string
	Id       interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.Id)
}

type InvalidStateError struct {
	Operation string
	State     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s in status %q", e.Operation, e.State)
}

// MissingSelectionError means a bundle sale arrived without a choice for a
// mandatory slot, so the sale cannot be costed.
type MissingSelectionError struct {
	SlotId string
}

func (e *MissingSelectionError) Error() string {
	return fmt.Sprintf("no selection for mandatory slot %q", e.SlotId)
}

// DataConsistencyError means stored recipe data references something that
// no longer exists. Logged for operator follow-up.
type DataConsistencyError struct {
	Detail string
}

func (e *DataConsistencyError) Error() string {
	return "data consistency: " + e.Detail
}
