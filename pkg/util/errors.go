// Package util provides logging helpers and the common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the data-access layer, the managers and the
// dispatch pool.
var (
	ErrGeneric            = errors.New("generic failure")
	ErrNoSuchInstance     = errors.New("no such instance")
	ErrInstanceExists     = errors.New("instance already exists")
	ErrParentNotFound     = errors.New("parent instance not found")
	ErrInUse              = errors.New("instance in use")
	ErrValidationFailed   = errors.New("validation failed")
	ErrCtrlrDisconnected  = errors.New("controller disconnected")
	ErrDriverRejected     = errors.New("driver rejected request")
	ErrDispatcherInactive = errors.New("dispatcher not active")
	ErrTxAborted          = errors.New("transaction aborted")
	ErrTxInProgress       = errors.New("transaction or audit already in progress")
	ErrUnknownController  = errors.New("unknown controller")
)

// IsNoSuchInstance reports whether err means "nothing to do" for a diff or
// read rather than a failure.
func IsNoSuchInstance(err error) bool {
	return errors.Is(err, ErrNoSuchInstance)
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// DependencyError represents a missing parent instance
type DependencyError struct {
	Resource      string
	DependsOn     string
	DependsOnType string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s requires %s '%s' to exist", e.Resource, e.DependsOnType, e.DependsOn)
}

func (e *DependencyError) Unwrap() error {
	return ErrParentNotFound
}

// NewDependencyError creates a dependency error
func NewDependencyError(resource, dependsOnType, dependsOn string) *DependencyError {
	return &DependencyError{
		Resource:      resource,
		DependsOn:     dependsOn,
		DependsOnType: dependsOnType,
	}
}

// InUseError represents an instance that cannot be deleted while children
// still reference it
type InUseError struct {
	Resource string
	UsedBy   []string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s is in use by: %s", e.Resource, strings.Join(e.UsedBy, ", "))
}

func (e *InUseError) Unwrap() error {
	return ErrInUse
}

// NewInUseError creates an in-use error
func NewInUseError(resource string, usedBy ...string) *InUseError {
	return &InUseError{
		Resource: resource,
		UsedBy:   usedBy,
	}
}

// DriverError carries a southbound rejection. Key identifies the offending
// object in UNC naming when the driver reported one.
type DriverError struct {
	Ctrlr  string
	Result string
	Key    string
}

func (e *DriverError) Error() string {
	msg := fmt.Sprintf("controller %s rejected request: %s", e.Ctrlr, e.Result)
	if e.Key != "" {
		msg += " (" + e.Key + ")"
	}
	return msg
}

func (e *DriverError) Unwrap() error {
	return ErrDriverRejected
}

// NewDriverError creates a driver rejection error
func NewDriverError(ctrlr, result, key string) *DriverError {
	return &DriverError{Ctrlr: ctrlr, Result: result, Key: key}
}
