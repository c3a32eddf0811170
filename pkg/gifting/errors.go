package gifting

import (
	"errors"
	"fmt"
	"strings"
)

// Domain-level error values returned by the gifting service.
var (
	ErrInsufficientInventory   = errors.New("insufficient inventory")
	ErrConflictingReservation  = errors.New("conflicting reservation")
	ErrAlreadyClaimed          = errors.New("already claimed")
	ErrNotClaimOwner           = errors.New("not claim owner")
	ErrValidationIncomplete    = errors.New("validation incomplete")
	ErrPartialAutoProcess      = errors.New("partial auto-process failure")
	ErrAutoProcessBusy         = errors.New("auto-process already running")
	ErrAutoProcessTimeout      = errors.New("auto-process timed out")
	ErrUnknownRequest          = errors.New("unknown request")
	ErrUnknownRecipient        = errors.New("unknown recipient")
	ErrUnknownCardJob          = errors.New("unknown card job")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentAlreadyLinked    = errors.New("payment already linked")
	ErrDuplicateIdempotency    = errors.New("duplicate idempotency token")
	ErrDuplicateRecipient      = errors.New("duplicate recipient")
	ErrDuplicateDelivery       = errors.New("duplicate delivery")
	ErrCountInvariant          = errors.New("count invariant violated")
	ErrTooManyRecipients       = errors.New("more recipients than cards")
	ErrTreeAssigned            = errors.New("tree already assigned")
	ErrTreeNotReserved         = errors.New("tree not reserved by request")
	ErrDeleteNotConfirmed      = errors.New("delete not confirmed")
	ErrCardJobClosed           = errors.New("card job closed")
	ErrCardsNotReady           = errors.New("request not ready for cards")
	ErrNoPlotSelection         = errors.New("no plots selected")
	ErrPlotInUse               = errors.New("plot holds booked trees")
	ErrInvalidRequestID        = errors.New("invalid request id")
	ErrInvalidIdempotencyToken = errors.New("invalid idempotency token")
	ErrInvalidStaffID          = errors.New("invalid staff id")
	ErrInvalidTreeID           = errors.New("invalid tree id")
	ErrInvalidPlotID           = errors.New("invalid plot id")
	ErrInvalidRequestType      = errors.New("invalid request type")
	ErrInvalidRelation         = errors.New("invalid relation")
	ErrInvalidRecipientRole    = errors.New("invalid recipient role")
	ErrInvalidEventType        = errors.New("invalid event type")
	ErrInvalidCardJobStatus    = errors.New("invalid card job status")
	ErrInvalidCardCount        = errors.New("invalid card count")
	ErrInvalidRecipient        = errors.New("invalid recipient")
	ErrInvalidReservation      = errors.New("invalid reservation")
	ErrInvalidPaymentAmount    = errors.New("invalid payment amount")
	ErrInvalidAlbum            = errors.New("invalid album")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// ClaimConflictError names the staff member currently holding a request.
type ClaimConflictError struct {
	RequestID RequestID
	Holder    StaffID
}

func (claimError ClaimConflictError) Error() string {
	return fmt.Sprintf("request %s already claimed by %s", claimError.RequestID.String(), claimError.Holder.String())
}

// Unwrap lets errors.Is match ErrAlreadyClaimed.
func (claimError ClaimConflictError) Unwrap() error {
	return ErrAlreadyClaimed
}

// ReservationConflictError lists trees that another request booked first.
type ReservationConflictError struct {
	RequestID RequestID
	TreeIDs   []TreeID
}

func (conflictError ReservationConflictError) Error() string {
	ids := make([]string, 0, len(conflictError.TreeIDs))
	for _, treeID := range conflictError.TreeIDs {
		ids = append(ids, fmt.Sprintf("%d", treeID))
	}
	return fmt.Sprintf("request %s: trees [%s] reserved elsewhere", conflictError.RequestID.String(), strings.Join(ids, ","))
}

// Unwrap lets errors.Is match ErrConflictingReservation.
func (conflictError ReservationConflictError) Unwrap() error {
	return ErrConflictingReservation
}

// InventoryShortfallError reports a booking that could not satisfy the requested count.
type InventoryShortfallError struct {
	RequestID RequestID
	Required  int
	Booked    int
}

func (shortfall InventoryShortfallError) Error() string {
	return fmt.Sprintf("request %s: booked %d of %d trees", shortfall.RequestID.String(), shortfall.Booked, shortfall.Required)
}

// Unwrap lets errors.Is match ErrInsufficientInventory.
func (shortfall InventoryShortfallError) Unwrap() error {
	return ErrInsufficientInventory
}

// ValidationError lists the codes blocking a downstream step.
type ValidationError struct {
	RequestID RequestID
	Codes     []ValidationCode
}

func (validationError ValidationError) Error() string {
	codes := make([]string, 0, len(validationError.Codes))
	for _, code := range validationError.Codes {
		codes = append(codes, string(code))
	}
	return fmt.Sprintf("request %s: %s", validationError.RequestID.String(), strings.Join(codes, ","))
}

// Unwrap lets errors.Is match ErrValidationIncomplete.
func (validationError ValidationError) Unwrap() error {
	return ErrValidationIncomplete
}

// AutoProcessStep names a stage of AutoProcess.
type AutoProcessStep string

const (
	AutoProcessStepReserve AutoProcessStep = "reserve"
	AutoProcessStepAssign  AutoProcessStep = "assign"
	AutoProcessStepFinish  AutoProcessStep = "finish"
)

// AutoProcessError reports which step failed. Failures after booking unwrap to ErrPartialAutoProcess
// as well as to the step's own cause.
type AutoProcessError struct {
	RequestID RequestID
	Step      AutoProcessStep
	Err       error
}

func (autoError AutoProcessError) Error() string {
	return fmt.Sprintf("auto-process %s at %s: %v", autoError.RequestID.String(), autoError.Step, autoError.Err)
}

// Unwrap exposes the step cause and, after booking, the partial failure marker.
func (autoError AutoProcessError) Unwrap() []error {
	if autoError.Step == AutoProcessStepReserve {
		return []error{autoError.Err}
	}
	return []error{ErrPartialAutoProcess, autoError.Err}
}
