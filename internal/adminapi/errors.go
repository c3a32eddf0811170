package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	errorInvalidPayload        = "invalid_payload"
	errorInvalidRequest        = "invalid_request"
	errorUnauthorized          = "unauthorized"
	errorUnknownRequest        = "unknown_request"
	errorUnknownRecipient      = "unknown_recipient"
	errorUnknownCardJob        = "unknown_card_job"
	errorPaymentNotFound       = "payment_not_found"
	errorAlreadyClaimed        = "already_claimed"
	errorNotClaimOwner         = "not_claim_owner"
	errorInsufficientInventory = "insufficient_inventory"
	errorConflictingReserve    = "conflicting_reservation"
	errorNoPlotSelection       = "no_plot_selection"
	errorPlotInUse             = "plot_in_use"
	errorValidationIncomplete  = "validation_incomplete"
	errorCardsNotReady         = "cards_not_ready"
	errorCardJobClosed         = "card_job_closed"
	errorDuplicate             = "duplicate"
	errorTooManyRecipients     = "too_many_recipients"
	errorTreeUnavailable       = "tree_unavailable"
	errorDeleteNotConfirmed    = "delete_not_confirmed"
	errorPaymentAlreadyLinked  = "payment_already_linked"
	errorAutoProcessBusy       = "auto_process_busy"
	errorAutoProcessTimeout    = "auto_process_timeout"
	errorPartialAutoProcess    = "partial_auto_process"
	errorCountInvariant        = "count_invariant"
	errorServiceUnavailable    = "service_unavailable"
	errorInternal              = "internal_error"
)

var invalidInputErrors = []error{
	gifting.ErrInvalidRequestID,
	gifting.ErrInvalidIdempotencyToken,
	gifting.ErrInvalidStaffID,
	gifting.ErrInvalidTreeID,
	gifting.ErrInvalidPlotID,
	gifting.ErrInvalidRequestType,
	gifting.ErrInvalidRelation,
	gifting.ErrInvalidRecipientRole,
	gifting.ErrInvalidEventType,
	gifting.ErrInvalidCardJobStatus,
	gifting.ErrInvalidCardCount,
	gifting.ErrInvalidRecipient,
	gifting.ErrInvalidReservation,
	gifting.ErrInvalidPaymentAmount,
	gifting.ErrInvalidAlbum,
}

// httpError is a response-ready failure.
type httpError struct {
	status  int
	code    string
	message string
	details gin.H
}

func mapToHTTPError(source error) httpError {
	var claimConflict gifting.ClaimConflictError
	if errors.As(source, &claimConflict) {
		return httpError{
			status:  http.StatusConflict,
			code:    errorAlreadyClaimed,
			message: source.Error(),
			details: gin.H{"holder": claimConflict.Holder.String()},
		}
	}
	var autoError gifting.AutoProcessError
	if errors.As(source, &autoError) && autoError.Step != gifting.AutoProcessStepReserve {
		cause := mapToHTTPError(autoError.Err)
		return httpError{
			status:  http.StatusBadGateway,
			code:    errorPartialAutoProcess,
			message: source.Error(),
			details: gin.H{"step": string(autoError.Step), "cause": cause.code},
		}
	}
	var shortfall gifting.InventoryShortfallError
	if errors.As(source, &shortfall) {
		return httpError{
			status:  http.StatusConflict,
			code:    errorInsufficientInventory,
			message: source.Error(),
			details: gin.H{"required": shortfall.Required, "booked": shortfall.Booked},
		}
	}
	var validationError gifting.ValidationError
	if errors.As(source, &validationError) {
		codes := make([]string, 0, len(validationError.Codes))
		for _, code := range validationError.Codes {
			codes = append(codes, string(code))
		}
		return httpError{
			status:  http.StatusUnprocessableEntity,
			code:    errorValidationIncomplete,
			message: source.Error(),
			details: gin.H{"validation_errors": codes},
		}
	}
	var conflict gifting.ReservationConflictError
	if errors.As(source, &conflict) {
		treeIDs := make([]int64, 0, len(conflict.TreeIDs))
		for _, treeID := range conflict.TreeIDs {
			treeIDs = append(treeIDs, treeID.Int64())
		}
		return httpError{
			status:  http.StatusConflict,
			code:    errorConflictingReserve,
			message: source.Error(),
			details: gin.H{"tree_ids": treeIDs},
		}
	}
	for _, target := range invalidInputErrors {
		if errors.Is(source, target) {
			return httpError{status: http.StatusBadRequest, code: errorInvalidRequest, message: source.Error()}
		}
	}
	switch {
	case errors.Is(source, gifting.ErrUnknownRequest):
		return httpError{status: http.StatusNotFound, code: errorUnknownRequest, message: source.Error()}
	case errors.Is(source, gifting.ErrUnknownRecipient):
		return httpError{status: http.StatusNotFound, code: errorUnknownRecipient, message: source.Error()}
	case errors.Is(source, gifting.ErrUnknownCardJob):
		return httpError{status: http.StatusNotFound, code: errorUnknownCardJob, message: source.Error()}
	case errors.Is(source, gifting.ErrPaymentNotFound):
		return httpError{status: http.StatusNotFound, code: errorPaymentNotFound, message: source.Error()}
	case errors.Is(source, gifting.ErrNotClaimOwner):
		return httpError{status: http.StatusForbidden, code: errorNotClaimOwner, message: source.Error()}
	case errors.Is(source, gifting.ErrAutoProcessBusy):
		return httpError{status: http.StatusConflict, code: errorAutoProcessBusy, message: source.Error()}
	case errors.Is(source, gifting.ErrAutoProcessTimeout):
		return httpError{status: http.StatusGatewayTimeout, code: errorAutoProcessTimeout, message: source.Error()}
	case errors.Is(source, gifting.ErrNoPlotSelection):
		return httpError{status: http.StatusUnprocessableEntity, code: errorNoPlotSelection, message: source.Error()}
	case errors.Is(source, gifting.ErrPlotInUse):
		return httpError{status: http.StatusConflict, code: errorPlotInUse, message: source.Error()}
	case errors.Is(source, gifting.ErrCardsNotReady):
		return httpError{status: http.StatusUnprocessableEntity, code: errorCardsNotReady, message: source.Error()}
	case errors.Is(source, gifting.ErrCardJobClosed):
		return httpError{status: http.StatusConflict, code: errorCardJobClosed, message: source.Error()}
	case errors.Is(source, gifting.ErrDuplicateRecipient), errors.Is(source, gifting.ErrDuplicateIdempotency):
		return httpError{status: http.StatusConflict, code: errorDuplicate, message: source.Error()}
	case errors.Is(source, gifting.ErrTooManyRecipients):
		return httpError{status: http.StatusUnprocessableEntity, code: errorTooManyRecipients, message: source.Error()}
	case errors.Is(source, gifting.ErrTreeAssigned), errors.Is(source, gifting.ErrTreeNotReserved):
		return httpError{status: http.StatusConflict, code: errorTreeUnavailable, message: source.Error()}
	case errors.Is(source, gifting.ErrDeleteNotConfirmed):
		return httpError{status: http.StatusPreconditionRequired, code: errorDeleteNotConfirmed, message: source.Error()}
	case errors.Is(source, gifting.ErrPaymentAlreadyLinked):
		return httpError{status: http.StatusConflict, code: errorPaymentAlreadyLinked, message: source.Error()}
	case errors.Is(source, gifting.ErrPartialAutoProcess):
		return httpError{status: http.StatusBadGateway, code: errorPartialAutoProcess, message: source.Error()}
	case errors.Is(source, gifting.ErrCountInvariant):
		return httpError{status: http.StatusConflict, code: errorCountInvariant, message: source.Error()}
	case errors.Is(source, gifting.ErrInvalidServiceConfig):
		return httpError{status: http.StatusNotImplemented, code: errorServiceUnavailable, message: source.Error()}
	default:
		return httpError{status: http.StatusInternalServerError, code: errorInternal, message: "internal error"}
	}
}

// payloadError turns a binding or validation failure into a 400 listing the offending fields.
func payloadError(source error) httpError {
	var fieldErrors validator.ValidationErrors
	if !errors.As(source, &fieldErrors) {
		return httpError{status: http.StatusBadRequest, code: errorInvalidPayload, message: "expected JSON body"}
	}
	fields := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		fields = append(fields, fmt.Sprintf("%s:%s", fieldError.Field(), fieldError.Tag()))
	}
	return httpError{
		status:  http.StatusBadRequest,
		code:    errorInvalidPayload,
		message: strings.Join(fields, ","),
		details: gin.H{"fields": fields},
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func (failure httpError) body() gin.H {
	response := errorResponse(failure.code, failure.message)
	if len(failure.details) > 0 {
		response["error"].(gin.H)["details"] = failure.details
	}
	return response
}
