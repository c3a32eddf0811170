package gifting

import (
	"context"
	"errors"
	"fmt"
)

// AutoProcess tops up the booking, issues booked trees to waiting recipients and hands the
// request to card generation when it is ready. Each step reports its own failure. A failed
// reservation stops the run; later failures keep the bookings and the call can be repeated.
func (service *Service) AutoProcess(ctx context.Context, requestID RequestID, options AutoProcessOptions) (AutoProcessResult, error) {
	result, operationError := service.autoProcess(ctx, requestID, options)
	service.logOperation(ctx, OperationLog{
		Operation: operationAutoProcess,
		RequestID: requestID,
		Count:     result.AssignedCount,
		Detail:    fmt.Sprintf("booked=%d deficit=%d status=%s", len(result.Reservation.BookedTreeIDs), result.Reservation.Deficit, result.Status),
		Error:     operationError,
	})
	return result, operationError
}

func (service *Service) autoProcess(ctx context.Context, requestID RequestID, options AutoProcessOptions) (AutoProcessResult, error) {
	if service.locker != nil {
		release, err := service.locker.Acquire(ctx, autoProcessLockPrefix+requestID.String(), service.autoProcessTimeout)
		if err != nil {
			return AutoProcessResult{}, err
		}
		defer release()
	}
	trackedContext, done := service.trackInflight(ctx, requestID)
	defer done()

	var result AutoProcessResult
	cycleContext, cancel := context.WithTimeoutCause(trackedContext, service.autoProcessTimeout, ErrAutoProcessTimeout)
	defer cancel()

	request, err := service.store.GetRequest(cycleContext, requestID)
	if err != nil {
		return result, err
	}
	if deficit := request.NoOfCards - request.Booked; deficit > 0 {
		reservation, err := service.reserve(cycleContext, ReserveInput{
			RequestID:     requestID,
			RequiredCount: deficit,
			Options:       DefaultReserveOptions(request.RequestType),
		})
		result.Reservation = reservation
		if err != nil {
			return result, AutoProcessError{RequestID: requestID, Step: AutoProcessStepReserve, Err: stepError(cycleContext, err)}
		}
		if reservation.Deficit > 0 {
			shortfall := InventoryShortfallError{RequestID: requestID, Required: deficit, Booked: len(reservation.BookedTreeIDs)}
			return result, AutoProcessError{RequestID: requestID, Step: AutoProcessStepReserve, Err: shortfall}
		}
	}

	assigned, err := service.assign(cycleContext, requestID)
	if err != nil {
		return result, AutoProcessError{RequestID: requestID, Step: AutoProcessStepAssign, Err: stepError(cycleContext, err)}
	}
	result.AssignedCount = assigned

	view, err := service.Get(trackedContext, requestID)
	if err != nil {
		return result, AutoProcessError{RequestID: requestID, Step: AutoProcessStepFinish, Err: err}
	}
	result.Status = view.Status
	if view.Status == StatusPendingGiftCards && len(view.ValidationErrors) == 0 && service.cards != nil {
		job, err := service.EnqueueCards(trackedContext, requestID)
		if err != nil {
			return result, AutoProcessError{RequestID: requestID, Step: AutoProcessStepFinish, Err: err}
		}
		result.CardJob = &job
	}
	if options.Notify && assigned > 0 && service.email != nil {
		dispatch, err := service.SendEmails(trackedContext, SendEmailsInput{
			RequestID: requestID,
			Event:     EventTreesAssigned,
			Template:  options.Template,
		})
		if err != nil {
			return result, AutoProcessError{RequestID: requestID, Step: AutoProcessStepFinish, Err: err}
		}
		result.Notifications = &dispatch
	}
	return result, nil
}

// stepError attaches the cancellation cause to errors raised after the cycle context ended.
func stepError(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	cause := context.Cause(ctx)
	if errors.Is(err, cause) {
		return err
	}
	return fmt.Errorf("%w: %w", cause, err)
}
