package gifting

import (
	"context"
	"fmt"
	"time"
)

// Pick grants exclusive processing ownership of a request to holder. It succeeds only when the
// request is unclaimed (or the previous lease expired); re-picking one's own claim is a no-op.
func (service *Service) Pick(ctx context.Context, requestID RequestID, holder StaffID) (GiftCardRequest, error) {
	request, operationError := service.pick(ctx, requestID, holder)
	service.logOperation(ctx, OperationLog{Operation: operationPick, RequestID: requestID, Actor: holder, Error: operationError})
	return request, operationError
}

func (service *Service) pick(ctx context.Context, requestID RequestID, holder StaffID) (GiftCardRequest, error) {
	var request GiftCardRequest
	for attempt := 0; attempt < claimAttempts; attempt++ {
		nowUnixUTC := service.nowFn()
		acquired, err := service.store.AcquireClaim(ctx, requestID, holder, nowUnixUTC, service.expiredBefore(nowUnixUTC))
		if err != nil {
			return GiftCardRequest{}, err
		}
		request, err = service.store.GetRequest(ctx, requestID)
		if err != nil {
			return GiftCardRequest{}, err
		}
		if acquired || request.ProcessedBy == holder {
			return request, nil
		}
		// An empty holder means the claim was released between the two reads.
		if !request.ProcessedBy.IsZero() {
			break
		}
	}
	return GiftCardRequest{}, ClaimConflictError{RequestID: requestID, Holder: request.ProcessedBy}
}

// Unpick releases a claim. Only the holder may release it.
func (service *Service) Unpick(ctx context.Context, requestID RequestID, holder StaffID) error {
	operationError := service.unpick(ctx, requestID, holder)
	service.logOperation(ctx, OperationLog{Operation: operationUnpick, RequestID: requestID, Actor: holder, Error: operationError})
	return operationError
}

func (service *Service) unpick(ctx context.Context, requestID RequestID, holder StaffID) error {
	released, err := service.store.ReleaseClaim(ctx, requestID, holder)
	if err != nil {
		return err
	}
	if released {
		return nil
	}
	request, err := service.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.ProcessedBy.IsZero() {
		return nil
	}
	return fmt.Errorf("%w: request %s held by %s", ErrNotClaimOwner, requestID.String(), request.ProcessedBy.String())
}

// SweepExpiredClaims clears claims whose lease ran out. Without a lease TTL nothing expires.
func (service *Service) SweepExpiredClaims(ctx context.Context) (int64, error) {
	if service.claimTTL == 0 {
		return 0, nil
	}
	released, err := service.store.ReleaseExpiredClaims(ctx, service.expiredBefore(service.nowFn()))
	if released > 0 || err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationSweep, Count: int(released), Error: err})
	}
	return released, err
}

// expiredBefore returns the claim cutoff; zero means claims never expire.
func (service *Service) expiredBefore(nowUnixUTC int64) int64 {
	if service.claimTTL == 0 {
		return 0
	}
	return nowUnixUTC - int64(service.claimTTL/time.Second)
}
