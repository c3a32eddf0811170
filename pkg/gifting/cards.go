package gifting

import (
	"context"
	"errors"
	"fmt"
)

// EnqueueCards hands card generation to the artifact collaborator and returns immediately.
// Completion is observed later through CompleteCardJob or PollCardJobs. A pending job is
// returned as-is instead of enqueuing a duplicate.
func (service *Service) EnqueueCards(ctx context.Context, requestID RequestID) (CardJob, error) {
	job, operationError := service.enqueueCards(ctx, requestID)
	service.logOperation(ctx, OperationLog{Operation: operationEnqueue, RequestID: requestID, Detail: job.ID, Error: operationError})
	return job, operationError
}

func (service *Service) enqueueCards(ctx context.Context, requestID RequestID) (CardJob, error) {
	if service.cards == nil {
		return CardJob{}, fmt.Errorf("%w: card queue is not configured", ErrInvalidServiceConfig)
	}
	view, err := service.Get(ctx, requestID)
	if err != nil {
		return CardJob{}, err
	}
	if view.Status != StatusPendingGiftCards {
		return CardJob{}, fmt.Errorf("%w: status %s", ErrCardsNotReady, view.Status)
	}
	if len(view.ValidationErrors) > 0 {
		return CardJob{}, ValidationError{RequestID: requestID, Codes: view.ValidationErrors}
	}
	var job CardJob
	var existing bool
	err = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.LockRequest(ctx, requestID); err != nil {
			return err
		}
		pending, found, err := transactionStore.FindPendingCardJob(ctx, requestID)
		if err != nil {
			return err
		}
		if found {
			job, existing = pending, true
			return nil
		}
		nowUnixUTC := service.nowFn()
		job = CardJob{ID: service.newID(), RequestID: requestID, Status: CardJobPending, CreatedUnixUTC: nowUnixUTC, UpdatedUnixUTC: nowUnixUTC}
		return transactionStore.InsertCardJob(ctx, job)
	})
	if err != nil {
		return CardJob{}, err
	}
	if existing {
		return job, nil
	}
	if err := service.cards.EnqueueCardGeneration(ctx, job, view.Request); err != nil {
		failError := service.store.UpdateCardJobStatus(ctx, job.ID, CardJobPending, CardJobFailed, service.nowFn())
		return CardJob{}, errors.Join(fmt.Errorf("enqueue card job %s: %w", job.ID, err), failError)
	}
	return job, nil
}

// CardJob returns a job's current state.
func (service *Service) CardJob(ctx context.Context, jobID string) (CardJob, error) {
	return service.store.GetCardJob(ctx, jobID)
}

// CompleteCardJob records the collaborator's verdict. A completed job marks the request's
// artifacts as generated; closed jobs reject further transitions.
func (service *Service) CompleteCardJob(ctx context.Context, jobID string, status CardJobStatus) (CardJob, error) {
	var job CardJob
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		job, err = transactionStore.GetCardJob(ctx, jobID)
		if err != nil {
			return err
		}
		if status == CardJobPending || status == job.Status {
			return nil
		}
		if job.Status != CardJobPending {
			return fmt.Errorf("%w: job %s is %s", ErrCardJobClosed, jobID, job.Status)
		}
		nowUnixUTC := service.nowFn()
		if err := transactionStore.UpdateCardJobStatus(ctx, jobID, CardJobPending, status, nowUnixUTC); err != nil {
			return err
		}
		job.Status = status
		job.UpdatedUnixUTC = nowUnixUTC
		if status != CardJobCompleted {
			return nil
		}
		generated := true
		return transactionStore.UpdateRequest(ctx, job.RequestID, RequestPatch{CardsGenerated: &generated}, nowUnixUTC)
	})
	service.logOperation(ctx, OperationLog{Operation: operationCardJob, RequestID: job.RequestID, Detail: jobID + ":" + string(status), Error: operationError})
	if operationError != nil {
		return CardJob{}, operationError
	}
	return job, nil
}

// resetCards runs inside the caller's transaction after the card set changed. It fails a job still
// rendering the old set and clears the generated flag so the request waits for new cards.
func (service *Service) resetCards(ctx context.Context, transactionStore Store, request GiftCardRequest) error {
	nowUnixUTC := service.nowFn()
	pending, found, err := transactionStore.FindPendingCardJob(ctx, request.ID)
	if err != nil {
		return err
	}
	if found {
		if err := transactionStore.UpdateCardJobStatus(ctx, pending.ID, CardJobPending, CardJobFailed, nowUnixUTC); err != nil {
			return err
		}
	}
	if !request.CardsGenerated {
		return nil
	}
	generated := false
	return transactionStore.UpdateRequest(ctx, request.ID, RequestPatch{CardsGenerated: &generated}, nowUnixUTC)
}

// PollCardJobs asks the status source about pending jobs and applies finished verdicts.
func (service *Service) PollCardJobs(ctx context.Context) (int, error) {
	if service.cardStatus == nil {
		return 0, nil
	}
	jobs, err := service.store.ListPendingCardJobs(ctx, cardJobPollLimit)
	if err != nil {
		return 0, err
	}
	finished := 0
	var pollErrors []error
	for _, job := range jobs {
		status, err := service.cardStatus.GetCardStatus(ctx, job.ID)
		if err != nil {
			pollErrors = append(pollErrors, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}
		if status == CardJobPending {
			continue
		}
		if _, err := service.CompleteCardJob(ctx, job.ID, status); err != nil {
			pollErrors = append(pollErrors, err)
			continue
		}
		finished++
	}
	return finished, errors.Join(pollErrors...)
}
