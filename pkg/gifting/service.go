package gifting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service contains the request lifecycle logic over a Store.
type Service struct {
	store              Store
	nowFn              func() int64
	logger             OperationLogger
	cards              CardQueue
	cardStatus         CardStatusSource
	email              EmailSender
	locker             Locker
	claimTTL           time.Duration
	autoProcessTimeout time.Duration
	reservationRetries int
	newID              func() string
	revision           atomic.Uint64

	inflightMu sync.Mutex
	inflight   map[RequestID]map[*inflightOperation]struct{}
}

type inflightOperation struct {
	cancel context.CancelCauseFunc
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:              store,
		nowFn:              now,
		autoProcessTimeout: defaultAutoProcessTimeout,
		reservationRetries: defaultReservationRetries,
		newID:              uuid.NewString,
		inflight:           make(map[RequestID]map[*inflightOperation]struct{}),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.claimTTL < 0 {
		return nil, fmt.Errorf("%w: claim lease ttl is negative", ErrInvalidServiceConfig)
	}
	return service, nil
}

// Create stores a new request. Re-submitting a token returns the request created by its first use.
func (service *Service) Create(ctx context.Context, token IdempotencyToken, input CreateRequestInput) (GiftCardRequest, bool, error) {
	if input.NoOfCards <= 0 {
		return GiftCardRequest{}, false, fmt.Errorf("%w: no_of_cards must be greater than zero", ErrInvalidCardCount)
	}
	if _, err := ParseRequestType(input.RequestType.String()); err != nil {
		return GiftCardRequest{}, false, err
	}
	existing, err := service.store.FindRequestByToken(ctx, token)
	if err == nil {
		service.logOperation(ctx, OperationLog{Operation: operationCreate, RequestID: existing.ID, Count: existing.NoOfCards, Status: operationStatusReplayed})
		return existing, false, nil
	}
	if !errors.Is(err, ErrUnknownRequest) {
		return GiftCardRequest{}, false, err
	}

	requestID, err := NewRequestID(service.newID())
	if err != nil {
		return GiftCardRequest{}, false, err
	}
	nowUnixUTC := service.nowFn()
	request := GiftCardRequest{
		ID:               requestID,
		IdempotencyToken: token,
		Category:         strings.TrimSpace(input.Category),
		Grove:            strings.TrimSpace(input.Grove),
		RequestType:      input.RequestType,
		SponsorshipType:  strings.TrimSpace(input.SponsorshipType),
		SponsorName:      strings.TrimSpace(input.SponsorName),
		SponsorEmail:     strings.TrimSpace(input.SponsorEmail),
		LogoURL:          strings.TrimSpace(input.LogoURL),
		EventName:        input.EventName,
		PrimaryMessage:   input.PrimaryMessage,
		SecondaryMessage: input.SecondaryMessage,
		NoOfCards:        input.NoOfCards,
		Tags:             normalizeTags(input.Tags),
		Notes:            input.Notes,
		CreatedUnixUTC:   nowUnixUTC,
		UpdatedUnixUTC:   nowUnixUTC,
	}
	createError := service.store.CreateRequest(ctx, request)
	if errors.Is(createError, ErrDuplicateIdempotency) {
		// Lost a race with a concurrent submission of the same token.
		winner, lookupError := service.store.FindRequestByToken(ctx, token)
		if lookupError != nil {
			return GiftCardRequest{}, false, lookupError
		}
		service.logOperation(ctx, OperationLog{Operation: operationCreate, RequestID: winner.ID, Count: winner.NoOfCards, Status: operationStatusReplayed})
		return winner, false, nil
	}
	service.logOperation(ctx, OperationLog{Operation: operationCreate, RequestID: requestID, Count: request.NoOfCards, Error: createError})
	if createError != nil {
		return GiftCardRequest{}, false, createError
	}
	return request, true, nil
}

// Get returns a request with its derived status and validation annotations.
func (service *Service) Get(ctx context.Context, requestID RequestID) (RequestView, error) {
	request, err := service.store.GetRequest(ctx, requestID)
	if err != nil {
		return RequestView{}, err
	}
	recipients, err := service.store.ListRecipients(ctx, requestID)
	if err != nil {
		return RequestView{}, err
	}
	return newRequestView(request, recipients), nil
}

// List returns one page of requests with derived statuses.
func (service *Service) List(ctx context.Context, query RequestQuery) ([]RequestView, error) {
	requests, err := service.store.ListRequests(ctx, query)
	if err != nil {
		return nil, err
	}
	return service.views(ctx, requests)
}

// GetMany loads the listed requests, skipping ids that no longer exist.
func (service *Service) GetMany(ctx context.Context, requestIDs []RequestID) ([]RequestView, error) {
	requests, err := service.store.GetRequests(ctx, requestIDs)
	if err != nil {
		return nil, err
	}
	return service.views(ctx, requests)
}

func (service *Service) views(ctx context.Context, requests []GiftCardRequest) ([]RequestView, error) {
	views := make([]RequestView, 0, len(requests))
	for _, request := range requests {
		recipients, err := service.store.ListRecipients(ctx, request.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, newRequestView(request, recipients))
	}
	return views, nil
}

// Update applies a partial patch. Fields absent from the patch keep their stored values.
func (service *Service) Update(ctx context.Context, requestID RequestID, patch RequestPatch) (GiftCardRequest, error) {
	var updated GiftCardRequest
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}
		if patch.NoOfCards != nil && *patch.NoOfCards < max(current.Booked, 1) {
			return fmt.Errorf("%w: no_of_cards %d below booked %d", ErrInvalidCardCount, *patch.NoOfCards, current.Booked)
		}
		if patch.RequestType != nil {
			if _, err := ParseRequestType(patch.RequestType.String()); err != nil {
				return err
			}
		}
		if patch.PlotIDs != nil {
			if err := keepsBookedPlots(ctx, transactionStore, requestID, *patch.PlotIDs); err != nil {
				return err
			}
		}
		if patch.Tags != nil {
			tags := normalizeTags(*patch.Tags)
			patch.Tags = &tags
		}
		if err := transactionStore.UpdateRequest(ctx, requestID, patch, service.nowFn()); err != nil {
			return err
		}
		if patch.NoOfCards != nil && *patch.NoOfCards != current.NoOfCards {
			if err := service.resetCards(ctx, transactionStore, current); err != nil {
				return err
			}
		}
		updated, err = transactionStore.GetRequest(ctx, requestID)
		return err
	})
	service.logOperation(ctx, OperationLog{Operation: operationUpdate, RequestID: requestID, Error: operationError})
	if operationError != nil {
		return GiftCardRequest{}, operationError
	}
	return updated, nil
}

// keepsBookedPlots rejects a plot selection that drops a plot still holding the request's trees.
func keepsBookedPlots(ctx context.Context, transactionStore Store, requestID RequestID, plots []PlotID) error {
	reserved, err := transactionStore.ListReservedTrees(ctx, requestID)
	if err != nil {
		return err
	}
	for _, tree := range reserved {
		if !slices.Contains(plots, tree.PlotID) {
			return fmt.Errorf("%w: plot %d holds tree %d", ErrPlotInUse, tree.PlotID, tree.ID)
		}
	}
	return nil
}

// SetTags replaces a request's tags.
func (service *Service) SetTags(ctx context.Context, requestID RequestID, tags []string) (GiftCardRequest, error) {
	return service.Update(ctx, requestID, RequestPatch{Tags: &tags})
}

// Delete releases every reserved tree, unlinks payments and albums, then removes the request.
// In-flight operations on the request are cancelled and their bookings rolled back.
func (service *Service) Delete(ctx context.Context, requestID RequestID, confirmed bool) error {
	if !confirmed {
		return ErrDeleteNotConfirmed
	}
	service.cancelInflight(requestID)
	var released int64
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.LockRequest(ctx, requestID); err != nil {
			return err
		}
		var err error
		released, err = transactionStore.ReleaseTrees(ctx, requestID, nil)
		if err != nil {
			return err
		}
		if err := transactionStore.UnlinkPayments(ctx, requestID); err != nil {
			return err
		}
		if err := transactionStore.DetachAlbums(ctx, requestID); err != nil {
			return err
		}
		if err := transactionStore.DeleteRecipients(ctx, requestID); err != nil {
			return err
		}
		if err := transactionStore.DeleteDeliveries(ctx, requestID); err != nil {
			return err
		}
		if err := transactionStore.DeleteCardJobs(ctx, requestID); err != nil {
			return err
		}
		return transactionStore.DeleteRequest(ctx, requestID)
	})
	service.logOperation(ctx, OperationLog{Operation: operationDelete, RequestID: requestID, Count: int(released), Error: operationError})
	return operationError
}

// Clone copies sponsor, category and messaging into a new request with no bookings or assignments.
func (service *Service) Clone(ctx context.Context, requestID RequestID, token IdempotencyToken) (GiftCardRequest, bool, error) {
	source, err := service.store.GetRequest(ctx, requestID)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationClone, RequestID: requestID, Error: err})
		return GiftCardRequest{}, false, err
	}
	clone, created, err := service.Create(ctx, token, CreateRequestInput{
		Category:         source.Category,
		Grove:            source.Grove,
		RequestType:      source.RequestType,
		SponsorshipType:  source.SponsorshipType,
		SponsorName:      source.SponsorName,
		SponsorEmail:     source.SponsorEmail,
		LogoURL:          source.LogoURL,
		EventName:        source.EventName,
		PrimaryMessage:   source.PrimaryMessage,
		SecondaryMessage: source.SecondaryMessage,
		NoOfCards:        source.NoOfCards,
		Tags:             source.Tags,
		Notes:            source.Notes,
	})
	service.logOperation(ctx, OperationLog{Operation: operationClone, RequestID: requestID, Detail: clone.ID.String(), Error: err})
	return clone, created, err
}

// AttachPayment records a pending payment and links it to the request.
func (service *Service) AttachPayment(ctx context.Context, requestID RequestID, paymentID string, amount decimal.Decimal) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("%w: empty payment id", ErrPaymentNotFound)
	}
	if !amount.IsPositive() {
		return Payment{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPaymentAmount)
	}
	payment := Payment{ID: paymentID, RequestID: requestID, Amount: amount, Status: PaymentStatusPending}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request.PaymentID != "" && request.PaymentID != paymentID {
			return fmt.Errorf("%w: request already references %s", ErrPaymentAlreadyLinked, request.PaymentID)
		}
		existing, err := transactionStore.GetPayment(ctx, paymentID)
		switch {
		case err == nil:
			if existing.RequestID != requestID {
				return fmt.Errorf("%w: payment belongs to another request", ErrPaymentAlreadyLinked)
			}
			payment = existing
		case errors.Is(err, ErrPaymentNotFound):
			if err := transactionStore.CreatePayment(ctx, payment); err != nil {
				return err
			}
		default:
			return err
		}
		return transactionStore.UpdateRequest(ctx, requestID, RequestPatch{PaymentID: &paymentID}, service.nowFn())
	})
	service.logOperation(ctx, OperationLog{Operation: operationPayment, RequestID: requestID, Detail: paymentID, Error: operationError})
	if operationError != nil {
		return Payment{}, operationError
	}
	return payment, nil
}

// OnPaymentConfirmed marks a payment confirmed and returns the request it belongs to.
// Confirmation is one-way; repeated callbacks are accepted without change.
func (service *Service) OnPaymentConfirmed(ctx context.Context, paymentID string) (RequestID, error) {
	var requestID RequestID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		payment, err := transactionStore.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		requestID = payment.RequestID
		if payment.Status == PaymentStatusConfirmed {
			return nil
		}
		return transactionStore.ConfirmPayment(ctx, paymentID, service.nowFn())
	})
	service.logOperation(ctx, OperationLog{Operation: operationPayment, RequestID: requestID, Detail: "confirmed:" + paymentID, Error: operationError})
	if operationError != nil {
		return RequestID{}, operationError
	}
	return requestID, nil
}

// AttachAlbum associates a memory album with a request.
func (service *Service) AttachAlbum(ctx context.Context, requestID RequestID, name string, imageURLs []string) (Album, error) {
	album := Album{ID: service.newID(), RequestID: requestID, Name: strings.TrimSpace(name)}
	for _, imageURL := range imageURLs {
		if trimmed := strings.TrimSpace(imageURL); trimmed != "" {
			album.ImageURLs = append(album.ImageURLs, trimmed)
		}
	}
	if album.Name == "" || len(album.ImageURLs) == 0 {
		return Album{}, fmt.Errorf("%w: name and at least one image are required", ErrInvalidAlbum)
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.LockRequest(ctx, requestID); err != nil {
			return err
		}
		return transactionStore.CreateAlbum(ctx, album)
	})
	if operationError != nil {
		return Album{}, operationError
	}
	return album, nil
}

// Revision changes after every state-changing operation, whichever surface issued it.
func (service *Service) Revision() uint64 {
	return service.revision.Load()
}

// logOperation closes every state-changing operation, so it also advances the revision.
func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	service.revision.Add(1)
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// trackInflight registers a cancellable operation on a request; Delete cancels it.
func (service *Service) trackInflight(ctx context.Context, requestID RequestID) (context.Context, func()) {
	trackedContext, cancel := context.WithCancelCause(ctx)
	operation := &inflightOperation{cancel: cancel}
	service.inflightMu.Lock()
	if service.inflight[requestID] == nil {
		service.inflight[requestID] = make(map[*inflightOperation]struct{})
	}
	service.inflight[requestID][operation] = struct{}{}
	service.inflightMu.Unlock()
	return trackedContext, func() {
		service.inflightMu.Lock()
		delete(service.inflight[requestID], operation)
		if len(service.inflight[requestID]) == 0 {
			delete(service.inflight, requestID)
		}
		service.inflightMu.Unlock()
		cancel(nil)
	}
}

func (service *Service) cancelInflight(requestID RequestID) {
	service.inflightMu.Lock()
	defer service.inflightMu.Unlock()
	for operation := range service.inflight[requestID] {
		operation.cancel(fmt.Errorf("%w: request deleted", ErrUnknownRequest))
	}
}

func normalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, duplicate := seen[strings.ToLower(trimmed)]; duplicate {
			continue
		}
		seen[strings.ToLower(trimmed)] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
