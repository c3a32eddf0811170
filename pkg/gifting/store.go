package gifting

import (
	"context"
	"time"
)

// Store is the persistence contract used by Service.
// (gormstore implements this.)
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateRequest(ctx context.Context, request GiftCardRequest) error
	GetRequest(ctx context.Context, requestID RequestID) (GiftCardRequest, error)
	// LockRequest reads a request and holds a row lock until the surrounding transaction ends.
	LockRequest(ctx context.Context, requestID RequestID) (GiftCardRequest, error)
	FindRequestByToken(ctx context.Context, token IdempotencyToken) (GiftCardRequest, error)
	UpdateRequest(ctx context.Context, requestID RequestID, patch RequestPatch, updatedUnixUTC int64) error
	// AdjustCounts applies deltas only when 0 <= assigned <= booked <= no_of_cards still holds afterwards.
	AdjustCounts(ctx context.Context, requestID RequestID, bookedDelta int, assignedDelta int) error
	DeleteRequest(ctx context.Context, requestID RequestID) error
	ListRequests(ctx context.Context, query RequestQuery) ([]GiftCardRequest, error)
	GetRequests(ctx context.Context, requestIDs []RequestID) ([]GiftCardRequest, error)

	// AcquireClaim sets processed_by when it is null or was claimed before expiredBeforeUnixUTC.
	AcquireClaim(ctx context.Context, requestID RequestID, holder StaffID, nowUnixUTC int64, expiredBeforeUnixUTC int64) (bool, error)
	ReleaseClaim(ctx context.Context, requestID RequestID, holder StaffID) (bool, error)
	ReleaseExpiredClaims(ctx context.Context, expiredBeforeUnixUTC int64) (int64, error)

	ListAvailableTrees(ctx context.Context, plotIDs []PlotID, giftableOnly bool, habitats []string) ([]Tree, error)
	GetTrees(ctx context.Context, treeIDs []TreeID) ([]Tree, error)
	ListReservedTrees(ctx context.Context, requestID RequestID) ([]Tree, error)
	// ReserveTree books a tree only when it is still unreserved.
	ReserveTree(ctx context.Context, treeID TreeID, requestID RequestID) (bool, error)
	// ReleaseTrees returns the listed trees (all of the request's trees when empty) to inventory.
	ReleaseTrees(ctx context.Context, requestID RequestID, treeIDs []TreeID) (int64, error)
	AssignTree(ctx context.Context, treeID TreeID, requestID RequestID, recipientID int64) error
	UnassignTree(ctx context.Context, treeID TreeID, requestID RequestID) error

	InsertRecipient(ctx context.Context, user GiftRequestUser) (GiftRequestUser, error)
	GetRecipient(ctx context.Context, requestID RequestID, recipientID int64) (GiftRequestUser, error)
	ListRecipients(ctx context.Context, requestID RequestID) ([]GiftRequestUser, error)
	UpdateRecipient(ctx context.Context, user GiftRequestUser) error
	DeleteRecipient(ctx context.Context, requestID RequestID, recipientID int64) error
	DeleteRecipients(ctx context.Context, requestID RequestID) error

	InsertDelivery(ctx context.Context, delivery Delivery) error
	DeleteDelivery(ctx context.Context, requestID RequestID, role RecipientRole, event EventType) error
	DeleteDeliveries(ctx context.Context, requestID RequestID) error

	CreatePayment(ctx context.Context, payment Payment) error
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	ConfirmPayment(ctx context.Context, paymentID string, confirmedUnixUTC int64) error
	UnlinkPayments(ctx context.Context, requestID RequestID) error

	CreateAlbum(ctx context.Context, album Album) error
	DetachAlbums(ctx context.Context, requestID RequestID) error

	InsertCardJob(ctx context.Context, job CardJob) error
	GetCardJob(ctx context.Context, jobID string) (CardJob, error)
	FindPendingCardJob(ctx context.Context, requestID RequestID) (CardJob, bool, error)
	ListPendingCardJobs(ctx context.Context, limit int) ([]CardJob, error)
	UpdateCardJobStatus(ctx context.Context, jobID string, from, to CardJobStatus, updatedUnixUTC int64) error
	DeleteCardJobs(ctx context.Context, requestID RequestID) error
}

// CardQueue hands card generation to the rendering collaborator.
type CardQueue interface {
	EnqueueCardGeneration(ctx context.Context, job CardJob, request GiftCardRequest) error
}

// CardStatusSource reports how far the rendering collaborator got with a job.
type CardStatusSource interface {
	GetCardStatus(ctx context.Context, jobID string) (CardJobStatus, error)
}

// EmailSender delivers a single role's email.
type EmailSender interface {
	Send(ctx context.Context, message EmailMessage) error
}

// Locker serializes auto-processing of one request across processes.
type Locker interface {
	// Acquire returns ErrAutoProcessBusy when the key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
