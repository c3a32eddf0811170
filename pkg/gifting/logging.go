package gifting

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing gifting operation.
type OperationLog struct {
	Operation string
	RequestID RequestID
	Actor     StaffID
	Count     int
	Detail    string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithCardQueue wires the artifact collaborator.
func WithCardQueue(queue CardQueue) ServiceOption {
	return func(service *Service) {
		service.cards = queue
	}
}

// WithCardStatusSource wires the collaborator polled for job completion.
func WithCardStatusSource(source CardStatusSource) ServiceOption {
	return func(service *Service) {
		service.cardStatus = source
	}
}

// WithEmailSender wires the email collaborator.
func WithEmailSender(sender EmailSender) ServiceOption {
	return func(service *Service) {
		service.email = sender
	}
}

// WithLocker serializes AutoProcess per request across processes.
func WithLocker(locker Locker) ServiceOption {
	return func(service *Service) {
		service.locker = locker
	}
}

// WithClaimLeaseTTL makes claims older than ttl reclaimable. Zero disables expiry.
func WithClaimLeaseTTL(ttl time.Duration) ServiceOption {
	return func(service *Service) {
		service.claimTTL = ttl
	}
}

// WithAutoProcessTimeout bounds the reservation and assignment cycle of AutoProcess.
func WithAutoProcessTimeout(timeout time.Duration) ServiceOption {
	return func(service *Service) {
		if timeout > 0 {
			service.autoProcessTimeout = timeout
		}
	}
}

// WithReservationRetries bounds optimistic retries after losing a tree to another request.
func WithReservationRetries(retries int) ServiceOption {
	return func(service *Service) {
		if retries > 0 {
			service.reservationRetries = retries
		}
	}
}

// WithIDGenerator overrides how record ids are minted.
func WithIDGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		if generate != nil {
			service.newID = generate
		}
	}
}
