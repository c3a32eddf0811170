package gifting

import "time"

const (
	operationCreate      = "create"
	operationUpdate      = "update"
	operationDelete      = "delete"
	operationClone       = "clone"
	operationReserve     = "reserve"
	operationUnreserve   = "unreserve"
	operationAssign      = "assign"
	operationPick        = "pick"
	operationUnpick      = "unpick"
	operationSweep       = "sweep_claims"
	operationAutoProcess = "auto_process"
	operationSendEmails  = "send_emails"
	operationEnqueue     = "enqueue_cards"
	operationCardJob     = "card_job"
	operationPayment     = "payment"
	operationRecipients  = "recipients"

	operationStatusOK          = "ok"
	operationStatusError       = "error"
	operationStatusDeficit     = "deficit"
	operationStatusAlreadySent = "already_sent"
	operationStatusReplayed    = "replayed"

	errorOperationService = "service"
	errorSubjectRequest   = "request"
	errorSubjectCounts    = "counts"
	errorCodeInvariant    = "invariant"

	defaultReservationRetries = 3
	defaultAutoProcessTimeout = 30 * time.Second
	autoProcessLockPrefix     = "gifting:auto_process:"
	cardJobPollLimit          = 50
	claimAttempts             = 2
)
