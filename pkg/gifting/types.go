package gifting

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"
)

// RequestID identifies a gift card request.
type RequestID struct {
	value string
}

// IdempotencyToken is the client-generated token that deduplicates request creation.
type IdempotencyToken struct {
	value string
}

// StaffID identifies a staff actor holding or requesting a claim.
type StaffID struct {
	value string
}

// TreeID identifies a single tree or sapling in inventory.
type TreeID int64

// PlotID identifies a plot.
type PlotID int64

// NewRequestID validates and normalizes a request id.
func NewRequestID(raw string) (RequestID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RequestID{}, fmt.Errorf("%w: empty value", ErrInvalidRequestID)
	}
	return RequestID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RequestID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id RequestID) IsZero() bool {
	return id.value == ""
}

// NewIdempotencyToken validates and normalizes an idempotency token.
func NewIdempotencyToken(raw string) (IdempotencyToken, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyToken{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyToken)
	}
	return IdempotencyToken{value: trimmed}, nil
}

// String returns the normalized token.
func (token IdempotencyToken) String() string {
	return token.value
}

// NewStaffID validates and normalizes a staff id.
func NewStaffID(raw string) (StaffID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StaffID{}, fmt.Errorf("%w: empty value", ErrInvalidStaffID)
	}
	return StaffID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id StaffID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id StaffID) IsZero() bool {
	return id.value == ""
}

// NewTreeID validates a tree id.
func NewTreeID(raw int64) (TreeID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidTreeID)
	}
	return TreeID(raw), nil
}

// Int64 exposes the raw value.
func (id TreeID) Int64() int64 {
	return int64(id)
}

// NewPlotID validates a plot id.
func NewPlotID(raw int64) (PlotID, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPlotID)
	}
	return PlotID(raw), nil
}

// Int64 exposes the raw value.
func (id PlotID) Int64() int64 {
	return int64(id)
}

// RequestType enumerates the kinds of dedication work.
type RequestType string

const (
	RequestTypeGiftCards        RequestType = "Gift Cards"
	RequestTypeNormalAssignment RequestType = "Normal Assignment"
	RequestTypePromotion        RequestType = "Promotion"
	RequestTypeTest             RequestType = "Test"
	RequestTypeVisit            RequestType = "Visit"
)

// ParseRequestType validates a request type.
func ParseRequestType(raw string) (RequestType, error) {
	switch RequestType(strings.TrimSpace(raw)) {
	case RequestTypeGiftCards:
		return RequestTypeGiftCards, nil
	case RequestTypeNormalAssignment:
		return RequestTypeNormalAssignment, nil
	case RequestTypePromotion:
		return RequestTypePromotion, nil
	case RequestTypeTest:
		return RequestTypeTest, nil
	case RequestTypeVisit:
		return RequestTypeVisit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRequestType, raw)
	}
}

// String returns the wire value.
func (requestType RequestType) String() string {
	return string(requestType)
}

// RequiresLogo reports whether cards of this type carry the sponsor logo.
func (requestType RequestType) RequiresLogo() bool {
	return requestType == RequestTypeGiftCards || requestType == RequestTypePromotion
}

// BooksNonGiftable reports whether reservations for this type may take non-giftable trees.
func (requestType RequestType) BooksNonGiftable() bool {
	return requestType == RequestTypeNormalAssignment || requestType == RequestTypeVisit
}

// RequestStatus is derived from a request's counts and artifact state. It is never stored.
type RequestStatus string

const (
	StatusPendingPlotSelection RequestStatus = "pending_plot_selection"
	StatusPendingAssignment    RequestStatus = "pending_assignment"
	StatusPendingGiftCards     RequestStatus = "pending_gift_cards"
	StatusCompleted            RequestStatus = "completed"
)

// String returns the wire value.
func (status RequestStatus) String() string {
	return string(status)
}

// ValidationCode annotates a request with missing data that blocks a specific downstream step.
type ValidationCode string

const (
	ValidationMissingLogo        ValidationCode = "MISSING_LOGO"
	ValidationMissingUserDetails ValidationCode = "MISSING_USER_DETAILS"
)

// GiftCardRequest is a unit of work dedicating NoOfCards trees.
type GiftCardRequest struct {
	ID               RequestID
	IdempotencyToken IdempotencyToken
	Category         string
	Grove            string
	RequestType      RequestType
	SponsorshipType  string
	SponsorName      string
	SponsorEmail     string
	LogoURL          string
	EventName        string
	PrimaryMessage   string
	SecondaryMessage string
	NoOfCards        int
	Booked           int
	Assigned         int
	PlotIDs          []PlotID
	PaymentID        string
	ProcessedBy      StaffID
	ClaimedUnixUTC   int64
	Tags             []string
	Notes            string
	CardsGenerated   bool
	CreatedUnixUTC   int64
	UpdatedUnixUTC   int64
}

// Status derives the lifecycle status from the request's determinants.
func (request GiftCardRequest) Status() RequestStatus {
	return DeriveStatus(len(request.PlotIDs) > 0, request.NoOfCards, request.Assigned, request.CardsGenerated)
}

// RequestView is a request annotated with its derived status and validation codes.
type RequestView struct {
	Request          GiftCardRequest
	Status           RequestStatus
	ValidationErrors []ValidationCode
}

// Relation describes how an assignee relates to the recipient when they differ.
type Relation string

const (
	RelationFather    Relation = "father"
	RelationMother    Relation = "mother"
	RelationSpouse    Relation = "spouse"
	RelationChild     Relation = "child"
	RelationSibling   Relation = "sibling"
	RelationFriend    Relation = "friend"
	RelationColleague Relation = "colleague"
	RelationOther     Relation = "other"
)

// ParseRelation validates a relation; the empty string is allowed and means "same person".
func ParseRelation(raw string) (Relation, error) {
	normalized := Relation(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case "", RelationFather, RelationMother, RelationSpouse, RelationChild, RelationSibling, RelationFriend, RelationColleague, RelationOther:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRelation, raw)
	}
}

// GiftRequestUser pairs one recipient with one assignee under a request.
type GiftRequestUser struct {
	ID              int64
	RequestID       RequestID
	RecipientName   string
	RecipientEmail  string
	RecipientPhone  string
	AssigneeName    string
	AssigneeEmail   string
	Relation        Relation
	ProfileImageURL string
	TreeID          TreeID
	CreatedUnixUTC  int64
}

// IsAssigned reports whether a tree was issued to this mapping.
func (user GiftRequestUser) IsAssigned() bool {
	return user.TreeID != 0
}

// IsComplete reports whether the mapping carries everything card issuance needs.
func (user GiftRequestUser) IsComplete() bool {
	if strings.TrimSpace(user.RecipientName) == "" || strings.TrimSpace(user.RecipientEmail) == "" {
		return false
	}
	if strings.TrimSpace(user.AssigneeName) == "" || strings.TrimSpace(user.AssigneeEmail) == "" {
		return false
	}
	if !strings.EqualFold(user.AssigneeEmail, user.RecipientEmail) && user.Relation == "" {
		return false
	}
	return true
}

// RecipientInput describes a mapping to add under a request.
type RecipientInput struct {
	RecipientName   string
	RecipientEmail  string
	RecipientPhone  string
	AssigneeName    string
	AssigneeEmail   string
	Relation        string
	ProfileImageURL string
}

// RecipientPatch lists the mutable mapping fields; nil fields are left untouched.
type RecipientPatch struct {
	RecipientName   *string
	RecipientEmail  *string
	RecipientPhone  *string
	AssigneeName    *string
	AssigneeEmail   *string
	Relation        *string
	ProfileImageURL *string
}

// Tree is one inventory item.
type Tree struct {
	ID          TreeID
	PlotID      PlotID
	Habitat     string
	Giftable    bool
	ReservedFor RequestID
	AssignedTo  int64
}

// IsAvailable reports whether the tree can be booked.
func (tree Tree) IsAvailable() bool {
	return tree.ReservedFor.IsZero()
}

// ReserveOptions tunes tree selection.
type ReserveOptions struct {
	Diversify       bool
	BookNonGiftable bool
	BookAllHabits   bool
}

// ReserveInput describes one reservation call.
type ReserveInput struct {
	RequestID       RequestID
	RequiredCount   int
	PlotIDs         []PlotID
	Options         ReserveOptions
	ExplicitTreeIDs []TreeID
}

// ReservationResult reports what was booked and how far short the booking fell.
type ReservationResult struct {
	BookedTreeIDs []TreeID
	Deficit       int
}

// CreateRequestInput carries the attributes supplied at submission.
type CreateRequestInput struct {
	Category         string
	Grove            string
	RequestType      RequestType
	SponsorshipType  string
	SponsorName      string
	SponsorEmail     string
	LogoURL          string
	EventName        string
	PrimaryMessage   string
	SecondaryMessage string
	NoOfCards        int
	Tags             []string
	Notes            string
}

// RequestPatch lists the fields an update may change. Nil fields are not touched.
type RequestPatch struct {
	Category         *string
	Grove            *string
	RequestType      *RequestType
	SponsorshipType  *string
	SponsorName      *string
	SponsorEmail     *string
	LogoURL          *string
	EventName        *string
	PrimaryMessage   *string
	SecondaryMessage *string
	NoOfCards        *int
	Notes            *string
	Tags             *[]string
	PlotIDs          *[]PlotID
	PaymentID        *string
	CardsGenerated   *bool
}

// IsEmpty reports whether the patch changes nothing.
func (patch RequestPatch) IsEmpty() bool {
	return patch == RequestPatch{}
}

// RequestQuery filters and pages a request listing.
type RequestQuery struct {
	RequestType RequestType
	ProcessedBy string
	Tag         string
	Search      string
	SortBy      string
	Descending  bool
	Offset      int
	Limit       int
}

// RecipientRole names who an email is addressed to.
type RecipientRole string

const (
	RoleSponsor   RecipientRole = "sponsor"
	RoleRecipient RecipientRole = "recipient"
	RoleAssignee  RecipientRole = "assignee"
)

// ParseRecipientRole validates a role.
func ParseRecipientRole(raw string) (RecipientRole, error) {
	switch RecipientRole(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleSponsor:
		return RoleSponsor, nil
	case RoleRecipient:
		return RoleRecipient, nil
	case RoleAssignee:
		return RoleAssignee, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipientRole, raw)
	}
}

// EventType names the occasion an email is sent for.
type EventType string

const (
	EventTreesAssigned EventType = "trees_assigned"
	EventCardsReady    EventType = "cards_ready"
	EventReceipt       EventType = "receipt"
)

// ParseEventType validates an event type.
func ParseEventType(raw string) (EventType, error) {
	switch EventType(strings.ToLower(strings.TrimSpace(raw))) {
	case EventTreesAssigned:
		return EventTreesAssigned, nil
	case EventCardsReady:
		return EventCardsReady, nil
	case EventReceipt:
		return EventReceipt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEventType, raw)
	}
}

// DeliveryStatus is the per-role outcome of an email dispatch.
type DeliveryStatus string

const (
	DeliverySent        DeliveryStatus = "sent"
	DeliveryAlreadySent DeliveryStatus = "already_sent"
	DeliveryFailed      DeliveryStatus = "failed"
	DeliverySkipped     DeliveryStatus = "skipped"
)

// Delivery is one row of the "already sent" ledger.
type Delivery struct {
	RequestID      RequestID
	Role           RecipientRole
	Event          EventType
	Recipients     []string
	CreatedUnixUTC int64
}

// EmailMessage is handed to the email collaborator for a single role.
type EmailMessage struct {
	RequestID  RequestID
	Role       RecipientRole
	Event      EventType
	Template   string
	To         []string
	CC         []string
	Metadata   map[string]string
	IsTestSend bool
}

// SendEmailsInput describes a notification dispatch.
type SendEmailsInput struct {
	RequestID      RequestID
	Roles          []RecipientRole
	Event          EventType
	Template       string
	CC             map[RecipientRole][]string
	TestRecipients []string
}

// RoleOutcome reports what happened for one role.
type RoleOutcome struct {
	Role       RecipientRole
	Status     DeliveryStatus
	Recipients []string
	Err        error
}

// DispatchResult aggregates per-role outcomes without collapsing them.
type DispatchResult struct {
	Outcomes []RoleOutcome
}

// Outcome returns the outcome for a role.
func (result DispatchResult) Outcome(role RecipientRole) (RoleOutcome, bool) {
	for _, outcome := range result.Outcomes {
		if outcome.Role == role {
			return outcome, true
		}
	}
	return RoleOutcome{}, false
}

// PaymentStatus defines payment lifecycle. Confirmation is one-way.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
)

// Payment is the local record of an external payment.
type Payment struct {
	ID               string
	RequestID        RequestID
	Amount           decimal.Decimal
	Status           PaymentStatus
	ConfirmedUnixUTC int64
}

// Album groups memory images attached to a request.
type Album struct {
	ID        string
	RequestID RequestID
	Name      string
	ImageURLs []string
}

// CardJobStatus defines the artifact generation lifecycle.
type CardJobStatus string

const (
	CardJobPending   CardJobStatus = "pending"
	CardJobCompleted CardJobStatus = "completed"
	CardJobFailed    CardJobStatus = "failed"
)

// ParseCardJobStatus validates a job status.
func ParseCardJobStatus(raw string) (CardJobStatus, error) {
	switch CardJobStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case CardJobPending:
		return CardJobPending, nil
	case CardJobCompleted:
		return CardJobCompleted, nil
	case CardJobFailed:
		return CardJobFailed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCardJobStatus, raw)
	}
}

// CardJob tracks one asynchronous card generation.
type CardJob struct {
	ID             string
	RequestID      RequestID
	Status         CardJobStatus
	CreatedUnixUTC int64
	UpdatedUnixUTC int64
}

// AutoProcessOptions tunes the composite operation.
type AutoProcessOptions struct {
	Notify   bool
	Template string
}

// AutoProcessResult reports what each step of AutoProcess achieved.
type AutoProcessResult struct {
	Reservation   ReservationResult
	AssignedCount int
	Status        RequestStatus
	CardJob       *CardJob
	Notifications *DispatchResult
}

func validEmail(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	_, err := mail.ParseAddress(raw)
	return err == nil
}
