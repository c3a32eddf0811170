package adminapi

import (
	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"github.com/shopspring/decimal"
)

type createRequestPayload struct {
	IdempotencyToken string   `json:"idempotency_token" validate:"omitempty,max=128"`
	Category         string   `json:"category" validate:"max=64"`
	Grove            string   `json:"grove" validate:"max=128"`
	RequestType      string   `json:"request_type" validate:"required"`
	SponsorshipType  string   `json:"sponsorship_type" validate:"max=64"`
	SponsorName      string   `json:"sponsor_name" validate:"max=255"`
	SponsorEmail     string   `json:"sponsor_email" validate:"omitempty,email"`
	LogoURL          string   `json:"logo_url" validate:"omitempty,url"`
	EventName        string   `json:"event_name" validate:"max=255"`
	PrimaryMessage   string   `json:"primary_message"`
	SecondaryMessage string   `json:"secondary_message"`
	NoOfCards        int      `json:"no_of_cards" validate:"gt=0"`
	Tags             []string `json:"tags" validate:"dive,max=64"`
	Notes            string   `json:"notes"`
}

type updateRequestPayload struct {
	Category         *string   `json:"category" validate:"omitempty,max=64"`
	Grove            *string   `json:"grove" validate:"omitempty,max=128"`
	RequestType      *string   `json:"request_type"`
	SponsorshipType  *string   `json:"sponsorship_type" validate:"omitempty,max=64"`
	SponsorName      *string   `json:"sponsor_name" validate:"omitempty,max=255"`
	SponsorEmail     *string   `json:"sponsor_email" validate:"omitempty,email"`
	LogoURL          *string   `json:"logo_url" validate:"omitempty,url"`
	EventName        *string   `json:"event_name" validate:"omitempty,max=255"`
	PrimaryMessage   *string   `json:"primary_message"`
	SecondaryMessage *string   `json:"secondary_message"`
	NoOfCards        *int      `json:"no_of_cards" validate:"omitempty,gt=0"`
	Notes            *string   `json:"notes"`
	PlotIDs          *[]int64  `json:"plot_ids" validate:"omitempty,dive,gt=0"`
	Tags             *[]string `json:"tags" validate:"omitempty,dive,max=64"`
}

type tagsPayload struct {
	Tags []string `json:"tags" validate:"dive,max=64"`
}

type clonePayload struct {
	IdempotencyToken string `json:"idempotency_token" validate:"omitempty,max=128"`
}

type reserveOptionsPayload struct {
	Diversify       bool `json:"diversify"`
	BookNonGiftable bool `json:"book_non_giftable"`
	BookAllHabits   bool `json:"book_all_habits"`
}

type reservePayload struct {
	RequiredCount int                    `json:"required_count" validate:"gte=0"`
	PlotIDs       []int64                `json:"plot_ids" validate:"dive,gt=0"`
	TreeIDs       []int64                `json:"tree_ids" validate:"dive,gt=0"`
	Options       *reserveOptionsPayload `json:"options"`
}

type unreservePayload struct {
	TreeIDs []int64 `json:"tree_ids" validate:"dive,gt=0"`
}

type recipientPayload struct {
	RecipientName   string `json:"recipient_name" validate:"required,max=255"`
	RecipientEmail  string `json:"recipient_email" validate:"required,email"`
	RecipientPhone  string `json:"recipient_phone" validate:"max=32"`
	AssigneeName    string `json:"assignee_name" validate:"max=255"`
	AssigneeEmail   string `json:"assignee_email" validate:"omitempty,email"`
	Relation        string `json:"relation"`
	ProfileImageURL string `json:"profile_image_url" validate:"omitempty,url"`
}

type addRecipientsPayload struct {
	Recipients []recipientPayload `json:"recipients" validate:"required,min=1,dive"`
}

type recipientPatchPayload struct {
	RecipientName   *string `json:"recipient_name" validate:"omitempty,max=255"`
	RecipientEmail  *string `json:"recipient_email" validate:"omitempty,email"`
	RecipientPhone  *string `json:"recipient_phone" validate:"omitempty,max=32"`
	AssigneeName    *string `json:"assignee_name" validate:"omitempty,max=255"`
	AssigneeEmail   *string `json:"assignee_email" validate:"omitempty,email"`
	Relation        *string `json:"relation"`
	ProfileImageURL *string `json:"profile_image_url" validate:"omitempty,url"`
}

type autoProcessPayload struct {
	Notify   bool   `json:"notify"`
	Template string `json:"template" validate:"max=128"`
}

type sendEmailsPayload struct {
	Roles          []string            `json:"roles"`
	Event          string              `json:"event" validate:"required"`
	Template       string              `json:"template" validate:"max=128"`
	CC             map[string][]string `json:"cc" validate:"dive,dive,email"`
	TestRecipients []string            `json:"test_recipients" validate:"dive,email"`
}

type paymentPayload struct {
	PaymentID string          `json:"payment_id" validate:"required,max=128"`
	Amount    decimal.Decimal `json:"amount"`
}

type albumPayload struct {
	Name      string   `json:"name" validate:"required,max=255"`
	ImageURLs []string `json:"image_urls" validate:"required,min=1,dive,url"`
}

type cardCallbackPayload struct {
	Status string `json:"status" validate:"required"`
}

type requestResponse struct {
	RequestID        string   `json:"request_id"`
	RequestType      string   `json:"request_type"`
	Category         string   `json:"category"`
	Grove            string   `json:"grove"`
	SponsorshipType  string   `json:"sponsorship_type"`
	SponsorName      string   `json:"sponsor_name"`
	SponsorEmail     string   `json:"sponsor_email"`
	LogoURL          string   `json:"logo_url"`
	EventName        string   `json:"event_name"`
	PrimaryMessage   string   `json:"primary_message"`
	SecondaryMessage string   `json:"secondary_message"`
	NoOfCards        int      `json:"no_of_cards"`
	Booked           int      `json:"booked"`
	Assigned         int      `json:"assigned"`
	PlotIDs          []int64  `json:"plot_ids"`
	PaymentID        string   `json:"payment_id,omitempty"`
	ProcessedBy      string   `json:"processed_by,omitempty"`
	ClaimedUnixUTC   int64    `json:"claimed_unix_utc,omitempty"`
	Tags             []string `json:"tags"`
	Notes            string   `json:"notes"`
	CardsGenerated   bool     `json:"cards_generated"`
	Status           string   `json:"status"`
	ValidationErrors []string `json:"validation_errors"`
	CreatedUnixUTC   int64    `json:"created_unix_utc"`
	UpdatedUnixUTC   int64    `json:"updated_unix_utc"`
}

type recipientResponse struct {
	ID              int64  `json:"id"`
	RequestID       string `json:"request_id"`
	RecipientName   string `json:"recipient_name"`
	RecipientEmail  string `json:"recipient_email"`
	RecipientPhone  string `json:"recipient_phone"`
	AssigneeName    string `json:"assignee_name"`
	AssigneeEmail   string `json:"assignee_email"`
	Relation        string `json:"relation"`
	ProfileImageURL string `json:"profile_image_url"`
	TreeID          int64  `json:"tree_id,omitempty"`
	CreatedUnixUTC  int64  `json:"created_unix_utc"`
}

type reservationResponse struct {
	BookedTreeIDs []int64 `json:"booked_tree_ids"`
	Deficit       int     `json:"deficit"`
}

type deliveryResponse struct {
	Role       string   `json:"role"`
	Status     string   `json:"status"`
	Recipients []string `json:"recipients"`
	Error      string   `json:"error,omitempty"`
}

type cardJobResponse struct {
	JobID          string `json:"job_id"`
	RequestID      string `json:"request_id"`
	Status         string `json:"status"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
	UpdatedUnixUTC int64  `json:"updated_unix_utc"`
}

type autoProcessResponse struct {
	Reservation   reservationResponse `json:"reservation"`
	Assigned      int                 `json:"assigned"`
	Status        string              `json:"status"`
	CardJob       *cardJobResponse    `json:"card_job,omitempty"`
	Notifications []deliveryResponse  `json:"notifications,omitempty"`
}

func toRequestResponse(view gifting.RequestView) requestResponse {
	request := view.Request
	response := requestResponse{
		RequestID:        request.ID.String(),
		RequestType:      request.RequestType.String(),
		Category:         request.Category,
		Grove:            request.Grove,
		SponsorshipType:  request.SponsorshipType,
		SponsorName:      request.SponsorName,
		SponsorEmail:     request.SponsorEmail,
		LogoURL:          request.LogoURL,
		EventName:        request.EventName,
		PrimaryMessage:   request.PrimaryMessage,
		SecondaryMessage: request.SecondaryMessage,
		NoOfCards:        request.NoOfCards,
		Booked:           request.Booked,
		Assigned:         request.Assigned,
		PlotIDs:          make([]int64, 0, len(request.PlotIDs)),
		PaymentID:        request.PaymentID,
		ProcessedBy:      request.ProcessedBy.String(),
		ClaimedUnixUTC:   request.ClaimedUnixUTC,
		Tags:             append([]string{}, request.Tags...),
		Notes:            request.Notes,
		CardsGenerated:   request.CardsGenerated,
		Status:           view.Status.String(),
		ValidationErrors: make([]string, 0, len(view.ValidationErrors)),
		CreatedUnixUTC:   request.CreatedUnixUTC,
		UpdatedUnixUTC:   request.UpdatedUnixUTC,
	}
	for _, plotID := range request.PlotIDs {
		response.PlotIDs = append(response.PlotIDs, plotID.Int64())
	}
	for _, code := range view.ValidationErrors {
		response.ValidationErrors = append(response.ValidationErrors, string(code))
	}
	return response
}

func toRecipientResponses(users []gifting.GiftRequestUser) []recipientResponse {
	responses := make([]recipientResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, toRecipientResponse(user))
	}
	return responses
}

func toRecipientResponse(user gifting.GiftRequestUser) recipientResponse {
	return recipientResponse{
		ID:              user.ID,
		RequestID:       user.RequestID.String(),
		RecipientName:   user.RecipientName,
		RecipientEmail:  user.RecipientEmail,
		RecipientPhone:  user.RecipientPhone,
		AssigneeName:    user.AssigneeName,
		AssigneeEmail:   user.AssigneeEmail,
		Relation:        string(user.Relation),
		ProfileImageURL: user.ProfileImageURL,
		TreeID:          user.TreeID.Int64(),
		CreatedUnixUTC:  user.CreatedUnixUTC,
	}
}

func toReservationResponse(result gifting.ReservationResult) reservationResponse {
	response := reservationResponse{BookedTreeIDs: make([]int64, 0, len(result.BookedTreeIDs)), Deficit: result.Deficit}
	for _, treeID := range result.BookedTreeIDs {
		response.BookedTreeIDs = append(response.BookedTreeIDs, treeID.Int64())
	}
	return response
}

func toDeliveryResponses(result gifting.DispatchResult) []deliveryResponse {
	responses := make([]deliveryResponse, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		response := deliveryResponse{Role: string(outcome.Role), Status: string(outcome.Status), Recipients: outcome.Recipients}
		if outcome.Err != nil {
			response.Error = outcome.Err.Error()
		}
		responses = append(responses, response)
	}
	return responses
}

func toCardJobResponse(job gifting.CardJob) cardJobResponse {
	return cardJobResponse{
		JobID:          job.ID,
		RequestID:      job.RequestID.String(),
		Status:         string(job.Status),
		CreatedUnixUTC: job.CreatedUnixUTC,
		UpdatedUnixUTC: job.UpdatedUnixUTC,
	}
}

func toAutoProcessResponse(result gifting.AutoProcessResult) autoProcessResponse {
	response := autoProcessResponse{
		Reservation: toReservationResponse(result.Reservation),
		Assigned:    result.AssignedCount,
		Status:      result.Status.String(),
	}
	if result.CardJob != nil {
		job := toCardJobResponse(*result.CardJob)
		response.CardJob = &job
	}
	if result.Notifications != nil {
		response.Notifications = toDeliveryResponses(*result.Notifications)
	}
	return response
}

func (payload createRequestPayload) toInput() (gifting.CreateRequestInput, error) {
	requestType, err := gifting.ParseRequestType(payload.RequestType)
	if err != nil {
		return gifting.CreateRequestInput{}, err
	}
	return gifting.CreateRequestInput{
		Category:         payload.Category,
		Grove:            payload.Grove,
		RequestType:      requestType,
		SponsorshipType:  payload.SponsorshipType,
		SponsorName:      payload.SponsorName,
		SponsorEmail:     payload.SponsorEmail,
		LogoURL:          payload.LogoURL,
		EventName:        payload.EventName,
		PrimaryMessage:   payload.PrimaryMessage,
		SecondaryMessage: payload.SecondaryMessage,
		NoOfCards:        payload.NoOfCards,
		Tags:             payload.Tags,
		Notes:            payload.Notes,
	}, nil
}

func (payload updateRequestPayload) toPatch() (gifting.RequestPatch, error) {
	patch := gifting.RequestPatch{
		Category:         payload.Category,
		Grove:            payload.Grove,
		SponsorshipType:  payload.SponsorshipType,
		SponsorName:      payload.SponsorName,
		SponsorEmail:     payload.SponsorEmail,
		LogoURL:          payload.LogoURL,
		EventName:        payload.EventName,
		PrimaryMessage:   payload.PrimaryMessage,
		SecondaryMessage: payload.SecondaryMessage,
		NoOfCards:        payload.NoOfCards,
		Notes:            payload.Notes,
		Tags:             payload.Tags,
	}
	if payload.RequestType != nil {
		requestType, err := gifting.ParseRequestType(*payload.RequestType)
		if err != nil {
			return gifting.RequestPatch{}, err
		}
		patch.RequestType = &requestType
	}
	if payload.PlotIDs != nil {
		plotIDs, err := parsePlotIDs(*payload.PlotIDs)
		if err != nil {
			return gifting.RequestPatch{}, err
		}
		patch.PlotIDs = &plotIDs
	}
	return patch, nil
}

func (payload recipientPayload) toInput() gifting.RecipientInput {
	return gifting.RecipientInput{
		RecipientName:   payload.RecipientName,
		RecipientEmail:  payload.RecipientEmail,
		RecipientPhone:  payload.RecipientPhone,
		AssigneeName:    payload.AssigneeName,
		AssigneeEmail:   payload.AssigneeEmail,
		Relation:        payload.Relation,
		ProfileImageURL: payload.ProfileImageURL,
	}
}

func (payload recipientPatchPayload) toPatch() gifting.RecipientPatch {
	return gifting.RecipientPatch{
		RecipientName:   payload.RecipientName,
		RecipientEmail:  payload.RecipientEmail,
		RecipientPhone:  payload.RecipientPhone,
		AssigneeName:    payload.AssigneeName,
		AssigneeEmail:   payload.AssigneeEmail,
		Relation:        payload.Relation,
		ProfileImageURL: payload.ProfileImageURL,
	}
}

func (payload sendEmailsPayload) toInput(requestID gifting.RequestID) (gifting.SendEmailsInput, error) {
	event, err := gifting.ParseEventType(payload.Event)
	if err != nil {
		return gifting.SendEmailsInput{}, err
	}
	input := gifting.SendEmailsInput{
		RequestID:      requestID,
		Event:          event,
		Template:       payload.Template,
		TestRecipients: payload.TestRecipients,
		CC:             make(map[gifting.RecipientRole][]string, len(payload.CC)),
	}
	for _, raw := range payload.Roles {
		role, err := gifting.ParseRecipientRole(raw)
		if err != nil {
			return gifting.SendEmailsInput{}, err
		}
		input.Roles = append(input.Roles, role)
	}
	for raw, addresses := range payload.CC {
		role, err := gifting.ParseRecipientRole(raw)
		if err != nil {
			return gifting.SendEmailsInput{}, err
		}
		input.CC[role] = addresses
	}
	return input, nil
}

func parsePlotIDs(raw []int64) ([]gifting.PlotID, error) {
	plotIDs := make([]gifting.PlotID, 0, len(raw))
	for _, value := range raw {
		plotID, err := gifting.NewPlotID(value)
		if err != nil {
			return nil, err
		}
		plotIDs = append(plotIDs, plotID)
	}
	return plotIDs, nil
}

func parseTreeIDs(raw []int64) ([]gifting.TreeID, error) {
	treeIDs := make([]gifting.TreeID, 0, len(raw))
	for _, value := range raw {
		treeID, err := gifting.NewTreeID(value)
		if err != nil {
			return nil, err
		}
		treeIDs = append(treeIDs, treeID)
	}
	return treeIDs, nil
}
