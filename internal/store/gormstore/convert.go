package gormstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"gorm.io/datatypes"
)

func fromRequest(request gifting.GiftCardRequest) GiftRequest {
	model := GiftRequest{
		ID:               request.ID.String(),
		IdempotencyToken: request.IdempotencyToken.String(),
		Category:         request.Category,
		Grove:            request.Grove,
		RequestType:      request.RequestType.String(),
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
		PlotIDs:          plotColumn(request.PlotIDs),
		PaymentID:        optionalString(request.PaymentID),
		Tags:             datatypes.NewJSONSlice(nonNil(request.Tags)),
		Notes:            request.Notes,
		CardsGenerated:   request.CardsGenerated,
		CreatedAt:        unixToTime(request.CreatedUnixUTC),
		UpdatedAt:        unixToTime(request.UpdatedUnixUTC),
	}
	if !request.ProcessedBy.IsZero() {
		model.ProcessedBy = optionalString(request.ProcessedBy.String())
		claimedAt := unixToTime(request.ClaimedUnixUTC)
		model.ClaimedAt = &claimedAt
	}
	return model
}

func toRequest(model GiftRequest) (gifting.GiftCardRequest, error) {
	requestID, err := gifting.NewRequestID(model.ID)
	if err != nil {
		return gifting.GiftCardRequest{}, err
	}
	token, err := gifting.NewIdempotencyToken(model.IdempotencyToken)
	if err != nil {
		return gifting.GiftCardRequest{}, err
	}
	request := gifting.GiftCardRequest{
		ID:               requestID,
		IdempotencyToken: token,
		Category:         model.Category,
		Grove:            model.Grove,
		RequestType:      gifting.RequestType(model.RequestType),
		SponsorshipType:  model.SponsorshipType,
		SponsorName:      model.SponsorName,
		SponsorEmail:     model.SponsorEmail,
		LogoURL:          model.LogoURL,
		EventName:        model.EventName,
		PrimaryMessage:   model.PrimaryMessage,
		SecondaryMessage: model.SecondaryMessage,
		NoOfCards:        model.NoOfCards,
		Booked:           model.Booked,
		Assigned:         model.Assigned,
		Tags:             append([]string{}, model.Tags...),
		Notes:            model.Notes,
		CardsGenerated:   model.CardsGenerated,
		CreatedUnixUTC:   model.CreatedAt.UTC().Unix(),
		UpdatedUnixUTC:   model.UpdatedAt.UTC().Unix(),
	}
	for _, raw := range model.PlotIDs {
		plotID, err := gifting.NewPlotID(raw)
		if err != nil {
			return gifting.GiftCardRequest{}, err
		}
		request.PlotIDs = append(request.PlotIDs, plotID)
	}
	if model.PaymentID != nil {
		request.PaymentID = *model.PaymentID
	}
	if model.ProcessedBy != nil {
		holder, err := gifting.NewStaffID(*model.ProcessedBy)
		if err != nil {
			return gifting.GiftCardRequest{}, err
		}
		request.ProcessedBy = holder
		request.ClaimedUnixUTC = timeOrZero(model.ClaimedAt)
	}
	return request, nil
}

func toRequests(rows []GiftRequest) ([]gifting.GiftCardRequest, error) {
	requests := make([]gifting.GiftCardRequest, 0, len(rows))
	for _, row := range rows {
		request, err := toRequest(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func requestPatchValues(patch gifting.RequestPatch) map[string]any {
	values := map[string]any{}
	setString := func(column string, value *string) {
		if value != nil {
			values[column] = *value
		}
	}
	setString("category", patch.Category)
	setString("grove", patch.Grove)
	setString("sponsorship_type", patch.SponsorshipType)
	setString("sponsor_name", patch.SponsorName)
	setString("sponsor_email", patch.SponsorEmail)
	setString("logo_url", patch.LogoURL)
	setString("event_name", patch.EventName)
	setString("primary_message", patch.PrimaryMessage)
	setString("secondary_message", patch.SecondaryMessage)
	setString("notes", patch.Notes)
	if patch.RequestType != nil {
		values["request_type"] = patch.RequestType.String()
	}
	if patch.NoOfCards != nil {
		values["no_of_cards"] = *patch.NoOfCards
	}
	if patch.Tags != nil {
		values["tags"] = datatypes.NewJSONSlice(nonNil(*patch.Tags))
	}
	if patch.PlotIDs != nil {
		values["plot_ids"] = plotColumn(*patch.PlotIDs)
	}
	if patch.PaymentID != nil {
		values["payment_id"] = optionalString(*patch.PaymentID)
	}
	if patch.CardsGenerated != nil {
		values["cards_generated"] = *patch.CardsGenerated
	}
	return values
}

func toTrees(rows []Tree) ([]gifting.Tree, error) {
	trees := make([]gifting.Tree, 0, len(rows))
	for _, row := range rows {
		treeID, err := gifting.NewTreeID(row.ID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTree, errorCodeInvalid, err)
		}
		tree := gifting.Tree{ID: treeID, PlotID: gifting.PlotID(row.PlotID), Habitat: row.Habitat, Giftable: row.Giftable}
		if row.ReservedFor != nil {
			reservedFor, err := gifting.NewRequestID(*row.ReservedFor)
			if err != nil {
				return nil, wrapStoreError(errorSubjectTree, errorCodeInvalid, err)
			}
			tree.ReservedFor = reservedFor
		}
		if row.AssignedTo != nil {
			tree.AssignedTo = *row.AssignedTo
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

func treeIDList(treeIDs []gifting.TreeID) []int64 {
	ids := make([]int64, 0, len(treeIDs))
	for _, treeID := range treeIDs {
		ids = append(ids, treeID.Int64())
	}
	return ids
}

func fromRecipient(user gifting.GiftRequestUser) GiftRequestUser {
	model := GiftRequestUser{
		ID:              user.ID,
		RequestID:       user.RequestID.String(),
		RecipientName:   user.RecipientName,
		RecipientEmail:  user.RecipientEmail,
		RecipientPhone:  user.RecipientPhone,
		AssigneeName:    user.AssigneeName,
		AssigneeEmail:   optionalString(user.AssigneeEmail),
		Relation:        string(user.Relation),
		ProfileImageURL: user.ProfileImageURL,
		CreatedAt:       unixToTime(user.CreatedUnixUTC),
	}
	if user.TreeID != 0 {
		treeID := user.TreeID.Int64()
		model.TreeID = &treeID
	}
	return model
}

func toRecipient(model GiftRequestUser) (gifting.GiftRequestUser, error) {
	requestID, err := gifting.NewRequestID(model.RequestID)
	if err != nil {
		return gifting.GiftRequestUser{}, err
	}
	user := gifting.GiftRequestUser{
		ID:              model.ID,
		RequestID:       requestID,
		RecipientName:   model.RecipientName,
		RecipientEmail:  model.RecipientEmail,
		RecipientPhone:  model.RecipientPhone,
		AssigneeName:    model.AssigneeName,
		Relation:        gifting.Relation(model.Relation),
		ProfileImageURL: model.ProfileImageURL,
		CreatedUnixUTC:  model.CreatedAt.UTC().Unix(),
	}
	if model.AssigneeEmail != nil {
		user.AssigneeEmail = *model.AssigneeEmail
	}
	if model.TreeID != nil {
		user.TreeID = gifting.TreeID(*model.TreeID)
	}
	return user, nil
}

func toCardJob(model CardJob) (gifting.CardJob, error) {
	requestID, err := gifting.NewRequestID(model.RequestID)
	if err != nil {
		return gifting.CardJob{}, err
	}
	status, err := gifting.ParseCardJobStatus(model.Status)
	if err != nil {
		return gifting.CardJob{}, err
	}
	return gifting.CardJob{
		ID:             model.ID,
		RequestID:      requestID,
		Status:         status,
		CreatedUnixUTC: model.CreatedAt.UTC().Unix(),
		UpdatedUnixUTC: model.UpdatedAt.UTC().Unix(),
	}, nil
}

func plotColumn(plotIDs []gifting.PlotID) datatypes.JSONSlice[int64] {
	plots := make([]int64, 0, len(plotIDs))
	for _, plotID := range plotIDs {
		plots = append(plots, plotID.Int64())
	}
	return datatypes.NewJSONSlice(plots)
}

// nonNil keeps JSON columns as [] instead of null.
func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func unixToTime(unixUTC int64) time.Time {
	if unixUTC <= 0 {
		return time.Time{}
	}
	return time.Unix(unixUTC, 0).UTC()
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.UTC().Unix()
}
