package grpcserver

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	errorInvalidRequestID      = "invalid_request_id"
	errorInvalidStaffID        = "invalid_staff_id"
	errorInvalidTreeID         = "invalid_tree_id"
	errorInvalidPlotID         = "invalid_plot_id"
	errorInvalidReservation    = "invalid_reservation"
	errorInvalidRecipientRole  = "invalid_recipient_role"
	errorInvalidEventType      = "invalid_event_type"
	errorInvalidRecipient      = "invalid_recipient"
	errorInvalidCardJobStatus  = "invalid_card_job_status"
	errorUnknownRequest        = "unknown_request"
	errorUnknownCardJob        = "unknown_card_job"
	errorAlreadyClaimed        = "already_claimed"
	errorNotClaimOwner         = "not_claim_owner"
	errorInsufficientInventory = "insufficient_inventory"
	errorConflictingReserve    = "conflicting_reservation"
	errorNoPlotSelection       = "no_plot_selection"
	errorValidationIncomplete  = "validation_incomplete"
	errorCardsNotReady         = "cards_not_ready"
	errorCardJobClosed         = "card_job_closed"
	errorAutoProcessBusy       = "auto_process_busy"
	errorAutoProcessTimeout    = "auto_process_timeout"
	errorPartialAutoProcess    = "partial_auto_process"
	errorCountInvariant        = "count_invariant"
	errorServiceUnavailable    = "service_unavailable"
)

// GiftingServiceServer exposes the gifting engine over gRPC.
type GiftingServiceServer struct {
	giftingService *gifting.Service
}

// NewGiftingServiceServer constructs a gRPC server for the gifting service.
func NewGiftingServiceServer(giftingService *gifting.Service) *GiftingServiceServer {
	return &GiftingServiceServer{giftingService: giftingService}
}

func (server *GiftingServiceServer) GetRequest(ctx context.Context, request *RequestIDMessage) (*RequestReply, error) {
	requestID, err := gifting.NewRequestID(request.RequestID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	view, err := server.giftingService.Get(ctx, requestID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return toRequestReply(view), nil
}

func (server *GiftingServiceServer) Pick(ctx context.Context, request *ClaimRequest) (*RequestReply, error) {
	requestID, err := gifting.NewRequestID(request.RequestID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	holder, err := gifting.NewStaffID(request.StaffID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	if _, err := server.giftingService.Pick(ctx, requestID, holder); err != nil {
		return nil, mapToGRPCError(err)
	}
	view, err := server.giftingService.Get(ctx, requestID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return toRequestReply(view), nil
}

func (server *GiftingServiceServer) Unpick(ctx context.Context, request *ClaimRequest) (*Empty, error) {
	requestID, err := gifting.NewRequestID(request.RequestID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	holder, err := gifting.NewStaffID(request.StaffID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	if err := server.giftingService.Unpick(ctx, requestID, holder); err != nil {
		return nil, mapToGRPCError(err)
	}
	return &Empty{}, nil
}

func (server *GiftingServiceServer) Reserve(ctx context.Context, request *ReserveRequest) (*ReserveReply, error) {
	requestID, err := gifting.NewRequestID(request.RequestID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	input := gifting.ReserveInput{
		RequestID:     requestID,
		RequiredCount: request.RequiredCount,
		Options: gifting.ReserveOptions{
			Diversify:       request.Diversify,
			BookNonGiftable: request.BookNonGiftable,
			BookAllHabits:   request.BookAllHabits,
		},
	}
	for _, raw := range request.PlotIDs {
		plotID, err := gifting.NewPlotID(raw)
		if err != nil {
			return nil, mapToGRPCError(err)
		}
		input.PlotIDs = append(input.PlotIDs, plotID)
	}
	for _, raw := range request.TreeIDs {
		treeID, err := gifting.NewTreeID(raw)
		if err != nil {
			return nil, mapToGRPCError(err)
		}
		input.ExplicitTreeIDs = append(input.ExplicitTreeIDs, treeID)
	}
	result, err := server.giftingService.Reserve(ctx, input)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &ReserveReply{BookedTreeIDs: treeIDValues(result.BookedTreeIDs), Deficit: result.Deficit}, nil
}

func (server *GiftingServiceServer) AutoProcess(ctx context.Context, request *AutoProcessRequest) (*AutoProcessReply, error) {
	requestID, err := gifting.NewRequestID(request.RequestID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	result, err := server.giftingService.AutoProcess(ctx, requestID, gifting.AutoProcessOptions{Notify: request.Notify, Template: request.Template})
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	reply := &AutoProcessReply{
		BookedTreeIDs: treeIDValues(result.Reservation.BookedTreeIDs),
		Deficit:       result.Reservation.Deficit,
		Assigned:      result.AssignedCount,
		Status:        result.Status.String(),
	}
	if result.CardJob != nil {
		reply.CardJobID = result.CardJob.ID
	}
	if result.Notifications != nil {
		reply.Notifications = toDeliveryResults(*result.Notifications)
	}
	return reply, nil
}

func (server *GiftingServiceServer) SendEmails(ctx context.Context, request *SendEmailsRequest) (*SendEmailsReply, error) {
	requestID, err := gifting.NewRequestID(request.RequestID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	event, err := gifting.ParseEventType(request.Event)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	input := gifting.SendEmailsInput{
		RequestID:      requestID,
		Event:          event,
		Template:       request.Template,
		TestRecipients: request.TestRecipients,
		CC:             make(map[gifting.RecipientRole][]string, len(request.CC)),
	}
	for _, raw := range request.Roles {
		role, err := gifting.ParseRecipientRole(raw)
		if err != nil {
			return nil, mapToGRPCError(err)
		}
		input.Roles = append(input.Roles, role)
	}
	for raw, addresses := range request.CC {
		role, err := gifting.ParseRecipientRole(raw)
		if err != nil {
			return nil, mapToGRPCError(err)
		}
		input.CC[role] = addresses
	}
	result, err := server.giftingService.SendEmails(ctx, input)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &SendEmailsReply{Results: toDeliveryResults(result)}, nil
}

func (server *GiftingServiceServer) CompleteCardJob(ctx context.Context, request *CompleteCardJobRequest) (*CardJobReply, error) {
	jobStatus, err := gifting.ParseCardJobStatus(request.Status)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	job, err := server.giftingService.CompleteCardJob(ctx, request.JobID, jobStatus)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &CardJobReply{JobID: job.ID, RequestID: job.RequestID.String(), Status: string(job.Status)}, nil
}

func toRequestReply(view gifting.RequestView) *RequestReply {
	request := view.Request
	reply := &RequestReply{
		RequestID:      request.ID.String(),
		RequestType:    request.RequestType.String(),
		SponsorName:    request.SponsorName,
		EventName:      request.EventName,
		NoOfCards:      request.NoOfCards,
		Booked:         request.Booked,
		Assigned:       request.Assigned,
		PlotIDs:        make([]int64, 0, len(request.PlotIDs)),
		ProcessedBy:    request.ProcessedBy.String(),
		Tags:           append([]string{}, request.Tags...),
		CardsGenerated: request.CardsGenerated,
		Status:         view.Status.String(),
	}
	for _, plotID := range request.PlotIDs {
		reply.PlotIDs = append(reply.PlotIDs, plotID.Int64())
	}
	for _, code := range view.ValidationErrors {
		reply.ValidationErrors = append(reply.ValidationErrors, string(code))
	}
	return reply
}

func toDeliveryResults(result gifting.DispatchResult) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		delivery := DeliveryResult{Role: string(outcome.Role), Status: string(outcome.Status), Recipients: outcome.Recipients}
		if outcome.Err != nil {
			delivery.Error = outcome.Err.Error()
		}
		results = append(results, delivery)
	}
	return results
}

func treeIDValues(treeIDs []gifting.TreeID) []int64 {
	values := make([]int64, 0, len(treeIDs))
	for _, treeID := range treeIDs {
		values = append(values, treeID.Int64())
	}
	return values
}

func mapToGRPCError(source error) error {
	var claimConflict gifting.ClaimConflictError
	if errors.As(source, &claimConflict) {
		return status.Errorf(codes.FailedPrecondition, "%s:%s", errorAlreadyClaimed, claimConflict.Holder.String())
	}
	if errors.Is(source, gifting.ErrInvalidRequestID) {
		return status.Error(codes.InvalidArgument, errorInvalidRequestID)
	}
	if errors.Is(source, gifting.ErrInvalidStaffID) {
		return status.Error(codes.InvalidArgument, errorInvalidStaffID)
	}
	if errors.Is(source, gifting.ErrInvalidTreeID) {
		return status.Error(codes.InvalidArgument, errorInvalidTreeID)
	}
	if errors.Is(source, gifting.ErrInvalidPlotID) {
		return status.Error(codes.InvalidArgument, errorInvalidPlotID)
	}
	if errors.Is(source, gifting.ErrInvalidReservation) {
		return status.Error(codes.InvalidArgument, errorInvalidReservation)
	}
	if errors.Is(source, gifting.ErrInvalidRecipientRole) {
		return status.Error(codes.InvalidArgument, errorInvalidRecipientRole)
	}
	if errors.Is(source, gifting.ErrInvalidEventType) {
		return status.Error(codes.InvalidArgument, errorInvalidEventType)
	}
	if errors.Is(source, gifting.ErrInvalidRecipient) {
		return status.Error(codes.InvalidArgument, errorInvalidRecipient)
	}
	if errors.Is(source, gifting.ErrInvalidCardJobStatus) {
		return status.Error(codes.InvalidArgument, errorInvalidCardJobStatus)
	}
	if errors.Is(source, gifting.ErrUnknownRequest) {
		return status.Error(codes.NotFound, errorUnknownRequest)
	}
	if errors.Is(source, gifting.ErrUnknownCardJob) {
		return status.Error(codes.NotFound, errorUnknownCardJob)
	}
	if errors.Is(source, gifting.ErrNotClaimOwner) {
		return status.Error(codes.PermissionDenied, errorNotClaimOwner)
	}
	if errors.Is(source, gifting.ErrAutoProcessBusy) {
		return status.Error(codes.Aborted, errorAutoProcessBusy)
	}
	if errors.Is(source, gifting.ErrAutoProcessTimeout) {
		return status.Error(codes.DeadlineExceeded, errorAutoProcessTimeout)
	}
	if errors.Is(source, gifting.ErrInsufficientInventory) {
		return status.Error(codes.FailedPrecondition, errorInsufficientInventory)
	}
	if errors.Is(source, gifting.ErrConflictingReservation) {
		return status.Error(codes.Aborted, errorConflictingReserve)
	}
	if errors.Is(source, gifting.ErrNoPlotSelection) {
		return status.Error(codes.FailedPrecondition, errorNoPlotSelection)
	}
	if errors.Is(source, gifting.ErrValidationIncomplete) {
		return status.Error(codes.FailedPrecondition, errorValidationIncomplete)
	}
	if errors.Is(source, gifting.ErrCardsNotReady) {
		return status.Error(codes.FailedPrecondition, errorCardsNotReady)
	}
	if errors.Is(source, gifting.ErrCardJobClosed) {
		return status.Error(codes.FailedPrecondition, errorCardJobClosed)
	}
	if errors.Is(source, gifting.ErrPartialAutoProcess) {
		return status.Error(codes.Unavailable, errorPartialAutoProcess)
	}
	if errors.Is(source, gifting.ErrCountInvariant) {
		return status.Error(codes.Aborted, errorCountInvariant)
	}
	if errors.Is(source, gifting.ErrInvalidServiceConfig) {
		return status.Error(codes.Unimplemented, errorServiceUnavailable)
	}
	return status.Error(codes.Internal, source.Error())
}
