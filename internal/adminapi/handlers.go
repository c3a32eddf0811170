package adminapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	holder, ok := handler.staffID(ctx)
	if !ok {
		return
	}
	claims := getClaims(ctx)
	ctx.JSON(http.StatusOK, gin.H{
		"staff_id": holder.String(),
		"email":    claims.GetUserEmail(),
		"display":  claims.GetUserDisplayName(),
		"roles":    claims.GetUserRoles(),
		"expires":  claims.GetExpiresAt().Unix(),
	})
}

func (handler *httpHandler) handleListRequests(ctx *gin.Context) {
	query, err := parseRequestQuery(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidRequest, err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	views, err := handler.listing.Page(requestCtx, query)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requests := make([]requestResponse, 0, len(views))
	for _, view := range views {
		requests = append(requests, toRequestResponse(view))
	}
	ctx.JSON(http.StatusOK, gin.H{"requests": requests})
}

func parseRequestQuery(ctx *gin.Context) (gifting.RequestQuery, error) {
	query := gifting.RequestQuery{
		ProcessedBy: strings.TrimSpace(ctx.Query("processed_by")),
		Tag:         strings.TrimSpace(ctx.Query("tag")),
		Search:      strings.TrimSpace(ctx.Query("search")),
		SortBy:      strings.TrimSpace(ctx.Query("sort")),
		Descending:  strings.EqualFold(ctx.Query("order"), "desc"),
	}
	if raw := ctx.Query("type"); raw != "" {
		requestType, err := gifting.ParseRequestType(raw)
		if err != nil {
			return gifting.RequestQuery{}, err
		}
		query.RequestType = requestType
	}
	for name, target := range map[string]*int{"offset": &query.Offset, "limit": &query.Limit} {
		raw := ctx.Query(name)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return gifting.RequestQuery{}, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
		}
		*target = value
	}
	return query, nil
}

func (handler *httpHandler) handleCreateRequest(ctx *gin.Context) {
	var payload createRequestPayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	rawToken := ctx.GetHeader(idempotencyHeader)
	if strings.TrimSpace(rawToken) == "" {
		rawToken = payload.IdempotencyToken
	}
	token, err := gifting.NewIdempotencyToken(rawToken)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	input, err := payload.toInput()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	request, created, err := handler.giftingService.Create(requestCtx, token, input)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithRequest(ctx, request.ID, createdStatus(created), gin.H{"created": created})
}

func (handler *httpHandler) handleGetRequest(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	handler.respondWithRequest(ctx, requestID, http.StatusOK, nil)
}

func (handler *httpHandler) handleUpdateRequest(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload updateRequestPayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	patch, err := payload.toPatch()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if _, err := handler.giftingService.Update(requestCtx, requestID, patch); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithRequest(ctx, requestID, http.StatusOK, nil)
}

func (handler *httpHandler) handleSetTags(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload tagsPayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if _, err := handler.giftingService.SetTags(requestCtx, requestID, payload.Tags); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithRequest(ctx, requestID, http.StatusOK, nil)
}

func (handler *httpHandler) handleDeleteRequest(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	confirmed, _ := strconv.ParseBool(ctx.Query("confirm"))
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.giftingService.Delete(requestCtx, requestID, confirmed); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleCloneRequest(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload clonePayload
	if !handler.bindPayload(ctx, &payload, true) {
		return
	}
	rawToken := ctx.GetHeader(idempotencyHeader)
	if strings.TrimSpace(rawToken) == "" {
		rawToken = payload.IdempotencyToken
	}
	token, err := gifting.NewIdempotencyToken(rawToken)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	clone, created, err := handler.giftingService.Clone(requestCtx, requestID, token)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithRequest(ctx, clone.ID, createdStatus(created), gin.H{"created": created, "source_id": requestID.String()})
}

func (handler *httpHandler) handlePick(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	holder, ok := handler.staffID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if _, err := handler.giftingService.Pick(requestCtx, requestID, holder); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithRequest(ctx, requestID, http.StatusOK, nil)
}

func (handler *httpHandler) handleUnpick(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	holder, ok := handler.staffID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.giftingService.Unpick(requestCtx, requestID, holder); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithRequest(ctx, requestID, http.StatusOK, nil)
}

func (handler *httpHandler) handleReserve(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload reservePayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	plotIDs, err := parsePlotIDs(payload.PlotIDs)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	treeIDs, err := parseTreeIDs(payload.TreeIDs)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	input := gifting.ReserveInput{
		RequestID:       requestID,
		RequiredCount:   payload.RequiredCount,
		PlotIDs:         plotIDs,
		ExplicitTreeIDs: treeIDs,
	}
	if payload.Options != nil {
		input.Options = gifting.ReserveOptions{
			Diversify:       payload.Options.Diversify,
			BookNonGiftable: payload.Options.BookNonGiftable,
			BookAllHabits:   payload.Options.BookAllHabits,
		}
	} else {
		view, err := handler.giftingService.Get(requestCtx, requestID)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		input.Options = gifting.DefaultReserveOptions(view.Request.RequestType)
	}
	result, err := handler.giftingService.Reserve(requestCtx, input)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservation": toReservationResponse(result)})
}

func (handler *httpHandler) handleUnreserve(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload unreservePayload
	if !handler.bindPayload(ctx, &payload, true) {
		return
	}
	treeIDs, err := parseTreeIDs(payload.TreeIDs)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	released, err := handler.giftingService.Unreserve(requestCtx, requestID, treeIDs)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"released": released})
}

func (handler *httpHandler) handleListRecipients(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	users, err := handler.giftingService.Recipients(requestCtx, requestID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"recipients": toRecipientResponses(users)})
}

func (handler *httpHandler) handleAddRecipients(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload addRecipientsPayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	inputs := make([]gifting.RecipientInput, 0, len(payload.Recipients))
	for _, recipient := range payload.Recipients {
		inputs = append(inputs, recipient.toInput())
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	users, err := handler.giftingService.AddRecipients(requestCtx, requestID, inputs)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"recipients": toRecipientResponses(users)})
}

func (handler *httpHandler) handleUpdateRecipient(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	recipientID, ok := recipientIDParam(ctx)
	if !ok {
		return
	}
	var payload recipientPatchPayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	user, err := handler.giftingService.UpdateRecipient(requestCtx, requestID, recipientID, payload.toPatch())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"recipient": toRecipientResponse(user)})
}

func (handler *httpHandler) handleDeleteRecipient(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	recipientID, ok := recipientIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.giftingService.DeleteRecipient(requestCtx, requestID, recipientID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func recipientIDParam(ctx *gin.Context) (int64, bool) {
	recipientID, err := strconv.ParseInt(ctx.Param("recipientID"), 10, 64)
	if err != nil || recipientID <= 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidRequest, "recipient id must be a positive integer"))
		return 0, false
	}
	return recipientID, true
}

func (handler *httpHandler) handleAssign(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	assigned, err := handler.giftingService.Assign(requestCtx, requestID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"assigned": assigned})
}

func (handler *httpHandler) handleAutoProcess(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload autoProcessPayload
	if !handler.bindPayload(ctx, &payload, true) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.giftingService.AutoProcess(requestCtx, requestID, gifting.AutoProcessOptions{
		Notify:   payload.Notify,
		Template: payload.Template,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"result": toAutoProcessResponse(result)})
}

func (handler *httpHandler) handleSendEmails(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload sendEmailsPayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	input, err := payload.toInput(requestID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.giftingService.SendEmails(requestCtx, input)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": toDeliveryResponses(result)})
}

func (handler *httpHandler) handleEnqueueCards(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	job, err := handler.giftingService.EnqueueCards(requestCtx, requestID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"card_job": toCardJobResponse(job)})
}

func (handler *httpHandler) handleGetCardJob(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	job, err := handler.giftingService.CardJob(requestCtx, ctx.Param("jobID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"card_job": toCardJobResponse(job)})
}

func (handler *httpHandler) handleAttachPayment(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload paymentPayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	payment, err := handler.giftingService.AttachPayment(requestCtx, requestID, payload.PaymentID, payload.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"payment": gin.H{
		"payment_id": payment.ID,
		"request_id": payment.RequestID.String(),
		"amount":     payment.Amount.StringFixed(2),
		"status":     string(payment.Status),
	}})
}

func (handler *httpHandler) handleAttachAlbum(ctx *gin.Context) {
	requestID, ok := handler.requestIDParam(ctx)
	if !ok {
		return
	}
	var payload albumPayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	album, err := handler.giftingService.AttachAlbum(requestCtx, requestID, payload.Name, payload.ImageURLs)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"album": gin.H{
		"album_id":   album.ID,
		"request_id": album.RequestID.String(),
		"name":       album.Name,
		"image_urls": album.ImageURLs,
	}})
}

func (handler *httpHandler) handleCardCallback(ctx *gin.Context) {
	var payload cardCallbackPayload
	if !handler.bindPayload(ctx, &payload, false) {
		return
	}
	jobStatus, err := gifting.ParseCardJobStatus(payload.Status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	job, err := handler.giftingService.CompleteCardJob(requestCtx, ctx.Param("jobID"), jobStatus)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"card_job": toCardJobResponse(job)})
}

func (handler *httpHandler) handlePaymentConfirmed(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	requestID, err := handler.giftingService.OnPaymentConfirmed(requestCtx, ctx.Param("paymentID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"request_id": requestID.String(), "status": string(gifting.PaymentStatusConfirmed)})
}

// respondWithRequest re-reads the request so responses always carry derived status.
func (handler *httpHandler) respondWithRequest(ctx *gin.Context, requestID gifting.RequestID, status int, extra gin.H) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	view, err := handler.giftingService.Get(requestCtx, requestID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	response := gin.H{"request": toRequestResponse(view)}
	for key, value := range extra {
		response[key] = value
	}
	ctx.JSON(status, response)
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}
