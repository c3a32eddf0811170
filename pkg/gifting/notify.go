package gifting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

var defaultRoles = []RecipientRole{RoleSponsor, RoleRecipient, RoleAssignee}

// SendEmails dispatches one email per role for an event. Each (request, role, event) is delivered
// at most once: repeats report DeliveryAlreadySent. Test sends go to TestRecipients only and never
// touch the delivery ledger. The returned error covers the call itself; per-role failures are
// reported in the result.
func (service *Service) SendEmails(ctx context.Context, input SendEmailsInput) (DispatchResult, error) {
	result, operationError := service.sendEmails(ctx, input)
	entry := OperationLog{Operation: operationSendEmails, RequestID: input.RequestID, Detail: string(input.Event), Error: operationError}
	if operationError == nil {
		entry.Count, entry.Status, entry.Detail = summarizeDispatch(input.Event, result)
	}
	service.logOperation(ctx, entry)
	return result, operationError
}

func (service *Service) sendEmails(ctx context.Context, input SendEmailsInput) (DispatchResult, error) {
	if service.email == nil {
		return DispatchResult{}, fmt.Errorf("%w: email sender is not configured", ErrInvalidServiceConfig)
	}
	if _, err := ParseEventType(string(input.Event)); err != nil {
		return DispatchResult{}, err
	}
	roles := input.Roles
	if len(roles) == 0 {
		roles = defaultRoles
	}
	for _, role := range roles {
		if _, err := ParseRecipientRole(string(role)); err != nil {
			return DispatchResult{}, err
		}
	}
	testRecipients := normalizeAddresses(input.TestRecipients)
	for _, address := range testRecipients {
		if !validEmail(address) {
			return DispatchResult{}, fmt.Errorf("%w: test recipient %q", ErrInvalidRecipient, address)
		}
	}
	request, err := service.store.GetRequest(ctx, input.RequestID)
	if err != nil {
		return DispatchResult{}, err
	}
	users, err := service.store.ListRecipients(ctx, input.RequestID)
	if err != nil {
		return DispatchResult{}, err
	}

	outcomes := make([]RoleOutcome, len(roles))
	var group errgroup.Group
	for index, role := range roles {
		message := EmailMessage{
			RequestID: input.RequestID,
			Role:      role,
			Event:     input.Event,
			Template:  input.Template,
			To:        roleAddresses(role, request, users),
			CC:        normalizeAddresses(input.CC[role]),
			Metadata:  messageMetadata(request, len(users)),
		}
		if len(testRecipients) > 0 {
			message.To = testRecipients
			message.IsTestSend = true
		}
		group.Go(func() error {
			outcomes[index] = service.deliver(ctx, message)
			return nil
		})
	}
	_ = group.Wait()
	return DispatchResult{Outcomes: outcomes}, nil
}

// deliver claims the ledger row before sending and gives it back when the send fails.
func (service *Service) deliver(ctx context.Context, message EmailMessage) RoleOutcome {
	outcome := RoleOutcome{Role: message.Role, Recipients: message.To}
	if len(message.To) == 0 {
		outcome.Status = DeliverySkipped
		return outcome
	}
	if message.IsTestSend {
		if err := service.email.Send(ctx, message); err != nil {
			outcome.Status, outcome.Err = DeliveryFailed, err
			return outcome
		}
		outcome.Status = DeliverySent
		return outcome
	}
	delivery := Delivery{
		RequestID:      message.RequestID,
		Role:           message.Role,
		Event:          message.Event,
		Recipients:     message.To,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.store.InsertDelivery(ctx, delivery); err != nil {
		if errors.Is(err, ErrDuplicateDelivery) {
			outcome.Status = DeliveryAlreadySent
			return outcome
		}
		outcome.Status, outcome.Err = DeliveryFailed, err
		return outcome
	}
	if err := service.email.Send(ctx, message); err != nil {
		rollbackError := service.store.DeleteDelivery(context.WithoutCancel(ctx), message.RequestID, message.Role, message.Event)
		outcome.Status, outcome.Err = DeliveryFailed, errors.Join(err, rollbackError)
		return outcome
	}
	outcome.Status = DeliverySent
	return outcome
}

func roleAddresses(role RecipientRole, request GiftCardRequest, users []GiftRequestUser) []string {
	switch role {
	case RoleSponsor:
		return normalizeAddresses([]string{request.SponsorEmail})
	case RoleRecipient:
		addresses := make([]string, 0, len(users))
		for _, user := range users {
			addresses = append(addresses, user.RecipientEmail)
		}
		return normalizeAddresses(addresses)
	case RoleAssignee:
		addresses := make([]string, 0, len(users))
		for _, user := range users {
			if user.IsAssigned() {
				addresses = append(addresses, user.AssigneeEmail)
			}
		}
		return normalizeAddresses(addresses)
	default:
		return nil
	}
}

func messageMetadata(request GiftCardRequest, recipientCount int) map[string]string {
	return map[string]string{
		"request_id":      request.ID.String(),
		"sponsor_name":    request.SponsorName,
		"event_name":      request.EventName,
		"primary_message": request.PrimaryMessage,
		"no_of_cards":     strconv.Itoa(request.NoOfCards),
		"assigned":        strconv.Itoa(request.Assigned),
		"recipients":      strconv.Itoa(recipientCount),
	}
}

func normalizeAddresses(addresses []string) []string {
	normalized := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		trimmed := strings.ToLower(strings.TrimSpace(address))
		if trimmed == "" {
			continue
		}
		if _, duplicate := seen[trimmed]; duplicate {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

func summarizeDispatch(event EventType, result DispatchResult) (int, string, string) {
	sent := 0
	alreadySent := 0
	parts := make([]string, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		switch outcome.Status {
		case DeliverySent:
			sent++
		case DeliveryAlreadySent:
			alreadySent++
		}
		parts = append(parts, string(outcome.Role)+"="+string(outcome.Status))
	}
	status := operationStatusOK
	if sent == 0 && alreadySent > 0 {
		status = operationStatusAlreadySent
	}
	return sent, status, string(event) + " " + strings.Join(parts, ",")
}
