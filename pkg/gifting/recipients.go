package gifting

import (
	"context"
	"fmt"
	"strings"
)

// AddRecipients stores recipient/assignee mappings under a request.
func (service *Service) AddRecipients(ctx context.Context, requestID RequestID, inputs []RecipientInput) ([]GiftRequestUser, error) {
	users := make([]GiftRequestUser, 0, len(inputs))
	for index, input := range inputs {
		user, err := newRecipient(requestID, input, service.nowFn())
		if err != nil {
			return nil, fmt.Errorf("recipient %d: %w", index, err)
		}
		users = append(users, user)
	}
	stored := make([]GiftRequestUser, 0, len(users))
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		existing, err := transactionStore.ListRecipients(ctx, requestID)
		if err != nil {
			return err
		}
		if len(existing)+len(users) > request.NoOfCards {
			return fmt.Errorf("%w: %d mappings for %d cards", ErrTooManyRecipients, len(existing)+len(users), request.NoOfCards)
		}
		for _, user := range users {
			inserted, err := transactionStore.InsertRecipient(ctx, user)
			if err != nil {
				return err
			}
			stored = append(stored, inserted)
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationRecipients, RequestID: requestID, Count: len(stored), Detail: "add", Error: operationError})
	if operationError != nil {
		return nil, operationError
	}
	return stored, nil
}

// Recipients lists a request's mappings in creation order.
func (service *Service) Recipients(ctx context.Context, requestID RequestID) ([]GiftRequestUser, error) {
	if _, err := service.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return service.store.ListRecipients(ctx, requestID)
}

// UpdateRecipient changes only the fields present in the patch.
func (service *Service) UpdateRecipient(ctx context.Context, requestID RequestID, recipientID int64, patch RecipientPatch) (GiftRequestUser, error) {
	var updated GiftRequestUser
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := transactionStore.GetRecipient(ctx, requestID, recipientID)
		if err != nil {
			return err
		}
		candidate := applyRecipientPatch(current, patch)
		validated, err := newRecipient(requestID, RecipientInput{
			RecipientName:   candidate.RecipientName,
			RecipientEmail:  candidate.RecipientEmail,
			RecipientPhone:  candidate.RecipientPhone,
			AssigneeName:    candidate.AssigneeName,
			AssigneeEmail:   candidate.AssigneeEmail,
			Relation:        string(candidate.Relation),
			ProfileImageURL: candidate.ProfileImageURL,
		}, current.CreatedUnixUTC)
		if err != nil {
			return err
		}
		validated.ID = current.ID
		validated.TreeID = current.TreeID
		if err := transactionStore.UpdateRecipient(ctx, validated); err != nil {
			return err
		}
		updated = validated
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationRecipients, RequestID: requestID, Count: 1, Detail: "update", Error: operationError})
	if operationError != nil {
		return GiftRequestUser{}, operationError
	}
	return updated, nil
}

// DeleteRecipient removes one mapping. A tree issued to it stays booked but becomes unassigned.
func (service *Service) DeleteRecipient(ctx context.Context, requestID RequestID, recipientID int64) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		recipient, err := transactionStore.GetRecipient(ctx, requestID, recipientID)
		if err != nil {
			return err
		}
		if recipient.IsAssigned() {
			if err := transactionStore.UnassignTree(ctx, recipient.TreeID, requestID); err != nil {
				return err
			}
			if err := transactionStore.AdjustCounts(ctx, requestID, 0, -1); err != nil {
				return err
			}
			if err := service.resetCards(ctx, transactionStore, request); err != nil {
				return err
			}
		}
		return transactionStore.DeleteRecipient(ctx, requestID, recipientID)
	})
	service.logOperation(ctx, OperationLog{Operation: operationRecipients, RequestID: requestID, Count: 1, Detail: "delete", Error: operationError})
	return operationError
}

// Assign issues booked, unassigned trees to unassigned mappings, first-created first-served.
func (service *Service) Assign(ctx context.Context, requestID RequestID) (int, error) {
	assigned, operationError := service.assign(ctx, requestID)
	service.logOperation(ctx, OperationLog{Operation: operationAssign, RequestID: requestID, Count: assigned, Error: operationError})
	return assigned, operationError
}

func (service *Service) assign(ctx context.Context, requestID RequestID) (int, error) {
	var assigned int
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		recipients, err := transactionStore.ListRecipients(ctx, requestID)
		if err != nil {
			return err
		}
		trees, err := transactionStore.ListReservedTrees(ctx, requestID)
		if err != nil {
			return err
		}
		pending := make([]GiftRequestUser, 0, len(recipients))
		for _, recipient := range recipients {
			if !recipient.IsAssigned() {
				pending = append(pending, recipient)
			}
		}
		free := make([]Tree, 0, len(trees))
		for _, tree := range trees {
			if tree.AssignedTo == 0 {
				free = append(free, tree)
			}
		}
		count := min(len(pending), len(free), request.Booked-request.Assigned)
		for index := 0; index < count; index++ {
			if err := transactionStore.AssignTree(ctx, free[index].ID, requestID, pending[index].ID); err != nil {
				return err
			}
			recipient := pending[index]
			recipient.TreeID = free[index].ID
			if err := transactionStore.UpdateRecipient(ctx, recipient); err != nil {
				return err
			}
		}
		if count == 0 {
			return nil
		}
		if err := transactionStore.AdjustCounts(ctx, requestID, 0, count); err != nil {
			return err
		}
		if err := service.resetCards(ctx, transactionStore, request); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		assigned = count
		return nil
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

func newRecipient(requestID RequestID, input RecipientInput, createdUnixUTC int64) (GiftRequestUser, error) {
	recipientName := strings.TrimSpace(input.RecipientName)
	if recipientName == "" {
		return GiftRequestUser{}, fmt.Errorf("%w: recipient name is required", ErrInvalidRecipient)
	}
	recipientEmail := strings.ToLower(strings.TrimSpace(input.RecipientEmail))
	if recipientEmail != "" && !validEmail(recipientEmail) {
		return GiftRequestUser{}, fmt.Errorf("%w: recipient email %q", ErrInvalidRecipient, input.RecipientEmail)
	}
	assigneeName := strings.TrimSpace(input.AssigneeName)
	assigneeEmail := strings.ToLower(strings.TrimSpace(input.AssigneeEmail))
	if assigneeName == "" && assigneeEmail == "" {
		assigneeName = recipientName
		assigneeEmail = recipientEmail
	}
	if assigneeEmail != "" && !validEmail(assigneeEmail) {
		return GiftRequestUser{}, fmt.Errorf("%w: assignee email %q", ErrInvalidRecipient, input.AssigneeEmail)
	}
	relation, err := ParseRelation(input.Relation)
	if err != nil {
		return GiftRequestUser{}, err
	}
	return GiftRequestUser{
		RequestID:       requestID,
		RecipientName:   recipientName,
		RecipientEmail:  recipientEmail,
		RecipientPhone:  strings.TrimSpace(input.RecipientPhone),
		AssigneeName:    assigneeName,
		AssigneeEmail:   assigneeEmail,
		Relation:        relation,
		ProfileImageURL: strings.TrimSpace(input.ProfileImageURL),
		CreatedUnixUTC:  createdUnixUTC,
	}, nil
}

func applyRecipientPatch(current GiftRequestUser, patch RecipientPatch) GiftRequestUser {
	if patch.RecipientName != nil {
		current.RecipientName = *patch.RecipientName
	}
	if patch.RecipientEmail != nil {
		current.RecipientEmail = *patch.RecipientEmail
	}
	if patch.RecipientPhone != nil {
		current.RecipientPhone = *patch.RecipientPhone
	}
	if patch.AssigneeName != nil {
		current.AssigneeName = *patch.AssigneeName
	}
	if patch.AssigneeEmail != nil {
		current.AssigneeEmail = *patch.AssigneeEmail
	}
	if patch.Relation != nil {
		current.Relation = Relation(*patch.Relation)
	}
	if patch.ProfileImageURL != nil {
		current.ProfileImageURL = *patch.ProfileImageURL
	}
	return current
}
