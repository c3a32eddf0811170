package gifting

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// treesTakenError signals that another request won the race for some picked trees.
type treesTakenError struct {
	treeIDs []TreeID
}

func (takenError treesTakenError) Error() string {
	return fmt.Sprintf("%d trees reserved concurrently", len(takenError.treeIDs))
}

// Reserve books trees for a request. Fewer available trees than required is reported
// through Deficit; zero eligible trees is ErrInsufficientInventory.
func (service *Service) Reserve(ctx context.Context, input ReserveInput) (ReservationResult, error) {
	trackedContext, done := service.trackInflight(ctx, input.RequestID)
	defer done()
	result, operationError := service.reserve(trackedContext, input)
	entry := OperationLog{
		Operation: operationReserve,
		RequestID: input.RequestID,
		Count:     len(result.BookedTreeIDs),
		Error:     operationError,
	}
	if operationError == nil && result.Deficit > 0 {
		entry.Status = operationStatusDeficit
		entry.Detail = fmt.Sprintf("deficit=%d", result.Deficit)
	}
	service.logOperation(ctx, entry)
	return result, operationError
}

func (service *Service) reserve(ctx context.Context, input ReserveInput) (ReservationResult, error) {
	if len(input.ExplicitTreeIDs) > 0 {
		return service.reserveExplicit(ctx, input)
	}
	if input.RequiredCount <= 0 {
		return ReservationResult{}, nil
	}
	var lastConflict []TreeID
	for attempt := 0; attempt < service.reservationRetries; attempt++ {
		result, err := service.reserveAttempt(ctx, input)
		var takenError treesTakenError
		if !errors.As(err, &takenError) {
			return result, err
		}
		lastConflict = takenError.treeIDs
		if ctx.Err() != nil {
			return ReservationResult{}, context.Cause(ctx)
		}
	}
	return ReservationResult{}, ReservationConflictError{RequestID: input.RequestID, TreeIDs: lastConflict}
}

func (service *Service) reserveAttempt(ctx context.Context, input ReserveInput) (ReservationResult, error) {
	var result ReservationResult
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.LockRequest(ctx, input.RequestID)
		if err != nil {
			return err
		}
		required := min(input.RequiredCount, request.NoOfCards-request.Booked)
		if required <= 0 {
			return nil
		}
		plots := input.PlotIDs
		if len(plots) == 0 {
			plots = request.PlotIDs
		}
		if len(plots) == 0 {
			return ErrNoPlotSelection
		}
		giftableOnly := !(input.Options.BookNonGiftable || request.RequestType.BooksNonGiftable())
		candidates, err := transactionStore.ListAvailableTrees(ctx, plots, giftableOnly, nil)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return InventoryShortfallError{RequestID: input.RequestID, Required: required}
		}
		picks := SelectTrees(candidates, plots, required, input.Options)
		booked, err := bookTrees(ctx, transactionStore, request, picks, service.nowFn())
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		result = ReservationResult{BookedTreeIDs: booked, Deficit: required - len(booked)}
		return nil
	})
	if err != nil {
		return ReservationResult{}, err
	}
	return result, nil
}

func (service *Service) reserveExplicit(ctx context.Context, input ReserveInput) (ReservationResult, error) {
	var result ReservationResult
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.LockRequest(ctx, input.RequestID)
		if err != nil {
			return err
		}
		trees, err := transactionStore.GetTrees(ctx, uniqueTreeIDs(input.ExplicitTreeIDs))
		if err != nil {
			return err
		}
		if len(trees) != len(uniqueTreeIDs(input.ExplicitTreeIDs)) {
			return fmt.Errorf("%w: unknown tree in explicit selection", ErrInvalidTreeID)
		}
		picks := make([]Tree, 0, len(trees))
		conflicts := make([]TreeID, 0)
		for _, tree := range trees {
			switch {
			case tree.ReservedFor == input.RequestID:
				continue
			case !tree.IsAvailable():
				conflicts = append(conflicts, tree.ID)
			default:
				picks = append(picks, tree)
			}
		}
		if len(conflicts) > 0 {
			return ReservationConflictError{RequestID: input.RequestID, TreeIDs: conflicts}
		}
		if len(picks) > request.NoOfCards-request.Booked {
			return fmt.Errorf("%w: %d trees exceed remaining %d", ErrInvalidReservation, len(picks), request.NoOfCards-request.Booked)
		}
		booked, err := bookTrees(ctx, transactionStore, request, picks, service.nowFn())
		if err != nil {
			var takenError treesTakenError
			if errors.As(err, &takenError) {
				return ReservationConflictError{RequestID: input.RequestID, TreeIDs: takenError.treeIDs}
			}
			return err
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		result = ReservationResult{BookedTreeIDs: booked}
		return nil
	})
	if err != nil {
		return ReservationResult{}, err
	}
	return result, nil
}

// bookTrees reserves picks, bumps booked and records the plots used, all inside the caller's transaction.
func bookTrees(ctx context.Context, transactionStore Store, request GiftCardRequest, picks []Tree, nowUnixUTC int64) ([]TreeID, error) {
	if len(picks) == 0 {
		return nil, nil
	}
	booked := make([]TreeID, 0, len(picks))
	taken := make([]TreeID, 0)
	for _, tree := range picks {
		reserved, err := transactionStore.ReserveTree(ctx, tree.ID, request.ID)
		if err != nil {
			return nil, err
		}
		if !reserved {
			taken = append(taken, tree.ID)
			continue
		}
		booked = append(booked, tree.ID)
	}
	if len(taken) > 0 {
		return nil, treesTakenError{treeIDs: taken}
	}
	if err := transactionStore.AdjustCounts(ctx, request.ID, len(booked), 0); err != nil {
		return nil, err
	}
	plots := slices.Clone(request.PlotIDs)
	for _, tree := range picks {
		if !slices.Contains(plots, tree.PlotID) {
			plots = append(plots, tree.PlotID)
		}
	}
	if len(plots) != len(request.PlotIDs) {
		if err := transactionStore.UpdateRequest(ctx, request.ID, RequestPatch{PlotIDs: &plots}, nowUnixUTC); err != nil {
			return nil, err
		}
	}
	return booked, nil
}

// Unreserve returns trees to inventory and lowers booked. An empty list releases every
// unassigned tree of the request; assigned trees cannot be released this way.
func (service *Service) Unreserve(ctx context.Context, requestID RequestID, treeIDs []TreeID) (int, error) {
	var released int
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		reserved, err := transactionStore.ListReservedTrees(ctx, requestID)
		if err != nil {
			return err
		}
		byID := make(map[TreeID]Tree, len(reserved))
		for _, tree := range reserved {
			byID[tree.ID] = tree
		}
		toRelease := make([]TreeID, 0, len(reserved))
		if len(treeIDs) == 0 {
			for _, tree := range reserved {
				if tree.AssignedTo == 0 {
					toRelease = append(toRelease, tree.ID)
				}
			}
		} else {
			for _, treeID := range uniqueTreeIDs(treeIDs) {
				tree, ok := byID[treeID]
				if !ok {
					return fmt.Errorf("%w: tree %d", ErrTreeNotReserved, treeID)
				}
				if tree.AssignedTo != 0 {
					return fmt.Errorf("%w: tree %d", ErrTreeAssigned, treeID)
				}
				toRelease = append(toRelease, treeID)
			}
		}
		if len(toRelease) == 0 {
			return nil
		}
		count, err := transactionStore.ReleaseTrees(ctx, requestID, toRelease)
		if err != nil {
			return err
		}
		released = int(count)
		if err := transactionStore.AdjustCounts(ctx, requestID, -released, 0); err != nil {
			return err
		}
		return service.resetCards(ctx, transactionStore, request)
	})
	service.logOperation(ctx, OperationLog{Operation: operationUnreserve, RequestID: requestID, Count: released, Error: operationError})
	if operationError != nil {
		return 0, operationError
	}
	return released, nil
}

func uniqueTreeIDs(treeIDs []TreeID) []TreeID {
	unique := make([]TreeID, 0, len(treeIDs))
	seen := make(map[TreeID]struct{}, len(treeIDs))
	for _, treeID := range treeIDs {
		if _, duplicate := seen[treeID]; duplicate {
			continue
		}
		seen[treeID] = struct{}{}
		unique = append(unique, treeID)
	}
	return unique
}
