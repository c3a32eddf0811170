package gifting

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil, func() int64 { return 0 }); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewService(newStubStore(test), nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil clock, got %v", err)
	}
	if _, err := NewService(newStubStore(test), func() int64 { return 0 }, WithClaimLeaseTTL(-1)); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for negative ttl, got %v", err)
	}
}

func TestCreateIsIdempotentPerToken(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	token := mustToken(test, "submit-once")

	first, created, err := service.Create(context.Background(), token, giftCardInput(3))
	if err != nil || !created {
		test.Fatalf("expected first create to succeed, got %v created=%v", err, created)
	}
	second, created, err := service.Create(context.Background(), token, giftCardInput(9))
	if err != nil {
		test.Fatalf("replay: %v", err)
	}
	if created || second.ID != first.ID || second.NoOfCards != 3 {
		test.Fatalf("expected replay to return the original request, got %+v", second)
	}
	if len(store.state.requests) != 1 {
		test.Fatalf("expected one stored request, got %d", len(store.state.requests))
	}
}

func TestConcurrentCreatesWithSameTokenCollapse(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	token := mustToken(test, "double-click")

	results := make([]GiftCardRequest, 4)
	var group sync.WaitGroup
	for index := range results {
		group.Add(1)
		go func() {
			defer group.Done()
			request, _, err := service.Create(context.Background(), token, giftCardInput(1))
			if err != nil {
				test.Errorf("create: %v", err)
				return
			}
			results[index] = request
		}()
	}
	group.Wait()
	for _, request := range results {
		if request.ID != results[0].ID {
			test.Fatalf("expected every submission to resolve to one request")
		}
	}
}

func TestCreateValidatesInput(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(test))
	token := mustToken(test, "invalid")
	if _, _, err := service.Create(context.Background(), token, giftCardInput(0)); !errors.Is(err, ErrInvalidCardCount) {
		test.Fatalf("expected ErrInvalidCardCount, got %v", err)
	}
	input := giftCardInput(1)
	input.RequestType = "Bulk"
	if _, _, err := service.Create(context.Background(), token, input); !errors.Is(err, ErrInvalidRequestType) {
		test.Fatalf("expected ErrInvalidRequestType, got %v", err)
	}
}

func TestUpdateKeepsCardCountAboveBooked(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	store.seedTrees(1, 3, true)
	request := mustCreateRequest(test, service, "update", giftCardInput(3))
	if _, err := service.Reserve(context.Background(), ReserveInput{RequestID: request.ID, RequiredCount: 3, PlotIDs: []PlotID{1}}); err != nil {
		test.Fatalf("reserve: %v", err)
	}

	tooFew := 2
	if _, err := service.Update(context.Background(), request.ID, RequestPatch{NoOfCards: &tooFew}); !errors.Is(err, ErrInvalidCardCount) {
		test.Fatalf("expected ErrInvalidCardCount, got %v", err)
	}
	more := 5
	name := "Renamed Sponsor"
	updated, err := service.Update(context.Background(), request.ID, RequestPatch{NoOfCards: &more, SponsorName: &name})
	if err != nil {
		test.Fatalf("update: %v", err)
	}
	if updated.NoOfCards != 5 || updated.SponsorName != name || updated.EventName != request.EventName {
		test.Fatalf("expected partial update applied, got %+v", updated)
	}
}

func TestUpdateKeepsPlotsHoldingBookedTrees(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	store.seedTrees(1, 2, true)
	store.seedTrees(2, 1, true)
	request := mustCreateRequest(test, service, "plots", giftCardInput(5))
	if _, err := service.Reserve(context.Background(), ReserveInput{RequestID: request.ID, RequiredCount: 2, PlotIDs: []PlotID{1}}); err != nil {
		test.Fatalf("reserve: %v", err)
	}

	for _, plots := range [][]PlotID{{}, {2}} {
		if _, err := service.Update(context.Background(), request.ID, RequestPatch{PlotIDs: &plots}); !errors.Is(err, ErrPlotInUse) {
			test.Fatalf("plots %v: expected ErrPlotInUse, got %v", plots, err)
		}
	}
	if view, err := service.Get(context.Background(), request.ID); err != nil || view.Status == StatusPendingPlotSelection {
		test.Fatalf("expected plot selection kept, got %+v %v", view, err)
	}
	widened := []PlotID{1, 2}
	updated, err := service.Update(context.Background(), request.ID, RequestPatch{PlotIDs: &widened})
	if err != nil {
		test.Fatalf("expected adding a plot to succeed, got %v", err)
	}
	if len(updated.PlotIDs) != 2 {
		test.Fatalf("expected two plots, got %v", updated.PlotIDs)
	}
}

func TestSetTagsNormalizes(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(test))
	request := mustCreateRequest(test, service, "tags", giftCardInput(1))

	updated, err := service.SetTags(context.Background(), request.ID, []string{" corporate ", "Corporate", "", "diwali"})
	if err != nil {
		test.Fatalf("set tags: %v", err)
	}
	if len(updated.Tags) != 2 || updated.Tags[0] != "corporate" || updated.Tags[1] != "diwali" {
		test.Fatalf("unexpected tags %v", updated.Tags)
	}
}

func TestCloneCopiesMessagingWithoutBookings(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	store.seedTrees(1, 2, true)
	source := mustCreateRequest(test, service, "source", giftCardInput(2))
	if _, err := service.Reserve(context.Background(), ReserveInput{RequestID: source.ID, RequiredCount: 2, PlotIDs: []PlotID{1}}); err != nil {
		test.Fatalf("reserve: %v", err)
	}

	clone, created, err := service.Clone(context.Background(), source.ID, mustToken(test, "clone"))
	if err != nil || !created {
		test.Fatalf("clone: %v created=%v", err, created)
	}
	if clone.ID == source.ID || clone.SponsorName != source.SponsorName || clone.NoOfCards != 2 {
		test.Fatalf("unexpected clone %+v", clone)
	}
	if clone.Booked != 0 || clone.Assigned != 0 || len(clone.PlotIDs) != 0 {
		test.Fatalf("expected clone without bookings, got %+v", clone)
	}
}

func TestPaymentConfirmationIsOneWay(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	request := mustCreateRequest(test, service, "payment", giftCardInput(1))

	if _, err := service.AttachPayment(context.Background(), request.ID, "pay_1", decimal.Zero); !errors.Is(err, ErrInvalidPaymentAmount) {
		test.Fatalf("expected ErrInvalidPaymentAmount, got %v", err)
	}
	payment, err := service.AttachPayment(context.Background(), request.ID, "pay_1", decimal.RequireFromString("499.50"))
	if err != nil {
		test.Fatalf("attach payment: %v", err)
	}
	if payment.Status != PaymentStatusPending {
		test.Fatalf("expected pending payment, got %s", payment.Status)
	}
	if _, err := service.AttachPayment(context.Background(), request.ID, "pay_2", decimal.NewFromInt(1)); !errors.Is(err, ErrPaymentAlreadyLinked) {
		test.Fatalf("expected ErrPaymentAlreadyLinked, got %v", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		requestID, err := service.OnPaymentConfirmed(context.Background(), "pay_1")
		if err != nil {
			test.Fatalf("confirm: %v", err)
		}
		if requestID != request.ID {
			test.Fatalf("expected confirmation to resolve the request")
		}
	}
	stored, _ := store.GetPayment(context.Background(), "pay_1")
	if stored.Status != PaymentStatusConfirmed || stored.ConfirmedUnixUTC != testNowUnixUTC {
		test.Fatalf("expected confirmed payment, got %+v", stored)
	}
	if _, err := service.OnPaymentConfirmed(context.Background(), "missing"); !errors.Is(err, ErrPaymentNotFound) {
		test.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestGetAnnotatesValidation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	input := giftCardInput(1)
	input.LogoURL = ""
	request := mustCreateRequest(test, service, "annotate", input)

	view, err := service.Get(context.Background(), request.ID)
	if err != nil {
		test.Fatalf("get: %v", err)
	}
	if view.Status != StatusPendingPlotSelection {
		test.Fatalf("expected pending_plot_selection, got %s", view.Status)
	}
	if len(view.ValidationErrors) != 1 || view.ValidationErrors[0] != ValidationMissingLogo {
		test.Fatalf("expected MISSING_LOGO, got %v", view.ValidationErrors)
	}
	views, err := service.GetMany(context.Background(), []RequestID{request.ID, {value: "gone"}})
	if err != nil {
		test.Fatalf("get many: %v", err)
	}
	if len(views) != 1 {
		test.Fatalf("expected unknown ids skipped, got %d views", len(views))
	}
}

func TestAttachAlbumValidatesAndDetachesOnDelete(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	request := mustCreateRequest(test, service, "album", giftCardInput(1))

	if _, err := service.AttachAlbum(context.Background(), request.ID, " ", []string{"https://cdn.example/a.jpg"}); !errors.Is(err, ErrInvalidAlbum) {
		test.Fatalf("expected ErrInvalidAlbum for blank name, got %v", err)
	}
	if _, err := service.AttachAlbum(context.Background(), request.ID, "Planting day", []string{" "}); !errors.Is(err, ErrInvalidAlbum) {
		test.Fatalf("expected ErrInvalidAlbum without images, got %v", err)
	}
	missing, _ := NewRequestID("missing")
	if _, err := service.AttachAlbum(context.Background(), missing, "Planting day", []string{"https://cdn.example/a.jpg"}); !errors.Is(err, ErrUnknownRequest) {
		test.Fatalf("expected ErrUnknownRequest, got %v", err)
	}

	album, err := service.AttachAlbum(context.Background(), request.ID, " Planting day ", []string{"https://cdn.example/a.jpg", ""})
	if err != nil {
		test.Fatalf("attach album: %v", err)
	}
	if album.Name != "Planting day" || len(album.ImageURLs) != 1 || album.RequestID != request.ID {
		test.Fatalf("unexpected album: %+v", album)
	}

	if err := service.Delete(context.Background(), request.ID, true); err != nil {
		test.Fatalf("delete: %v", err)
	}
	unlock := store.lock()
	stored := store.state.albums[album.ID]
	unlock()
	if !stored.RequestID.IsZero() {
		test.Fatalf("expected album detached after delete, got %+v", stored)
	}
}

func TestRevisionAdvancesOnWritesOnly(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(test))
	request := mustCreateRequest(test, service, "revision", giftCardInput(1))
	afterCreate := service.Revision()
	if afterCreate == 0 {
		test.Fatalf("expected create to advance the revision")
	}

	if _, err := service.Get(context.Background(), request.ID); err != nil {
		test.Fatalf("get: %v", err)
	}
	if _, err := service.List(context.Background(), RequestQuery{}); err != nil {
		test.Fatalf("list: %v", err)
	}
	if service.Revision() != afterCreate {
		test.Fatalf("expected reads to leave the revision at %d, got %d", afterCreate, service.Revision())
	}
	if _, err := service.Pick(context.Background(), request.ID, mustStaffID(test, "erin")); err != nil {
		test.Fatalf("pick: %v", err)
	}
	if service.Revision() <= afterCreate {
		test.Fatalf("expected pick to advance the revision")
	}
}
