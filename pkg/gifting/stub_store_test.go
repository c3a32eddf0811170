package gifting

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

const testNowUnixUTC = int64(1_700_000_000)

type deliveryKey struct {
	requestID RequestID
	role      RecipientRole
	event     EventType
}

type stubState struct {
	requests        map[RequestID]GiftCardRequest
	trees           map[TreeID]Tree
	recipients      map[int64]GiftRequestUser
	nextRecipientID int64
	deliveries      map[deliveryKey]Delivery
	payments        map[string]Payment
	albums          map[string]Album
	cardJobs        map[string]CardJob
}

func (state stubState) clone() stubState {
	cloned := state
	cloned.requests = make(map[RequestID]GiftCardRequest, len(state.requests))
	for requestID, request := range state.requests {
		request.PlotIDs = slices.Clone(request.PlotIDs)
		request.Tags = slices.Clone(request.Tags)
		cloned.requests[requestID] = request
	}
	cloned.trees = maps.Clone(state.trees)
	cloned.recipients = maps.Clone(state.recipients)
	cloned.deliveries = maps.Clone(state.deliveries)
	cloned.payments = maps.Clone(state.payments)
	cloned.albums = maps.Clone(state.albums)
	cloned.cardJobs = maps.Clone(state.cardJobs)
	return cloned
}

// stubStore keeps everything in memory. Transactions hold the mutex and restore a snapshot on error.
type stubStore struct {
	mu     *sync.Mutex
	state  *stubState
	inTx   bool
	faults *stubFaults
}

type stubFaults struct {
	lostReservations int
	// releasedClaims makes AcquireClaim report a holder that lets go before the caller re-reads.
	releasedClaims int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		mu: &sync.Mutex{},
		state: &stubState{
			requests:   make(map[RequestID]GiftCardRequest),
			trees:      make(map[TreeID]Tree),
			recipients: make(map[int64]GiftRequestUser),
			deliveries: make(map[deliveryKey]Delivery),
			payments:   make(map[string]Payment),
			albums:     make(map[string]Album),
			cardJobs:   make(map[string]CardJob),
		},
		faults: &stubFaults{},
	}
}

func (store *stubStore) lock() func() {
	if store.inTx {
		return func() {}
	}
	store.mu.Lock()
	return store.mu.Unlock
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	snapshot := store.state.clone()
	transactionStore := &stubStore{mu: store.mu, state: store.state, inTx: true, faults: store.faults}
	if err := fn(ctx, transactionStore); err != nil {
		*store.state = snapshot
		return err
	}
	return nil
}

func (store *stubStore) CreateRequest(_ context.Context, request GiftCardRequest) error {
	defer store.lock()()
	for _, existing := range store.state.requests {
		if existing.IdempotencyToken == request.IdempotencyToken {
			return ErrDuplicateIdempotency
		}
	}
	store.state.requests[request.ID] = request
	return nil
}

func (store *stubStore) GetRequest(_ context.Context, requestID RequestID) (GiftCardRequest, error) {
	defer store.lock()()
	request, ok := store.state.requests[requestID]
	if !ok {
		return GiftCardRequest{}, ErrUnknownRequest
	}
	return request, nil
}

func (store *stubStore) LockRequest(ctx context.Context, requestID RequestID) (GiftCardRequest, error) {
	return store.GetRequest(ctx, requestID)
}

func (store *stubStore) FindRequestByToken(_ context.Context, token IdempotencyToken) (GiftCardRequest, error) {
	defer store.lock()()
	for _, request := range store.state.requests {
		if request.IdempotencyToken == token {
			return request, nil
		}
	}
	return GiftCardRequest{}, ErrUnknownRequest
}

func (store *stubStore) UpdateRequest(_ context.Context, requestID RequestID, patch RequestPatch, updatedUnixUTC int64) error {
	defer store.lock()()
	request, ok := store.state.requests[requestID]
	if !ok {
		return ErrUnknownRequest
	}
	assignString := func(target *string, value *string) {
		if value != nil {
			*target = *value
		}
	}
	assignString(&request.Category, patch.Category)
	assignString(&request.Grove, patch.Grove)
	assignString(&request.SponsorshipType, patch.SponsorshipType)
	assignString(&request.SponsorName, patch.SponsorName)
	assignString(&request.SponsorEmail, patch.SponsorEmail)
	assignString(&request.LogoURL, patch.LogoURL)
	assignString(&request.EventName, patch.EventName)
	assignString(&request.PrimaryMessage, patch.PrimaryMessage)
	assignString(&request.SecondaryMessage, patch.SecondaryMessage)
	assignString(&request.Notes, patch.Notes)
	assignString(&request.PaymentID, patch.PaymentID)
	if patch.RequestType != nil {
		request.RequestType = *patch.RequestType
	}
	if patch.NoOfCards != nil {
		request.NoOfCards = *patch.NoOfCards
	}
	if patch.Tags != nil {
		request.Tags = slices.Clone(*patch.Tags)
	}
	if patch.PlotIDs != nil {
		request.PlotIDs = slices.Clone(*patch.PlotIDs)
	}
	if patch.CardsGenerated != nil {
		request.CardsGenerated = *patch.CardsGenerated
	}
	request.UpdatedUnixUTC = updatedUnixUTC
	store.state.requests[requestID] = request
	return nil
}

func (store *stubStore) AdjustCounts(_ context.Context, requestID RequestID, bookedDelta int, assignedDelta int) error {
	defer store.lock()()
	request, ok := store.state.requests[requestID]
	if !ok {
		return ErrUnknownRequest
	}
	booked := request.Booked + bookedDelta
	assigned := request.Assigned + assignedDelta
	if assigned < 0 || assigned > booked || booked > request.NoOfCards {
		return WrapError(errorOperationService, errorSubjectCounts, errorCodeInvariant, ErrCountInvariant)
	}
	request.Booked = booked
	request.Assigned = assigned
	store.state.requests[requestID] = request
	return nil
}

func (store *stubStore) DeleteRequest(_ context.Context, requestID RequestID) error {
	defer store.lock()()
	if _, ok := store.state.requests[requestID]; !ok {
		return ErrUnknownRequest
	}
	delete(store.state.requests, requestID)
	return nil
}

func (store *stubStore) ListRequests(_ context.Context, query RequestQuery) ([]GiftCardRequest, error) {
	defer store.lock()()
	requests := make([]GiftCardRequest, 0, len(store.state.requests))
	for _, request := range store.state.requests {
		if query.RequestType != "" && request.RequestType != query.RequestType {
			continue
		}
		if query.Tag != "" && !slices.Contains(request.Tags, query.Tag) {
			continue
		}
		if query.Search != "" && !strings.Contains(strings.ToLower(request.SponsorName), strings.ToLower(query.Search)) {
			continue
		}
		requests = append(requests, request)
	}
	sort.Slice(requests, func(left, right int) bool {
		if requests[left].CreatedUnixUTC != requests[right].CreatedUnixUTC {
			return requests[left].CreatedUnixUTC < requests[right].CreatedUnixUTC
		}
		return requests[left].ID.String() < requests[right].ID.String()
	})
	if query.Offset >= len(requests) {
		return nil, nil
	}
	requests = requests[query.Offset:]
	if query.Limit > 0 && query.Limit < len(requests) {
		requests = requests[:query.Limit]
	}
	return requests, nil
}

func (store *stubStore) GetRequests(_ context.Context, requestIDs []RequestID) ([]GiftCardRequest, error) {
	defer store.lock()()
	requests := make([]GiftCardRequest, 0, len(requestIDs))
	for _, requestID := range requestIDs {
		if request, ok := store.state.requests[requestID]; ok {
			requests = append(requests, request)
		}
	}
	return requests, nil
}

func (store *stubStore) AcquireClaim(_ context.Context, requestID RequestID, holder StaffID, nowUnixUTC int64, expiredBeforeUnixUTC int64) (bool, error) {
	defer store.lock()()
	request, ok := store.state.requests[requestID]
	if !ok {
		return false, ErrUnknownRequest
	}
	if store.faults.releasedClaims > 0 {
		store.faults.releasedClaims--
		return false, nil
	}
	expired := expiredBeforeUnixUTC > 0 && request.ClaimedUnixUTC < expiredBeforeUnixUTC
	if !request.ProcessedBy.IsZero() && !expired {
		return false, nil
	}
	request.ProcessedBy = holder
	request.ClaimedUnixUTC = nowUnixUTC
	store.state.requests[requestID] = request
	return true, nil
}

func (store *stubStore) ReleaseClaim(_ context.Context, requestID RequestID, holder StaffID) (bool, error) {
	defer store.lock()()
	request, ok := store.state.requests[requestID]
	if !ok {
		return false, ErrUnknownRequest
	}
	if request.ProcessedBy != holder {
		return false, nil
	}
	request.ProcessedBy = StaffID{}
	request.ClaimedUnixUTC = 0
	store.state.requests[requestID] = request
	return true, nil
}

func (store *stubStore) ReleaseExpiredClaims(_ context.Context, expiredBeforeUnixUTC int64) (int64, error) {
	defer store.lock()()
	var released int64
	for requestID, request := range store.state.requests {
		if request.ProcessedBy.IsZero() || request.ClaimedUnixUTC >= expiredBeforeUnixUTC {
			continue
		}
		request.ProcessedBy = StaffID{}
		request.ClaimedUnixUTC = 0
		store.state.requests[requestID] = request
		released++
	}
	return released, nil
}

func (store *stubStore) ListAvailableTrees(_ context.Context, plotIDs []PlotID, giftableOnly bool, habitats []string) ([]Tree, error) {
	defer store.lock()()
	trees := make([]Tree, 0)
	for _, tree := range store.state.trees {
		if !tree.IsAvailable() || !slices.Contains(plotIDs, tree.PlotID) {
			continue
		}
		if giftableOnly && !tree.Giftable {
			continue
		}
		if len(habitats) > 0 && !slices.Contains(habitats, tree.Habitat) {
			continue
		}
		trees = append(trees, tree)
	}
	sortTrees(trees)
	return trees, nil
}

func (store *stubStore) GetTrees(_ context.Context, treeIDs []TreeID) ([]Tree, error) {
	defer store.lock()()
	trees := make([]Tree, 0, len(treeIDs))
	for _, treeID := range treeIDs {
		if tree, ok := store.state.trees[treeID]; ok {
			trees = append(trees, tree)
		}
	}
	return trees, nil
}

func (store *stubStore) ListReservedTrees(_ context.Context, requestID RequestID) ([]Tree, error) {
	defer store.lock()()
	trees := make([]Tree, 0)
	for _, tree := range store.state.trees {
		if tree.ReservedFor == requestID {
			trees = append(trees, tree)
		}
	}
	sortTrees(trees)
	return trees, nil
}

func (store *stubStore) ReserveTree(_ context.Context, treeID TreeID, requestID RequestID) (bool, error) {
	defer store.lock()()
	if store.faults.lostReservations > 0 {
		store.faults.lostReservations--
		return false, nil
	}
	tree, ok := store.state.trees[treeID]
	if !ok || !tree.IsAvailable() {
		return false, nil
	}
	tree.ReservedFor = requestID
	store.state.trees[treeID] = tree
	return true, nil
}

func (store *stubStore) ReleaseTrees(_ context.Context, requestID RequestID, treeIDs []TreeID) (int64, error) {
	defer store.lock()()
	var released int64
	for treeID, tree := range store.state.trees {
		if tree.ReservedFor != requestID {
			continue
		}
		if len(treeIDs) > 0 && !slices.Contains(treeIDs, treeID) {
			continue
		}
		tree.ReservedFor = RequestID{}
		tree.AssignedTo = 0
		store.state.trees[treeID] = tree
		released++
	}
	return released, nil
}

func (store *stubStore) AssignTree(_ context.Context, treeID TreeID, requestID RequestID, recipientID int64) error {
	defer store.lock()()
	tree, ok := store.state.trees[treeID]
	if !ok || tree.ReservedFor != requestID {
		return ErrTreeNotReserved
	}
	if tree.AssignedTo != 0 {
		return ErrTreeAssigned
	}
	tree.AssignedTo = recipientID
	store.state.trees[treeID] = tree
	return nil
}

func (store *stubStore) UnassignTree(_ context.Context, treeID TreeID, requestID RequestID) error {
	defer store.lock()()
	tree, ok := store.state.trees[treeID]
	if !ok || tree.ReservedFor != requestID {
		return ErrTreeNotReserved
	}
	tree.AssignedTo = 0
	store.state.trees[treeID] = tree
	return nil
}

func (store *stubStore) InsertRecipient(_ context.Context, user GiftRequestUser) (GiftRequestUser, error) {
	defer store.lock()()
	for _, existing := range store.state.recipients {
		if existing.RequestID == user.RequestID && existing.AssigneeEmail != "" && existing.AssigneeEmail == user.AssigneeEmail {
			return GiftRequestUser{}, ErrDuplicateRecipient
		}
	}
	store.state.nextRecipientID++
	user.ID = store.state.nextRecipientID
	store.state.recipients[user.ID] = user
	return user, nil
}

func (store *stubStore) GetRecipient(_ context.Context, requestID RequestID, recipientID int64) (GiftRequestUser, error) {
	defer store.lock()()
	user, ok := store.state.recipients[recipientID]
	if !ok || user.RequestID != requestID {
		return GiftRequestUser{}, ErrUnknownRecipient
	}
	return user, nil
}

func (store *stubStore) ListRecipients(_ context.Context, requestID RequestID) ([]GiftRequestUser, error) {
	defer store.lock()()
	users := make([]GiftRequestUser, 0)
	for _, user := range store.state.recipients {
		if user.RequestID == requestID {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(left, right int) bool { return users[left].ID < users[right].ID })
	return users, nil
}

func (store *stubStore) UpdateRecipient(_ context.Context, user GiftRequestUser) error {
	defer store.lock()()
	existing, ok := store.state.recipients[user.ID]
	if !ok || existing.RequestID != user.RequestID {
		return ErrUnknownRecipient
	}
	store.state.recipients[user.ID] = user
	return nil
}

func (store *stubStore) DeleteRecipient(_ context.Context, requestID RequestID, recipientID int64) error {
	defer store.lock()()
	user, ok := store.state.recipients[recipientID]
	if !ok || user.RequestID != requestID {
		return ErrUnknownRecipient
	}
	delete(store.state.recipients, recipientID)
	return nil
}

func (store *stubStore) DeleteRecipients(_ context.Context, requestID RequestID) error {
	defer store.lock()()
	maps.DeleteFunc(store.state.recipients, func(_ int64, user GiftRequestUser) bool { return user.RequestID == requestID })
	return nil
}

func (store *stubStore) InsertDelivery(_ context.Context, delivery Delivery) error {
	defer store.lock()()
	key := deliveryKey{requestID: delivery.RequestID, role: delivery.Role, event: delivery.Event}
	if _, exists := store.state.deliveries[key]; exists {
		return ErrDuplicateDelivery
	}
	store.state.deliveries[key] = delivery
	return nil
}

func (store *stubStore) DeleteDelivery(_ context.Context, requestID RequestID, role RecipientRole, event EventType) error {
	defer store.lock()()
	delete(store.state.deliveries, deliveryKey{requestID: requestID, role: role, event: event})
	return nil
}

func (store *stubStore) DeleteDeliveries(_ context.Context, requestID RequestID) error {
	defer store.lock()()
	maps.DeleteFunc(store.state.deliveries, func(key deliveryKey, _ Delivery) bool { return key.requestID == requestID })
	return nil
}

func (store *stubStore) CreatePayment(_ context.Context, payment Payment) error {
	defer store.lock()()
	if _, exists := store.state.payments[payment.ID]; exists {
		return ErrPaymentAlreadyLinked
	}
	store.state.payments[payment.ID] = payment
	return nil
}

func (store *stubStore) GetPayment(_ context.Context, paymentID string) (Payment, error) {
	defer store.lock()()
	payment, ok := store.state.payments[paymentID]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return payment, nil
}

func (store *stubStore) ConfirmPayment(_ context.Context, paymentID string, confirmedUnixUTC int64) error {
	defer store.lock()()
	payment, ok := store.state.payments[paymentID]
	if !ok {
		return ErrPaymentNotFound
	}
	payment.Status = PaymentStatusConfirmed
	payment.ConfirmedUnixUTC = confirmedUnixUTC
	store.state.payments[paymentID] = payment
	return nil
}

func (store *stubStore) UnlinkPayments(_ context.Context, requestID RequestID) error {
	defer store.lock()()
	for paymentID, payment := range store.state.payments {
		if payment.RequestID == requestID {
			payment.RequestID = RequestID{}
			store.state.payments[paymentID] = payment
		}
	}
	return nil
}

func (store *stubStore) CreateAlbum(_ context.Context, album Album) error {
	defer store.lock()()
	store.state.albums[album.ID] = album
	return nil
}

func (store *stubStore) DetachAlbums(_ context.Context, requestID RequestID) error {
	defer store.lock()()
	for albumID, album := range store.state.albums {
		if album.RequestID == requestID {
			album.RequestID = RequestID{}
			store.state.albums[albumID] = album
		}
	}
	return nil
}

func (store *stubStore) InsertCardJob(_ context.Context, job CardJob) error {
	defer store.lock()()
	store.state.cardJobs[job.ID] = job
	return nil
}

func (store *stubStore) GetCardJob(_ context.Context, jobID string) (CardJob, error) {
	defer store.lock()()
	job, ok := store.state.cardJobs[jobID]
	if !ok {
		return CardJob{}, ErrUnknownCardJob
	}
	return job, nil
}

func (store *stubStore) FindPendingCardJob(_ context.Context, requestID RequestID) (CardJob, bool, error) {
	defer store.lock()()
	for _, job := range store.state.cardJobs {
		if job.RequestID == requestID && job.Status == CardJobPending {
			return job, true, nil
		}
	}
	return CardJob{}, false, nil
}

func (store *stubStore) ListPendingCardJobs(_ context.Context, limit int) ([]CardJob, error) {
	defer store.lock()()
	jobs := make([]CardJob, 0)
	for _, job := range store.state.cardJobs {
		if job.Status == CardJobPending {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(left, right int) bool { return jobs[left].ID < jobs[right].ID })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (store *stubStore) UpdateCardJobStatus(_ context.Context, jobID string, from, to CardJobStatus, updatedUnixUTC int64) error {
	defer store.lock()()
	job, ok := store.state.cardJobs[jobID]
	if !ok {
		return ErrUnknownCardJob
	}
	if job.Status != from {
		return ErrCardJobClosed
	}
	job.Status = to
	job.UpdatedUnixUTC = updatedUnixUTC
	store.state.cardJobs[jobID] = job
	return nil
}

func (store *stubStore) DeleteCardJobs(_ context.Context, requestID RequestID) error {
	defer store.lock()()
	maps.DeleteFunc(store.state.cardJobs, func(_ string, job CardJob) bool { return job.RequestID == requestID })
	return nil
}

func (store *stubStore) seedTrees(plotID PlotID, count int, giftable bool, habitats ...string) []TreeID {
	store.mu.Lock()
	defer store.mu.Unlock()
	treeIDs := make([]TreeID, 0, count)
	for index := 0; index < count; index++ {
		treeID := TreeID(len(store.state.trees) + 1)
		habitat := ""
		if len(habitats) > 0 {
			habitat = habitats[index%len(habitats)]
		}
		store.state.trees[treeID] = Tree{ID: treeID, PlotID: plotID, Habitat: habitat, Giftable: giftable}
		treeIDs = append(treeIDs, treeID)
	}
	return treeIDs
}

func (store *stubStore) mustRequest(test *testing.T, requestID RequestID) GiftCardRequest {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	request, ok := store.state.requests[requestID]
	if !ok {
		test.Fatalf("request %s not found", requestID.String())
	}
	return request
}

func (store *stubStore) tree(treeID TreeID) Tree {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.state.trees[treeID]
}

func (store *stubStore) deliveryCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.state.deliveries)
}

func sortTrees(trees []Tree) {
	sort.Slice(trees, func(left, right int) bool { return trees[left].ID < trees[right].ID })
}

type recordingSender struct {
	mu        sync.Mutex
	messages  []EmailMessage
	failRoles map[RecipientRole]error
}

func (sender *recordingSender) Send(_ context.Context, message EmailMessage) error {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if err := sender.failRoles[message.Role]; err != nil {
		return err
	}
	sender.messages = append(sender.messages, message)
	return nil
}

func (sender *recordingSender) sentTo(role RecipientRole) int {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	count := 0
	for _, message := range sender.messages {
		if message.Role == role {
			count++
		}
	}
	return count
}

type recordingCardQueue struct {
	mu   sync.Mutex
	jobs []CardJob
	err  error
}

func (queue *recordingCardQueue) EnqueueCardGeneration(_ context.Context, job CardJob, _ GiftCardRequest) error {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	if queue.err != nil {
		return queue.err
	}
	queue.jobs = append(queue.jobs, job)
	return nil
}

type mapCardStatus map[string]CardJobStatus

func (statuses mapCardStatus) GetCardStatus(_ context.Context, jobID string) (CardJobStatus, error) {
	status, ok := statuses[jobID]
	if !ok {
		return "", fmt.Errorf("job %s: %w", jobID, ErrUnknownCardJob)
	}
	return status, nil
}

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (locker *memoryLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	locker.mu.Lock()
	defer locker.mu.Unlock()
	if locker.held == nil {
		locker.held = make(map[string]bool)
	}
	if locker.held[key] {
		return nil, ErrAutoProcessBusy
	}
	locker.held[key] = true
	return func() {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		delete(locker.held, key)
	}, nil
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (ids *sequenceIDs) generate() string {
	ids.mu.Lock()
	defer ids.mu.Unlock()
	ids.next++
	return fmt.Sprintf("id-%03d", ids.next)
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	ids := &sequenceIDs{}
	options = append([]ServiceOption{WithIDGenerator(ids.generate)}, options...)
	service, err := NewService(store, func() int64 { return testNowUnixUTC }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustToken(test *testing.T, raw string) IdempotencyToken {
	test.Helper()
	token, err := NewIdempotencyToken(raw)
	if err != nil {
		test.Fatalf("token: %v", err)
	}
	return token
}

func mustStaffID(test *testing.T, raw string) StaffID {
	test.Helper()
	staffID, err := NewStaffID(raw)
	if err != nil {
		test.Fatalf("staff id: %v", err)
	}
	return staffID
}

func mustCreateRequest(test *testing.T, service *Service, token string, input CreateRequestInput) GiftCardRequest {
	test.Helper()
	request, created, err := service.Create(context.Background(), mustToken(test, token), input)
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if !created {
		test.Fatalf("expected %s to create a new request", token)
	}
	return request
}

func mustSetPlots(test *testing.T, store *stubStore, requestID RequestID, plots ...PlotID) {
	test.Helper()
	if err := store.UpdateRequest(context.Background(), requestID, RequestPatch{PlotIDs: &plots}, testNowUnixUTC); err != nil {
		test.Fatalf("set plots: %v", err)
	}
}

func mustAddRecipients(test *testing.T, service *Service, requestID RequestID, count int, offset int) []GiftRequestUser {
	test.Helper()
	inputs := make([]RecipientInput, 0, count)
	for index := 0; index < count; index++ {
		number := offset + index + 1
		inputs = append(inputs, RecipientInput{
			RecipientName:  fmt.Sprintf("Recipient %d", number),
			RecipientEmail: fmt.Sprintf("recipient%d@example.org", number),
		})
	}
	users, err := service.AddRecipients(context.Background(), requestID, inputs)
	if err != nil {
		test.Fatalf("add recipients: %v", err)
	}
	return users
}

func giftCardInput(cards int) CreateRequestInput {
	return CreateRequestInput{
		RequestType:  RequestTypeGiftCards,
		SponsorName:  "Acme Foundation",
		SponsorEmail: "sponsor@acme.example",
		LogoURL:      "https://cdn.example/acme.png",
		EventName:    "Annual Day",
		NoOfCards:    cards,
	}
}

var errStubFailure = errors.New("stub failure")
