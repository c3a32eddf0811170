package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/giftgrove/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testCallbackToken = "callback-secret"

type recordingQueue struct {
	mu   sync.Mutex
	jobs []gifting.CardJob
}

func (queue *recordingQueue) EnqueueCardGeneration(_ context.Context, job gifting.CardJob, _ gifting.GiftCardRequest) error {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	queue.jobs = append(queue.jobs, job)
	return nil
}

type adminHarness struct {
	server  *httptest.Server
	store   *gormstore.Store
	service *gifting.Service
	cfg    Config
	cookie *http.Cookie
	queue  *recordingQueue
}

func startAdminAPI(t *testing.T) *adminHarness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/gifting.db?_pragma=busy_timeout(5000)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		t.Fatalf("automigrate failed: %v", err)
	}
	store := gormstore.New(db)
	queue := &recordingQueue{}
	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := gifting.NewService(store, clock, gifting.WithCardQueue(queue))
	if err != nil {
		t.Fatalf("gifting service init failed: %v", err)
	}

	cfg := Config{
		ListenAddr:        ":0",
		AllowedOrigins:    []string{"http://localhost:8000"},
		SessionSigningKey: "secret-key",
		SessionIssuer:     "tauth",
		SessionCookieName: "app_session",
		CallbackToken:     testCallbackToken,
		RequestTimeout:    5 * time.Second,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}
	handler, err := newHTTPHandler(cfg, service, zap.NewNop())
	if err != nil {
		t.Fatalf("handler init failed: %v", err)
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		t.Fatalf("validator init failed: %v", err)
	}

	server := httptest.NewServer(setupRouter(cfg, handler, validator))
	t.Cleanup(server.Close)
	return &adminHarness{server: server, store: store, service: service, cfg: cfg, cookie: buildSessionCookie(t, cfg, "staff-1"), queue: queue}
}

func TestAdminAPIRequestLifecycle(t *testing.T) {
	harness := startAdminAPI(t)
	seedTrees(t, harness.store, 7, 101, 102, 103)

	createPayload := map[string]any{
		"request_type":  "Gift Cards",
		"sponsor_name":  "Acme Foundation",
		"sponsor_email": "sponsor@acme.example",
		"logo_url":      "https://cdn.example/acme.png",
		"event_name":    "Annual Day",
		"no_of_cards":   2,
		"tags":          []string{"Corporate"},
	}
	headers := map[string]string{idempotencyHeader: "token-1"}
	created := harness.exec(t, http.MethodPost, "/api/requests", createPayload, headers, http.StatusCreated)
	requestID := created.Request.RequestID
	if !created.Created || created.Request.Status != gifting.StatusPendingPlotSelection.String() {
		t.Fatalf("unexpected create response: %+v", created)
	}
	replayed := harness.exec(t, http.MethodPost, "/api/requests", createPayload, headers, http.StatusOK)
	if replayed.Created || replayed.Request.RequestID != requestID {
		t.Fatalf("expected replay of %s, got %+v", requestID, replayed)
	}

	base := "/api/requests/" + requestID
	updated := harness.exec(t, http.MethodPatch, base, map[string]any{"plot_ids": []int64{7}}, nil, http.StatusOK)
	if updated.Request.Status != gifting.StatusPendingAssignment.String() {
		t.Fatalf("expected pending assignment after plot selection, got %s", updated.Request.Status)
	}

	picked := harness.exec(t, http.MethodPost, base+"/pick", nil, nil, http.StatusOK)
	if picked.Request.ProcessedBy != "staff-1" {
		t.Fatalf("expected claim by staff-1, got %q", picked.Request.ProcessedBy)
	}

	reserved := harness.exec(t, http.MethodPost, base+"/reservations", map[string]any{"required_count": 2}, nil, http.StatusOK)
	if len(reserved.Reservation.BookedTreeIDs) != 2 || reserved.Reservation.Deficit != 0 {
		t.Fatalf("unexpected reservation: %+v", reserved.Reservation)
	}
	movedPlots := harness.exec(t, http.MethodPatch, base, map[string]any{"plot_ids": []int64{8}}, nil, http.StatusConflict)
	if movedPlots.Error.Code != errorPlotInUse {
		t.Fatalf("expected plot_in_use, got %+v", movedPlots.Error)
	}

	recipients := map[string]any{"recipients": []map[string]any{
		{"recipient_name": "Asha", "recipient_email": "asha@example.com"},
		{"recipient_name": "Ravi", "recipient_email": "ravi@example.com"},
	}}
	added := harness.exec(t, http.MethodPost, base+"/recipients", recipients, nil, http.StatusCreated)
	if len(added.Recipients) != 2 {
		t.Fatalf("expected two recipients, got %d", len(added.Recipients))
	}
	assigned := harness.exec(t, http.MethodPost, base+"/assign", nil, nil, http.StatusOK)
	if assigned.Assigned != 2 {
		t.Fatalf("expected two assignments, got %d", assigned.Assigned)
	}

	enqueued := harness.exec(t, http.MethodPost, base+"/cards", nil, nil, http.StatusAccepted)
	if enqueued.CardJob == nil || enqueued.CardJob.Status != string(gifting.CardJobPending) {
		t.Fatalf("expected pending card job, got %+v", enqueued.CardJob)
	}
	callbackHeaders := map[string]string{callbackTokenHeader: testCallbackToken}
	harness.exec(t, http.MethodPost, "/callbacks/card-jobs/"+enqueued.CardJob.JobID, map[string]any{"status": "completed"}, callbackHeaders, http.StatusOK)

	final := harness.exec(t, http.MethodGet, base, nil, nil, http.StatusOK)
	if final.Request.Status != gifting.StatusCompleted.String() || !final.Request.CardsGenerated {
		t.Fatalf("expected completed request, got %+v", final.Request)
	}
	if len(final.Request.ValidationErrors) != 0 {
		t.Fatalf("expected no validation errors, got %v", final.Request.ValidationErrors)
	}
}

func TestAdminAPIListsAndInvalidatesAfterWrites(t *testing.T) {
	harness := startAdminAPI(t)
	for _, token := range []string{"list-a", "list-b"} {
		harness.exec(t, http.MethodPost, "/api/requests", map[string]any{
			"idempotency_token": token,
			"request_type":      "Visit",
			"sponsor_name":      "Sponsor " + token,
			"no_of_cards":       1,
			"tags":              []string{"school"},
		}, nil, http.StatusCreated)
	}
	listed := harness.exec(t, http.MethodGet, "/api/requests?tag=school&limit=10", nil, nil, http.StatusOK)
	if len(listed.Requests) != 2 {
		t.Fatalf("expected two tagged requests, got %d", len(listed.Requests))
	}

	harness.exec(t, http.MethodPut, "/api/requests/"+listed.Requests[0].RequestID+"/tags", map[string]any{"tags": []string{"other"}}, nil, http.StatusOK)
	relisted := harness.exec(t, http.MethodGet, "/api/requests?tag=school&limit=10", nil, nil, http.StatusOK)
	if len(relisted.Requests) != 1 {
		t.Fatalf("expected one tagged request after retagging, got %d", len(relisted.Requests))
	}

	harness.exec(t, http.MethodGet, "/api/requests?limit=-1", nil, nil, http.StatusBadRequest)
	harness.exec(t, http.MethodGet, "/api/requests?type=Unknown", nil, nil, http.StatusBadRequest)
}

func TestAdminAPIListingSeesWritesFromOtherSurfaces(t *testing.T) {
	harness := startAdminAPI(t)
	created := harness.exec(t, http.MethodPost, "/api/requests", map[string]any{
		"idempotency_token": "claimed-elsewhere",
		"request_type":      "Visit",
		"sponsor_name":      "Sponsor",
		"no_of_cards":       1,
	}, nil, http.StatusCreated)
	before := harness.exec(t, http.MethodGet, "/api/requests?processed_by=staff-2", nil, nil, http.StatusOK)
	if len(before.Requests) != 0 {
		t.Fatalf("expected no requests held by staff-2, got %d", len(before.Requests))
	}

	requestID, err := gifting.NewRequestID(created.Request.RequestID)
	if err != nil {
		t.Fatalf("request id: %v", err)
	}
	holder, err := gifting.NewStaffID("staff-2")
	if err != nil {
		t.Fatalf("staff id: %v", err)
	}
	if _, err := harness.service.Pick(context.Background(), requestID, holder); err != nil {
		t.Fatalf("pick: %v", err)
	}
	after := harness.exec(t, http.MethodGet, "/api/requests?processed_by=staff-2", nil, nil, http.StatusOK)
	if len(after.Requests) != 1 || after.Requests[0].ProcessedBy != "staff-2" {
		t.Fatalf("expected the request picked outside the admin api, got %+v", after.Requests)
	}
}

func TestAdminAPIRejectsInvalidInput(t *testing.T) {
	harness := startAdminAPI(t)

	invalid := harness.exec(t, http.MethodPost, "/api/requests", map[string]any{
		"idempotency_token": "bad",
		"request_type":      "Gift Cards",
		"sponsor_email":     "not-an-email",
		"no_of_cards":       0,
	}, nil, http.StatusBadRequest)
	if invalid.Error.Code != errorInvalidPayload {
		t.Fatalf("expected invalid payload, got %+v", invalid.Error)
	}
	fields := invalid.Error.Details["fields"]
	if fields == nil {
		t.Fatalf("expected field details, got %+v", invalid.Error)
	}

	missingToken := harness.exec(t, http.MethodPost, "/api/requests", map[string]any{"request_type": "Test", "no_of_cards": 1}, nil, http.StatusBadRequest)
	if missingToken.Error.Code != errorInvalidRequest {
		t.Fatalf("expected invalid request for missing token, got %+v", missingToken.Error)
	}

	harness.exec(t, http.MethodGet, "/api/requests/missing", nil, nil, http.StatusNotFound)
	harness.exec(t, http.MethodPost, "/api/requests/missing/recipients", map[string]any{"recipients": []map[string]any{}}, nil, http.StatusBadRequest)
	harness.exec(t, http.MethodPatch, "/api/requests/missing/recipients/abc", map[string]any{}, nil, http.StatusBadRequest)
}

func TestAdminAPIClaimConflictAndDelete(t *testing.T) {
	harness := startAdminAPI(t)
	created := harness.exec(t, http.MethodPost, "/api/requests", map[string]any{
		"idempotency_token": "claim",
		"request_type":      "Test",
		"no_of_cards":       1,
	}, nil, http.StatusCreated)
	base := "/api/requests/" + created.Request.RequestID

	harness.exec(t, http.MethodPost, base+"/pick", nil, nil, http.StatusOK)
	otherCookie := buildSessionCookie(t, harness.cfg, "staff-2")
	conflict := harness.execAs(t, otherCookie, http.MethodPost, base+"/pick", nil, nil, http.StatusConflict)
	if conflict.Error.Code != errorAlreadyClaimed || conflict.Error.Details["holder"] != "staff-1" {
		t.Fatalf("expected claim conflict naming staff-1, got %+v", conflict.Error)
	}
	harness.execAs(t, otherCookie, http.MethodDelete, base+"/pick", nil, nil, http.StatusForbidden)

	unconfirmed := harness.exec(t, http.MethodDelete, base, nil, nil, http.StatusPreconditionRequired)
	if unconfirmed.Error.Code != errorDeleteNotConfirmed {
		t.Fatalf("expected delete confirmation error, got %+v", unconfirmed.Error)
	}
	harness.exec(t, http.MethodDelete, base+"?confirm=true", nil, nil, http.StatusNoContent)
	harness.exec(t, http.MethodGet, base, nil, nil, http.StatusNotFound)
}

func TestAdminAPIRequiresSessionAndCallbackToken(t *testing.T) {
	harness := startAdminAPI(t)

	request, err := http.NewRequest(http.MethodGet, harness.server.URL+"/api/requests", nil)
	if err != nil {
		t.Fatalf("request init failed: %v", err)
	}
	response, err := harness.server.Client().Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", response.StatusCode)
	}

	denied := harness.exec(t, http.MethodPost, "/callbacks/card-jobs/any", map[string]any{"status": "completed"}, map[string]string{callbackTokenHeader: "wrong"}, http.StatusUnauthorized)
	if denied.Error.Code != errorUnauthorized {
		t.Fatalf("expected unauthorized callback, got %+v", denied.Error)
	}
	harness.exec(t, http.MethodPost, "/callbacks/card-jobs/missing", map[string]any{"status": "completed"}, map[string]string{callbackTokenHeader: testCallbackToken}, http.StatusNotFound)
}

func TestMapToHTTPErrorReportsPartialAutoProcess(t *testing.T) {
	failure := mapToHTTPError(gifting.AutoProcessError{Step: gifting.AutoProcessStepAssign, Err: gifting.ErrCountInvariant})
	if failure.status != http.StatusBadGateway || failure.code != errorPartialAutoProcess {
		t.Fatalf("unexpected mapping: %+v", failure)
	}
	if failure.details["cause"] != errorCountInvariant {
		t.Fatalf("expected count invariant cause, got %v", failure.details["cause"])
	}
	shortfall := mapToHTTPError(gifting.AutoProcessError{Step: gifting.AutoProcessStepReserve, Err: gifting.InventoryShortfallError{Required: 3}})
	if shortfall.code != errorInsufficientInventory {
		t.Fatalf("expected reserve-step shortfall to stay insufficient_inventory, got %s", shortfall.code)
	}
}

func (harness *adminHarness) exec(t *testing.T, method, path string, payload map[string]any, headers map[string]string, expectedStatus int) apiEnvelope {
	t.Helper()
	return harness.execAs(t, harness.cookie, method, path, payload, headers, expectedStatus)
}

func (harness *adminHarness) execAs(t *testing.T, cookie *http.Cookie, method, path string, payload map[string]any, headers map[string]string, expectedStatus int) apiEnvelope {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(mustJSONMarshal(t, payload))
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, harness.server.URL+path, body)
	if err != nil {
		t.Fatalf("request init failed: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	req.AddCookie(cookie)
	resp, err := harness.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != expectedStatus {
		t.Fatalf("%s %s: expected status %d, got %d", method, path, expectedStatus, resp.StatusCode)
	}
	var envelope apiEnvelope
	if resp.StatusCode == http.StatusNoContent {
		return envelope
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return envelope
}

func seedTrees(t *testing.T, store *gormstore.Store, plot gifting.PlotID, ids ...int64) {
	t.Helper()
	trees := make([]gifting.Tree, 0, len(ids))
	for _, id := range ids {
		trees = append(trees, gifting.Tree{ID: gifting.TreeID(id), PlotID: plot, Giftable: true})
	}
	if err := store.SeedTrees(context.Background(), trees); err != nil {
		t.Fatalf("seed trees: %v", err)
	}
}

func buildSessionCookie(t *testing.T, cfg Config, userID string) *http.Cookie {
	claims := &sessionvalidator.Claims{
		UserID:          userID,
		UserEmail:       userID + "@giftgrove.example",
		UserDisplayName: "Staff",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.SessionSigningKey))
	if err != nil {
		t.Fatalf("token signing failed: %v", err)
	}
	return &http.Cookie{Name: cfg.SessionCookieName, Value: signed}
}

func mustJSONMarshal(t *testing.T, payload map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return raw
}

type apiEnvelope struct {
	Request     requestResponse     `json:"request"`
	Requests    []requestResponse   `json:"requests"`
	Created     bool                `json:"created"`
	Reservation reservationResponse `json:"reservation"`
	Recipients  []recipientResponse `json:"recipients"`
	Assigned    int                 `json:"assigned"`
	CardJob     *cardJobResponse    `json:"card_job"`
	Error       struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}
