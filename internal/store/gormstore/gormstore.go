package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	defaultListLimit      = 50
	maxListLimit          = 200

	errorOperationStore   = "store"
	errorSubjectRequest   = "request"
	errorSubjectClaim     = "claim"
	errorSubjectTree      = "tree"
	errorSubjectRecipient = "recipient"
	errorSubjectDelivery  = "delivery"
	errorSubjectPayment   = "payment"
	errorSubjectAlbum     = "album"
	errorSubjectCardJob   = "card_job"
	errorCodeCreate       = "create"
	errorCodeDelete       = "delete"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeUpdate       = "update"
	errorCodeUpdateCounts = "update_counts"
	errorCodeUpdateStatus = "update_status"
	errorCodeAcquire      = "acquire"
	errorCodeRelease      = "release"
	errorCodeReserve      = "reserve"
	errorCodeAssign       = "assign"
)

// Store implements gifting.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore gifting.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateRequest(ctx context.Context, request gifting.GiftCardRequest) error {
	model := fromRequest(request)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectRequest, errorCodeDuplicate, gifting.ErrDuplicateIdempotency)
	}
	if err != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetRequest(ctx context.Context, requestID gifting.RequestID) (gifting.GiftCardRequest, error) {
	return store.takeRequest(store.db.WithContext(ctx).Where("id = ?", requestID.String()))
}

func (store *Store) LockRequest(ctx context.Context, requestID gifting.RequestID) (gifting.GiftCardRequest, error) {
	return store.takeRequest(store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", requestID.String()))
}

func (store *Store) FindRequestByToken(ctx context.Context, token gifting.IdempotencyToken) (gifting.GiftCardRequest, error) {
	return store.takeRequest(store.db.WithContext(ctx).Where("idempotency_token = ?", token.String()))
}

func (store *Store) takeRequest(query *gorm.DB) (gifting.GiftCardRequest, error) {
	var model GiftRequest
	if err := query.Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gifting.GiftCardRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, gifting.ErrUnknownRequest)
		}
		return gifting.GiftCardRequest{}, wrapStoreError(errorSubjectRequest, errorCodeGet, err)
	}
	request, err := toRequest(model)
	if err != nil {
		return gifting.GiftCardRequest{}, wrapStoreError(errorSubjectRequest, errorCodeInvalid, err)
	}
	return request, nil
}

func (store *Store) UpdateRequest(ctx context.Context, requestID gifting.RequestID, patch gifting.RequestPatch, updatedUnixUTC int64) error {
	values := requestPatchValues(patch)
	values["updated_at"] = unixToTime(updatedUnixUTC)
	result := store.db.WithContext(ctx).
		Model(&GiftRequest{}).
		Where("id = ?", requestID.String()).
		UpdateColumns(values)
	if result.Error != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdate, gifting.ErrUnknownRequest)
	}
	return nil
}

func (store *Store) AdjustCounts(ctx context.Context, requestID gifting.RequestID, bookedDelta int, assignedDelta int) error {
	result := store.db.WithContext(ctx).
		Model(&GiftRequest{}).
		Where("id = ?", requestID.String()).
		Where("booked + ? <= no_of_cards", bookedDelta).
		Where("assigned + ? >= 0", assignedDelta).
		Where("assigned + ? <= booked + ?", assignedDelta, bookedDelta).
		UpdateColumns(map[string]any{
			"booked":   gorm.Expr("booked + ?", bookedDelta),
			"assigned": gorm.Expr("assigned + ?", assignedDelta),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateCounts, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetRequest(ctx, requestID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectRequest, errorCodeUpdateCounts, gifting.ErrCountInvariant)
	}
	return nil
}

func (store *Store) DeleteRequest(ctx context.Context, requestID gifting.RequestID) error {
	result := store.db.WithContext(ctx).Where("id = ?", requestID.String()).Delete(&GiftRequest{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRequest, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRequest, errorCodeDelete, gifting.ErrUnknownRequest)
	}
	return nil
}

var sortableColumns = map[string]string{
	"":            "created_at",
	"created_at":  "created_at",
	"updated_at":  "updated_at",
	"no_of_cards": "no_of_cards",
	"booked":      "booked",
	"assigned":    "assigned",
	"sponsor":     "sponsor_name",
	"event":       "event_name",
	"type":        "request_type",
}

func (store *Store) ListRequests(ctx context.Context, query gifting.RequestQuery) ([]gifting.GiftCardRequest, error) {
	statement := store.db.WithContext(ctx).Model(&GiftRequest{})
	if query.RequestType != "" {
		statement = statement.Where("request_type = ?", query.RequestType.String())
	}
	if query.ProcessedBy != "" {
		statement = statement.Where("processed_by = ?", query.ProcessedBy)
	}
	if query.Tag != "" {
		statement = statement.Where(datatypes.JSONArrayQuery("tags").Contains(query.Tag))
	}
	if search := strings.ToLower(strings.TrimSpace(query.Search)); search != "" {
		pattern := "%" + search + "%"
		statement = statement.Where("LOWER(sponsor_name) LIKE ? OR LOWER(event_name) LIKE ? OR LOWER(sponsor_email) LIKE ? OR id = ?", pattern, pattern, pattern, search)
	}
	column, ok := sortableColumns[query.SortBy]
	if !ok {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, errors.New("unsupported sort column "+query.SortBy))
	}
	statement = statement.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: query.Descending}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: query.Descending})
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var rows []GiftRequest
	if err := statement.Offset(max(query.Offset, 0)).Limit(limit).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	return toRequests(rows)
}

func (store *Store) GetRequests(ctx context.Context, requestIDs []gifting.RequestID) ([]gifting.GiftCardRequest, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(requestIDs))
	for _, requestID := range requestIDs {
		ids = append(ids, requestID.String())
	}
	var rows []GiftRequest
	if err := store.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectRequest, errorCodeList, err)
	}
	byID := make(map[string]GiftRequest, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]GiftRequest, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
			delete(byID, id)
		}
	}
	return toRequests(ordered)
}

func (store *Store) AcquireClaim(ctx context.Context, requestID gifting.RequestID, holder gifting.StaffID, nowUnixUTC int64, expiredBeforeUnixUTC int64) (bool, error) {
	statement := store.db.WithContext(ctx).Model(&GiftRequest{}).Where("id = ?", requestID.String())
	if expiredBeforeUnixUTC > 0 {
		statement = statement.Where("processed_by IS NULL OR claimed_at < ?", unixToTime(expiredBeforeUnixUTC))
	} else {
		statement = statement.Where("processed_by IS NULL")
	}
	result := statement.UpdateColumns(map[string]any{
		"processed_by": holder.String(),
		"claimed_at":   unixToTime(nowUnixUTC),
	})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectClaim, errorCodeAcquire, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetRequest(ctx, requestID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (store *Store) ReleaseClaim(ctx context.Context, requestID gifting.RequestID, holder gifting.StaffID) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&GiftRequest{}).
		Where("id = ? AND processed_by = ?", requestID.String(), holder.String()).
		UpdateColumns(map[string]any{"processed_by": nil, "claimed_at": nil})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectClaim, errorCodeRelease, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetRequest(ctx, requestID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (store *Store) ReleaseExpiredClaims(ctx context.Context, expiredBeforeUnixUTC int64) (int64, error) {
	result := store.db.WithContext(ctx).
		Model(&GiftRequest{}).
		Where("processed_by IS NOT NULL AND claimed_at < ?", unixToTime(expiredBeforeUnixUTC)).
		UpdateColumns(map[string]any{"processed_by": nil, "claimed_at": nil})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectClaim, errorCodeRelease, result.Error)
	}
	return result.RowsAffected, nil
}

func (store *Store) ListAvailableTrees(ctx context.Context, plotIDs []gifting.PlotID, giftableOnly bool, habitats []string) ([]gifting.Tree, error) {
	if len(plotIDs) == 0 {
		return nil, nil
	}
	plots := make([]int64, 0, len(plotIDs))
	for _, plotID := range plotIDs {
		plots = append(plots, plotID.Int64())
	}
	statement := store.db.WithContext(ctx).
		Where("plot_id IN ? AND reserved_for IS NULL", plots)
	if giftableOnly {
		statement = statement.Where("giftable = ?", true)
	}
	if len(habitats) > 0 {
		statement = statement.Where("habitat IN ?", habitats)
	}
	var rows []Tree
	if err := statement.Order("id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectTree, errorCodeList, err)
	}
	return toTrees(rows)
}

func (store *Store) GetTrees(ctx context.Context, treeIDs []gifting.TreeID) ([]gifting.Tree, error) {
	if len(treeIDs) == 0 {
		return nil, nil
	}
	var rows []Tree
	if err := store.db.WithContext(ctx).Where("id IN ?", treeIDList(treeIDs)).Order("id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectTree, errorCodeGet, err)
	}
	return toTrees(rows)
}

func (store *Store) ListReservedTrees(ctx context.Context, requestID gifting.RequestID) ([]gifting.Tree, error) {
	var rows []Tree
	if err := store.db.WithContext(ctx).Where("reserved_for = ?", requestID.String()).Order("id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectTree, errorCodeList, err)
	}
	return toTrees(rows)
}

func (store *Store) ReserveTree(ctx context.Context, treeID gifting.TreeID, requestID gifting.RequestID) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&Tree{}).
		Where("id = ? AND reserved_for IS NULL", treeID.Int64()).
		UpdateColumn("reserved_for", requestID.String())
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectTree, errorCodeReserve, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) ReleaseTrees(ctx context.Context, requestID gifting.RequestID, treeIDs []gifting.TreeID) (int64, error) {
	statement := store.db.WithContext(ctx).Model(&Tree{}).Where("reserved_for = ?", requestID.String())
	if len(treeIDs) > 0 {
		statement = statement.Where("id IN ?", treeIDList(treeIDs))
	}
	result := statement.UpdateColumns(map[string]any{"reserved_for": nil, "assigned_to": nil})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectTree, errorCodeRelease, result.Error)
	}
	return result.RowsAffected, nil
}

func (store *Store) AssignTree(ctx context.Context, treeID gifting.TreeID, requestID gifting.RequestID, recipientID int64) error {
	result := store.db.WithContext(ctx).
		Model(&Tree{}).
		Where("id = ? AND reserved_for = ? AND assigned_to IS NULL", treeID.Int64(), requestID.String()).
		UpdateColumn("assigned_to", recipientID)
	if result.Error != nil {
		return wrapStoreError(errorSubjectTree, errorCodeAssign, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTree, errorCodeAssign, store.treeAssignmentFailure(ctx, treeID, requestID))
	}
	return nil
}

func (store *Store) UnassignTree(ctx context.Context, treeID gifting.TreeID, requestID gifting.RequestID) error {
	result := store.db.WithContext(ctx).
		Model(&Tree{}).
		Where("id = ? AND reserved_for = ?", treeID.Int64(), requestID.String()).
		UpdateColumn("assigned_to", nil)
	if result.Error != nil {
		return wrapStoreError(errorSubjectTree, errorCodeAssign, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTree, errorCodeAssign, gifting.ErrTreeNotReserved)
	}
	return nil
}

func (store *Store) treeAssignmentFailure(ctx context.Context, treeID gifting.TreeID, requestID gifting.RequestID) error {
	var row Tree
	if err := store.db.WithContext(ctx).Where("id = ?", treeID.Int64()).Take(&row).Error; err != nil {
		return gifting.ErrTreeNotReserved
	}
	if row.ReservedFor == nil || *row.ReservedFor != requestID.String() {
		return gifting.ErrTreeNotReserved
	}
	return gifting.ErrTreeAssigned
}

func (store *Store) InsertRecipient(ctx context.Context, user gifting.GiftRequestUser) (gifting.GiftRequestUser, error) {
	model := fromRecipient(user)
	model.ID = 0
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return gifting.GiftRequestUser{}, wrapStoreError(errorSubjectRecipient, errorCodeDuplicate, gifting.ErrDuplicateRecipient)
	}
	if err != nil {
		return gifting.GiftRequestUser{}, wrapStoreError(errorSubjectRecipient, errorCodeCreate, err)
	}
	user.ID = model.ID
	return user, nil
}

func (store *Store) GetRecipient(ctx context.Context, requestID gifting.RequestID, recipientID int64) (gifting.GiftRequestUser, error) {
	var model GiftRequestUser
	err := store.db.WithContext(ctx).
		Where("id = ? AND request_id = ?", recipientID, requestID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gifting.GiftRequestUser{}, wrapStoreError(errorSubjectRecipient, errorCodeGet, gifting.ErrUnknownRecipient)
		}
		return gifting.GiftRequestUser{}, wrapStoreError(errorSubjectRecipient, errorCodeGet, err)
	}
	user, err := toRecipient(model)
	if err != nil {
		return gifting.GiftRequestUser{}, wrapStoreError(errorSubjectRecipient, errorCodeInvalid, err)
	}
	return user, nil
}

func (store *Store) ListRecipients(ctx context.Context, requestID gifting.RequestID) ([]gifting.GiftRequestUser, error) {
	var rows []GiftRequestUser
	if err := store.db.WithContext(ctx).Where("request_id = ?", requestID.String()).Order("id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectRecipient, errorCodeList, err)
	}
	users := make([]gifting.GiftRequestUser, 0, len(rows))
	for _, row := range rows {
		user, err := toRecipient(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRecipient, errorCodeInvalid, err)
		}
		users = append(users, user)
	}
	return users, nil
}

func (store *Store) UpdateRecipient(ctx context.Context, user gifting.GiftRequestUser) error {
	model := fromRecipient(user)
	result := store.db.WithContext(ctx).
		Model(&GiftRequestUser{}).
		Where("id = ? AND request_id = ?", user.ID, user.RequestID.String()).
		UpdateColumns(map[string]any{
			"recipient_name":    model.RecipientName,
			"recipient_email":   model.RecipientEmail,
			"recipient_phone":   model.RecipientPhone,
			"assignee_name":     model.AssigneeName,
			"assignee_email":    model.AssigneeEmail,
			"relation":          model.Relation,
			"profile_image_url": model.ProfileImageURL,
			"tree_id":           model.TreeID,
		})
	if isUniqueViolation(result.Error) {
		return wrapStoreError(errorSubjectRecipient, errorCodeDuplicate, gifting.ErrDuplicateRecipient)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectRecipient, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRecipient, errorCodeUpdate, gifting.ErrUnknownRecipient)
	}
	return nil
}

func (store *Store) DeleteRecipient(ctx context.Context, requestID gifting.RequestID, recipientID int64) error {
	result := store.db.WithContext(ctx).Where("id = ? AND request_id = ?", recipientID, requestID.String()).Delete(&GiftRequestUser{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRecipient, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRecipient, errorCodeDelete, gifting.ErrUnknownRecipient)
	}
	return nil
}

func (store *Store) DeleteRecipients(ctx context.Context, requestID gifting.RequestID) error {
	if err := store.db.WithContext(ctx).Where("request_id = ?", requestID.String()).Delete(&GiftRequestUser{}).Error; err != nil {
		return wrapStoreError(errorSubjectRecipient, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) InsertDelivery(ctx context.Context, delivery gifting.Delivery) error {
	model := EmailDelivery{
		RequestID:  delivery.RequestID.String(),
		Role:       string(delivery.Role),
		Event:      string(delivery.Event),
		Recipients: datatypes.NewJSONSlice(nonNil(delivery.Recipients)),
		CreatedAt:  unixToTime(delivery.CreatedUnixUTC),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectDelivery, errorCodeDuplicate, gifting.ErrDuplicateDelivery)
	}
	if err != nil {
		return wrapStoreError(errorSubjectDelivery, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) DeleteDelivery(ctx context.Context, requestID gifting.RequestID, role gifting.RecipientRole, event gifting.EventType) error {
	err := store.db.WithContext(ctx).
		Where("request_id = ? AND role = ? AND event = ?", requestID.String(), string(role), string(event)).
		Delete(&EmailDelivery{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectDelivery, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) DeleteDeliveries(ctx context.Context, requestID gifting.RequestID) error {
	if err := store.db.WithContext(ctx).Where("request_id = ?", requestID.String()).Delete(&EmailDelivery{}).Error; err != nil {
		return wrapStoreError(errorSubjectDelivery, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) CreatePayment(ctx context.Context, payment gifting.Payment) error {
	requestID := payment.RequestID.String()
	model := Payment{
		ID:        payment.ID,
		RequestID: &requestID,
		Amount:    payment.Amount,
		Status:    string(payment.Status),
		CreatedAt: time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, gifting.ErrPaymentAlreadyLinked)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetPayment(ctx context.Context, paymentID string) (gifting.Payment, error) {
	var model Payment
	if err := store.db.WithContext(ctx).Where("id = ?", paymentID).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gifting.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, gifting.ErrPaymentNotFound)
		}
		return gifting.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	payment := gifting.Payment{
		ID:               model.ID,
		Amount:           model.Amount,
		Status:           gifting.PaymentStatus(model.Status),
		ConfirmedUnixUTC: timeOrZero(model.ConfirmedAt),
	}
	if model.RequestID != nil {
		requestID, err := gifting.NewRequestID(*model.RequestID)
		if err != nil {
			return gifting.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
		}
		payment.RequestID = requestID
	}
	return payment, nil
}

func (store *Store) ConfirmPayment(ctx context.Context, paymentID string, confirmedUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ?", paymentID).
		UpdateColumns(map[string]any{
			"status":       string(gifting.PaymentStatusConfirmed),
			"confirmed_at": unixToTime(confirmedUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, gifting.ErrPaymentNotFound)
	}
	return nil
}

func (store *Store) UnlinkPayments(ctx context.Context, requestID gifting.RequestID) error {
	err := store.db.WithContext(ctx).
		Model(&Payment{}).
		Where("request_id = ?", requestID.String()).
		UpdateColumn("request_id", nil).Error
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) CreateAlbum(ctx context.Context, album gifting.Album) error {
	requestID := album.RequestID.String()
	model := Album{
		ID:        album.ID,
		RequestID: &requestID,
		Name:      album.Name,
		ImageURLs: datatypes.NewJSONSlice(nonNil(album.ImageURLs)),
		CreatedAt: time.Now().UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectAlbum, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) DetachAlbums(ctx context.Context, requestID gifting.RequestID) error {
	err := store.db.WithContext(ctx).
		Model(&Album{}).
		Where("request_id = ?", requestID.String()).
		UpdateColumn("request_id", nil).Error
	if err != nil {
		return wrapStoreError(errorSubjectAlbum, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) InsertCardJob(ctx context.Context, job gifting.CardJob) error {
	model := CardJob{
		ID:        job.ID,
		RequestID: job.RequestID.String(),
		Status:    string(job.Status),
		CreatedAt: unixToTime(job.CreatedUnixUTC),
		UpdatedAt: unixToTime(job.UpdatedUnixUTC),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectCardJob, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetCardJob(ctx context.Context, jobID string) (gifting.CardJob, error) {
	var model CardJob
	if err := store.db.WithContext(ctx).Where("id = ?", jobID).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gifting.CardJob{}, wrapStoreError(errorSubjectCardJob, errorCodeGet, gifting.ErrUnknownCardJob)
		}
		return gifting.CardJob{}, wrapStoreError(errorSubjectCardJob, errorCodeGet, err)
	}
	job, err := toCardJob(model)
	if err != nil {
		return gifting.CardJob{}, wrapStoreError(errorSubjectCardJob, errorCodeInvalid, err)
	}
	return job, nil
}

func (store *Store) FindPendingCardJob(ctx context.Context, requestID gifting.RequestID) (gifting.CardJob, bool, error) {
	var rows []CardJob
	err := store.db.WithContext(ctx).
		Where("request_id = ? AND status = ?", requestID.String(), string(gifting.CardJobPending)).
		Order("created_at").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return gifting.CardJob{}, false, wrapStoreError(errorSubjectCardJob, errorCodeGet, err)
	}
	if len(rows) == 0 {
		return gifting.CardJob{}, false, nil
	}
	job, err := toCardJob(rows[0])
	if err != nil {
		return gifting.CardJob{}, false, wrapStoreError(errorSubjectCardJob, errorCodeInvalid, err)
	}
	return job, true, nil
}

func (store *Store) ListPendingCardJobs(ctx context.Context, limit int) ([]gifting.CardJob, error) {
	var rows []CardJob
	err := store.db.WithContext(ctx).
		Where("status = ?", string(gifting.CardJobPending)).
		Order("created_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCardJob, errorCodeList, err)
	}
	jobs := make([]gifting.CardJob, 0, len(rows))
	for _, row := range rows {
		job, err := toCardJob(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCardJob, errorCodeInvalid, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (store *Store) UpdateCardJobStatus(ctx context.Context, jobID string, from, to gifting.CardJobStatus, updatedUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&CardJob{}).
		Where("id = ? AND status = ?", jobID, string(from)).
		UpdateColumns(map[string]any{"status": string(to), "updated_at": unixToTime(updatedUnixUTC)})
	if result.Error != nil {
		return wrapStoreError(errorSubjectCardJob, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCardJob, errorCodeUpdateStatus, gifting.ErrCardJobClosed)
	}
	return nil
}

func (store *Store) DeleteCardJobs(ctx context.Context, requestID gifting.RequestID) error {
	if err := store.db.WithContext(ctx).Where("request_id = ?", requestID.String()).Delete(&CardJob{}).Error; err != nil {
		return wrapStoreError(errorSubjectCardJob, errorCodeDelete, err)
	}
	return nil
}

// SeedTrees inserts inventory rows; existing ids are left untouched.
func (store *Store) SeedTrees(ctx context.Context, trees []gifting.Tree) error {
	if len(trees) == 0 {
		return nil
	}
	rows := make([]Tree, 0, len(trees))
	for _, tree := range trees {
		rows = append(rows, Tree{ID: tree.ID.Int64(), PlotID: tree.PlotID.Int64(), Habitat: tree.Habitat, Giftable: tree.Giftable})
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return wrapStoreError(errorSubjectTree, errorCodeCreate, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return gifting.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
