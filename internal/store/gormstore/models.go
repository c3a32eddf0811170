package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GiftRequest mirrors the gift_requests table.
type GiftRequest struct {
	ID               string                      `gorm:"primaryKey"`
	IdempotencyToken string                      `gorm:"not null;uniqueIndex:uniq_gift_requests_token"`
	Category         string                      `gorm:"not null;default:''"`
	Grove            string                      `gorm:"not null;default:''"`
	RequestType      string                      `gorm:"not null;index:idx_gift_requests_type"`
	SponsorshipType  string                      `gorm:"not null;default:''"`
	SponsorName      string                      `gorm:"not null;default:''"`
	SponsorEmail     string                      `gorm:"not null;default:''"`
	LogoURL          string                      `gorm:"not null;default:''"`
	EventName        string                      `gorm:"not null;default:''"`
	PrimaryMessage   string                      `gorm:"not null;default:''"`
	SecondaryMessage string                      `gorm:"not null;default:''"`
	NoOfCards        int                         `gorm:"not null"`
	Booked           int                         `gorm:"not null;default:0"`
	Assigned         int                         `gorm:"not null;default:0"`
	PlotIDs          datatypes.JSONSlice[int64]  `gorm:"not null"`
	PaymentID        *string                     `gorm:""`
	ProcessedBy      *string                     `gorm:"index:idx_gift_requests_processed_by"`
	ClaimedAt        *time.Time                  `gorm:""`
	Tags             datatypes.JSONSlice[string] `gorm:"not null"`
	Notes            string                      `gorm:"not null;default:''"`
	CardsGenerated   bool                        `gorm:"not null;default:false"`
	CreatedAt        time.Time                   `gorm:"not null;index:idx_gift_requests_created"`
	UpdatedAt        time.Time                   `gorm:"not null"`
}

func (GiftRequest) TableName() string { return "gift_requests" }

func (request *GiftRequest) BeforeCreate(tx *gorm.DB) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	return nil
}

// Tree mirrors the trees table.
type Tree struct {
	ID          int64   `gorm:"primaryKey;autoIncrement:false"`
	PlotID      int64   `gorm:"not null;index:idx_trees_plot"`
	Habitat     string  `gorm:"not null;default:''"`
	Giftable    bool    `gorm:"not null;default:true"`
	ReservedFor *string `gorm:"index:idx_trees_reserved_for"`
	AssignedTo  *int64  `gorm:""`
}

func (Tree) TableName() string { return "trees" }

// GiftRequestUser mirrors the gift_request_users table.
type GiftRequestUser struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	RequestID       string    `gorm:"not null;index:idx_gift_request_users_request;uniqueIndex:uniq_gift_request_users_assignee,priority:1"`
	RecipientName   string    `gorm:"not null"`
	RecipientEmail  string    `gorm:"not null;default:''"`
	RecipientPhone  string    `gorm:"not null;default:''"`
	AssigneeName    string    `gorm:"not null;default:''"`
	AssigneeEmail   *string   `gorm:"uniqueIndex:uniq_gift_request_users_assignee,priority:2"`
	Relation        string    `gorm:"not null;default:''"`
	ProfileImageURL string    `gorm:"not null;default:''"`
	TreeID          *int64    `gorm:""`
	CreatedAt       time.Time `gorm:"not null"`
}

func (GiftRequestUser) TableName() string { return "gift_request_users" }

// EmailDelivery mirrors the email_deliveries table. The composite key is the exactly-once guard.
type EmailDelivery struct {
	RequestID  string                      `gorm:"primaryKey"`
	Role       string                      `gorm:"primaryKey"`
	Event      string                      `gorm:"primaryKey"`
	Recipients datatypes.JSONSlice[string] `gorm:"not null"`
	CreatedAt  time.Time                   `gorm:"not null"`
}

func (EmailDelivery) TableName() string { return "email_deliveries" }

// Payment mirrors the payments table.
type Payment struct {
	ID          string          `gorm:"primaryKey"`
	RequestID   *string         `gorm:"index:idx_payments_request"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Status      string          `gorm:"not null"`
	ConfirmedAt *time.Time      `gorm:""`
	CreatedAt   time.Time       `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Album mirrors the albums table.
type Album struct {
	ID        string                      `gorm:"primaryKey"`
	RequestID *string                     `gorm:"index:idx_albums_request"`
	Name      string                      `gorm:"not null;default:''"`
	ImageURLs datatypes.JSONSlice[string] `gorm:"not null"`
	CreatedAt time.Time                   `gorm:"not null"`
}

func (Album) TableName() string { return "albums" }

func (album *Album) BeforeCreate(tx *gorm.DB) error {
	if album.ID == "" {
		album.ID = uuid.NewString()
	}
	return nil
}

// CardJob mirrors the card_jobs table.
type CardJob struct {
	ID        string    `gorm:"primaryKey"`
	RequestID string    `gorm:"not null;index:idx_card_jobs_request"`
	Status    string    `gorm:"not null;index:idx_card_jobs_status"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (CardJob) TableName() string { return "card_jobs" }

func (job *CardJob) BeforeCreate(tx *gorm.DB) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&GiftRequest{}, &Tree{}, &GiftRequestUser{}, &EmailDelivery{}, &Payment{}, &Album{}, &CardJob{}}
}
