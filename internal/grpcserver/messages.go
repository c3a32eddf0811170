package grpcserver

// Empty is returned by calls without a payload.
type Empty struct{}

type RequestIDMessage struct {
	RequestID string `json:"request_id"`
}

type ClaimRequest struct {
	RequestID string `json:"request_id"`
	StaffID   string `json:"staff_id"`
}

type ReserveRequest struct {
	RequestID       string  `json:"request_id"`
	RequiredCount   int     `json:"required_count"`
	PlotIDs         []int64 `json:"plot_ids"`
	TreeIDs         []int64 `json:"tree_ids,omitempty"`
	Diversify       bool    `json:"diversify"`
	BookNonGiftable bool    `json:"book_non_giftable"`
	BookAllHabits   bool    `json:"book_all_habits"`
}

type ReserveReply struct {
	BookedTreeIDs []int64 `json:"booked_tree_ids"`
	Deficit       int     `json:"deficit"`
}

type AutoProcessRequest struct {
	RequestID string `json:"request_id"`
	Notify    bool   `json:"notify"`
	Template  string `json:"template,omitempty"`
}

type AutoProcessReply struct {
	BookedTreeIDs []int64          `json:"booked_tree_ids"`
	Deficit       int              `json:"deficit"`
	Assigned      int              `json:"assigned"`
	Status        string           `json:"status"`
	CardJobID     string           `json:"card_job_id,omitempty"`
	Notifications []DeliveryResult `json:"notifications,omitempty"`
}

type SendEmailsRequest struct {
	RequestID      string              `json:"request_id"`
	Roles          []string            `json:"roles"`
	Event          string              `json:"event"`
	Template       string              `json:"template,omitempty"`
	CC             map[string][]string `json:"cc,omitempty"`
	TestRecipients []string            `json:"test_recipients,omitempty"`
}

type DeliveryResult struct {
	Role       string   `json:"role"`
	Status     string   `json:"status"`
	Recipients []string `json:"recipients,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type SendEmailsReply struct {
	Results []DeliveryResult `json:"results"`
}

type CompleteCardJobRequest struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type CardJobReply struct {
	JobID     string `json:"job_id"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type RequestReply struct {
	RequestID        string   `json:"request_id"`
	RequestType      string   `json:"request_type"`
	SponsorName      string   `json:"sponsor_name"`
	EventName        string   `json:"event_name"`
	NoOfCards        int      `json:"no_of_cards"`
	Booked           int      `json:"booked"`
	Assigned         int      `json:"assigned"`
	PlotIDs          []int64  `json:"plot_ids"`
	ProcessedBy      string   `json:"processed_by,omitempty"`
	Tags             []string `json:"tags"`
	CardsGenerated   bool     `json:"cards_generated"`
	Status           string   `json:"status"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}
