package alerts

import "time"

// Task type constants
const (
	TaskSaleCompleted      = "notify:sale_completed"
	TaskRoyaltyPaid        = "notify:royalty_paid"
	TaskServiceTransferred = "notify:service_transferred"
)

const (
	QueueNotifications = "notifications"

	RecipientVendor   = "vendor"
	RecipientTreasury = "treasury"
)

// Sale payload (sent to the seller of a purchase or resale)
type SaleCompletedPayload struct {
	ServiceID string    `json:"service_id"`
	ListingID string    `json:"listing_id,omitempty"`
	Buyer     string    `json:"buyer"`
	Seller    string    `json:"seller"`
	Price     uint64    `json:"price"`
	Net       uint64    `json:"net"`
	Resale    bool      `json:"resale"`
	SentAt    time.Time `json:"sent_at"`
}

// Royalty payload (sent to the vendor and the treasury after a resale)
type RoyaltyPaidPayload struct {
	ServiceID string    `json:"service_id"`
	Recipient string    `json:"recipient"`
	Role      string    `json:"role"` // vendor|treasury
	Amount    uint64    `json:"amount"`
	Price     uint64    `json:"price"`
	SentAt    time.Time `json:"sent_at"`
}

// Transfer payload (sent to the new owner)
type ServiceTransferredPayload struct {
	ServiceID string    `json:"service_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	SentAt    time.Time `json:"sent_at"`
}
