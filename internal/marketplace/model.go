package marketplace

import "time"

const (
	MaxNameLength        = 50
	MaxDescriptionLength = 100
	MaxMetadataLength    = 256
	MaxRoyaltyRate       = 100
)

// Registry is the marketplace-wide configuration. Exactly one exists per deployment.
type Registry struct {
	Admin           string    `json:"admin"`
	Treasury        string    `json:"treasury"` // receives the base royalty on resales
	BaseRoyaltyRate uint8     `json:"base_royalty_rate"`
	CreatedAt       time.Time `json:"created_at"`
}

// Vendor is a registered seller bound to the principal that registered it
type Vendor struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ServiceRecord is a minted service entitlement. Only Owner ever changes.
type ServiceRecord struct {
	ID          string    `json:"id"`
	Vendor      string    `json:"vendor"`
	Owner       string    `json:"owner"`
	Metadata    string    `json:"metadata"`
	Price       uint64    `json:"price"` // advisory, set at mint
	IsSoulbound bool      `json:"is_soulbound"`
	RoyaltyRate uint8     `json:"royalty_rate"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ServiceListing is a sale offer for one service record. A closed listing is never reopened.
type ServiceListing struct {
	ID        string     `json:"id"`
	ServiceID string     `json:"service_id"`
	Vendor    string     `json:"vendor"` // lister, equal to the record owner at listing time
	Price     uint64     `json:"price"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type InitParams struct {
	BaseRoyaltyRate uint8
	Treasury        string
}

type MintParams struct {
	Metadata    string
	Price       uint64
	IsSoulbound bool
	RoyaltyRate uint8
}
