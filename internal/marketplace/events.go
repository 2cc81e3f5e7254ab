package marketplace

import (
	"context"
	"time"
)

const (
	EventServicePurchased      = "service.purchased"
	EventServiceNftTransferred = "service_nft.transferred"
	EventServiceNftResold      = "service_nft.resold"
)

type ServicePurchased struct {
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	ServiceID string `json:"service_id"`
	ListingID string `json:"listing_id"`
	Price     uint64 `json:"price"`
}

type ServiceNftTransferred struct {
	ServiceID string `json:"service_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type ServiceNftResold struct {
	ServiceID     string `json:"service_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Price         uint64 `json:"price"`
	BaseRoyalty   uint64 `json:"base_royalty"`
	VendorRoyalty uint64 `json:"vendor_royalty"`
	NetToSeller   uint64 `json:"net_to_seller"`
	Vendor        string `json:"vendor"`
	Treasury      string `json:"treasury"`
}

// Event wraps one of the payloads above. Events are only emitted for committed operations.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type EventSink interface {
	Publish(ctx context.Context, evt Event) error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) error { return nil }
