package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
)

func TestSinkCountsSales(t *testing.T) {
	s := New()
	ctx := context.Background()
	events := []marketplace.Event{
		{Type: marketplace.EventServicePurchased, Data: marketplace.ServicePurchased{Price: 1000}},
		{Type: marketplace.EventServiceNftResold, Data: marketplace.ServiceNftResold{
			Price: 2000, BaseRoyalty: 40, VendorRoyalty: 100, NetToSeller: 1860,
		}},
		{Type: marketplace.EventServiceNftTransferred, Data: marketplace.ServiceNftTransferred{}},
	}
	for _, evt := range events {
		if err := s.Publish(ctx, evt); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`servicehub_sales_total{kind="purchase"} 1`,
		`servicehub_sales_total{kind="resale"} 1`,
		`servicehub_sales_volume_total{kind="resale"} 2000`,
		`servicehub_royalties_paid_total{recipient="base"} 40`,
		`servicehub_royalties_paid_total{recipient="vendor"} 100`,
		`servicehub_transfers_total 1`,
		`servicehub_sale_price_count 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected scrape to contain %q", want)
		}
	}
}
