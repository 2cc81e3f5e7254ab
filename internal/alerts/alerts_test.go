package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) types() []string {
	out := make([]string, 0, len(f.tasks))
	for _, task := range f.tasks {
		out = append(out, task.Type())
	}
	return out
}

func TestNotifierResale(t *testing.T) {
	q := &fakeEnqueuer{}
	n := NewNotifier(q)

	err := n.Publish(context.Background(), marketplace.Event{
		Type: marketplace.EventServiceNftResold,
		Data: marketplace.ServiceNftResold{
			ServiceID: "svc-1", From: "alice", To: "bob", Price: 2000,
			BaseRoyalty: 40, VendorRoyalty: 100, NetToSeller: 1860,
			Vendor: "vendor-1", Treasury: "treasury",
		},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	types := q.types()
	if len(types) != 3 || types[0] != TaskSaleCompleted || types[1] != TaskRoyaltyPaid || types[2] != TaskRoyaltyPaid {
		t.Fatalf("expected sale and two royalty tasks, got %v", types)
	}
	var sale SaleCompletedPayload
	if err := json.Unmarshal(q.tasks[0].Payload(), &sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if !sale.Resale || sale.Seller != "alice" || sale.Net != 1860 {
		t.Errorf("unexpected sale payload %+v", sale)
	}
	var vendor RoyaltyPaidPayload
	if err := json.Unmarshal(q.tasks[1].Payload(), &vendor); err != nil {
		t.Fatalf("decode royalty: %v", err)
	}
	if vendor.Recipient != "vendor-1" || vendor.Role != RecipientVendor || vendor.Amount != 100 {
		t.Errorf("unexpected royalty payload %+v", vendor)
	}
}

func TestNotifierSkipsZeroRoyalties(t *testing.T) {
	q := &fakeEnqueuer{}
	err := NewNotifier(q).Publish(context.Background(), marketplace.Event{
		Data: marketplace.ServiceNftResold{ServiceID: "svc-1", Price: 10, NetToSeller: 10},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if types := q.types(); len(types) != 1 || types[0] != TaskSaleCompleted {
		t.Errorf("expected only the sale task, got %v", types)
	}
}

func TestNotifierPurchaseAndTransfer(t *testing.T) {
	q := &fakeEnqueuer{}
	n := NewNotifier(q)
	ctx := context.Background()

	if err := n.Publish(ctx, marketplace.Event{Data: marketplace.ServicePurchased{ServiceID: "svc-1", Price: 5}}); err != nil {
		t.Fatalf("publish purchase: %v", err)
	}
	if err := n.Publish(ctx, marketplace.Event{Data: marketplace.ServiceNftTransferred{ServiceID: "svc-1", To: "bob"}}); err != nil {
		t.Fatalf("publish transfer: %v", err)
	}
	types := q.types()
	if len(types) != 2 || types[0] != TaskSaleCompleted || types[1] != TaskServiceTransferred {
		t.Errorf("unexpected tasks %v", types)
	}
}

func TestNotifierReportsQueueFailure(t *testing.T) {
	q := &fakeEnqueuer{err: errors.New("redis down")}
	err := NewNotifier(q).Publish(context.Background(), marketplace.Event{
		Data: marketplace.ServiceNftTransferred{ServiceID: "svc-1"},
	})
	if err == nil {
		t.Error("expected enqueue failure to be returned")
	}
}

func TestWorkerHandlers(t *testing.T) {
	w := &Worker{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ctx := context.Background()

	good, _ := json.Marshal(SaleCompletedPayload{ServiceID: "svc-1", Price: 10})
	if err := w.HandleSaleCompleted(ctx, asynq.NewTask(TaskSaleCompleted, good)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := asynq.NewTask(TaskRoyaltyPaid, []byte("{"))
	for name, handle := range map[string]asynq.HandlerFunc{
		"sale":     w.HandleSaleCompleted,
		"royalty":  w.HandleRoyaltyPaid,
		"transfer": w.HandleServiceTransferred,
	} {
		if err := handle(ctx, bad); !errors.Is(err, asynq.SkipRetry) {
			t.Errorf("[%s] expected SkipRetry for malformed payload, got %v", name, err)
		}
	}
}
