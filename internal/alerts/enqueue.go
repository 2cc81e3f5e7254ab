package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
)

// Enqueuer is the part of *asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier turns committed marketplace events into notification tasks.
type Notifier struct {
	client Enqueuer
	now    func() time.Time
}

func NewNotifier(client Enqueuer) *Notifier {
	return &Notifier{client: client, now: time.Now}
}

func (n *Notifier) Publish(ctx context.Context, evt marketplace.Event) error {
	switch data := evt.Data.(type) {
	case marketplace.ServicePurchased:
		return n.enqueue(ctx, TaskSaleCompleted, SaleCompletedPayload{
			ServiceID: data.ServiceID,
			ListingID: data.ListingID,
			Buyer:     data.Buyer,
			Seller:    data.Seller,
			Price:     data.Price,
			Net:       data.Price,
			SentAt:    n.now(),
		})

	case marketplace.ServiceNftResold:
		now := n.now()
		var errs []error
		errs = append(errs, n.enqueue(ctx, TaskSaleCompleted, SaleCompletedPayload{
			ServiceID: data.ServiceID,
			Buyer:     data.To,
			Seller:    data.From,
			Price:     data.Price,
			Net:       data.NetToSeller,
			Resale:    true,
			SentAt:    now,
		}))
		if data.VendorRoyalty > 0 {
			errs = append(errs, n.enqueue(ctx, TaskRoyaltyPaid, RoyaltyPaidPayload{
				ServiceID: data.ServiceID,
				Recipient: data.Vendor,
				Role:      RecipientVendor,
				Amount:    data.VendorRoyalty,
				Price:     data.Price,
				SentAt:    now,
			}))
		}
		if data.BaseRoyalty > 0 {
			errs = append(errs, n.enqueue(ctx, TaskRoyaltyPaid, RoyaltyPaidPayload{
				ServiceID: data.ServiceID,
				Recipient: data.Treasury,
				Role:      RecipientTreasury,
				Amount:    data.BaseRoyalty,
				Price:     data.Price,
				SentAt:    now,
			}))
		}
		return errors.Join(errs...)

	case marketplace.ServiceNftTransferred:
		return n.enqueue(ctx, TaskServiceTransferred, ServiceTransferredPayload{
			ServiceID: data.ServiceID,
			From:      data.From,
			To:        data.To,
			SentAt:    n.now(),
		})
	}
	return nil
}

func (n *Notifier) enqueue(ctx context.Context, taskType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", taskType, err)
	}
	task := asynq.NewTask(taskType, b)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(QueueNotifications), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
