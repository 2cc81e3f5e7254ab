package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
)

// Worker consumes notification tasks. Delivery is a structured log line per
// recipient; a mail or push transport would plug into the handlers here.
type Worker struct {
	server *asynq.Server
	logger *slog.Logger
}

func NewWorker(redisOpt asynq.RedisClientOpt, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 5
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueNotifications: 10,
		},
		Logger: newAsynqLogger(logger),
	})
	return &Worker{server: server, logger: logger}
}

func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSaleCompleted, w.HandleSaleCompleted)
	mux.HandleFunc(TaskRoyaltyPaid, w.HandleRoyaltyPaid)
	mux.HandleFunc(TaskServiceTransferred, w.HandleServiceTransferred)
	return mux
}

// Start runs the worker in background goroutines.
func (w *Worker) Start() error {
	if err := w.server.Start(w.Mux()); err != nil {
		return fmt.Errorf("start asynq worker: %w", err)
	}
	w.logger.Info("notification worker started")
	return nil
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) HandleSaleCompleted(ctx context.Context, t *asynq.Task) error {
	var p SaleCompletedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	w.logger.InfoContext(ctx, "notify seller: sale completed",
		"service_id", p.ServiceID, "seller", p.Seller, "buyer", p.Buyer,
		"price", p.Price, "net", p.Net, "resale", p.Resale)
	return nil
}

func (w *Worker) HandleRoyaltyPaid(ctx context.Context, t *asynq.Task) error {
	var p RoyaltyPaidPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	w.logger.InfoContext(ctx, "notify royalty recipient",
		"service_id", p.ServiceID, "recipient", p.Recipient, "role", p.Role, "amount", p.Amount)
	return nil
}

func (w *Worker) HandleServiceTransferred(ctx context.Context, t *asynq.Task) error {
	var p ServiceTransferredPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	w.logger.InfoContext(ctx, "notify new owner: service transferred",
		"service_id", p.ServiceID, "from", p.From, "to", p.To)
	return nil
}

// asynqLogger routes asynq's internal logs through slog.
type asynqLogger struct {
	l *slog.Logger
}

func newAsynqLogger(l *slog.Logger) asynqLogger { return asynqLogger{l: l.With("component", "asynq")} }

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Error(fmt.Sprint(args...)); os.Exit(1) }
