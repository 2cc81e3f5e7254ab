package wallet_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	mware "github.com/sudo-init-do/servicehub/internal/middleware"
	"github.com/sudo-init-do/servicehub/internal/wallet"
)

// mockLedger lets each test stub only the calls it needs.
type mockLedger struct {
	creditFn       func(ctx context.Context, account string, amount uint64, reference string) (wallet.Transaction, error)
	balanceFn      func(ctx context.Context, account string) (uint64, error)
	transactionsFn func(ctx context.Context, account string, limit int) ([]wallet.Transaction, error)
}

func (m *mockLedger) Credit(ctx context.Context, account string, amount uint64, reference string) (wallet.Transaction, error) {
	return m.creditFn(ctx, account, amount, reference)
}

func (m *mockLedger) Balance(ctx context.Context, account string) (uint64, error) {
	return m.balanceFn(ctx, account)
}

func (m *mockLedger) Transactions(ctx context.Context, account string, limit int) ([]wallet.Transaction, error) {
	return m.transactionsFn(ctx, account, limit)
}

func serve(t *testing.T, ledger wallet.Ledger, method, path, user, body string) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	e.Validator = mware.NewRequestValidator()
	setUser := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user != "" {
				c.Set(mware.ContextUserID, user)
			}
			return next(c)
		}
	}
	wallet.NewHandler(ledger).RegisterRoutes(e.Group("", setUser), e.Group("/admin", setUser))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, out
}

func TestBalance(t *testing.T) {
	ledger := &mockLedger{
		balanceFn: func(_ context.Context, account string) (uint64, error) {
			if account != "alice" {
				t.Errorf("expected balance lookup for alice, got %s", account)
			}
			return 750, nil
		},
	}

	code, body := serve(t, ledger, http.MethodGet, "/wallet/balance", "alice", "")
	if code != http.StatusOK || body["balance"] != float64(750) {
		t.Errorf("expected 200 with balance 750, got %d %v", code, body)
	}

	code, body = serve(t, ledger, http.MethodGet, "/wallet/balance", "", "")
	if code != http.StatusUnauthorized || body["code"] != mware.CodeUnauthorized {
		t.Errorf("expected 401 without principal, got %d %v", code, body)
	}
}

func TestTransactionsPassesLimit(t *testing.T) {
	var gotLimit int
	ledger := &mockLedger{
		transactionsFn: func(_ context.Context, _ string, limit int) ([]wallet.Transaction, error) {
			gotLimit = limit
			return []wallet.Transaction{{ID: "t1", Amount: 5, Type: wallet.TypeCredit}}, nil
		},
	}
	code, body := serve(t, ledger, http.MethodGet, "/wallet/transactions?limit=7", "alice", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", code, body)
	}
	if gotLimit != 7 {
		t.Errorf("expected limit 7, got %d", gotLimit)
	}
	if txs := body["transactions"].([]any); len(txs) != 1 {
		t.Errorf("expected one transaction, got %d", len(txs))
	}
}

func TestCredit(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		ledgerFn func(ctx context.Context, account string, amount uint64, reference string) (wallet.Transaction, error)
		wantCode int
		wantText string
	}{
		{
			name: "credited",
			body: `{"amount":100}`,
			ledgerFn: func(_ context.Context, account string, amount uint64, reference string) (wallet.Transaction, error) {
				if reference != "admin-credit" {
					return wallet.Transaction{}, fmt.Errorf("unexpected reference %q", reference)
				}
				return wallet.Transaction{ID: "t1", UserID: account, Amount: amount, Type: wallet.TypeCredit}, nil
			},
			wantCode: http.StatusCreated,
		},
		{
			name:     "zero amount fails validation",
			body:     `{"amount":0}`,
			wantCode: http.StatusBadRequest,
			wantText: mware.CodeValidation,
		},
		{
			name: "ledger rejects amount",
			body: `{"amount":5}`,
			ledgerFn: func(context.Context, string, uint64, string) (wallet.Transaction, error) {
				return wallet.Transaction{}, fmt.Errorf("%w: balance overflow", wallet.ErrInvalidAmount)
			},
			wantCode: http.StatusBadRequest,
			wantText: wallet.CodeInvalidAmount,
		},
		{
			name: "storage failure",
			body: `{"amount":5}`,
			ledgerFn: func(context.Context, string, uint64, string) (wallet.Transaction, error) {
				return wallet.Transaction{}, errors.New("connection reset")
			},
			wantCode: http.StatusInternalServerError,
			wantText: mware.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &mockLedger{creditFn: tt.ledgerFn}
			code, body := serve(t, ledger, http.MethodPost, "/admin/wallets/bob/credit", "admin", tt.body)
			if code != tt.wantCode {
				t.Errorf("[%s] expected %d got %d; body: %v", tt.name, tt.wantCode, code, body)
			}
			if tt.wantText != "" && body["code"] != tt.wantText {
				t.Errorf("[%s] expected code %s got %v", tt.name, tt.wantText, body["code"])
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantText string
	}{
		{fmt.Errorf("pay seller: %w", wallet.ErrInsufficientFunds), http.StatusUnprocessableEntity, wallet.CodeInsufficientFunds},
		{wallet.ErrUnauthorizedTransfer, http.StatusForbidden, wallet.CodeUnauthorizedTransfer},
		{wallet.ErrInvalidAccount, http.StatusBadRequest, wallet.CodeInvalidAccount},
	}
	for _, tt := range tests {
		got := wallet.APIError(tt.err)
		if got == nil || got.Code != tt.wantCode || got.TextCode != tt.wantText {
			t.Errorf("APIError(%v) = %+v, want %d %s", tt.err, got, tt.wantCode, tt.wantText)
		}
	}
	if got := wallet.APIError(errors.New("other")); got != nil {
		t.Errorf("expected nil for foreign error, got %+v", got)
	}
}
