package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	mware "github.com/sudo-init-do/servicehub/internal/middleware"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, err := issuer.Issue("alice", mware.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := mware.NewVerifier("secret").Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "alice" || claims.Role != mware.RoleAdmin {
		t.Errorf("unexpected claims %+v", claims)
	}

	if _, err := mware.NewVerifier("other").Verify(token); err == nil {
		t.Error("expected token signed with another secret to be rejected")
	}
	if _, err := issuer.Issue("", ""); err != ErrPrincipalRequired {
		t.Errorf("expected ErrPrincipalRequired, got %v", err)
	}
}

func TestIssuedTokenExpires(t *testing.T) {
	issuer := NewIssuer("secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, err := issuer.Issue("alice", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := mware.NewVerifier("secret").Verify(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestIssueResale(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	verifier := mware.NewVerifier("secret")

	token, err := issuer.IssueResale("alice", "svc-1", "bob", 2000)
	if err != nil {
		t.Fatalf("issue resale: %v", err)
	}
	consent, err := verifier.VerifyResale(token)
	if err != nil {
		t.Fatalf("verify resale: %v", err)
	}
	want := mware.ResaleConsent{Seller: "alice", ServiceID: "svc-1", Buyer: "bob", NewPrice: 2000}
	if consent != want {
		t.Errorf("expected %+v, got %+v", want, consent)
	}

	if _, err := verifier.Verify(token); err == nil {
		t.Error("expected resale consent to be rejected as a session token")
	}
	session, err := issuer.Issue("alice", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.VerifyResale(session); err == nil {
		t.Error("expected session token to be rejected as resale consent")
	}

	if _, err := issuer.IssueResale("", "svc-1", "bob", 1); err != ErrPrincipalRequired {
		t.Errorf("expected ErrPrincipalRequired, got %v", err)
	}
	if _, err := issuer.IssueResale("alice", "svc-1", "", 1); err != ErrResaleTerms {
		t.Errorf("expected ErrResaleTerms, got %v", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(-ResaleTTL - time.Minute) }
	stale, err := issuer.IssueResale("alice", "svc-1", "bob", 2000)
	if err != nil {
		t.Fatalf("issue resale: %v", err)
	}
	if _, err := verifier.VerifyResale(stale); err == nil {
		t.Error("expected expired resale consent to be rejected")
	}
}

func TestBootstrapAdmin(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		body     string
		wantCode int
	}{
		{"disabled", "", `{"user_id":"root","secret":"x"}`, http.StatusForbidden},
		{"wrong secret", "s3cret", `{"user_id":"root","secret":"nope"}`, http.StatusForbidden},
		{"missing user", "s3cret", `{"secret":"s3cret"}`, http.StatusBadRequest},
		{"ok", "s3cret", `{"user_id":"root","secret":"s3cret"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Validator = mware.NewRequestValidator()
			e.POST("/auth/bootstrap", NewBootstrapHandler(NewIssuer("jwt", time.Hour), tt.secret).BootstrapAdmin)

			req := httptest.NewRequest(http.MethodPost, "/auth/bootstrap", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("[%s] expected %d got %d; body: %s", tt.name, tt.wantCode, rec.Code, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			var body struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			claims, err := mware.NewVerifier("jwt").Verify(body.Token)
			if err != nil || claims.UserID != "root" || claims.Role != mware.RoleAdmin {
				t.Errorf("expected admin token for root, got %+v, %v", claims, err)
			}
		})
	}
}

func TestMe(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/me", nil), rec)
	c.Set(mware.ContextUserID, "alice")
	c.Set(mware.ContextRole, "admin")

	if err := Me(c); err != nil {
		t.Fatalf("me: %v", err)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["user_id"] != "alice" || body["role"] != "admin" {
		t.Errorf("unexpected body %v", body)
	}
}
