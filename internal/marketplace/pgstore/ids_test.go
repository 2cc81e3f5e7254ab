package pgstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestValidUUID(t *testing.T) {
	tests := map[string]bool{
		"6f1c0a52-3b1e-4d6e-9a55-2f0b7f9d1c11": true,
		"not-a-uuid":                           false,
		"":                                     false,
	}
	for in, want := range tests {
		if got := validUUID(in); got != want {
			t.Errorf("validUUID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert vendor: %w", &pgconn.PgError{Code: uniqueViolation})
	if !isUniqueViolation(wrapped) {
		t.Error("expected wrapped 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation reported as unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Error("plain error reported as unique violation")
	}
}
