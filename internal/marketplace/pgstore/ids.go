package pgstore

import "github.com/google/uuid"

// validUUID guards UUID columns so a malformed path id reads as not found
// instead of a cast error.
func validUUID(s string) bool {
	return uuid.Validate(s) == nil
}
