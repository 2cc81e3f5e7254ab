// Package auth issues the bearer tokens that attest "signed by principal P".
// Accounts and credentials live outside this service; tokens are minted by
// operators (issue_token CLI) or by the bootstrap endpoint.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	mware "github.com/sudo-init-do/servicehub/internal/middleware"
)

const (
	DefaultTTL = 72 * time.Hour
	ResaleTTL  = 15 * time.Minute
)

var (
	ErrPrincipalRequired = errors.New("principal required")
	ErrResaleTerms       = errors.New("resale consent needs a service and a buyer")
)

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an HS256 token with user_id and role claims.
func (i *Issuer) Issue(userID, role string) (string, error) {
	if userID == "" {
		return "", ErrPrincipalRequired
	}
	now := i.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(i.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// IssueResale signs the seller's consent to sell serviceID to buyer at
// newPrice. The token is short lived and useless as a session token.
func (i *Issuer) IssueResale(seller, serviceID, buyer string, newPrice uint64) (string, error) {
	if seller == "" {
		return "", ErrPrincipalRequired
	}
	if serviceID == "" || buyer == "" {
		return "", ErrResaleTerms
	}
	now := i.now()
	claims := jwt.MapClaims{
		"user_id":    seller,
		"purpose":    mware.PurposeResale,
		"service_id": serviceID,
		"buyer":      buyer,
		"new_price":  strconv.FormatUint(newPrice, 10),
		"iat":        now.Unix(),
		"exp":        now.Add(ResaleTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
