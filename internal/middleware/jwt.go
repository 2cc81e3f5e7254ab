package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// PurposeResale marks a token that only authorizes one resale. Tokens with a
// purpose claim are never accepted as session tokens.
const PurposeResale = "resale"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// ResaleConsent is the seller's signed agreement to sell one record to one
// buyer at one price.
type ResaleConsent struct {
	Seller    string
	ServiceID string
	Buyer     string
	NewPrice  uint64
}

type Claims struct {
	UserID string
	Role   string
}

// Verifier checks HS256 tokens carrying user_id and role claims.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return mc, nil
}

// Verify accepts session tokens only.
func (v *Verifier) Verify(tokenStr string) (Claims, error) {
	mc, err := v.parse(tokenStr)
	if err != nil {
		return Claims{}, err
	}
	if _, scoped := mc["purpose"]; scoped {
		return Claims{}, ErrInvalidToken
	}
	id, _ := mc["user_id"].(string)
	if id == "" {
		return Claims{}, ErrInvalidToken
	}
	role, _ := mc["role"].(string)
	return Claims{UserID: id, Role: role}, nil
}

// VerifyResale accepts resale consent tokens only. The price travels as a
// decimal string so large amounts survive JSON number decoding.
func (v *Verifier) VerifyResale(tokenStr string) (ResaleConsent, error) {
	mc, err := v.parse(tokenStr)
	if err != nil {
		return ResaleConsent{}, err
	}
	if purpose, _ := mc["purpose"].(string); purpose != PurposeResale {
		return ResaleConsent{}, ErrInvalidToken
	}
	consent := ResaleConsent{}
	consent.Seller, _ = mc["user_id"].(string)
	consent.ServiceID, _ = mc["service_id"].(string)
	consent.Buyer, _ = mc["buyer"].(string)
	price, _ := mc["new_price"].(string)
	consent.NewPrice, err = strconv.ParseUint(price, 10, 64)
	if err != nil || consent.Seller == "" || consent.ServiceID == "" || consent.Buyer == "" {
		return ResaleConsent{}, ErrInvalidToken
	}
	return consent, nil
}

// JWTMiddleware puts user_id and role from the bearer token on the context.
func JWTMiddleware(v *Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				return RespondError(c, Unauthorized(ErrMissingToken.Error()))
			}
			claims, err := v.Verify(tokenStr)
			if err != nil {
				return RespondError(c, Unauthorized(err.Error()))
			}
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextRole, claims.Role)
			return next(c)
		}
	}
}

// UserID reads the principal set by JWTMiddleware.
func UserID(c echo.Context) (string, bool) {
	uid, ok := c.Get(ContextUserID).(string)
	return uid, ok && uid != ""
}
