package utils

import (
	"errors"
	"time"

	"creatorbook/config"
	"creatorbook/models"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the claims; a magic-link token cannot be used as a
// session token and vice versa.
const (
	TokenTypeMagicLink = "magic_link"
	TokenTypeSession   = "session"
)

const (
	MagicLinkExpiry    = 15 * time.Minute
	SessionExpiry      = 7 * 24 * time.Hour
	RefreshGracePeriod = 24 * time.Hour
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrWrongTokenType   = errors.New("wrong token type")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenBeyondGrace = errors.New("token expired beyond grace period")
)

type Claims struct {
	Email        string `json:"email"`
	TokenType    string `json:"token_type"`
	HasAccess    bool   `json:"has_access,omitempty"`
	HasPurchased bool   `json:"has_purchased,omitempty"`
	jwt.RegisteredClaims
}

// GenerateMagicLinkToken issues the short-lived token embedded in a login link
func GenerateMagicLinkToken(email string) (string, error) {
	claims := &Claims{
		Email:     email,
		TokenType: TokenTypeMagicLink,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(MagicLinkExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// GenerateSessionToken issues a 7-day session token carrying the subscriber's
// current access flags.
func GenerateSessionToken(subscriber *models.Subscriber) (string, time.Time, error) {
	expiresAt := time.Now().Add(SessionExpiry)

	claims := &Claims{
		Email:        subscriber.Email,
		TokenType:    TokenTypeSession,
		HasAccess:    subscriber.HasAccess,
		HasPurchased: subscriber.HasPurchased,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.AppConfig.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken verifies signature and expiry and returns the claims
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ParseTokenAllowExpired verifies the signature but accepts tokens that
// expired within the refresh grace period. Used only by the refresh endpoint.
func ParseTokenAllowExpired(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, keyFunc)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	if claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	if time.Since(claims.ExpiresAt.Time) > RefreshGracePeriod {
		return nil, ErrTokenBeyondGrace
	}

	return claims, nil
}

func keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return []byte(config.AppConfig.JWTSecret), nil
}
