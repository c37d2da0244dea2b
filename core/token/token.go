// Package token issues and verifies the signed bearer tokens carried by API requests.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const DefaultExpirationDelta = 7 * 24 * time.Hour

var (
	ErrMissingSecret    = errors.New("token signing secret is not configured")
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")

	signingMethod = jwt.SigningMethodHS256
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
}

type Issuer struct {
	secret  []byte
	ttl     time.Duration
	appName string

	NowFunc func() time.Time // mockable
}

func NewIssuer(secret, appName string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultExpirationDelta
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, appName: appName, NowFunc: time.Now}, nil
}

// Issue generates a signed token identifying `userID`, valid for the configured delta.
func (iss *Issuer) Issue(userID string) (string, error) {
	now := iss.NowFunc()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    iss.appName,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(iss.ttl)),
		},
	}
	ss, err := jwt.NewWithClaims(signingMethod, claims).SignedString(iss.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Verify checks the token signature and expiry, and returns the user id it carries.
func (iss *Issuer) Verify(tokenStr string) (string, error) {
	claims := new(Claims)
	parser := jwt.Parser{ValidMethods: []string{signingMethod.Alg()}, SkipClaimsValidation: true}
	if _, err := parser.ParseWithClaims(tokenStr, claims, iss.keyFunc); err != nil {
		return "", classify(err)
	}

	if claims.ExpiresAt == nil || claims.Subject == "" {
		return "", ErrMalformed
	}
	// expiry checked against the injected clock
	if !claims.VerifyExpiresAt(iss.NowFunc(), true) {
		return "", ErrExpired
	}
	return claims.Subject, nil
}

func (iss *Issuer) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidSignature
	}
	return iss.secret, nil
}

func classify(err error) error {
	var vErr *jwt.ValidationError
	if !errors.As(err, &vErr) {
		return ErrMalformed
	}
	switch {
	case vErr.Errors&(jwt.ValidationErrorSignatureInvalid|jwt.ValidationErrorUnverifiable) != 0:
		return ErrInvalidSignature
	case vErr.Errors&jwt.ValidationErrorMalformed != 0:
		return ErrMalformed
	case vErr.Errors&jwt.ValidationErrorExpired != 0:
		return ErrExpired
	default:
		return ErrMalformed
	}
}
