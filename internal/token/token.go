// Package token implements signed session claims. Claims are signed with an
// RSA private key held only by the issuing process; verifiers are handed the
// public half, so independently deployed services can validate sessions
// without being able to mint them.
package token

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/osokin-dev/gatehouse/internal/apperr"
)

// Claims is the signed session payload carried by the authToken cookie.
type Claims struct {
	jwt.RegisteredClaims
	IdentityID int64  `json:"identityId"`
	Email      string `json:"email"`
	Username   string `json:"username,omitempty"`
}

// Issuer mints session claims. It holds the private key.
type Issuer struct {
	key      *rsa.PrivateKey
	validity time.Duration
}

func NewIssuer(key *rsa.PrivateKey, validity time.Duration) *Issuer {
	return &Issuer{key: key, validity: validity}
}

// Validity returns the claim lifetime, which the gateway reuses as the
// cookie max-age.
func (i *Issuer) Validity() time.Duration {
	return i.validity
}

// Issue signs a claim for the given identity attributes.
func (i *Issuer) Issue(identityID int64, email, username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.validity)),
		},
		IdentityID: identityID,
		Email:      email,
		Username:   username,
	})
	return token.SignedString(i.key)
}

// Verifier validates session claims. It holds only the public key.
type Verifier struct {
	key *rsa.PublicKey
}

func NewVerifier(key *rsa.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// Verify parses and validates a signed claim. Expired or malformed tokens
// yield an InvalidCredentials error.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.New(apperr.KindInvalidCredentials, "token expired")
		}
		return nil, apperr.New(apperr.KindInvalidCredentials, "invalid token")
	}
	if !token.Valid {
		return nil, apperr.New(apperr.KindInvalidCredentials, "invalid token")
	}
	return claims, nil
}
