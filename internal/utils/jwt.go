// Package utils issues the access tokens accepted by middleware.JWTAuth.
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed HS256 JWT and its expiry.
type AccessToken struct {
	Token string    `json:"access_token"`
	Exp   time.Time `json:"expires_at"`
}

// NewAccessToken signs a token whose sub claim is userID and whose role
// claim is role.  It expires ttl from now.
func NewAccessToken(secret, userID, role string, ttl time.Duration) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, errors.New("empty signing secret")
	}
	if userID == "" {
		return AccessToken{}, errors.New("empty user id")
	}
	if ttl <= 0 {
		return AccessToken{}, errors.New("token ttl must be positive")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
