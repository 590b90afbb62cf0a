package token

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const purposeUnsubscribe = "unsubscribe"

var (
	ErrInvalidToken = errors.New("invalid unsubscribe token")
	ErrExpiredToken = errors.New("unsubscribe token expired")
)

type Claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Unsubscriber signs and verifies the per-lead tokens carried in
// unsubscribe links. Tokens never expire when MaxAge is zero.
type Unsubscriber struct {
	Secret  []byte
	BaseURL string
	MaxAge  time.Duration
	Now     func() time.Time
}

func NewUnsubscriber(secret, baseURL string, maxAge time.Duration) (*Unsubscriber, error) {
	if secret == "" {
		return nil, errors.New("unsubscribe secret is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("unsubscribe base url: %w", err)
	}
	return &Unsubscriber{
		Secret:  []byte(secret),
		BaseURL: baseURL,
		MaxAge:  maxAge,
		Now:     time.Now,
	}, nil
}

func (u *Unsubscriber) Sign(leadID string) (string, error) {
	if leadID == "" {
		return "", ErrInvalidToken
	}

	now := u.Now()
	claims := Claims{
		Purpose: purposeUnsubscribe,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  leadID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if u.MaxAge > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(u.MaxAge))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.Secret)
}

// Verify returns the lead id the token was issued for.
func (u *Unsubscriber) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return u.Secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Purpose != purposeUnsubscribe || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	if !claims.VerifyExpiresAt(u.Now(), false) {
		return "", ErrExpiredToken
	}
	return claims.Subject, nil
}

// UnsubscribeURL builds the link embedded in every campaign email.
func (u *Unsubscriber) UnsubscribeURL(leadID string) (string, error) {
	tok, err := u.Sign(leadID)
	if err != nil {
		return "", err
	}

	base, err := url.Parse(u.BaseURL)
	if err != nil {
		return "", err
	}
	q := base.Query()
	q.Set("token", tok)
	base.RawQuery = q.Encode()
	return base.String(), nil
}
