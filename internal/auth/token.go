package auth

import (
	"errors"
	"fmt"
	"time"

	"donation-service/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleDonor = "donor"
	RoleAdmin = "admin"

	issuer = "donation-service"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carry the donation a checkout token was issued for, or the admin role.
type Claims struct {
	Role       string `json:"role"`
	DonationID string `json:"donation_id,omitempty"`
	jwt.RegisteredClaims
}

type Tokens struct {
	secret      []byte
	checkoutTTL time.Duration
	now         func() time.Time
}

func NewTokens(cfg config.Auth) *Tokens {
	return &Tokens{
		secret:      []byte(cfg.TokenSecret),
		checkoutTTL: time.Duration(cfg.CheckoutTokenTTL) * time.Minute,
		now:         time.Now,
	}
}

// CheckoutToken lets the donor's browser verify the payment of one donation.
func (t *Tokens) CheckoutToken(donationID uuid.UUID) (string, error) {
	return t.sign(Claims{
		Role:       RoleDonor,
		DonationID: donationID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   donationID.String(),
			ExpiresAt: jwt.NewNumericDate(t.now().Add(t.checkoutTTL)),
		},
	})
}

func (t *Tokens) AdminToken(username string, ttl time.Duration) (string, error) {
	return t.sign(Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(t.now().Add(ttl)),
		},
	})
}

func (t *Tokens) sign(claims Claims) (string, error) {
	now := t.now()
	claims.Issuer = issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ID = uuid.NewString()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *Tokens) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// ValidateCheckout accepts only a donor token issued for donationID.
func (t *Tokens) ValidateCheckout(tokenString string, donationID uuid.UUID) error {
	claims, err := t.Validate(tokenString)
	if err != nil {
		return err
	}
	if claims.Role != RoleDonor || claims.DonationID != donationID.String() {
		return fmt.Errorf("%w: issued for another donation", ErrInvalidToken)
	}
	return nil
}
