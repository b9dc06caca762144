package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"donation-service/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens(now time.Time) *Tokens {
	tokens := NewTokens(config.Auth{TokenSecret: "test-secret", CheckoutTokenTTL: 30})
	tokens.now = func() time.Time { return now }
	return tokens
}

func TestCheckoutToken_RoundTrip(t *testing.T) {
	tokens := newTestTokens(time.Now())
	id := uuid.New()

	token, err := tokens.CheckoutToken(id)
	require.NoError(t, err)

	assert.NoError(t, tokens.ValidateCheckout(token, id))
	assert.ErrorIs(t, tokens.ValidateCheckout(token, uuid.New()), ErrInvalidToken)

	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, RoleDonor, claims.Role)
	assert.Equal(t, id.String(), claims.Subject)
}

func TestCheckoutToken_Expires(t *testing.T) {
	issued := time.Now()
	token, err := newTestTokens(issued).CheckoutToken(uuid.New())
	require.NoError(t, err)

	_, err = newTestTokens(issued.Add(31 * time.Minute)).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_RejectsForeignTokens(t *testing.T) {
	tokens := newTestTokens(time.Now())

	other := NewTokens(config.Auth{TokenSecret: "other-secret", CheckoutTokenTTL: 30})
	foreign, err := other.AdminToken("root", time.Hour)
	require.NoError(t, err)
	_, err = tokens.Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Validate(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAdmin(t *testing.T) {
	tokens := newTestTokens(time.Now())
	admin, err := tokens.AdminToken("trustee", time.Hour)
	require.NoError(t, err)
	donor, err := tokens.CheckoutToken(uuid.New())
	require.NoError(t, err)

	handler := tokens.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		require.True(t, ok)
		assert.Equal(t, "trustee", claims.Subject)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{name: "admin", header: "Bearer " + admin, code: http.StatusNoContent},
		{name: "donor", header: "Bearer " + donor, code: http.StatusForbidden},
		{name: "missing", header: "", code: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + admin, code: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", code: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/donations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
