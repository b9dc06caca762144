package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test_secret"

var signedBody = []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{"order":{"order_id":"ORD-1"},"payment":{"cf_payment_id":"PAY-99"}}}`)

func TestVerify_AcceptsBothEncodings(t *testing.T) {
	assert.True(t, Verify(signedBody, Sign(signedBody, testSecret), testSecret))
	assert.True(t, Verify(signedBody, SignHex(signedBody, testSecret), testSecret))
}

func TestVerify_ToleratesSurroundingWhitespaceAndUpperHex(t *testing.T) {
	sig := SignHex(signedBody, testSecret)
	assert.True(t, Verify(signedBody, "  "+sig+"\n", testSecret))

	upper := []byte(sig)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 32
		}
	}
	assert.True(t, Verify(signedBody, string(upper), testSecret))
}

func TestVerify_AnySingleByteMutationFails(t *testing.T) {
	b64 := Sign(signedBody, testSecret)
	hx := SignHex(signedBody, testSecret)

	for i := range signedBody {
		mutated := append([]byte(nil), signedBody...)
		mutated[i] ^= 0x01

		assert.False(t, Verify(mutated, b64, testSecret), "base64 accepted mutation at byte %d", i)
		assert.False(t, Verify(mutated, hx, testSecret), "hex accepted mutation at byte %d", i)
	}
}

func TestVerify_ReserializedBodyFails(t *testing.T) {
	sig := Sign(signedBody, testSecret)
	reordered := []byte(`{"data":{"order":{"order_id":"ORD-1"},"payment":{"cf_payment_id":"PAY-99"}},"type":"PAYMENT_SUCCESS_WEBHOOK"}`)

	assert.False(t, Verify(reordered, sig, testSecret))
}

func TestVerify_FailsClosed(t *testing.T) {
	sig := Sign(signedBody, testSecret)

	tests := []struct {
		name      string
		signature string
		secret    string
	}{
		{name: "no secret", signature: sig, secret: ""},
		{name: "no signature", signature: "", secret: testSecret},
		{name: "wrong secret", signature: sig, secret: "other"},
		{name: "truncated signature", signature: sig[:len(sig)-4], secret: testSecret},
		{name: "extended signature", signature: sig + "AAAA", secret: testSecret},
		{name: "garbage", signature: "not-a-signature", secret: testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Verify(signedBody, tt.signature, tt.secret))
		})
	}
}
