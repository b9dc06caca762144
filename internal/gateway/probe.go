package gateway

import (
	"bytes"
	"regexp"
	"strings"
)

// MinPlausiblePayloadSize is smaller than any real Cashfree event body.
const MinPlausiblePayloadSize = 50

type ProbeReason string

const (
	ProbeEmptyBody        ProbeReason = "empty_body"
	ProbeTestMarker       ProbeReason = "test_marker"
	ProbeMissingSignature ProbeReason = "missing_signature"
	ProbeNoSecret         ProbeReason = "no_secret"
	ProbeShortBody        ProbeReason = "short_body"
	ProbeTestUserAgent    ProbeReason = "test_user_agent"
)

var (
	testFlagPattern = regexp.MustCompile(`"test"\s*:\s*true`)

	testEventNames = []string{
		`"TEST_WEBHOOK"`,
		`"WEBHOOK_TEST"`,
		`"TEST_EVENT"`,
	}

	testUserAgents = []string{
		"cashfree-webhook-tester",
		"cashfree-test",
		"cashfree webhook test",
	}
)

type ProbeRequest struct {
	Body             []byte
	Signature        string
	UserAgent        string
	SecretConfigured bool
	// AllowInsecure keeps unsigned requests flowing to processing instead of
	// treating them as probes.
	AllowInsecure bool
}

// DetectProbe reports whether a webhook request is a connectivity check from the
// gateway's own tooling rather than a payment event.
func DetectProbe(r ProbeRequest) (ProbeReason, bool) {
	body := bytes.TrimSpace(r.Body)

	if len(body) == 0 || bytes.Equal(body, []byte("{}")) {
		return ProbeEmptyBody, true
	}
	if testFlagPattern.Match(body) {
		return ProbeTestMarker, true
	}
	upper := bytes.ToUpper(body)
	for _, name := range testEventNames {
		if bytes.Contains(upper, []byte(name)) {
			return ProbeTestMarker, true
		}
	}
	if !r.AllowInsecure {
		if strings.TrimSpace(r.Signature) == "" {
			return ProbeMissingSignature, true
		}
		if !r.SecretConfigured {
			return ProbeNoSecret, true
		}
	}
	if len(body) < MinPlausiblePayloadSize {
		return ProbeShortBody, true
	}
	ua := strings.ToLower(r.UserAgent)
	for _, marker := range testUserAgents {
		if strings.Contains(ua, marker) {
			return ProbeTestUserAgent, true
		}
	}
	return "", false
}
