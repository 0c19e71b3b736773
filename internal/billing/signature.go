package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/dealerdesk/internal/errs"
)

// SignatureHeader carries the provider's HMAC over the raw request body
const SignatureHeader = "X-Billing-Signature"

// Sign computes the hex HMAC-SHA256 of body. Exposed for tests and for the
// provider simulator.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks the header value against the expected HMAC in
// constant time. The "sha256=" prefix is optional.
func verifySignature(secret string, body []byte, signature string) error {
	if strings.TrimSpace(signature) == "" {
		return errs.Auth("missing webhook signature")
	}

	given := strings.TrimPrefix(signature, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(given), []byte(expected)) {
		return errs.Auth("invalid webhook signature")
	}
	return nil
}
