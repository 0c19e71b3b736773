// Package webhookutils holds helpers shared by inbound webhook handlers.
package webhookutils

import "strings"

// GetHeaderCaseInsensitive retrieves a header value using case-insensitive key
// matching. Go's HTTP library canonicalizes header keys (e.g.
// X-Billing-Signature -> X-Billing-Signature vs. x-billing-signature from a
// proxy), which can make exact string matches fail.
func GetHeaderCaseInsensitive(headers map[string]string, key string) (string, bool) {
	keyLower := strings.ToLower(key)
	for k, v := range headers {
		if strings.ToLower(k) == keyLower {
			return v, true
		}
	}
	return "", false
}
