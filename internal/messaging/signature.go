package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries the channel provider's request signature.
const SignatureHeader = "X-Twilio-Signature"

// SignatureValidator authenticates webhook requests signed with the account
// auth token.
type SignatureValidator struct {
	authToken string
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{authToken: authToken}
}

// IsValid reports whether signature matches the request url and form params.
// A missing signature or token is never valid.
func (v *SignatureValidator) IsValid(requestURL string, params url.Values, signature string) bool {
	if v == nil || v.authToken == "" || strings.TrimSpace(signature) == "" {
		return false
	}
	expected := ComputeSignature(v.authToken, requestURL, params)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ComputeSignature signs the url followed by every param key and value in
// key order with HMAC-SHA1, base64 encoded.
func ComputeSignature(authToken, requestURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(requestURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	h := hmac.New(sha1.New, []byte(authToken))
	h.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
