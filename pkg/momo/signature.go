package momo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// signPayload builds the canonical "key=value&..." string over the given
// fields in ascending key order and returns its hex HMAC-SHA256 under the
// shared secret. Every outbound request and every inbound notification is
// signed over its own field set with this one scheme.
func signPayload(secretKey string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, fields[k]))
	}
	raw := strings.Join(pairs, "&")

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature compares an expected signature in constant time.
func verifySignature(secretKey string, fields map[string]string, provided string) bool {
	expected := signPayload(secretKey, fields)
	return hmac.Equal([]byte(expected), []byte(provided))
}
