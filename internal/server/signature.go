package server

import (
	"crypto/hmac"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// parseSignatureHeader splits a "t=<timestamp>,v1=<hex>" header into its
// components. Both parts must be present.
func parseSignatureHeader(header string) (timestamp, signature string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(part, "=")
		if !found {
			return "", "", false
		}
		switch strings.TrimSpace(k) {
		case "t":
			timestamp = v
		case "v1":
			signature = v
		}
	}
	if timestamp == "" || signature == "" {
		return "", "", false
	}
	return timestamp, signature, true
}

// verifySignature checks an HMAC-SHA3-256 signature over "{t}.{body}"
// against every provided secret. Accepting more than one secret lets a
// sender rotate without a flag day. Empty secrets never match.
func verifySignature(body []byte, header string, secrets ...string) bool {
	timestamp, received, ok := parseSignatureHeader(header)
	if !ok {
		return false
	}

	signed := append([]byte(timestamp+"."), body...)
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		mac := hmac.New(sha3.New256, []byte(secret))
		mac.Write(signed)
		computed := hex.EncodeToString(mac.Sum(nil))
		if hmac.Equal([]byte(computed), []byte(received)) {
			return true
		}
	}
	return false
}

// signPayload produces the "t=...,v1=..." header value for a body.
func signPayload(body []byte, timestamp, secret string) string {
	mac := hmac.New(sha3.New256, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
