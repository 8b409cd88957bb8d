package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"whatsapp-crm/internal/apperr"
)

const SignatureHeader = "X-Hub-Signature-256"

// Sign returns the header value the platform sends for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against an HMAC-SHA256 of the exact raw body.
func VerifySignature(secret string, body []byte, header string) error {
	if header == "" {
		return apperr.Authentication("missing signature")
	}
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return apperr.Authentication("unsupported signature scheme")
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return apperr.Authentication("malformed signature")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return apperr.Authentication("signature mismatch")
	}
	return nil
}

// VerifyChallenge answers the subscription handshake: the challenge is
// echoed only for mode "subscribe" with the configured verify token.
func VerifyChallenge(mode, token, challenge, verifyToken string) (string, bool) {
	if verifyToken == "" || mode != "subscribe" {
		return "", false
	}
	if !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", false
	}
	return challenge, true
}
