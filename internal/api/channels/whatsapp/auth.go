package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const SignatureHeader = "X-Hub-Signature-256"

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("signature verification failed")
)

// VerifySignature checks a "sha256=<hex>" signature of payload keyed with the
// app secret.
func VerifySignature(signature string, payload []byte, appSecret string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	expectedSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return ErrInvalidSignature
	}

	if !hmac.Equal([]byte(expectedSig), []byte(Sign(payload, appSecret))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload, without the "sha256=" prefix.
func Sign(payload []byte, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
