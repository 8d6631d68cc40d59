package linking

import (
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// credentialRegex matches a Telegram bot token: numeric bot id, colon, secret.
var credentialRegex = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// NormalizeCredential trims raw and checks its shape. It does not contact
// the platform.
func NormalizeCredential(raw string) (string, error) {
	credential := strings.TrimSpace(raw)
	if credential == "" {
		return "", ErrMissingCredential
	}
	if !credentialRegex.MatchString(credential) {
		return "", ErrInvalidFormat
	}
	return credential, nil
}

// Fingerprint returns a short, stable, non-reversible tag for a credential,
// safe to write to logs.
func Fingerprint(credential string) string {
	sum := blake2b.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:6])
}
