package vrage

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrConfig marks configuration problems (bad secret, bad base URL) that
// will not resolve on their own; callers report these to an admin context
// instead of retrying.
var ErrConfig = errors.New("configuration error")

// dateLayout is the exact Date header format the remote API hashes into
// the signature: no timezone suffix, no fractional seconds, always UTC.
const dateLayout = "Mon, 02 Jan 2006 15:04:05"

// Signer computes the per-request authentication headers for the VRage
// remote API. Each request gets a fresh nonce and timestamp; signatures
// are never cached or reused.
type Signer struct {
	key []byte
}

// NewSigner decodes the base64 shared secret. A malformed secret fails
// here, before any request is ever sent.
func NewSigner(sharedSecret string) (*Signer, error) {
	key, err := base64.StdEncoding.DecodeString(sharedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: shared secret is not valid base64", ErrConfig)
	}
	return &Signer{key: key}, nil
}

// Sign produces the Date and Authorization header values for a request to
// the given resource (path plus query string, exactly as it will be sent).
func (s *Signer) Sign(resource string) (date, authorization string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)
	date = time.Now().UTC().Format(dateLayout)
	return date, s.signWith(resource, nonce, date), nil
}

// signWith builds the signature over fixed inputs. Split out from Sign so
// the exact header value can be verified against a known vector.
func (s *Signer) signWith(resource, nonce, date string) string {
	msg := resource + "\r\n" + nonce + "\r\n" + date + "\r\n"
	mac := hmac.New(sha1.New, s.key)
	mac.Write([]byte(msg))
	return nonce + ":" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
