package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports"
)

// Outbound authentication headers.
const (
	HeaderAuthorization      = "Authorization"
	HeaderSignature          = "X-Webhook-Signature"
	HeaderSignatureAlgorithm = "X-Webhook-Signature-Algorithm"

	signatureAlgorithm = "sha256"
)

var (
	// ErrMissingSecret is returned when a scheme needs a secret and none is configured.
	ErrMissingSecret = errors.New("auth scheme requires a secret but none is configured")
	// ErrUnknownAuthScheme is returned for schemes the signer does not implement.
	ErrUnknownAuthScheme = errors.New("unknown auth scheme")
)

// WebhookSigner implements ports.Signer.
type WebhookSigner struct {
	encSvc ports.EncryptionService // nil when secrets are stored in plaintext
}

// NewWebhookSigner creates a signer. encSvc may be nil.
func NewWebhookSigner(encSvc ports.EncryptionService) *WebhookSigner {
	return &WebhookSigner{encSvc: encSvc}
}

// Sign returns the authentication headers for body under the subscriber's scheme.
// body must be the exact bytes that will be transmitted.
func (s *WebhookSigner) Sign(sub *domain.Subscriber, body []byte) (http.Header, error) {
	h := http.Header{}

	scheme := sub.AuthScheme
	if scheme == "" {
		scheme = domain.AuthSchemeNone
	}
	if scheme == domain.AuthSchemeNone {
		return h, nil
	}

	secret, err := s.secret(sub)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case domain.AuthSchemeBearer:
		h.Set(HeaderAuthorization, "Bearer "+secret)
	case domain.AuthSchemeBasic:
		h.Set(HeaderAuthorization, "Basic "+secret)
	case domain.AuthSchemeHMAC:
		h.Set(HeaderSignature, ComputeSignature(secret, body))
		h.Set(HeaderSignatureAlgorithm, signatureAlgorithm)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuthScheme, scheme)
	}
	return h, nil
}

func (s *WebhookSigner) secret(sub *domain.Subscriber) (string, error) {
	if sub.AuthSecret == "" {
		return "", fmt.Errorf("%w (scheme %s)", ErrMissingSecret, sub.AuthScheme)
	}
	if s.encSvc == nil {
		return sub.AuthSecret, nil
	}
	plain, err := s.encSvc.Decrypt(sub.AuthSecret)
	if err != nil {
		return "", fmt.Errorf("decrypting subscriber secret: %w", err)
	}
	if plain == "" {
		return "", fmt.Errorf("%w (scheme %s)", ErrMissingSecret, sub.AuthScheme)
	}
	return plain, nil
}

// ComputeSignature returns base64(HMAC-SHA256(secret, body)).
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received X-Webhook-Signature in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := ComputeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
