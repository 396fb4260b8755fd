package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexthire/chatd/internal/models"
)

// tokenClaims is the signed payload of a bearer token issued by the
// identity service.
type tokenClaims struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"` // Unix seconds
}

// TokenVerifier validates ed25519-signed bearer tokens against the
// identity service's public key and resolves the subject through the
// directory. Token format: base64url(claims JSON) + "." + base64url(signature).
type TokenVerifier struct {
	pubkey    ed25519.PublicKey
	directory Directory
}

// NewTokenVerifier creates a verifier for tokens signed by the identity
// service. pubkeyB64 is the base64-encoded ed25519 verification key.
func NewTokenVerifier(pubkeyB64 string, directory Directory) (*TokenVerifier, error) {
	pubkey, err := ParsePublicKey(pubkeyB64)
	if err != nil {
		return nil, err
	}
	return &TokenVerifier{pubkey: pubkey, directory: directory}, nil
}

// ParsePublicKey checks that a base64-encoded string is a valid ed25519
// public key.
func ParsePublicKey(pubkeyB64 string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidToken)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidToken, ed25519.PublicKeySize, len(decoded))
	}
	return ed25519.PublicKey(decoded), nil
}

// Authenticate verifies the token's signature and expiry, then resolves
// the subject to a user record.
func (v *TokenVerifier) Authenticate(ctx context.Context, credential string) (*models.User, error) {
	claims, err := v.verify(credential)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}

	user, err := v.directory.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (v *TokenVerifier) verify(credential string) (*tokenClaims, error) {
	payloadB64, sigB64, ok := strings.Cut(credential, ".")
	if !ok {
		return nil, fmt.Errorf("%w: malformed token", ErrInvalidToken)
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid payload encoding", ErrInvalidToken)
	}
	signature, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature encoding", ErrInvalidToken)
	}

	if !ed25519.Verify(v.pubkey, payload, signature) {
		return nil, fmt.Errorf("%w: signature verification failed", ErrInvalidToken)
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: malformed claims", ErrInvalidToken)
	}

	if claims.ExpiresAt <= time.Now().Unix() {
		return nil, ErrTokenExpired
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &claims, nil
}

// SignToken builds a token for the given subject and expiry. The server
// never issues tokens; this exists for tests and local tooling.
func SignToken(priv ed25519.PrivateKey, subject uuid.UUID, expiresAt time.Time) string {
	payload, _ := json.Marshal(tokenClaims{
		Subject:   subject.String(),
		ExpiresAt: expiresAt.Unix(),
	})
	signature := ed25519.Sign(priv, payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(signature)
}
