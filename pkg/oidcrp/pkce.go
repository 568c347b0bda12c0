package oidcrp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const CodeChallengeMethodS256 = "S256"

const verifierEntropyBytes = 32

// PKCE must be generated per authorization attempt; keep CodeVerifier until the code exchange.
type PKCE struct {
	CodeVerifier        string `json:"code_verifier"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// CryptoProvider supplies secure randomness and SHA-256.
type CryptoProvider interface {
	// RandomValues fills buf and returns it.
	RandomValues(buf []byte) ([]byte, error)
	Digest(ctx context.Context, data []byte) ([]byte, error)
}

// PlatformCrypto is backed by crypto/rand and crypto/sha256.
type PlatformCrypto struct{}

func (PlatformCrypto) RandomValues(buf []byte) ([]byte, error) {
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (PlatformCrypto) Digest(_ context.Context, data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func GeneratePKCE() (*PKCE, error) {
	return GeneratePKCEWith(context.Background(), PlatformCrypto{})
}

func GeneratePKCEWith(ctx context.Context, provider CryptoProvider) (*PKCE, error) {
	bs, err := provider.RandomValues(make([]byte, verifierEntropyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	if len(bs) == 0 {
		return nil, ErrNoRandomness
	}

	verifier := base64.RawURLEncoding.EncodeToString(bs)
	digest, err := provider.Digest(ctx, []byte(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to hash code_verifier: %w", err)
	}
	challenge := base64.RawURLEncoding.EncodeToString(digest)

	if verifier == "" {
		return nil, ErrBlankCodeVerifier
	}
	if challenge == "" {
		return nil, ErrBlankCodeChallenge
	}

	return &PKCE{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: CodeChallengeMethodS256,
	}, nil
}

// Apply copies the public half onto authorize options.
func (p *PKCE) Apply(opts *AuthorizeOptions) {
	opts.CodeChallenge = p.CodeChallenge
	opts.CodeChallengeMethod = p.CodeChallengeMethod
}
