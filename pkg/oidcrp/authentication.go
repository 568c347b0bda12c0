package oidcrp

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

var ClientAssertionLifetime = 5 * time.Minute

type authRequest struct {
	conf   *Configuration
	body   *params
	header http.Header
	now    time.Time
	// set for pushed authorization requests, which never carry a code_verifier
	pushed bool
}

// Authentication is how the relying party proves itself on a code exchange.
// Build one with WithCodeVerifier, WithClientSecret, WithSigningKey or
// WithClientAssertion.
type Authentication interface {
	authenticate(r *authRequest) error
	Method() string
}

// ClientAuthentication is the subset of Authentication that can also
// authenticate a pushed authorization request.
type ClientAuthentication interface {
	Authentication
	clientAuthentication()
}

// CodeVerifier is the public-client PKCE flow: no client credentials at all.
type CodeVerifier struct {
	Verifier string
}

func WithCodeVerifier(verifier string) CodeVerifier {
	return CodeVerifier{Verifier: verifier}
}

func (a CodeVerifier) Method() string { return "none" }

func (a CodeVerifier) authenticate(r *authRequest) error {
	r.body.setIfPresent("code_verifier", a.Verifier)
	return nil
}

// ClientSecret authenticates with HTTP Basic (client_secret_basic).
type ClientSecret struct {
	Secret string
}

func WithClientSecret(secret string) ClientSecret {
	return ClientSecret{Secret: secret}
}

func (a ClientSecret) Method() string { return "client_secret_basic" }

func (a ClientSecret) String() string { return "*****" }

func (a ClientSecret) clientAuthentication() {}

func (a ClientSecret) authenticate(r *authRequest) error {
	r.header.Set("Authorization", basicAuth(r.conf.ClientID, a.Secret))
	return nil
}

// PrivateKeyJWT signs a fresh RS256 client assertion for every request.
type PrivateKeyJWT struct {
	Key jwk.Key
}

func WithSigningKey(key jwk.Key) PrivateKeyJWT {
	return PrivateKeyJWT{Key: key}
}

// WithRSAKey wraps a raw RSA private key; kid is left unset.
func WithRSAKey(key *rsa.PrivateKey) (PrivateKeyJWT, error) {
	k, err := jwk.FromRaw(key)
	if err != nil {
		return PrivateKeyJWT{}, fmt.Errorf("failed to wrap rsa key: %w", err)
	}
	return PrivateKeyJWT{Key: k}, nil
}

func (a PrivateKeyJWT) Method() string { return "private_key_jwt" }

func (a PrivateKeyJWT) clientAuthentication() {}

func (a PrivateKeyJWT) authenticate(r *authRequest) error {
	assertion, err := a.Sign(r.conf, r.now)
	if err != nil {
		return err
	}
	r.body.set("client_assertion_type", ClientAssertionTypeJWTBearer)
	r.body.set("client_assertion", assertion)
	return nil
}

// Sign builds the client assertion: sub and iss are the client_id, aud is the
// provider issuer.
func (a PrivateKeyJWT) Sign(conf *Configuration, now time.Time) (string, error) {
	if a.Key == nil || a.Key.KeyType() != jwa.RSA {
		return "", ErrUnsupportedKey
	}
	var rawKey any
	if err := a.Key.Raw(&rawKey); err != nil {
		return "", fmt.Errorf("failed to read signing key: %w", err)
	}
	privateKey, ok := rawKey.(*rsa.PrivateKey)
	if !ok {
		return "", ErrUnsupportedKey
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		ID:        codeUUID(""),
		Subject:   conf.ClientID,
		Issuer:    conf.ClientID,
		Audience:  jwt.ClaimStrings{conf.Issuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ClientAssertionLifetime)),
	})
	if kid := a.Key.KeyID(); kid != "" {
		token.Header["kid"] = kid
	}

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}
	return signed, nil
}

// ClientAssertion forwards an assertion signed elsewhere. CodeVerifier is
// optional and sent along on code exchange when set.
type ClientAssertion struct {
	Assertion    string
	CodeVerifier string
}

func WithClientAssertion(assertion, codeVerifier string) ClientAssertion {
	return ClientAssertion{Assertion: assertion, CodeVerifier: codeVerifier}
}

func (a ClientAssertion) Method() string { return "private_key_jwt" }

func (a ClientAssertion) clientAuthentication() {}

func (a ClientAssertion) authenticate(r *authRequest) error {
	if !r.pushed {
		r.body.setIfPresent("code_verifier", a.CodeVerifier)
	}
	r.body.set("client_assertion_type", ClientAssertionTypeJWTBearer)
	r.body.set("client_assertion", a.Assertion)
	return nil
}
