package oidcrp

import (
	"errors"
	"fmt"
)

var (
	ErrPARUnsupported     = errors.New("OpenID Provider does not support 'pushed_authorization_request_endpoint'")
	ErrLogoutUnsupported  = errors.New("OpenID Provider does not support 'end_session_endpoint'")
	ErrNoRandomness       = errors.New("crypto provider returned null/no bytes")
	ErrBlankCodeVerifier  = errors.New("unable to generate PKCE, code_verifier blank")
	ErrBlankCodeChallenge = errors.New("unable to generate PKCE, code_challenge blank")
	ErrUnsupportedKey     = errors.New("signing key must be an RSA private key")
)

// ErrorResponse is an OAuth2 error object returned by the provider. It is a
// normal outcome of a call and is returned inside results, not as the error.
type ErrorResponse struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *ErrorResponse) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPError is returned when an endpoint answers with a failure status and the
// body is not an OAuth2 error object we can hand back.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected http status %d", e.StatusCode)
	}
	return e.Body
}
