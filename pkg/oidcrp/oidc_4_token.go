package oidcrp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type CodeExchangeOptions struct {
	Code        string
	RedirectURI string
	Auth        Authentication
}

// TokenResult holds either the issued tokens or the provider's OAuth2 error.
type TokenResult struct {
	IDToken     string `json:"id_token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`

	Error *ErrorResponse `json:"-"`
}

func (r *TokenResult) Failed() bool {
	return r.Error != nil
}

type tokenPayload struct {
	IDToken          string          `json:"id_token"`
	AccessToken      string          `json:"access_token"`
	TokenType        string          `json:"token_type"`
	ExpiresIn        json.RawMessage `json:"expires_in"`
	Scope            string          `json:"scope"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// CodeExchange redeems an authorization code at the token endpoint. An OAuth2
// error in the response comes back as TokenResult.Error with a nil error;
// the error return is reserved for transport and decoding failures.
func (c *Client) CodeExchange(ctx context.Context, conf *Configuration, opts CodeExchangeOptions) (*TokenResult, error) {
	ctx, span := otel.Tracer("oidcrp").Start(ctx, "CodeExchange")
	defer span.End()

	if opts.Auth == nil {
		err := fmt.Errorf("code exchange requires an authentication strategy")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("oidc.auth_method", opts.Auth.Method()))

	body := &params{}
	body.set("grant_type", "authorization_code")
	body.set("code", opts.Code)
	body.set("client_id", conf.ClientID)
	body.set("redirect_uri", opts.RedirectURI)

	header := http.Header{}
	err := opts.Auth.authenticate(&authRequest{
		conf:   conf,
		body:   body,
		header: header,
		now:    c.now(),
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to authenticate token request: %w", err)
	}

	req, err := newFormRequest(ctx, conf.TokenEndpoint, body.Encode(), header)
	if err != nil {
		return nil, err
	}

	c.slog.Debug("exchanging code for token", "url", conf.TokenEndpoint, "method", opts.Auth.Method())
	resp, err := c.send(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("unable to exchange code for token: %w", err)
	}

	var payload tokenPayload
	if err := resp.decode(&payload); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("unable to decode token response: %w", err)
	}
	if payload.Error != "" {
		c.slog.Debug("token endpoint returned an error", "error", payload.Error, "status", resp.StatusCode)
		return &TokenResult{Error: &ErrorResponse{
			Code:        payload.Error,
			Description: payload.ErrorDescription,
		}}, nil
	}
	if resp.StatusCode >= 400 {
		err := &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("unable to exchange code for token: %w", err)
	}

	return &TokenResult{
		IDToken:     payload.IDToken,
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
		ExpiresIn:   parseExpiresIn(payload.ExpiresIn),
		Scope:       payload.Scope,
	}, nil
}

// some providers (EntraID) send expires_in as a string
func parseExpiresIn(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
