package oidcrp

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

type PushAuthorizeRequestOptions struct {
	Request AuthorizeOptions
	// Optional; nil pushes the request as a public client.
	Authentication ClientAuthentication
}

type PARResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}

// PushAuthorizeRequest stores the authorization request at the provider (RFC 9126).
// Pass the result to BuildAuthorizeURL as a PushedRequest.
func (c *Client) PushAuthorizeRequest(ctx context.Context, conf *Configuration, opts PushAuthorizeRequestOptions) (*PARResponse, error) {
	if conf.PushedAuthorizationRequestEndpoint == "" {
		return nil, ErrPARUnsupported
	}
	ctx, span := otel.Tracer("oidcrp").Start(ctx, "PushAuthorizeRequest")
	defer span.End()

	body := opts.Request.authorizeParams(conf.ClientID)
	header := http.Header{}
	if opts.Authentication != nil {
		err := opts.Authentication.authenticate(&authRequest{
			conf:   conf,
			body:   body,
			header: header,
			now:    c.now(),
			pushed: true,
		})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to authenticate pushed authorization request: %w", err)
		}
	}

	req, err := newFormRequest(ctx, conf.PushedAuthorizationRequestEndpoint, body.Encode(), header)
	if err != nil {
		return nil, err
	}

	c.slog.Debug("pushing authorization request", "url", conf.PushedAuthorizationRequestEndpoint)
	resp, err := c.send(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("unable to push authorization request: %w", err)
	}
	if resp.StatusCode >= 400 {
		err := &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var par PARResponse
	if err := resp.decode(&par); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("unable to decode pushed authorization response: %w", err)
	}
	return &par, nil
}
