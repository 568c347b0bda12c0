package oidcrp

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

type UserInfoResult struct {
	Claims map[string]any
	Error  *ErrorResponse
}

func (r *UserInfoResult) Failed() bool {
	return r.Error != nil
}

// UserInfo fetches the claims for accessToken. As with CodeExchange, an OAuth2
// error body is a result, not an error.
func (c *Client) UserInfo(ctx context.Context, conf *Configuration, accessToken string) (*UserInfoResult, error) {
	ctx, span := otel.Tracer("oidcrp").Start(ctx, "UserInfo")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, conf.UserinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Cache-Control", cacheControl)

	c.slog.Debug("fetching userinfo", "url", conf.UserinfoEndpoint)
	resp, err := c.send(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("unable to fetch userinfo: %w", err)
	}

	claims := map[string]any{}
	if err := resp.decode(&claims); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("unable to decode userinfo response: %w", err)
	}
	if code, ok := claims["error"].(string); ok && code != "" {
		description, _ := claims["error_description"].(string)
		state, _ := claims["state"].(string)
		return &UserInfoResult{Error: &ErrorResponse{
			Code:        code,
			Description: description,
			State:       state,
		}}, nil
	}
	return &UserInfoResult{Claims: claims}, nil
}
