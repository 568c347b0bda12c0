package oidcrp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// AuthorizeResponse is what the provider sends back to the redirect_uri.
type AuthorizeResponse struct {
	Code   string         `json:"code,omitempty"`
	State  string         `json:"state,omitempty"`
	Issuer string         `json:"iss,omitempty"`
	Error  *ErrorResponse `json:"-"`
}

func (r *AuthorizeResponse) Failed() bool {
	return r.Error != nil
}

func responseFromValues(q url.Values) *AuthorizeResponse {
	res := &AuthorizeResponse{
		Code:   q.Get("code"),
		State:  q.Get("state"),
		Issuer: q.Get("iss"),
	}
	if errorCode := q.Get("error"); errorCode != "" {
		res.Error = &ErrorResponse{
			Code:        errorCode,
			Description: q.Get("error_description"),
			State:       res.State,
		}
	}
	return res
}

func hasResponse(q url.Values) bool {
	return q.Get("code") != "" || q.Get("error") != ""
}

// ParseURLResponse reads the authorization response from the redirect URL,
// looking at the query first and the fragment (response_mode=fragment) second.
func ParseURLResponse(raw string) (*AuthorizeResponse, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect url: %w", err)
	}
	q := u.Query()
	if !hasResponse(q) && u.Fragment != "" {
		fq, err := url.ParseQuery(u.Fragment)
		if err != nil {
			return nil, fmt.Errorf("invalid redirect url fragment: %w", err)
		}
		if hasResponse(fq) {
			q = fq
		}
	}
	if !hasResponse(q) {
		return nil, fmt.Errorf("no authorization response in %s", u.Redacted())
	}
	return responseFromValues(q), nil
}

// ParseQueryResponse parses a bare query string, with or without a leading ? or #.
func ParseQueryResponse(query string) (*AuthorizeResponse, error) {
	q, err := url.ParseQuery(strings.TrimLeft(query, "?#"))
	if err != nil {
		return nil, fmt.Errorf("invalid authorization response: %w", err)
	}
	if !hasResponse(q) {
		return nil, fmt.Errorf("no authorization response in query")
	}
	return responseFromValues(q), nil
}

// ParseMessageResponse parses a JSON postMessage payload (response_mode=web_message),
// either flat or wrapped as {"type":"authorization_response","response":{...}}.
func ParseMessageResponse(data []byte) (*AuthorizeResponse, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid authorization response message: %w", err)
	}
	if inner, ok := fields["response"].(map[string]any); ok {
		fields = inner
	}
	q := url.Values{}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			q.Set(k, s)
		}
	}
	if !hasResponse(q) {
		return nil, fmt.Errorf("no authorization response in message")
	}
	return responseFromValues(q), nil
}
