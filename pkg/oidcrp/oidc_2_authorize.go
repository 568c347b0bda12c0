package oidcrp

import (
	"fmt"
	"net/url"
	"strings"
)

const DefaultScope = "openid"

// AuthorizeRequest is one of AuthorizeOptions, PushedRequest or SignedRequest.
type AuthorizeRequest interface {
	authorizeParams(clientID string) *params
}

// AuthorizeOptions are the parameters of a plain authorization request.
// Empty fields are left out of the request entirely.
type AuthorizeOptions struct {
	RedirectURI  string `json:"redirect_uri,omitempty"`
	ResponseType string `json:"response_type,omitempty"`
	ResponseMode string `json:"response_mode,omitempty"`
	// Joined with single spaces and always written last.
	ACRValues           []string `json:"acr_values,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	State               string   `json:"state,omitempty"`
	LoginHint           string   `json:"login_hint,omitempty"`
	UILocales           string   `json:"ui_locales,omitempty"`
	// Defaults to "openid".
	Scope  string `json:"scope,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Nonce  string `json:"nonce,omitempty"`
}

// PushedRequest references a request previously stored with PushAuthorizeRequest.
type PushedRequest struct {
	RequestURI string
}

// SignedRequest carries a pre-signed request object JWT.
type SignedRequest struct {
	Request string
}

func (o AuthorizeOptions) authorizeParams(clientID string) *params {
	p := &params{}
	p.set("client_id", clientID)
	scope := o.Scope
	if scope == "" {
		scope = DefaultScope
	}
	p.set("scope", scope)
	p.setIfPresent("redirect_uri", o.RedirectURI)
	p.setIfPresent("response_type", o.ResponseType)
	p.setIfPresent("response_mode", o.ResponseMode)
	p.setIfPresent("code_challenge_method", o.CodeChallengeMethod)
	p.setIfPresent("code_challenge", o.CodeChallenge)
	p.setIfPresent("state", o.State)
	p.setIfPresent("login_hint", o.LoginHint)
	p.setIfPresent("ui_locales", o.UILocales)
	p.setIfPresent("prompt", o.Prompt)
	p.setIfPresent("nonce", o.Nonce)
	if len(o.ACRValues) > 0 {
		p.setIfPresent("acr_values", strings.Join(o.ACRValues, " "))
	}
	return p
}

func (r PushedRequest) authorizeParams(clientID string) *params {
	p := &params{}
	p.set("client_id", clientID)
	p.set("request_uri", r.RequestURI)
	return p
}

func (r SignedRequest) authorizeParams(clientID string) *params {
	p := &params{}
	p.set("client_id", clientID)
	p.set("request", r.Request)
	return p
}

// BuildAuthorizeURL returns the authorization endpoint with the request encoded
// in its query. Pairs already on the endpoint query stay first unless the
// request sets the same key.
func BuildAuthorizeURL(conf *Configuration, req AuthorizeRequest) (*url.URL, error) {
	if req == nil {
		return nil, fmt.Errorf("authorize request is required")
	}
	u, err := url.Parse(conf.AuthorizationEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization_endpoint %q: %w", conf.AuthorizationEndpoint, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("authorization_endpoint %q is not an absolute URL", conf.AuthorizationEndpoint)
	}
	u.RawQuery, err = mergeQuery(u.RawQuery, req.authorizeParams(conf.ClientID))
	if err != nil {
		return nil, fmt.Errorf("invalid authorization_endpoint %q: %w", conf.AuthorizationEndpoint, err)
	}
	return u, nil
}

// ParsedAuthorizeOptions is what ParseAuthorizeOptionsFromURL recovers from an authorize URL.
type ParsedAuthorizeOptions struct {
	AuthorizeOptions
	Domain   string `json:"domain"`
	ClientID string `json:"client_id"`
}

func ParseAuthorizeOptionsFromURL(raw string) (*ParsedAuthorizeOptions, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid authorize url: %w", err)
	}
	q := u.Query()
	var acrValues []string
	if acr := q.Get("acr_values"); acr != "" {
		acrValues = strings.Split(acr, " ")
	}
	return &ParsedAuthorizeOptions{
		Domain:   u.Host,
		ClientID: q.Get("client_id"),
		AuthorizeOptions: AuthorizeOptions{
			ACRValues:           acrValues,
			RedirectURI:         q.Get("redirect_uri"),
			ResponseType:        q.Get("response_type"),
			ResponseMode:        q.Get("response_mode"),
			CodeChallenge:       q.Get("code_challenge"),
			CodeChallengeMethod: q.Get("code_challenge_method"),
			State:               q.Get("state"),
			LoginHint:           q.Get("login_hint"),
			UILocales:           q.Get("ui_locales"),
			Scope:               q.Get("scope"),
			Nonce:               q.Get("nonce"),
			Prompt:              q.Get("prompt"),
		},
	}, nil
}
