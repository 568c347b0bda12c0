package oidcrp

import (
	"fmt"
	"net/url"
)

type LogoutOptions struct {
	IDTokenHint           string `json:"id_token_hint,omitempty"`
	LogoutHint            string `json:"logout_hint,omitempty"`
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri,omitempty"`
	State                 string `json:"state,omitempty"`
	UILocales             string `json:"ui_locales,omitempty"`
}

// BuildLogoutURL returns the RP-initiated logout URL on the end_session_endpoint.
func BuildLogoutURL(conf *Configuration, opts LogoutOptions) (*url.URL, error) {
	if conf.EndSessionEndpoint == "" {
		return nil, ErrLogoutUnsupported
	}
	u, err := url.Parse(conf.EndSessionEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid end_session_endpoint %q: %w", conf.EndSessionEndpoint, err)
	}
	p := &params{}
	p.setIfPresent("id_token_hint", opts.IDTokenHint)
	p.setIfPresent("logout_hint", opts.LogoutHint)
	p.setIfPresent("post_logout_redirect_uri", opts.PostLogoutRedirectURI)
	p.setIfPresent("state", opts.State)
	p.setIfPresent("ui_locales", opts.UILocales)
	u.RawQuery, err = mergeQuery(u.RawQuery, p)
	if err != nil {
		return nil, fmt.Errorf("invalid end_session_endpoint %q: %w", conf.EndSessionEndpoint, err)
	}
	return u, nil
}
