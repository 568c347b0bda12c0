package oidcrp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DiscoveryPath = "/.well-known/openid-configuration"

// Metadata is the subset of the OpenID Provider discovery document this package reads.
type Metadata struct {
	Issuer                             string   `json:"issuer"`
	JwksURI                            string   `json:"jwks_uri"`
	AuthorizationEndpoint              string   `json:"authorization_endpoint"`
	TokenEndpoint                      string   `json:"token_endpoint"`
	UserinfoEndpoint                   string   `json:"userinfo_endpoint"`
	EndSessionEndpoint                 string   `json:"end_session_endpoint,omitempty"`
	PushedAuthorizationRequestEndpoint string   `json:"pushed_authorization_request_endpoint,omitempty"`
	RequirePushedAuthorizationRequests bool     `json:"require_pushed_authorization_requests,omitempty"`
	RequestParameterSupported          bool     `json:"request_parameter_supported,omitempty"`
	RequestURIParameterSupported       bool     `json:"request_uri_parameter_supported,omitempty"`
	ScopesSupported                    []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported             []string `json:"response_types_supported"`
	ResponseModesSupported             []string `json:"response_modes_supported"`
	SubjectTypesSupported              []string `json:"subject_types_supported"`
	ACRValuesSupported                 []string `json:"acr_values_supported"`
	IDTokenSigningAlgValuesSupported   []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported  []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported      []string `json:"code_challenge_methods_supported,omitempty"`
}

// Configuration is a discovery snapshot for one relying party. Every Fetch
// returns a new value; callers swap the pointer they hold to refresh.
type Configuration struct {
	Metadata
	ClientID string `json:"client_id"`
}

// ConfigurationManager knows where to find a provider's discovery document.
type ConfigurationManager struct {
	Authority string `validate:"required,url"`
	ClientID  string `validate:"required"`
	client    *Client
}

var validate = validator.New()

func (c *Client) NewConfigurationManager(authority, clientID string) (*ConfigurationManager, error) {
	m := &ConfigurationManager{
		Authority: strings.TrimRight(authority, "/"),
		ClientID:  clientID,
		client:    c,
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("invalid configuration manager: %w", err)
	}
	return m, nil
}

func (m *ConfigurationManager) DiscoveryURL() string {
	return fmt.Sprintf("%s%s?client_id=%s", m.Authority, DiscoveryPath, url.QueryEscape(m.ClientID))
}

// Fetch downloads the discovery document. It holds no state, so concurrent
// fetches against the same manager are fine.
func (m *ConfigurationManager) Fetch(ctx context.Context) (*Configuration, error) {
	ctx, span := otel.Tracer("oidcrp").Start(ctx, "FetchConfiguration")
	defer span.End()
	span.SetAttributes(attribute.String("oidc.authority", m.Authority))

	discoveryURL := m.DiscoveryURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	m.client.slog.Debug("fetching discovery document", "url", discoveryURL)
	resp, err := m.client.send(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch discovery document from %s: %w", discoveryURL, err)
	}
	if resp.StatusCode >= 400 {
		err := &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch discovery document from %s: %w", discoveryURL, err)
	}

	conf := &Configuration{ClientID: m.ClientID}
	if err := resp.decode(&conf.Metadata); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to decode discovery document from %s: %w", discoveryURL, err)
	}
	return conf, nil
}
