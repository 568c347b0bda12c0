package oidcrp

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func discoveryServer(t *testing.T) (string, func() int) {
	t.Helper()
	hits := 0
	var mu sync.Mutex
	var base string
	srv := newEchoServer(t, func(e *echo.Echo) {
		e.GET(DiscoveryPath, func(c echo.Context) error {
			mu.Lock()
			hits++
			base := base
			mu.Unlock()
			if c.QueryParam("client_id") != testClientID {
				return c.String(http.StatusBadRequest, "unknown client")
			}
			return c.JSON(http.StatusOK, map[string]any{
				"issuer":                                base,
				"jwks_uri":                              base + "/jwks",
				"authorization_endpoint":                base + "/authorize",
				"token_endpoint":                        base + "/token",
				"userinfo_endpoint":                     base + "/userinfo",
				"pushed_authorization_request_endpoint": base + "/par",
				"response_types_supported":              []string{"code"},
				"response_modes_supported":              []string{"query", "fragment"},
				"subject_types_supported":               []string{"public"},
				"acr_values_supported":                  []string{"loa-high"},
				"id_token_signing_alg_values_supported": []string{"RS256"},
				"code_challenge_methods_supported":      []string{"S256"},
			})
		})
	})
	mu.Lock()
	base = srv.URL
	mu.Unlock()
	return srv.URL, func() int {
		mu.Lock()
		defer mu.Unlock()
		return hits
	}
}

func TestFetchConfiguration(t *testing.T) {
	base, _ := discoveryServer(t)
	m, err := New(&Config{Slog: testLogger()}).NewConfigurationManager(base+"/", testClientID)
	require.NoError(t, err)
	require.Equal(t, base, m.Authority)
	require.Equal(t, base+"/.well-known/openid-configuration?client_id=urn%3Agrn%3Atest", m.DiscoveryURL())

	conf, err := m.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, testClientID, conf.ClientID)
	require.Equal(t, base, conf.Issuer)
	require.Equal(t, base+"/token", conf.TokenEndpoint)
	require.Equal(t, base+"/par", conf.PushedAuthorizationRequestEndpoint)
	require.Empty(t, conf.EndSessionEndpoint)
	require.Equal(t, []string{"S256"}, conf.CodeChallengeMethodsSupported)
}

func TestFetchConfigurationReturnsSnapshots(t *testing.T) {
	base, hits := discoveryServer(t)
	m, err := New(&Config{Slog: testLogger()}).NewConfigurationManager(base, testClientID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	confs := make([]*Configuration, 8)
	errs := make([]error, 8)
	for i := range confs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			confs[i], errs[i] = m.Fetch(context.Background())
		}(i)
	}
	wg.Wait()
	for i := range confs {
		require.NoError(t, errs[i])
		require.Equal(t, confs[0], confs[i])
	}
	require.Equal(t, 8, hits())

	confs[0].TokenEndpoint = "mutated"
	require.Equal(t, base+"/token", confs[1].TokenEndpoint)
}

func TestFetchConfigurationFailures(t *testing.T) {
	base, _ := discoveryServer(t)
	c := New(&Config{Slog: testLogger()})

	m, err := c.NewConfigurationManager(base, "someone-else")
	require.NoError(t, err)
	_, err = m.Fetch(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	require.Equal(t, "unknown client", httpErr.Body)

	m, err = c.NewConfigurationManager(base+"/missing", testClientID)
	require.NoError(t, err)
	_, err = m.Fetch(context.Background())
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestFetchConfigurationMalformed(t *testing.T) {
	doer := &recordingDoer{body: `{"issuer":`}
	m, err := newTestClient(doer).NewConfigurationManager("https://some.authority.com", testClientID)
	require.NoError(t, err)
	_, err = m.Fetch(context.Background())
	require.Error(t, err)
	require.Equal(t, "application/json", doer.requests[0].Header.Get("Accept"))
}

func TestNewConfigurationManagerValidation(t *testing.T) {
	c := newTestClient(&recordingDoer{})
	for _, tc := range []struct{ authority, clientID string }{
		{"", testClientID},
		{"not a url", testClientID},
		{"https://some.authority.com", ""},
	} {
		_, err := c.NewConfigurationManager(tc.authority, tc.clientID)
		require.Error(t, err, fmt.Sprintf("%q %q", tc.authority, tc.clientID))
	}
}
