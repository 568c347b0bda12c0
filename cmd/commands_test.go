package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/streamplace/oidcrp/pkg/oidcrp"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	url    string
	header http.Header
	body   url.Values
}

// providerDoer answers PAR and token requests the way a provider would.
type providerDoer struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (d *providerDoer) Do(req *http.Request) (*http.Response, error) {
	bs, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	body, err := url.ParseQuery(string(bs))
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.requests = append(d.requests, recordedRequest{url: req.URL.String(), header: req.Header.Clone(), body: body})
	d.mu.Unlock()

	status, resp := http.StatusOK, `{"access_token":"access-1","token_type":"Bearer","expires_in":300}`
	if strings.HasSuffix(req.URL.Path, "/par") {
		status, resp = http.StatusCreated, `{"request_uri":"urn:ietf:params:oauth:request_uri:abc","expires_in":60}`
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(resp)),
	}, nil
}

func testProvider() *oidcrp.Configuration {
	return &oidcrp.Configuration{
		ClientID: "client-1",
		Metadata: oidcrp.Metadata{
			Issuer:                             "https://idp.example.com",
			AuthorizationEndpoint:              "https://idp.example.com/authorize",
			TokenEndpoint:                      "https://idp.example.com/token",
			PushedAuthorizationRequestEndpoint: "https://idp.example.com/par",
		},
	}
}

func loginFlags(t *testing.T, args ...string) *authorizeFlags {
	t.Helper()
	f := &authorizeFlags{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.register(fs, "http://127.0.0.1:8089/callback")
	require.NoError(t, fs.Parse(args))
	return f
}

// exchange runs the authorize then token steps of login against doer.
func exchange(t *testing.T, doer *providerDoer, f *authorizeFlags) *authorizeOutput {
	t.Helper()
	cli := &CLI{Logger: testLogger(), Client: oidcrp.New(&oidcrp.Config{HTTPClient: doer, Slog: testLogger()})}
	conf := testProvider()
	ctx := context.Background()

	auth, err := cli.buildAuthorize(ctx, conf, f)
	require.NoError(t, err)
	a, err := cli.authentication(&f.auth, auth.CodeVerifier)
	require.NoError(t, err)
	res, err := cli.Client.CodeExchange(ctx, conf, oidcrp.CodeExchangeOptions{
		Code:        "code-1",
		RedirectURI: f.RedirectURI,
		Auth:        a,
	})
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, "access-1", res.AccessToken)
	return auth
}

func TestLoginWithClientSecretSkipsPKCE(t *testing.T) {
	doer := &providerDoer{}
	auth := exchange(t, doer, loginFlags(t, "-auth", "secret", "-client-secret", "s3cret"))

	require.Empty(t, auth.CodeVerifier)
	u, err := url.Parse(auth.URL)
	require.NoError(t, err)
	require.False(t, u.Query().Has("code_challenge"))
	require.False(t, u.Query().Has("code_challenge_method"))
	require.Equal(t, auth.State, u.Query().Get("state"))

	require.Len(t, doer.requests, 1)
	token := doer.requests[0]
	require.Equal(t, "https://idp.example.com/token", token.url)
	require.False(t, token.body.Has("code_verifier"))
	require.True(t, strings.HasPrefix(token.header.Get("Authorization"), "Basic "))
}

func TestLoginWithClientSecretOverPAR(t *testing.T) {
	doer := &providerDoer{}
	auth := exchange(t, doer, loginFlags(t, "-auth", "secret", "-client-secret", "s3cret", "-par"))

	require.Equal(t, "urn:ietf:params:oauth:request_uri:abc", auth.RequestURI)
	require.Len(t, doer.requests, 2)
	par := doer.requests[0]
	require.Equal(t, "https://idp.example.com/par", par.url)
	require.False(t, par.body.Has("code_challenge"))
	require.NotEmpty(t, par.header.Get("Authorization"))
	require.False(t, doer.requests[1].body.Has("code_verifier"))
}

func TestLoginWithPKCESendsVerifier(t *testing.T) {
	doer := &providerDoer{}
	auth := exchange(t, doer, loginFlags(t))

	require.NotEmpty(t, auth.CodeVerifier)
	u, err := url.Parse(auth.URL)
	require.NoError(t, err)
	require.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	require.NotEmpty(t, u.Query().Get("code_challenge"))

	require.Len(t, doer.requests, 1)
	require.Equal(t, auth.CodeVerifier, doer.requests[0].body.Get("code_verifier"))
	require.Empty(t, doer.requests[0].header.Get("Authorization"))
}

func TestLoginWithAssertionSendsVerifier(t *testing.T) {
	doer := &providerDoer{}
	auth := exchange(t, doer, loginFlags(t, "-auth", "assertion", "-client-assertion", "signed.jwt.value"))

	require.NotEmpty(t, auth.CodeVerifier)
	body := doer.requests[0].body
	require.Equal(t, auth.CodeVerifier, body.Get("code_verifier"))
	require.Equal(t, "signed.jwt.value", body.Get("client_assertion"))
}

func subcommand(t *testing.T, root *ffcli.Command, name string) *ffcli.Command {
	t.Helper()
	for _, c := range root.Subcommands {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no subcommand %s", name)
	return nil
}

func TestConfigFileReachesSubcommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oidcrp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
authority: https://idp.example.com
client-id: client-1
redirect-uri: http://127.0.0.1:9000/cb
auth: secret
listen: 127.0.0.1:9000
access-token: token-1
`), 0o600))

	cli := &CLI{}
	root := cli.command()
	require.NoError(t, root.Parse([]string{"-config", path, "login", "-auth", "key"}))
	require.Equal(t, "https://idp.example.com", cli.Authority)
	require.Equal(t, "client-1", cli.ClientID)

	login := subcommand(t, root, "login")
	require.Equal(t, "http://127.0.0.1:9000/cb", login.FlagSet.Lookup("redirect-uri").Value.String())
	require.Equal(t, "127.0.0.1:9000", login.FlagSet.Lookup("listen").Value.String())
	// flags on the command line win over the file
	require.Equal(t, "key", login.FlagSet.Lookup("auth").Value.String())
}
