package oidcrp

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func parConfiguration(endpoint string) *Configuration {
	conf := testConfiguration()
	conf.PushedAuthorizationRequestEndpoint = endpoint
	return conf
}

func TestPushAuthorizeRequestUnsupported(t *testing.T) {
	doer := &recordingDoer{}
	_, err := newTestClient(doer).PushAuthorizeRequest(context.Background(), testConfiguration(), PushAuthorizeRequestOptions{
		Request: AuthorizeOptions{RedirectURI: testRedirectURI},
	})
	require.ErrorIs(t, err, ErrPARUnsupported)
	require.Equal(t, "OpenID Provider does not support 'pushed_authorization_request_endpoint'", err.Error())
	require.Empty(t, doer.requests)
}

func TestPushAuthorizeRequest(t *testing.T) {
	var gotForm url.Values
	var gotHeader http.Header
	srv := newEchoServer(t, func(e *echo.Echo) {
		e.POST("/par", func(c echo.Context) error {
			bs, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return err
			}
			gotForm, err = url.ParseQuery(string(bs))
			if err != nil {
				return err
			}
			gotHeader = c.Request().Header.Clone()
			return c.JSON(http.StatusCreated, map[string]any{
				"request_uri": "urn:ietf:params:oauth:request_uri:6esc_11ACC5bwc014ltc14eY22c",
				"expires_in":  60,
			})
		})
	})

	c := New(&Config{Slog: testLogger()})
	res, err := c.PushAuthorizeRequest(context.Background(), parConfiguration(srv.URL+"/par"), PushAuthorizeRequestOptions{
		Request: AuthorizeOptions{
			RedirectURI:  testRedirectURI,
			ResponseType: "code",
			State:        "s-1",
		},
		Authentication: WithClientSecret("s3cret"),
	})
	require.NoError(t, err)
	require.Equal(t, "urn:ietf:params:oauth:request_uri:6esc_11ACC5bwc014ltc14eY22c", res.RequestURI)
	require.Equal(t, 60, res.ExpiresIn)

	require.Equal(t, testClientID, gotForm.Get("client_id"))
	require.Equal(t, "openid", gotForm.Get("scope"))
	require.Equal(t, testRedirectURI, gotForm.Get("redirect_uri"))
	require.Equal(t, "s-1", gotForm.Get("state"))
	require.Equal(t, basicAuth(testClientID, "s3cret"), gotHeader.Get("Authorization"))
	require.Equal(t, "application/x-www-form-urlencoded", gotHeader.Get("Content-Type"))
	require.Equal(t, "no-cache, no-store, must-revalidate", gotHeader.Get("Cache-Control"))
}

func TestPushAuthorizeRequestThenAuthorizeURL(t *testing.T) {
	doer := &recordingDoer{status: http.StatusCreated, body: `{"request_uri":"urn:example:1","expires_in":90}`}
	conf := parConfiguration("https://some.authority.com/par")

	res, err := newTestClient(doer).PushAuthorizeRequest(context.Background(), conf, PushAuthorizeRequestOptions{
		Request: AuthorizeOptions{RedirectURI: testRedirectURI},
	})
	require.NoError(t, err)
	require.Equal(t, "client_id=urn%3Agrn%3Atest&scope=openid&redirect_uri=https%3A%2F%2Frp.example.com%2Fcallback", doer.bodies[0])
	require.Empty(t, doer.requests[0].Header.Get("Authorization"))

	u, err := BuildAuthorizeURL(conf, PushedRequest{RequestURI: res.RequestURI})
	require.NoError(t, err)
	require.Equal(t, "client_id=urn%3Agrn%3Atest&request_uri=urn%3Aexample%3A1", u.RawQuery)
}

func TestPushAuthorizeRequestWithClientAssertion(t *testing.T) {
	doer := &recordingDoer{status: http.StatusCreated, body: `{"request_uri":"urn:example:1","expires_in":90}`}
	_, err := newTestClient(doer).PushAuthorizeRequest(context.Background(), parConfiguration("https://some.authority.com/par"), PushAuthorizeRequestOptions{
		Request:        AuthorizeOptions{RedirectURI: testRedirectURI},
		Authentication: WithClientAssertion("signed.jwt.value", "verifier-1"),
	})
	require.NoError(t, err)

	form, err := url.ParseQuery(doer.bodies[0])
	require.NoError(t, err)
	require.NotContains(t, form, "code_verifier")
	require.Equal(t, ClientAssertionTypeJWTBearer, form.Get("client_assertion_type"))
	require.Equal(t, "signed.jwt.value", form.Get("client_assertion"))
}

func TestPushAuthorizeRequestFailureStatus(t *testing.T) {
	doer := &recordingDoer{status: http.StatusBadRequest, body: `{"error":"invalid_request","error_description":"redirect_uri not registered"}`}
	_, err := newTestClient(doer).PushAuthorizeRequest(context.Background(), parConfiguration("https://some.authority.com/par"), PushAuthorizeRequestOptions{
		Request: AuthorizeOptions{RedirectURI: "https://evil.example.com"},
	})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	require.Equal(t, `{"error":"invalid_request","error_description":"redirect_uri not registered"}`, err.Error())
}
