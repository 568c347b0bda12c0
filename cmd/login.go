package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/streamplace/oidcrp/pkg/oidcrp"
)

type loginOutput struct {
	Token    *oidcrp.TokenResult `json:"token"`
	UserInfo map[string]any      `json:"userinfo,omitempty"`
}

func (cli *CLI) loginCommand() *ffcli.Command {
	fs := flag.NewFlagSet("oidcrp login", flag.ContinueOnError)
	f := &authorizeFlags{}
	f.register(fs, "http://127.0.0.1:8089/callback")
	listen := fs.String("listen", "127.0.0.1:8089", "address for the local redirect receiver")
	timeout := fs.Duration("timeout", 5*time.Minute, "how long to wait for the browser to come back")
	userinfo := fs.Bool("userinfo", true, "fetch userinfo with the issued access token")
	return &ffcli.Command{
		Name:       "login",
		ShortUsage: "oidcrp login [flags]",
		ShortHelp:  "run a full authorization code flow through the browser",
		FlagSet:    fs,
		Options:    cli.subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			cli.setup()
			conf, err := cli.Configuration(ctx)
			if err != nil {
				return err
			}
			auth, err := cli.buildAuthorize(ctx, conf, f)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()
			ln, err := net.Listen("tcp", *listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", *listen, err)
			}
			res, err := cli.awaitRedirect(ctx, ln, f.RedirectURI, auth)
			if err != nil {
				return err
			}

			a, err := cli.authentication(&f.auth, auth.CodeVerifier)
			if err != nil {
				return err
			}
			token, err := cli.Client.CodeExchange(ctx, conf, oidcrp.CodeExchangeOptions{
				Code:        res.Code,
				RedirectURI: f.RedirectURI,
				Auth:        a,
			})
			if err != nil {
				return err
			}
			if token.Failed() {
				return token.Error
			}

			out := loginOutput{Token: token}
			if *userinfo && conf.UserinfoEndpoint != "" {
				info, err := cli.Client.UserInfo(ctx, conf, token.AccessToken)
				if err != nil {
					return err
				}
				if info.Failed() {
					return info.Error
				}
				out.UserInfo = info.Claims
			}
			return printJSON(out)
		},
	}
}

// awaitRedirect serves the redirect_uri path on ln until the provider sends
// the browser back, and returns the parsed authorization response. ln is
// closed on return.
func (cli *CLI) awaitRedirect(ctx context.Context, ln net.Listener, redirectURI string, auth *authorizeOutput) (*oidcrp.AuthorizeResponse, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	results := make(chan *oidcrp.AuthorizeResponse, 1)
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = ln
	e.GET(path, func(c echo.Context) error {
		res, err := oidcrp.ParseURLResponse(c.Request().URL.String())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if res.State != auth.State {
			return echo.NewHTTPError(http.StatusBadRequest, "state mismatch")
		}
		select {
		case results <- res:
		default:
		}
		if res.Failed() {
			return c.String(http.StatusOK, fmt.Sprintf("Error: %s, Details: %s", res.Error.Code, res.Error.Description))
		}
		return c.String(http.StatusOK, "Login complete, you can close this window.")
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.Start("")
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			cli.Logger.Warn("failed to stop redirect receiver", "error", err)
		}
	}()

	cli.Logger.Info("waiting for the provider redirect", "listen", ln.Addr().String(), "path", path)
	fmt.Println(auth.URL)

	select {
	case res := <-results:
		if res.Failed() {
			return nil, res.Error
		}
		return res, nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil, fmt.Errorf("redirect receiver stopped")
		}
		return nil, fmt.Errorf("redirect receiver failed: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("no redirect received: %w", ctx.Err())
	}
}
