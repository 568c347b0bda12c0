package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/streamplace/oidcrp/pkg/oidcrp"
)

// subcommandOptions reads the root -config file too; keys meant for other
// commands are ignored.
func (cli *CLI) subcommandOptions() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileVia(&cli.ConfigFile),
		ff.WithConfigFileParser(YAMLParser),
		ff.WithIgnoreUndefined(true),
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// authFlags select the token endpoint authentication strategy.
type authFlags struct {
	Kind         string
	ClientSecret string
	Assertion    string
}

func (a *authFlags) register(fs *flag.FlagSet, defaultKind string) {
	fs.StringVar(&a.Kind, "auth", defaultKind, "client authentication: pkce, secret, key or assertion")
	fs.StringVar(&a.ClientSecret, "client-secret", "", "client secret for -auth secret")
	fs.StringVar(&a.Assertion, "client-assertion", "", "pre-signed client assertion JWT for -auth assertion")
}

// sendsVerifier reports whether the strategy forwards a PKCE code_verifier on
// code exchange. secret and key never do, so a code_challenge sent with
// them could not be redeemed.
func (a *authFlags) sendsVerifier() bool {
	return a.Kind == "pkce" || a.Kind == "assertion"
}

func (cli *CLI) authentication(a *authFlags, codeVerifier string) (oidcrp.Authentication, error) {
	switch a.Kind {
	case "pkce":
		if codeVerifier == "" {
			return nil, fmt.Errorf("-auth pkce needs a code verifier")
		}
		return oidcrp.WithCodeVerifier(codeVerifier), nil
	case "secret":
		if a.ClientSecret == "" {
			return nil, fmt.Errorf("-auth secret needs -client-secret")
		}
		return oidcrp.WithClientSecret(a.ClientSecret), nil
	case "key":
		store, err := cli.Store()
		if err != nil {
			return nil, err
		}
		key, err := store.GetKey(SigningKeyID)
		if err != nil {
			return nil, err
		}
		return oidcrp.WithSigningKey(key), nil
	case "assertion":
		if a.Assertion == "" {
			return nil, fmt.Errorf("-auth assertion needs -client-assertion")
		}
		return oidcrp.WithClientAssertion(a.Assertion, codeVerifier), nil
	default:
		return nil, fmt.Errorf("unknown -auth %q", a.Kind)
	}
}

// pushAuthentication is the strategy for a pushed authorization request;
// pkce pushes as a public client.
func (cli *CLI) pushAuthentication(a *authFlags) (oidcrp.ClientAuthentication, error) {
	if a.Kind == "pkce" {
		return nil, nil
	}
	auth, err := cli.authentication(a, "")
	if err != nil {
		return nil, err
	}
	clientAuth, ok := auth.(oidcrp.ClientAuthentication)
	if !ok {
		return nil, fmt.Errorf("-auth %s cannot authenticate a pushed authorization request", a.Kind)
	}
	return clientAuth, nil
}

func (cli *CLI) discoverCommand() *ffcli.Command {
	return &ffcli.Command{
		Name:       "discover",
		ShortUsage: "oidcrp discover",
		ShortHelp:  "print the provider's discovery document",
		Exec: func(ctx context.Context, args []string) error {
			cli.setup()
			conf, err := cli.Configuration(ctx)
			if err != nil {
				return err
			}
			return printJSON(conf)
		},
	}
}

// authorizeFlags are shared by authorize and login.
type authorizeFlags struct {
	RedirectURI  string
	Scope        string
	ACR          string
	Prompt       string
	LoginHint    string
	ResponseMode string
	UILocales    string
	PKCE         bool
	PAR          bool
	auth         authFlags
}

func (f *authorizeFlags) register(fs *flag.FlagSet, defaultRedirect string) {
	fs.StringVar(&f.RedirectURI, "redirect-uri", defaultRedirect, "registered redirect_uri")
	fs.StringVar(&f.Scope, "scope", oidcrp.DefaultScope, "space separated scopes")
	fs.StringVar(&f.ACR, "acr", "", "space separated acr_values")
	fs.StringVar(&f.Prompt, "prompt", "", "prompt parameter (ex login, consent)")
	fs.StringVar(&f.LoginHint, "login-hint", "", "login_hint parameter")
	fs.StringVar(&f.ResponseMode, "response-mode", "", "response_mode parameter (ex query, fragment)")
	fs.StringVar(&f.UILocales, "ui-locales", "", "ui_locales parameter")
	fs.BoolVar(&f.PKCE, "pkce", true, "include a S256 code_challenge (-auth pkce or assertion only)")
	fs.BoolVar(&f.PAR, "par", false, "push the request to the provider first (RFC 9126)")
	f.auth.register(fs, "pkce")
}

type authorizeOutput struct {
	URL          string `json:"url"`
	State        string `json:"state"`
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RequestURI   string `json:"request_uri,omitempty"`
}

func (cli *CLI) buildAuthorize(ctx context.Context, conf *oidcrp.Configuration, f *authorizeFlags) (*authorizeOutput, error) {
	out := &authorizeOutput{
		State: oidcrp.NewState(),
		Nonce: oidcrp.NewNonce(),
	}
	opts := oidcrp.AuthorizeOptions{
		RedirectURI:  f.RedirectURI,
		ResponseType: "code",
		ResponseMode: f.ResponseMode,
		ACRValues:    strings.Fields(f.ACR),
		State:        out.State,
		LoginHint:    f.LoginHint,
		UILocales:    f.UILocales,
		Scope:        f.Scope,
		Prompt:       f.Prompt,
		Nonce:        out.Nonce,
	}
	if f.PKCE && f.auth.sendsVerifier() {
		pkce, err := oidcrp.GeneratePKCE()
		if err != nil {
			return nil, err
		}
		pkce.Apply(&opts)
		out.CodeVerifier = pkce.CodeVerifier
	}

	var req oidcrp.AuthorizeRequest = opts
	if f.PAR {
		auth, err := cli.pushAuthentication(&f.auth)
		if err != nil {
			return nil, err
		}
		par, err := cli.Client.PushAuthorizeRequest(ctx, conf, oidcrp.PushAuthorizeRequestOptions{
			Request:        opts,
			Authentication: auth,
		})
		if err != nil {
			return nil, err
		}
		out.RequestURI = par.RequestURI
		req = oidcrp.PushedRequest{RequestURI: par.RequestURI}
	}

	u, err := oidcrp.BuildAuthorizeURL(conf, req)
	if err != nil {
		return nil, err
	}
	out.URL = u.String()
	return out, nil
}

func (cli *CLI) authorizeCommand() *ffcli.Command {
	fs := flag.NewFlagSet("oidcrp authorize", flag.ContinueOnError)
	f := &authorizeFlags{}
	f.register(fs, "")
	return &ffcli.Command{
		Name:       "authorize",
		ShortUsage: "oidcrp authorize -redirect-uri <uri> [flags]",
		ShortHelp:  "print an authorization URL with fresh state, nonce and PKCE",
		FlagSet:    fs,
		Options:    cli.subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			cli.setup()
			conf, err := cli.Configuration(ctx)
			if err != nil {
				return err
			}
			out, err := cli.buildAuthorize(ctx, conf, f)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func (cli *CLI) exchangeCommand() *ffcli.Command {
	fs := flag.NewFlagSet("oidcrp exchange", flag.ContinueOnError)
	code := fs.String("code", "", "authorization code")
	redirectURI := fs.String("redirect-uri", "", "redirect_uri used in the authorization request")
	codeVerifier := fs.String("code-verifier", "", "PKCE code_verifier")
	auth := &authFlags{}
	auth.register(fs, "pkce")
	return &ffcli.Command{
		Name:       "exchange",
		ShortUsage: "oidcrp exchange -code <code> -redirect-uri <uri> [flags]",
		ShortHelp:  "redeem an authorization code at the token endpoint",
		FlagSet:    fs,
		Options:    cli.subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			cli.setup()
			if *code == "" {
				return fmt.Errorf("-code is required")
			}
			conf, err := cli.Configuration(ctx)
			if err != nil {
				return err
			}
			a, err := cli.authentication(auth, *codeVerifier)
			if err != nil {
				return err
			}
			res, err := cli.Client.CodeExchange(ctx, conf, oidcrp.CodeExchangeOptions{
				Code:        *code,
				RedirectURI: *redirectURI,
				Auth:        a,
			})
			if err != nil {
				return err
			}
			if res.Failed() {
				return res.Error
			}
			return printJSON(res)
		},
	}
}

func (cli *CLI) userinfoCommand() *ffcli.Command {
	fs := flag.NewFlagSet("oidcrp userinfo", flag.ContinueOnError)
	accessToken := fs.String("access-token", "", "access token issued by the provider")
	return &ffcli.Command{
		Name:       "userinfo",
		ShortUsage: "oidcrp userinfo -access-token <token>",
		ShortHelp:  "fetch claims from the userinfo endpoint",
		FlagSet:    fs,
		Options:    cli.subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			cli.setup()
			if *accessToken == "" {
				return fmt.Errorf("-access-token is required")
			}
			conf, err := cli.Configuration(ctx)
			if err != nil {
				return err
			}
			res, err := cli.Client.UserInfo(ctx, conf, *accessToken)
			if err != nil {
				return err
			}
			if res.Failed() {
				return res.Error
			}
			return printJSON(res.Claims)
		},
	}
}

func (cli *CLI) logoutCommand() *ffcli.Command {
	fs := flag.NewFlagSet("oidcrp logout", flag.ContinueOnError)
	opts := oidcrp.LogoutOptions{}
	fs.StringVar(&opts.IDTokenHint, "id-token-hint", "", "id_token previously issued to this client")
	fs.StringVar(&opts.LogoutHint, "logout-hint", "", "logout_hint parameter")
	fs.StringVar(&opts.PostLogoutRedirectURI, "post-logout-redirect-uri", "", "where the provider sends the browser afterwards")
	fs.StringVar(&opts.State, "state", "", "state echoed back to post_logout_redirect_uri")
	fs.StringVar(&opts.UILocales, "ui-locales", "", "ui_locales parameter")
	return &ffcli.Command{
		Name:       "logout",
		ShortUsage: "oidcrp logout [flags]",
		ShortHelp:  "print an RP-initiated logout URL",
		FlagSet:    fs,
		Options:    cli.subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			cli.setup()
			conf, err := cli.Configuration(ctx)
			if err != nil {
				return err
			}
			u, err := oidcrp.BuildLogoutURL(conf, opts)
			if err != nil {
				return err
			}
			fmt.Println(u.String())
			return nil
		},
	}
}

func (cli *CLI) jwksCommand() *ffcli.Command {
	return &ffcli.Command{
		Name:       "jwks",
		ShortUsage: "oidcrp jwks",
		ShortHelp:  "print the public JWKS of the client signing key, creating the key on first use",
		Exec: func(ctx context.Context, args []string) error {
			cli.setup()
			store, err := cli.Store()
			if err != nil {
				return err
			}
			key, err := store.GetKey(SigningKeyID)
			if err != nil {
				return err
			}
			set, err := PublicJWKS(key)
			if err != nil {
				return err
			}
			return printJSON(set)
		},
	}
}
