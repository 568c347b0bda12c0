package oidcrp

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Client performs the network calls of a relying party against an OpenID Provider.
// It holds no per-provider state and is safe for concurrent use.
type Client struct {
	httpClient Doer
	slog       *slog.Logger
	now        func() time.Time
}

type Config struct {
	// Transport used for every request. Must not follow redirects: token and
	// userinfo responses carry credentials. Defaults to DefaultHTTPClient.
	HTTPClient Doer
	Slog       *slog.Logger
	// Clock used for client assertion timestamps. Defaults to time.Now.
	Now func() time.Time
}

func New(conf *Config) *Client {
	if conf == nil {
		conf = &Config{}
	}
	mySlog := conf.Slog
	if mySlog == nil {
		mySlog = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	var httpClient Doer = DefaultHTTPClient
	if conf.HTTPClient != nil {
		httpClient = conf.HTTPClient
	}
	now := conf.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		httpClient: httpClient,
		slog:       mySlog,
		now:        now,
	}
}

// DefaultHTTPClient never follows redirects and hands the 3xx response back to the caller.
var DefaultHTTPClient = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}
