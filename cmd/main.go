package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/streamplace/oidcrp/pkg/oidcrp"
)

func main() {
	err := Run(context.Background(), os.Args[1:])
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		slog.Error("exited uncleanly", "error", err)
		os.Exit(1)
	}
}

const EnvPrefix = "OIDCRP"

// CLI holds the flags shared by every subcommand and the things built from them.
type CLI struct {
	Authority    string        `validate:"required,url"`
	ClientID     string        `validate:"required"`
	DBPath       string        `validate:"required"`
	DiscoveryTTL time.Duration `validate:"gte=0"`
	Verbose      bool
	NoColor      bool
	ConfigFile   string

	Logger *slog.Logger
	Client *oidcrp.Client
	store  *Store
}

func Run(ctx context.Context, args []string) error {
	if err := loadEnvFile(); err != nil {
		return err
	}

	cli := &CLI{}
	root := cli.command()
	if err := root.Parse(args); err != nil {
		return err
	}
	return root.Run(ctx)
}

// command is the root command with every subcommand bound to cli.
func (cli *CLI) command() *ffcli.Command {
	rootFlags := flag.NewFlagSet("oidcrp", flag.ContinueOnError)
	rootFlags.StringVar(&cli.Authority, "authority", "", "OpenID Provider issuer URL (ex https://accounts.example.com)")
	rootFlags.StringVar(&cli.ClientID, "client-id", "", "client_id registered with the OpenID Provider")
	rootFlags.StringVar(&cli.DBPath, "db", "oidcrp.sqlite3", "path to the sqlite database holding keys and cached discovery documents")
	rootFlags.DurationVar(&cli.DiscoveryTTL, "discovery-ttl", time.Hour, "how long a cached discovery document stays fresh (0 disables the cache)")
	rootFlags.BoolVar(&cli.Verbose, "v", false, "enable verbose logging")
	rootFlags.BoolVar(&cli.NoColor, "no-color", false, "disable colorized logging")
	rootFlags.StringVar(&cli.ConfigFile, "config", "", "YAML config file with flag values for every command")

	return &ffcli.Command{
		Name:       "oidcrp",
		ShortUsage: "oidcrp [flags] <subcommand> [flags]",
		ShortHelp:  "OpenID Connect relying party toolbox",
		FlagSet:    rootFlags,
		Options: []ff.Option{
			ff.WithEnvVarPrefix(EnvPrefix),
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(YAMLParser),
			ff.WithIgnoreUndefined(true),
		},
		Subcommands: []*ffcli.Command{
			cli.discoverCommand(),
			cli.authorizeCommand(),
			cli.loginCommand(),
			cli.exchangeCommand(),
			cli.userinfoCommand(),
			cli.logoutCommand(),
			cli.jwksCommand(),
		},
		Exec: func(ctx context.Context, args []string) error {
			rootFlags.Usage()
			return flag.ErrHelp
		},
	}
}

// loadEnvFile reads OIDCRP_ENV_FILE, or ./.env when it exists, into the
// environment before flags are resolved.
func loadEnvFile() error {
	path := os.Getenv(EnvPrefix + "_ENV_FILE")
	if path == "" {
		if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// setup runs after flag parsing, once per invocation.
func (cli *CLI) setup() {
	opts := &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
		NoColor:    cli.NoColor,
	}
	if cli.Verbose {
		opts.Level = slog.LevelDebug
	}
	cli.Logger = slog.New(
		tint.NewHandler(os.Stderr, opts),
	)
	slog.SetDefault(cli.Logger)

	cli.Client = oidcrp.New(&oidcrp.Config{
		Slog: cli.Logger,
	})
}

func (cli *CLI) Store() (*Store, error) {
	if cli.store != nil {
		return cli.store, nil
	}
	store, err := NewStore(cli.DBPath, cli.Logger, cli.Verbose)
	if err != nil {
		return nil, err
	}
	cli.store = store
	return store, nil
}

// Configuration returns the discovery snapshot, from the store while it is
// younger than DiscoveryTTL.
func (cli *CLI) Configuration(ctx context.Context) (*oidcrp.Configuration, error) {
	if err := validate.Struct(cli); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	m, err := cli.Client.NewConfigurationManager(cli.Authority, cli.ClientID)
	if err != nil {
		return nil, err
	}
	if cli.DiscoveryTTL == 0 {
		return m.Fetch(ctx)
	}
	store, err := cli.Store()
	if err != nil {
		return nil, err
	}
	conf, err := store.GetDiscovery(m.Authority, m.ClientID, cli.DiscoveryTTL)
	if err != nil {
		return nil, err
	}
	if conf != nil {
		cli.Logger.Debug("using cached discovery document", "authority", m.Authority)
		return conf, nil
	}
	conf, err = m.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.PutDiscovery(m.Authority, conf); err != nil {
		return nil, err
	}
	return conf, nil
}
