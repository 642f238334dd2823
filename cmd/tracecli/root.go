package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kouak/tracecli/internal/alias"
	"github.com/kouak/tracecli/internal/auth"
	tracecliconfig "github.com/kouak/tracecli/internal/config"
	"github.com/kouak/tracecli/internal/cursor"
	"github.com/kouak/tracecli/internal/fetch"
	"github.com/kouak/tracecli/internal/model"
	"github.com/kouak/tracecli/internal/pipeline"
	"github.com/kouak/tracecli/internal/region"
	"github.com/kouak/tracecli/internal/serviceapi"
	"github.com/kouak/tracecli/internal/store"
	"github.com/kouak/tracecli/internal/target"
	"github.com/kouak/tracecli/internal/transport"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	jsonOutput bool
	configDir  string
	baseURL    string
	org        string
	project    string
)

var rootCmd = &cobra.Command{
	Use:   "tracecli",
	Short: "tracecli - command-line client for a hosted error-tracking service",
	Long:  `List and locate issues across one or more projects, region-aware and cursor-paginated.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("tracecli version %s\n", Version)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		var handler slog.Handler
		if jsonOutput {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		} else {
			handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		}
		slog.SetDefault(slog.New(handler))
	},
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "issues", Title: "Working With Issues:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Config directory override (default: OS user config dir)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Control-plane base URL override (self-hosted deployments)")
	rootCmd.PersistentFlags().StringVar(&org, "org", "", "Organization slug (requires --project)")
	rootCmd.PersistentFlags().StringVar(&project, "project", "", "Project slug (requires --org)")
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

// deps bundles every wired-together component a subcommand needs. It is
// built once per invocation from the layered config (flags > env/file >
// defaults), the same precedence cmd/bd applies.
type deps struct {
	cfg      *tracecliconfig.Config
	store    *store.Store
	tokens   *auth.TokenSource
	regions  *region.Directory
	client   *transport.Client
	api      *serviceapi.API
	resolver *target.Resolver
	coord    *fetch.Coordinator
	pipe     *pipeline.Pipeline
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := tracecliconfig.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	storeCfg := &store.Config{Path: cfg.StorePath()}
	if cfg.StoreAddr != "" {
		storeCfg.ServerMode = true
		host, port := splitHostPort(cfg.StoreAddr)
		storeCfg.ServerHost = host
		storeCfg.ServerPort = port
	}
	s, err := store.Open(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	tokens := auth.New(s, cfg.ControlPlaneURL(), cfg.ClientID, cfg.ClientSecret)
	regions := region.New(s, tokens, cfg.ControlPlaneURL())
	client := transport.New(tokens, regions, cfg.ControlPlaneURL())
	api := serviceapi.New(client)

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	resolver := target.New(s, api, target.Env{Org: os.Getenv("TRACECLI_ORG"), Project: os.Getenv("TRACECLI_PROJECT")}, wd)
	resolver = resolver.WithGitHubCanonicalizer(newGitHubCanonicalizer())

	issuesAPI := api.IssuesAPI()
	coord := fetch.New(issuesAPI)
	hostBase := cfg.ControlPlaneURL()
	pipe := pipeline.New(resolver, coord, issuesAPI, s, s, hostBase)

	return &deps{
		cfg: cfg, store: s, tokens: tokens, regions: regions,
		client: client, api: api, resolver: resolver, coord: coord, pipe: pipe,
	}, nil
}

var _ cursor.Store = (*store.Store)(nil)
var _ alias.Store = (*store.Store)(nil)

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, store.DefaultSQLPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = store.DefaultSQLPort
	}
	return host, port
}

func (d *deps) Close() {
	if d.store != nil {
		_ = d.store.Close()
	}
}

// exitCodeFor maps an error returned by a subcommand's RunE to the exit
// code §6 specifies: 0 success, 1 validation/context error, 2 auth
// required, 3 API error, 4 other.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var verr *model.ValidationError
	var cerr *model.ContextError
	var rerr *model.ResolutionError
	var aerr *model.AuthError
	var apiErr *model.ApiError
	var cfe *model.CompositeFetchError
	switch {
	case errors.As(err, &verr), errors.As(err, &cerr), errors.As(err, &rerr):
		return 1
	case errors.As(err, &aerr):
		return 2
	case errors.As(err, &apiErr):
		return 3
	case errors.As(err, &cfe):
		if cfe.FirstStatus != 0 {
			return 3
		}
		return 4
	default:
		return 4
	}
}

// runE wraps a subcommand body so cobra prints the error and main() maps
// it to the right exit code, instead of every subcommand calling os.Exit
// directly the way cmd/bd's Run funcs do.
func runE(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return fn(ctx, cmd, args)
	}
}
