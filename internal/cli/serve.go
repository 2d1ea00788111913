package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/kelwitness/internal/api"
	"github.com/roach88/kelwitness/internal/config"
	"github.com/roach88/kelwitness/internal/directory"
	"github.com/roach88/kelwitness/internal/dirnet"
	"github.com/roach88/kelwitness/internal/peer"
	"github.com/roach88/kelwitness/internal/registry"
	"github.com/roach88/kelwitness/internal/resolve"
	"github.com/roach88/kelwitness/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string

	flags *config.FlagBinding
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the witness node",
		Long: `Run the witness: open the event store, join the peer directory and
serve the HTTP API until interrupted.

Settings come from built-in defaults, then the --config YAML file, then
environment variables (API_PORT, API_PUBLIC_HOST, DB_PATH, DHT_PORT,
DHT_BOOTSTRAP_ADDR, FETCH_TIMEOUT, CACHE_REMOTE, ACCEPT_UNVERIFIED_STATES,
LOG_LEVEL), then flags given on the command line.

With --dht-port 0 the witness runs alone with an in-process directory.

Examples:
  witness serve --db ./witness.db
  witness serve --config witness.yaml --dht-bootstrap 10.0.0.5:9145
  DHT_PORT=0 witness serve --api-port 8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	opts.flags = config.BindFlags(cmd.Flags())

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath, os.Getenv, opts.flags)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := opts.logger(cmd, cfg.SlogLevel())
	slog.SetDefault(logger)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	reg, err := registry.New(ctx, st.DB())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open witness registry", err)
	}

	dir, stopDir, err := startDirectory(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start directory node", err)
	}
	defer stopDir()

	res := resolve.New(st, reg, directory.NewClient(dir), peer.NewClient(), cfg.PublicAddr(),
		resolve.WithTimeout(cfg.FetchTimeout),
		resolve.WithCacheRemote(cfg.CacheRemote),
		resolve.WithAcceptUnverifiedStates(cfg.AcceptUnverifiedStates),
		resolve.WithLogger(logger),
	)

	lis, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	go func() {
		if _, err := res.Republish(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("republish failed", "error", err)
		}
	}()

	logger.Info("witness starting",
		"listen", lis.Addr().String(),
		"public", cfg.PublicAddr(),
		"single_node", cfg.SingleNode(),
		"cache_remote", cfg.CacheRemote,
		"accept_unverified_states", cfg.AcceptUnverifiedStates)
	fmt.Fprintf(cmd.OutOrStdout(), "Witness listening on %s (public address %s)\n", lis.Addr(), cfg.PublicAddr())

	if err := api.New(res, api.WithLogger(logger)).Serve(ctx, lis); err != nil {
		return WrapExitError(ExitFailure, "api server error", err)
	}
	cancel()

	logger.Info("witness stopped gracefully")
	return nil
}

// startDirectory returns the in-process directory in single-node mode,
// otherwise a peer directory node serving on the DHT port.
func startDirectory(ctx context.Context, cfg config.Config, logger *slog.Logger) (directory.Directory, func(), error) {
	if cfg.SingleNode() {
		logger.Info("single-node mode, using in-process directory")
		return directory.NewMemory(), func() {}, nil
	}

	node := dirnet.New(cfg.DHTAddr(), dirnet.WithTimeout(cfg.FetchTimeout), dirnet.WithLogger(logger))
	lis, err := net.Listen("tcp", cfg.DHTListenAddr())
	if err != nil {
		return nil, nil, err
	}
	go func() {
		if err := node.Serve(lis); err != nil {
			logger.Error("directory node stopped", "error", err)
		}
	}()

	if cfg.DHTBootstrapAddr != "" {
		if err := node.Join(ctx, cfg.DHTBootstrapAddr); err != nil {
			// Peers that come up later join us instead.
			logger.Warn("bootstrap failed", "bootstrap", cfg.DHTBootstrapAddr, "error", err)
		} else {
			logger.Info("joined directory", "bootstrap", cfg.DHTBootstrapAddr, "peers", len(node.Peers()))
		}
	}
	return node, node.Stop, nil
}
