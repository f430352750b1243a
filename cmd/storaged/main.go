// Command storaged runs one storage daemon: it holds the regions the
// coordinator has assigned it, follows configuration changes over the
// coordinator's admin API, and serves keyed client requests over the wire
// protocol in pkg/wire.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/hyperfold/pkg/daemonlink"
	"github.com/cuemby/hyperfold/pkg/log"
	"github.com/cuemby/hyperfold/pkg/metrics"
	"github.com/cuemby/hyperfold/pkg/storage"
	"github.com/cuemby/hyperfold/pkg/types"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "storaged",
	Short:   "hyperfold storage daemon",
	Version: Version,
	RunE:    runStoraged,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("storaged version %s\nCommit: %s\n", Version, Commit))

	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().Uint64("server-id", 0, "This daemon's server id")
	rootCmd.Flags().String("listen-addr", "127.0.0.1:7100", "Wire protocol bind address")
	rootCmd.Flags().String("advertise-addr", "", "Address other daemons/clients reach this one at (defaults to --listen-addr)")
	rootCmd.Flags().String("admin-addr", "127.0.0.1:7180", "This daemon's own health/metrics bind address")
	rootCmd.Flags().String("coordinator-addr", "127.0.0.1:7080", "Coordinator admin API address")
	rootCmd.Flags().String("data-dir", "./data/storaged", "Region data directory")
	_ = rootCmd.MarkFlagRequired("server-id")
}

func runStoraged(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	jsonOut, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	logger := log.WithComponent("storaged")

	serverIDRaw, _ := cmd.Flags().GetUint64("server-id")
	serverID := types.ServerID(serverIDRaw)
	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	advertiseAddr, _ := cmd.Flags().GetString("advertise-addr")
	adminAddr, _ := cmd.Flags().GetString("admin-addr")
	coordinatorAddr, _ := cmd.Flags().GetString("coordinator-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	if advertiseAddr == "" {
		advertiseAddr = listenAddr
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("storaged: opening store: %w", err)
	}

	coord := newCoordinatorClient(coordinatorAddr)

	handler := newConnHandler(store, coord)

	link := daemonlink.New(serverID, advertiseAddr, coord, daemonlink.Callbacks{
		InstallConfig: handler.installConfig,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("storaged: listening on %s: %w", listenAddr, err)
	}
	logger.Info().Str("addr", listenAddr).Msg("wire protocol listening")

	acceptErrCh := make(chan error, 1)
	go func() {
		acceptErrCh <- handler.acceptLoop(listener)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())
	adminSrv := &http.Server{
		Addr:         adminAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()
	metrics.RegisterComponent("storage", true, "started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-acceptErrCh:
		logger.Error().Err(err).Msg("accept loop stopped")
	}

	cancel()
	_ = listener.Close()
	_ = adminSrv.Close()
	if err := store.Close(); err != nil {
		return fmt.Errorf("storaged: closing store: %w", err)
	}
	return nil
}
