// Command coordinatord runs the cluster coordinator: a raft-backed state
// machine over servers, spaces, and regions, reachable by daemons over a
// small admin HTTP API and by operators via bootstrap/join flags.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/hyperfold/pkg/coordinator"
	"github.com/cuemby/hyperfold/pkg/log"
	"github.com/cuemby/hyperfold/pkg/metrics"
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
	Use:     "coordinatord",
	Short:   "hyperfold cluster coordinator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("coordinatord version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("server-id", "", "This coordinator's raft server id")
	rootCmd.PersistentFlags().String("bind-addr", "127.0.0.1:7000", "Raft transport bind address")
	rootCmd.PersistentFlags().String("admin-addr", "127.0.0.1:7080", "Admin/metrics HTTP bind address")
	rootCmd.PersistentFlags().String("data-dir", "./data/coordinator", "Raft log/snapshot directory")
	_ = rootCmd.MarkPersistentFlagRequired("server-id")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(joinCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Bootstrap a new coordinator cluster with this node as the first member",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, true, "")
	},
}

var joinCmd = &cobra.Command{
	Use:   "join --leader ADMIN_ADDR",
	Short: "Join this coordinator to a cluster through an existing leader's admin address",
	RunE: func(cmd *cobra.Command, args []string) error {
		leader, _ := cmd.Flags().GetString("leader")
		if leader == "" {
			return fmt.Errorf("--leader is required")
		}
		return run(cmd, false, leader)
	},
}

func init() {
	joinCmd.Flags().String("leader", "", "Admin HTTP address of an existing coordinator")
}

func run(cmd *cobra.Command, bootstrap bool, leaderAdminAddr string) error {
	serverID, _ := cmd.Flags().GetString("server-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	adminAddr, _ := cmd.Flags().GetString("admin-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	logger := log.WithComponent("coordinatord")

	coord, err := coordinator.New(coordinator.Config{
		ServerID:  serverID,
		BindAddr:  bindAddr,
		DataDir:   dataDir,
		Bootstrap: bootstrap,
	})
	if err != nil {
		return fmt.Errorf("coordinatord: creating coordinator: %w", err)
	}

	admin := newAdminServer(coord)
	adminSrv := &http.Server{
		Addr:         adminAddr,
		Handler:      admin.mux(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()
	logger.Info().Str("addr", adminAddr).Msg("admin API listening")

	if !bootstrap {
		if err := requestJoin(leaderAdminAddr, serverID, bindAddr); err != nil {
			return fmt.Errorf("coordinatord: joining cluster via %s: %w", leaderAdminAddr, err)
		}
		logger.Info().Str("leader", leaderAdminAddr).Msg("join request accepted")
	}

	collector := metrics.NewCollector(coord)
	collector.Start()
	metrics.SetVersion(Version)
	metrics.RegisterComponent("raft", true, "started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("serving error")
	}

	collector.Stop()
	_ = adminSrv.Close()
	if err := coord.Shutdown(); err != nil {
		return fmt.Errorf("coordinatord: shutdown: %w", err)
	}
	return nil
}
