// Command storagenode runs one storage node of a distfs cluster: chunk
// storage on a flat local directory, master-node discovery, and the
// heartbeat sender that keeps that discovery current, per spec section
// 4.4/4.5.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"log/slog"

	"github.com/spf13/cobra"

	"distfs/internal/cliutil"
	"distfs/internal/storagenode"
)

var version = "dev"

func main() {
	logger := cliutil.NewLogger()

	rootCmd := &cobra.Command{
		Use:   "storagenode",
		Short: "Run a distfs storage node",
	}
	rootCmd.PersistentFlags().String("config", "", "path to the cluster configuration document (required)")
	rootCmd.MarkPersistentFlagRequired("config")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the storage node HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			name, _ := cmd.Flags().GetString("name")
			addr, _ := cmd.Flags().GetString("addr")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, configPath, name, addr)
		},
	}
	serverCmd.Flags().String("name", "", "this node's key in the configuration's datanodes_setting (required)")
	serverCmd.MarkFlagRequired("name")
	serverCmd.Flags().String("addr", "", "listen address, host:port (default: this node's configured port)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serverCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, name, addr string) error {
	cfg, err := cliutil.LoadConfig(logger, configPath)
	if err != nil {
		return err
	}

	self, ok := cfg.DataNodesSetting[name]
	if !ok {
		return fmt.Errorf("no datanodes_setting entry named %q", name)
	}

	listenAddr := addr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%d", self.Port)
	}
	selfID := fmt.Sprintf("http://%s:%d", self.Host, self.Port)

	blobs, err := storagenode.NewBlobStore(self.Storage)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	discovery := storagenode.NewMasterDiscovery(cfg.NameNodeBaseURLsExcept(""), logger)
	server := storagenode.NewServer(selfID, blobs, discovery, logger)

	go discovery.RunHeartbeatSender(ctx, selfID)

	httpSrv := &http.Server{Addr: listenAddr, Handler: server.Routes()}
	errc := make(chan error, 1)
	go func() {
		logger.Info("storage node listening", "addr", listenAddr, "name", name, "id", selfID)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
