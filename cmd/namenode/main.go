// Command namenode runs one name node of a distfs cluster: the metadata
// tree, user/group administration, storage-node health tracking, and
// the disaster-recovery and return-transition sequences, all exposed
// over the client-facing HTTP surface of spec section 4.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"log/slog"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"

	"distfs/internal/auth"
	"distfs/internal/cliutil"
	"distfs/internal/dfserrors"
	"distfs/internal/namenode"
	"distfs/internal/store"
)

var version = "dev"

func main() {
	logger := cliutil.NewLogger()

	rootCmd := &cobra.Command{
		Use:   "namenode",
		Short: "Run a distfs name node",
	}
	rootCmd.PersistentFlags().String("config", "", "path to the cluster configuration document (required)")
	rootCmd.MarkPersistentFlagRequired("config")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the name node HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			name, _ := cmd.Flags().GetString("name")
			addr, _ := cmd.Flags().GetString("addr")
			storeKind, _ := cmd.Flags().GetString("store")
			dbPath, _ := cmd.Flags().GetString("db")
			noAuth, _ := cmd.Flags().GetBool("no-auth")
			tokenSecret, _ := cmd.Flags().GetString("token-secret")
			rootPassword, _ := cmd.Flags().GetString("root-password")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, runOpts{
				configPath:   configPath,
				name:         name,
				addr:         addr,
				storeKind:    storeKind,
				dbPath:       dbPath,
				noAuth:       noAuth,
				tokenSecret:  tokenSecret,
				rootPassword: rootPassword,
			})
		},
	}
	serverCmd.Flags().String("name", "", "this node's key in the configuration's namenodes_setting (required)")
	serverCmd.MarkFlagRequired("name")
	serverCmd.Flags().String("addr", "", "listen address, host:port (default: this node's configured port)")
	serverCmd.Flags().String("store", "memory", "metadata store backend: memory or sqlite")
	serverCmd.Flags().String("db", "namenode.db", "sqlite database path, when --store=sqlite")
	serverCmd.Flags().Bool("no-auth", false, "disable session-token authentication")
	serverCmd.Flags().String("token-secret", os.Getenv("DISTFS_TOKEN_SECRET"), "HMAC secret for session tokens (or set DISTFS_TOKEN_SECRET)")
	serverCmd.Flags().String("root-password", envOr("DISTFS_ROOT_PASSWORD", "root"), "password to bootstrap the root account with, on first start")

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

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type runOpts struct {
	configPath   string
	name         string
	addr         string
	storeKind    string
	dbPath       string
	noAuth       bool
	tokenSecret  string
	rootPassword string
}

func run(ctx context.Context, logger *slog.Logger, opts runOpts) error {
	cfg, err := cliutil.LoadConfig(logger, opts.configPath)
	if err != nil {
		return err
	}

	self, ok := cfg.NameNodesSetting[opts.name]
	if !ok {
		return fmt.Errorf("no namenodes_setting entry named %q", opts.name)
	}

	listenAddr := opts.addr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%d", self.Port)
	}

	st, err := openStore(opts.storeKind, opts.dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	tree := namenode.NewTree(st)
	admin := namenode.NewAdmin(st)
	super := namenode.NewSupervisor(logger)
	fanout := namenode.NewFanout(cfg.NameNodeBaseURLsExcept(opts.name), logger)
	master := namenode.NewMaster(tree, admin, fanout, super, cfg, logger)
	follower := namenode.NewFollower(st, logger)

	if err := master.Mkfs(ctx); err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}
	if err := bootstrapRoot(ctx, admin, fanout, opts.rootPassword, logger); err != nil {
		logger.Warn("root account bootstrap skipped", "error", err)
	}

	var tokens *auth.TokenService
	if !opts.noAuth {
		if opts.tokenSecret == "" {
			return fmt.Errorf("--token-secret (or DISTFS_TOKEN_SECRET) is required unless --no-auth is set")
		}
		tokens = auth.NewTokenService([]byte(opts.tokenSecret), 24*time.Hour)
	}

	server := namenode.NewServer(master, follower, tokens, logger)

	httpClient := &http.Client{Timeout: 10 * time.Second}
	recovery := namenode.NewRecovery(tree, super, fanout, cfg.DataNodes, cfg.ReplicaSet, logger)
	recovery.SetReplicateFunc(func(ctx context.Context, newPrimary, chunk, newSecondary string) {
		if err := postRecoveryPut(ctx, httpClient, newPrimary, chunk, newSecondary); err != nil {
			logger.Warn("recovery replicate failed", "target", newPrimary, "chunk", chunk, "error", err)
		}
	})
	recovery.SetDeleteFunc(func(ctx context.Context, sn string, chunks []string) {
		if err := postRecoveryDelete(ctx, httpClient, sn, chunks); err != nil {
			logger.Warn("recovery delete failed", "sn", sn, "error", err)
		}
	})

	for _, sn := range cfg.DataNodes {
		go super.RunCountdown(ctx, sn, recovery.OnDead)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if err := namenode.ScheduleReturnChecks(ctx, sched, recovery); err != nil {
		return fmt.Errorf("schedule return checks: %w", err)
	}
	sched.Start()

	httpSrv := &http.Server{Addr: listenAddr, Handler: server.Routes()}
	errc := make(chan error, 1)
	go func() {
		logger.Info("name node listening", "addr", listenAddr, "name", opts.name)
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
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := sched.Shutdown(); err != nil {
		return err
	}
	return nil
}

func openStore(kind, dbPath string) (store.Store, error) {
	switch kind {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unknown store backend %q (want memory or sqlite)", kind)
	}
}

// bootstrapRoot ensures the root account exists on first start, so a
// freshly bootstrapped cluster with authentication enabled has a way to
// log in at all. An existing root account, whatever its password, is
// left untouched.
func bootstrapRoot(ctx context.Context, admin *namenode.Admin, fanout *namenode.Fanout, password string, log *slog.Logger) error {
	if _, err := admin.Authenticate(ctx, "root", password); err == nil {
		return nil
	} else if !dfserrors.Is(err, dfserrors.UserNotFound) {
		return err
	}
	batch, err := admin.UserAdd(ctx, "root", password)
	if err != nil {
		if dfserrors.Is(err, dfserrors.UserAlreadyExists) {
			log.Warn("root account already exists with a different password")
			return nil
		}
		return err
	}
	if err := store.Apply(ctx, admin.Store, batch); err != nil {
		return err
	}
	if err := fanout.Push(ctx, batch); err != nil {
		log.Warn("fanout of root bootstrap incomplete", "error", err)
	}
	log.Info("bootstrapped root account")
	return nil
}

func postRecoveryPut(ctx context.Context, client *http.Client, newPrimary, chunk, newSecondary string) error {
	type entry struct {
		Chunk      string `json:"chunk"`
		NewReplica string `json:"new_replica"`
	}
	body, err := json.Marshal([]entry{{Chunk: chunk, NewReplica: newSecondary}})
	if err != nil {
		return err
	}
	return postJSON(ctx, client, newPrimary+"/recovery/put", body)
}

func postRecoveryDelete(ctx context.Context, client *http.Client, sn string, chunks []string) error {
	body, err := json.Marshal(chunks)
	if err != nil {
		return err
	}
	return postJSON(ctx, client, sn+"/recovery/delete", body)
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return nil
}
