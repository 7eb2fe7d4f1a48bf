// Command swapd runs the atomic swap ledger and serves it over JSON-RPC,
// websocket and Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/config"
	"solana-atomic-swap/internal/ledger"
	"solana-atomic-swap/internal/observability"
	"solana-atomic-swap/internal/rpc"
	"solana-atomic-swap/internal/storage"
	chstore "solana-atomic-swap/internal/storage/clickhouse"
	"solana-atomic-swap/internal/storage/memory"
	"solana-atomic-swap/internal/storage/migrations"
	pgstore "solana-atomic-swap/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:          "swapd",
		Short:        "Atomic swap escrow node",
		SilenceUsage: true,
		RunE:         run,
	}

	flags := root.Flags()
	flags.String("config", "", "config file path")
	flags.String("listen-addr", ":8899", "JSON-RPC and websocket listen address")
	flags.String("metrics-addr", ":9090", "Prometheus metrics listen address (empty disables)")
	flags.String("storage", config.StorageMemory, "account storage backend (memory, postgres)")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("clickhouse-dsn", "", "ClickHouse connection string for event analytics (optional)")
	flags.Duration("min-lock-margin", 60*time.Second, "minimum time between deposit and lock expiry")
	flags.String("clock", config.ClockSystem, "ledger clock (system, manual)")
	flags.Int64("genesis-time", 0, "initial Unix time of a manual clock (0 means now)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// stores holds the persistence backends of one run.
type stores struct {
	accounts  storage.AccountStore
	events    storage.SwapEventStore
	analytics storage.SwapEventStore
	close     func()
}

func run(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := createStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	hub := rpc.NewHub(logger.Named("ws"))
	defer hub.Close()

	ledgerOpts := []ledger.Option{
		ledger.WithAccountStore(st.accounts),
		ledger.WithEventSink(ledger.NewStoreSink(st.events)),
		ledger.WithEventSink(hub),
		ledger.WithLogger(logger.Named("ledger")),
	}
	if st.analytics != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithEventSink(ledger.NewStoreSink(st.analytics)))
	}

	var manual *ledger.ManualClock
	if cfg.Clock == config.ClockManual {
		genesis := cfg.GenesisTime
		if genesis == 0 {
			genesis = time.Now().Unix()
		}
		manual = ledger.NewManualClock(genesis)
		ledgerOpts = append(ledgerOpts, ledger.WithClock(manual))
	}

	l := ledger.New(ledgerOpts...)
	if err := l.Load(ctx); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	program := atomicswap.NewProgram(l,
		atomicswap.WithMinLockMargin(cfg.MinLockMargin),
		atomicswap.WithLogger(logger.Named("atomicswap")),
	)

	serverOpts := []rpc.Option{
		rpc.WithEventStore(st.events),
		rpc.WithHub(hub),
		rpc.WithLogger(logger.Named("rpc")),
	}
	if manual != nil {
		serverOpts = append(serverOpts, rpc.WithManualClock(manual))
	}
	server := rpc.NewServer(program, serverOpts...)

	logger.Info("swapd starting",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.String("storage", cfg.Storage),
		zap.String("clock", cfg.Clock),
		zap.Uint64("slot", l.Slot()),
		zap.Duration("min_lock_margin", cfg.MinLockMargin),
	)

	g, gctx := errgroup.WithContext(ctx)
	serve(gctx, g, logger, &http.Server{Addr: cfg.ListenAddr, Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second})
	if cfg.MetricsAddr != "" {
		serve(gctx, g, logger, &http.Server{Addr: cfg.MetricsAddr, Handler: observability.Handler(), ReadHeaderTimeout: 10 * time.Second})
	}

	err = g.Wait()
	logger.Info("swapd stopped", zap.Uint64("slot", l.Slot()))
	return err
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, g *errgroup.Group, logger *zap.Logger, srv *http.Server) {
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func createStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{close: func() {}}

	if cfg.Storage == config.StorageMemory {
		st.accounts = memory.NewAccountStore()
		st.events = memory.NewSwapEventStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.WithApplicationName("swapd"))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.accounts = pgstore.NewAccountStore(pool)
		st.events = pgstore.NewSwapEventStore(pool)
		st.close = pool.Close
		logger.Info("postgres storage ready")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.analytics = chstore.NewSwapEventStore(conn)
		pgClose := st.close
		st.close = func() {
			conn.Close()
			pgClose()
		}
		logger.Info("clickhouse analytics ready")
	}

	return st, nil
}
