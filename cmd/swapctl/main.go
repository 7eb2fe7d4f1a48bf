// Command swapctl drives a swapd node: pool setup, swap deposits,
// redemption, refunds and event streaming.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/config"
	"solana-atomic-swap/internal/rpcclient"
	"solana-atomic-swap/internal/solana"
)

func main() {
	root := &cobra.Command{
		Use:          "swapctl",
		Short:        "Atomic swap client",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("endpoint", "http://localhost:8899", "swapd JSON-RPC endpoint")
	pf.Duration("timeout", 30*time.Second, "request timeout")
	pf.Int("max-retries", 3, "maximum retry attempts for transport errors")
	pf.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		secretCmd(),
		airdropCmd(),
		createMintCmd(),
		mintToCmd(),
		initPoolCmd(),
		depositCmd(),
		redeemCmd(),
		refundCmd(),
		withdrawFeesCmd(),
		showCmd(),
		balanceCmd(),
		clockCmd(),
		historyCmd(),
		auditCmd(),
		watchCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env is the per-command client setup.
type env struct {
	cfg    config.ClientConfig
	client *rpcclient.Client
	logger *zap.Logger
}

func newEnv(cmd *cobra.Command) (*env, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadClient(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	client := rpcclient.New(cfg.Endpoint,
		rpcclient.WithTimeout(cfg.Timeout),
		rpcclient.WithMaxRetries(cfg.MaxRetries),
		rpcclient.WithRetryDelay(cfg.RetryBackoff),
	)
	return &env{cfg: cfg, client: client, logger: logger}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func keyFlag(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", name)
	}
	pk, err := solana.ParsePublicKey(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %w", name, err)
	}
	return pk, nil
}

func bytes32Flag(cmd *cobra.Command, name string) (atomicswap.Bytes32, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return atomicswap.Bytes32{}, fmt.Errorf("--%s is required", name)
	}
	b, err := atomicswap.ParseBytes32(s)
	if err != nil {
		return b, fmt.Errorf("--%s: %w", name, err)
	}
	return b, nil
}

// secretFlags resolves --secret (hex) or --phrase (keccak-256 of the text).
func secretFlags(cmd *cobra.Command) (atomicswap.Bytes32, error) {
	phrase, _ := cmd.Flags().GetString("phrase")
	if phrase != "" {
		return atomicswap.SecretFromPhrase(phrase), nil
	}
	return bytes32Flag(cmd, "secret")
}

// wsEndpoint derives the websocket URL from a JSON-RPC endpoint.
func wsEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
