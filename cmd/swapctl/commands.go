package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-atomic-swap/internal/atomicswap"
	"solana-atomic-swap/internal/rpc"
	"solana-atomic-swap/internal/rpcclient"
)

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate a secret, its hash and a swap id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var secret atomicswap.Bytes32
			phrase, _ := cmd.Flags().GetString("phrase")
			if phrase != "" {
				secret = atomicswap.SecretFromPhrase(phrase)
			} else {
				var err error
				if secret, err = atomicswap.NewSecret(); err != nil {
					return err
				}
			}
			swapID, err := atomicswap.NewSwapID()
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]atomicswap.Bytes32{
				"secret":      secret,
				"secret_hash": atomicswap.HashSecret(secret),
				"swap_id":     swapID,
			})
		},
	}
	cmd.Flags().String("phrase", "", "derive the secret as keccak-256 of this text")
	return cmd
}

func airdropCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "airdrop",
		Short: "Credit lamports to an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			addr, err := keyFlag(cmd, "address")
			if err != nil {
				return err
			}
			lamports, _ := cmd.Flags().GetUint64("lamports")
			receipt, err := e.client.Airdrop(cmd.Context(), addr, lamports)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}
	cmd.Flags().String("address", "", "account to fund")
	cmd.Flags().Uint64("lamports", 1_000_000_000, "lamports to credit")
	return cmd
}

func createMintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-mint",
		Short: "Create a token mint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			authority, err := keyFlag(cmd, "authority")
			if err != nil {
				return err
			}
			decimals, _ := cmd.Flags().GetUint8("decimals")
			mint, err := e.client.CreateMint(cmd.Context(), authority, decimals)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"mint": mint})
		},
	}
	cmd.Flags().String("authority", "", "mint authority, pays rent")
	cmd.Flags().Uint8("decimals", 6, "token decimals")
	return cmd
}

func mintToCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint-to",
		Short: "Mint tokens into an owner's associated token account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			var p rpc.MintToParams
			if p.Mint, err = keyFlag(cmd, "mint"); err != nil {
				return err
			}
			if p.Owner, err = keyFlag(cmd, "owner"); err != nil {
				return err
			}
			if p.Authority, err = keyFlag(cmd, "authority"); err != nil {
				return err
			}
			p.Amount, _ = cmd.Flags().GetUint64("amount")
			ata, err := e.client.MintTo(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"account": ata, "amount": p.Amount})
		},
	}
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().String("owner", "", "token owner")
	cmd.Flags().String("authority", "", "mint authority")
	cmd.Flags().Uint64("amount", 0, "amount in base units")
	return cmd
}

func initPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-pool",
		Short: "Initialize the swap pool of a mint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			var p atomicswap.InitializeParams
			if p.Signer, err = keyFlag(cmd, "signer"); err != nil {
				return err
			}
			if p.Mint, err = keyFlag(cmd, "mint"); err != nil {
				return err
			}
			p.Fee, _ = cmd.Flags().GetUint64("fee")
			res, err := e.client.Initialize(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("signer", "", "pool authority, pays rent")
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().Uint64("fee", 0, "flat fee per redeemed swap, in base units")
	return cmd
}

func depositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Lock tokens in a new swap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			var p atomicswap.DepositParams
			if p.Signer, err = keyFlag(cmd, "signer"); err != nil {
				return err
			}
			if p.Mint, err = keyFlag(cmd, "mint"); err != nil {
				return err
			}
			if p.Buyer, err = keyFlag(cmd, "buyer"); err != nil {
				return err
			}
			if p.SecretHash, err = bytes32Flag(cmd, "secret-hash"); err != nil {
				return err
			}
			p.Amount, _ = cmd.Flags().GetUint64("amount")

			if id, _ := cmd.Flags().GetString("swap-id"); id != "" {
				if p.SwapID, err = atomicswap.ParseBytes32(id); err != nil {
					return fmt.Errorf("--swap-id: %w", err)
				}
			} else if p.SwapID, err = atomicswap.NewSwapID(); err != nil {
				return err
			}

			p.LockExpiry, _ = cmd.Flags().GetInt64("expiry")
			if p.LockExpiry == 0 {
				lock, _ := cmd.Flags().GetDuration("lock")
				clock, err := e.client.GetClock(cmd.Context())
				if err != nil {
					return err
				}
				p.LockExpiry = clock.UnixTimestamp + int64(lock/time.Second)
			}

			res, err := e.client.Deposit(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("signer", "", "depositor")
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().String("buyer", "", "account allowed to redeem")
	cmd.Flags().String("secret-hash", "", "hex sha256 of the secret")
	cmd.Flags().String("swap-id", "", "hex swap id (random when empty)")
	cmd.Flags().Uint64("amount", 0, "amount in base units")
	cmd.Flags().Int64("expiry", 0, "absolute lock expiry, Unix seconds")
	cmd.Flags().Duration("lock", time.Hour, "lock duration from the node clock when --expiry is unset")
	return cmd
}

func redeemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redeem",
		Short: "Claim a swap by revealing its secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			var p atomicswap.RedeemParams
			if p.Signer, err = keyFlag(cmd, "signer"); err != nil {
				return err
			}
			if p.Mint, err = keyFlag(cmd, "mint"); err != nil {
				return err
			}
			if p.SwapID, err = bytes32Flag(cmd, "swap-id"); err != nil {
				return err
			}
			if p.Secret, err = secretFlags(cmd); err != nil {
				return err
			}
			res, err := e.client.Redeem(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("signer", "", "buyer")
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().String("swap-id", "", "hex swap id")
	cmd.Flags().String("secret", "", "hex secret")
	cmd.Flags().String("phrase", "", "secret phrase, instead of --secret")
	return cmd
}

func refundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refund",
		Short: "Reclaim an expired swap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			var p atomicswap.RefundParams
			if p.Signer, err = keyFlag(cmd, "signer"); err != nil {
				return err
			}
			if p.Mint, err = keyFlag(cmd, "mint"); err != nil {
				return err
			}
			if p.SwapID, err = bytes32Flag(cmd, "swap-id"); err != nil {
				return err
			}
			res, err := e.client.Refund(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("signer", "", "depositor")
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().String("swap-id", "", "hex swap id")
	return cmd
}

func withdrawFeesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw-fees",
		Short: "Move accrued fees to the pool authority",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			var p atomicswap.WithdrawFeesParams
			if p.Signer, err = keyFlag(cmd, "signer"); err != nil {
				return err
			}
			if p.Mint, err = keyFlag(cmd, "mint"); err != nil {
				return err
			}
			p.Amount, _ = cmd.Flags().GetUint64("amount")
			if p.Amount == 0 {
				custody, err := e.client.GetCustody(cmd.Context(), p.Mint)
				if err != nil {
					return err
				}
				p.Amount = custody.Fees
			}
			res, err := e.client.WithdrawFees(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("signer", "", "pool authority")
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().Uint64("amount", 0, "amount to withdraw (all accrued fees when 0)")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a pool, its custody and optionally one swap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			mint, err := keyFlag(cmd, "mint")
			if err != nil {
				return err
			}
			pool, err := e.client.GetPool(cmd.Context(), mint)
			if err != nil {
				return err
			}
			custody, err := e.client.GetCustody(cmd.Context(), mint)
			if err != nil {
				return err
			}
			out := map[string]any{"pool": pool, "custody": custody}

			if id, _ := cmd.Flags().GetString("swap-id"); id != "" {
				swapID, err := atomicswap.ParseBytes32(id)
				if err != nil {
					return fmt.Errorf("--swap-id: %w", err)
				}
				swap, err := e.client.GetSwap(cmd.Context(), mint, swapID)
				if err != nil {
					return err
				}
				out["swap"] = swap
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().String("swap-id", "", "hex swap id")
	return cmd
}

func balanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show lamport and token balances of an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			owner, err := keyFlag(cmd, "owner")
			if err != nil {
				return err
			}
			lamports, err := e.client.GetBalance(cmd.Context(), owner)
			if err != nil {
				return err
			}
			out := map[string]any{"owner": owner, "lamports": lamports}

			if m, _ := cmd.Flags().GetString("mint"); m != "" {
				mint, err := keyFlag(cmd, "mint")
				if err != nil {
					return err
				}
				tokens, err := e.client.GetTokenBalance(cmd.Context(), owner, mint)
				if err != nil {
					return err
				}
				out["token_account"] = tokens.Address
				out["tokens"] = tokens.Amount
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().String("owner", "", "account owner")
	cmd.Flags().String("mint", "", "token mint")
	return cmd
}

func clockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clock",
		Short: "Show or advance the node clock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			advance, _ := cmd.Flags().GetDuration("advance")
			var res *rpc.ClockResult
			if advance > 0 {
				res, err = e.client.AdvanceClock(cmd.Context(), advance)
			} else {
				res, err = e.client.GetClock(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().Duration("advance", 0, "move a manual clock forward")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded events of a pool or swap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			var p rpc.HistoryParams
			if p.Mint, err = keyFlag(cmd, "mint"); err != nil {
				return err
			}
			if id, _ := cmd.Flags().GetString("swap-id"); id != "" {
				if p.SwapID, err = atomicswap.ParseBytes32(id); err != nil {
					return fmt.Errorf("--swap-id: %w", err)
				}
			}
			p.From, _ = cmd.Flags().GetInt64("from")
			p.To, _ = cmd.Flags().GetInt64("to")
			events, err := e.client.GetSwapHistory(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd, events)
		},
	}
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().String("swap-id", "", "hex swap id")
	cmd.Flags().Int64("from", 0, "start time, Unix seconds")
	cmd.Flags().Int64("to", 0, "end time, Unix seconds (inclusive)")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Reconcile a pool's history with its custody and fee vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			mint, err := keyFlag(cmd, "mint")
			if err != nil {
				return err
			}
			report, err := e.client.VerifyPool(cmd.Context(), mint)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.Match {
				return fmt.Errorf("pool %s: %d divergences", report.Pool, len(report.Divergences))
			}
			return nil
		},
	}
	cmd.Flags().String("mint", "", "token mint")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream swap events as they commit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			endpoint, err := wsEndpoint(e.cfg.Endpoint)
			if err != nil {
				return err
			}

			var filter rpc.SubscribeParams
			if m, _ := cmd.Flags().GetString("mint"); m != "" {
				mint, err := keyFlag(cmd, "mint")
				if err != nil {
					return err
				}
				if filter.Pool, _, err = atomicswap.PoolAddress(mint); err != nil {
					return err
				}
			}
			if id, _ := cmd.Flags().GetString("swap-id"); id != "" {
				if filter.SwapID, err = atomicswap.ParseBytes32(id); err != nil {
					return fmt.Errorf("--swap-id: %w", err)
				}
			}

			wsCfg := rpcclient.DefaultWSConfig()
			wsCfg.Logger = e.logger
			ws, err := rpcclient.DialWS(cmd.Context(), endpoint, &wsCfg)
			if err != nil {
				return err
			}
			defer ws.Close()

			events, err := ws.Subscribe(cmd.Context(), filter)
			if err != nil {
				return err
			}
			e.logger.Info("watching", zap.String("endpoint", endpoint))

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if err := printJSON(cmd, ev); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().String("mint", "", "only events of this mint's pool")
	cmd.Flags().String("swap-id", "", "only events of this swap")
	return cmd
}
