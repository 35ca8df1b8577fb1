package main

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolGuard/internal/fixed"
	"poolGuard/internal/model"
)

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Price a swap, check the breakers and settle it in the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				inArg, _ := cmd.Flags().GetString("in")
				outArg, _ := cmd.Flags().GetString("out")
				amountArg, _ := cmd.Flags().GetString("amount")
				givenOut, _ := cmd.Flags().GetBool("given-out")
				dryRun, _ := cmd.Flags().GetBool("dry-run")

				req := model.SwapRequest{Kind: model.GivenIn}
				var err error
				if req.TokenIn, err = parseAddress("in", inArg); err != nil {
					return err
				}
				if req.TokenOut, err = parseAddress("out", outArg); err != nil {
					return err
				}
				fixedSide := req.TokenIn
				if givenOut {
					req.Kind = model.GivenOut
					fixedSide = req.TokenOut
				}
				if req.Amount, err = parseTokenAmount(ctx, a.registry, fixedSide, amountArg); err != nil {
					return fmt.Errorf("amount: %w", err)
				}

				res, err := a.ctrl.Swap(ctx, req)
				if err != nil {
					return err
				}
				a.logger.Info("swap quoted",
					zap.String("kind", req.Kind.String()),
					zap.String("amount_in", formatTokenAmount(ctx, a.registry, req.TokenIn, res.AmountIn)),
					zap.String("amount_out", formatTokenAmount(ctx, a.registry, req.TokenOut, res.AmountOut)),
				)
				if dryRun {
					return nil
				}
				if err := a.registry.ApplySwap(a.cfg.PoolID, req.TokenIn, req.TokenOut, res.AmountIn, res.AmountOut); err != nil {
					return fmt.Errorf("settle swap: %w", err)
				}
				return a.registry.Save()
			})
		},
	}
	cmd.Flags().String("in", "", "token paid into the pool")
	cmd.Flags().String("out", "", "token taken from the pool")
	cmd.Flags().String("amount", "", "exact amount in (or out with --given-out), human units")
	cmd.Flags().Bool("given-out", false, "treat --amount as the exact amount out")
	cmd.Flags().Bool("dry-run", false, "quote only, leave balances unchanged")
	return cmd
}

func newJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Issue pool shares",
		Long:  "With --shares the join is proportional; with --amounts it deposits exact token amounts.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sharesArg, _ := cmd.Flags().GetString("shares")
				amountArgs, _ := cmd.Flags().GetStringSlice("amounts")
				dryRun, _ := cmd.Flags().GetBool("dry-run")

				var req model.JoinRequest
				switch {
				case sharesArg != "" && len(amountArgs) > 0:
					return fmt.Errorf("--shares and --amounts are exclusive")
				case sharesArg != "":
					shares, err := fixed.ParseUnits(sharesArg, fixed.Decimals)
					if err != nil {
						return fmt.Errorf("shares: %w", err)
					}
					req = model.JoinRequest{Kind: model.ProportionalJoin, SharesOut: shares}
				case len(amountArgs) > 0:
					tokens, _, err := a.registry.PoolTokens(ctx, a.cfg.PoolID)
					if err != nil {
						return err
					}
					if len(amountArgs) != len(tokens) {
						return fmt.Errorf("%d tokens, %d amounts", len(tokens), len(amountArgs))
					}
					amounts := make([]*uint256.Int, len(tokens))
					for i, token := range tokens {
						if amounts[i], err = parseTokenAmount(ctx, a.registry, token, amountArgs[i]); err != nil {
							return fmt.Errorf("amount of %s: %w", token.Hex(), err)
						}
					}
					req = model.JoinRequest{Kind: model.ExactTokensInJoin, AmountsIn: amounts}
				default:
					return fmt.Errorf("one of --shares or --amounts is required")
				}

				res, err := a.ctrl.Join(ctx, req)
				if err != nil {
					return err
				}
				a.logger.Info("join quoted",
					zap.Strings("amounts_in", decStrings(res.AmountsIn)),
					zap.String("shares_out", formatFraction(res.SharesOut)),
				)
				if dryRun {
					return nil
				}
				if err := a.registry.ApplyJoin(a.cfg.PoolID, res.AmountsIn, res.SharesOut); err != nil {
					return fmt.Errorf("settle join: %w", err)
				}
				return a.registry.Save()
			})
		},
	}
	cmd.Flags().String("shares", "", "shares to issue proportionally")
	cmd.Flags().StringSlice("amounts", nil, "exact token amounts in pool order, human units")
	cmd.Flags().Bool("dry-run", false, "quote only, leave balances unchanged")
	return cmd
}

func newExitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exit",
		Short: "Redeem pool shares",
		Long:  "Without --token the exit is proportional; with --token it pays out a single token.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sharesArg, _ := cmd.Flags().GetString("shares")
				tokenArg, _ := cmd.Flags().GetString("token")
				dryRun, _ := cmd.Flags().GetBool("dry-run")

				shares, err := fixed.ParseUnits(sharesArg, fixed.Decimals)
				if err != nil {
					return fmt.Errorf("shares: %w", err)
				}
				req := model.ExitRequest{Kind: model.ProportionalExit, SharesIn: shares}
				if tokenArg != "" {
					if req.TokenOut, err = parseAddress("token", tokenArg); err != nil {
						return err
					}
					req.Kind = model.ExactSharesInForTokenOut
				}

				res, err := a.ctrl.Exit(ctx, req)
				if err != nil {
					return err
				}
				a.logger.Info("exit quoted",
					zap.Strings("amounts_out", decStrings(res.AmountsOut)),
					zap.String("shares_in", formatFraction(res.SharesIn)),
				)
				if dryRun {
					return nil
				}
				if err := a.registry.ApplyExit(a.cfg.PoolID, res.AmountsOut, res.SharesIn); err != nil {
					return fmt.Errorf("settle exit: %w", err)
				}
				return a.registry.Save()
			})
		},
	}
	cmd.Flags().String("shares", "", "shares to redeem")
	cmd.Flags().String("token", "", "single token to receive")
	cmd.Flags().Bool("dry-run", false, "quote only, leave balances unchanged")
	return cmd
}

func decStrings(values []*uint256.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = "0"
			continue
		}
		out[i] = v.Dec()
	}
	return out
}
