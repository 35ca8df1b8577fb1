package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"poolGuard/internal/config"
	"poolGuard/internal/fixed"
	"poolGuard/internal/registry"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withApp runs fn against a wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Add the pool's tokens, balances and share supply to the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				tokenArgs, _ := cmd.Flags().GetStringSlice("tokens")
				balanceArgs, _ := cmd.Flags().GetStringSlice("balances")
				supplyArg, _ := cmd.Flags().GetString("supply")
				decimalsArgs, _ := cmd.Flags().GetIntSlice("decimals")

				tokens, err := parseAddresses("tokens", tokenArgs)
				if err != nil {
					return err
				}
				if len(balanceArgs) != len(tokens) {
					return fmt.Errorf("%d tokens, %d balances", len(tokens), len(balanceArgs))
				}
				if len(decimalsArgs) > 0 && len(decimalsArgs) != len(tokens) {
					return fmt.Errorf("%d tokens, %d decimals", len(tokens), len(decimalsArgs))
				}
				entries := make([]registry.Token, len(tokens))
				for i, token := range tokens {
					if len(decimalsArgs) > 0 {
						if decimalsArgs[i] < 0 || decimalsArgs[i] > 255 {
							return fmt.Errorf("decimals of %s out of range", token.Hex())
						}
						a.registry.SetDecimals(token, uint8(decimalsArgs[i]))
					}
					decimals, err := a.registry.TokenDecimals(ctx, token)
					if err != nil {
						return err
					}
					balance, err := fixed.ParseUnits(balanceArgs[i], decimals)
					if err != nil {
						return fmt.Errorf("balance of %s: %w", token.Hex(), err)
					}
					entries[i] = registry.Token{Address: token, Decimals: decimals, Balance: balance}
				}
				supply, err := fixed.ParseUnits(supplyArg, fixed.Decimals)
				if err != nil {
					return fmt.Errorf("supply: %w", err)
				}
				if err := a.registry.PutPool(a.cfg.PoolID, entries, supply); err != nil {
					return err
				}
				if err := a.registry.Save(); err != nil {
					return err
				}
				a.logger.Info("pool registered", zap.Int("tokens", len(tokens)), zap.String("supply", supply.Dec()))
				return nil
			})
		},
	}
	cmd.Flags().StringSlice("tokens", nil, "token addresses in pool order")
	cmd.Flags().StringSlice("balances", nil, "token balances in human units")
	cmd.Flags().String("supply", "", "initial share supply")
	cmd.Flags().IntSlice("decimals", nil, "token decimals in pool order (default: read from chain)")
	return cmd
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the pool with initial weights",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				weightArgs, _ := cmd.Flags().GetStringSlice("weights")
				enabled, _ := cmd.Flags().GetBool("swap-enabled")
				weights, err := parseFractions("weights", weightArgs)
				if err != nil {
					return err
				}
				return a.ctrl.Create(ctx, a.cfg.CallerAddress(), weights, enabled)
			})
		},
	}
	cmd.Flags().StringSlice("weights", nil, "normalized weights in pool order, e.g. 0.8,0.2")
	cmd.Flags().Bool("swap-enabled", false, "enable trading immediately")
	return cmd
}

func newSetSwapEnabledCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-swap-enabled",
		Short: "Turn trading on or off",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				enabled, _ := cmd.Flags().GetBool("enabled")
				return a.ctrl.SetSwapEnabled(ctx, a.cfg.CallerAddress(), enabled)
			})
		},
	}
	cmd.Flags().Bool("enabled", true, "trading flag")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a gradual weight change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				startArg, _ := cmd.Flags().GetString("start")
				endArg, _ := cmd.Flags().GetString("end")
				weightArgs, _ := cmd.Flags().GetStringSlice("weights")

				st, err := a.ctrl.Status(ctx)
				if err != nil {
					return err
				}
				start, err := config.ParseTimestamp(startArg, st.Now)
				if err != nil {
					return fmt.Errorf("start: %w", err)
				}
				end, err := config.ParseTimestamp(endArg, st.Now)
				if err != nil {
					return fmt.Errorf("end: %w", err)
				}
				weights, err := parseFractions("weights", weightArgs)
				if err != nil {
					return err
				}
				return a.ctrl.ScheduleWeightChange(ctx, a.cfg.CallerAddress(), start, end, weights)
			})
		},
	}
	cmd.Flags().String("start", "", "start time (unix, RFC3339, or +duration; empty is now)")
	cmd.Flags().String("end", "", "end time (unix, RFC3339, or +duration)")
	cmd.Flags().StringSlice("weights", nil, "end weights in pool order")
	return cmd
}

func newSetBreakersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-breakers",
		Short: "Arm circuit breakers at the current prices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				minArgs, _ := cmd.Flags().GetStringSlice("min")
				maxArgs, _ := cmd.Flags().GetStringSlice("max")
				minRatios, err := parseFractions("min", minArgs)
				if err != nil {
					return err
				}
				maxRatios, err := parseFractions("max", maxArgs)
				if err != nil {
					return err
				}
				return a.ctrl.SetBreakerRatios(ctx, a.cfg.CallerAddress(), minRatios, maxRatios)
			})
		},
	}
	cmd.Flags().StringSlice("min", nil, "lower bound ratios in pool order (0 disables)")
	cmd.Flags().StringSlice("max", nil, "upper bound ratios in pool order (0 disables)")
	return cmd
}

type tokenReport struct {
	Address        string `yaml:"address"`
	Symbol         string `yaml:"symbol"`
	Balance        string `yaml:"balance"`
	Weight         string `yaml:"weight"`
	EndWeight      string `yaml:"end_weight"`
	ReferencePrice string `yaml:"reference_price,omitempty"`
	MinRatio       string `yaml:"min_ratio,omitempty"`
	MaxRatio       string `yaml:"max_ratio,omitempty"`
	MinPrice       string `yaml:"min_price,omitempty"`
	MaxPrice       string `yaml:"max_price,omitempty"`
	CurrentPrice   string `yaml:"current_price,omitempty"`
}

type statusReport struct {
	Pool        string        `yaml:"pool"`
	Now         uint64        `yaml:"now"`
	SwapEnabled bool          `yaml:"swap_enabled"`
	StartTime   uint64        `yaml:"start_time"`
	EndTime     uint64        `yaml:"end_time"`
	TotalSupply string        `yaml:"total_supply"`
	Heaviest    string        `yaml:"heaviest_token"`
	Tokens      []tokenReport `yaml:"tokens"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the pool state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				st, err := a.ctrl.Status(ctx)
				if err != nil {
					return err
				}
				report := statusReport{
					Pool:        a.cfg.PoolID,
					Now:         st.Now,
					SwapEnabled: st.SwapEnabled,
					StartTime:   st.Schedule.StartTime,
					EndTime:     st.Schedule.EndTime,
					TotalSupply: formatFraction(st.TotalSupply),
					Tokens:      make([]tokenReport, len(st.Schedule.Tokens)),
				}
				for i, token := range st.Schedule.Tokens {
					b := st.Breakers[i]
					tr := tokenReport{
						Address:      token.Hex(),
						Symbol:       a.registry.Symbol(token),
						Balance:      formatTokenAmount(ctx, a.registry, token, st.Balances[i]),
						Weight:       formatFraction(st.CurrentWeights[i]),
						EndWeight:    formatFraction(st.Schedule.EndWeights[i]),
						MinPrice:     formatFraction(b.MinPrice),
						MaxPrice:     formatFraction(b.MaxPrice),
						CurrentPrice: formatFraction(b.CurrentPrice),
					}
					if b.MinRatio.Sign() > 0 || b.MaxRatio.Sign() > 0 {
						tr.ReferencePrice = formatFraction(b.ReferencePrice)
						tr.MinRatio = formatFraction(b.MinRatio)
						tr.MaxRatio = formatFraction(b.MaxRatio)
					}
					report.Tokens[i] = tr
				}
				if st.MaxWeightIndex >= 0 {
					report.Heaviest = st.Schedule.Tokens[st.MaxWeightIndex].Hex()
				}
				return printYAML(cmd, report)
			})
		},
	}
}

func printYAML(cmd *cobra.Command, v interface{}) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
