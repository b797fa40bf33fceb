package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"stock_scanner/internal/app/config"
	"stock_scanner/internal/app/di"
	"stock_scanner/internal/feature/scanner/domain/entity"
	scanusecase "stock_scanner/internal/feature/scanner/usecase"
	symbolusecase "stock_scanner/internal/feature/symbollist/usecase"
	jwtmw "stock_scanner/internal/platform/jwt"
)

var (
	fullMarket    string
	fullSector    string
	expertRefresh bool
	tokenSub      string
	tokenTTL      time.Duration
	tokenScopes   []string
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "List today's most active gainers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScanner(cmd, false, func(ctx context.Context, s *scanusecase.Scanner, _ entity.ScanSettings) error {
			results, err := s.RunDiscovery(ctx)
			if err != nil {
				return err
			}
			return writeResults(cmd.OutOrStdout(), outputFormat, results)
		})
	},
}

var filterCmd = &cobra.Command{
	Use:     "filter CODE...",
	Short:   "Score symbols on a short history and keep the best",
	Example: "  scanner filter 2330 2454 3105 --volume-ratio 2.5",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScanner(cmd, false, func(ctx context.Context, s *scanusecase.Scanner, settings entity.ScanSettings) error {
			results, err := s.RunFilter(ctx, args, settings)
			if err != nil {
				return err
			}
			return writeResults(cmd.OutOrStdout(), outputFormat, results)
		})
	},
}

var expertCmd = &cobra.Command{
	Use:     "expert CODE",
	Short:   "Score one symbol on its full history",
	Example: "  scanner expert 2330 --format json",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScanner(cmd, false, func(ctx context.Context, s *scanusecase.Scanner, settings entity.ScanSettings) error {
			result, err := runExpert(ctx, s, args[0], settings, expertRefresh)
			if err != nil {
				return err
			}
			return writeResults(cmd.OutOrStdout(), outputFormat, []entity.AnalysisResult{result})
		})
	},
}

type expertRunner interface {
	Refresh(ctx context.Context, code string) error
	RunExpert(ctx context.Context, code string, settings entity.ScanSettings) (entity.AnalysisResult, error)
}

// runExpert はキャッシュを破棄してから評価します。破棄に失敗しても評価は続けます。
func runExpert(ctx context.Context, s expertRunner, code string, settings entity.ScanSettings, refresh bool) (entity.AnalysisResult, error) {
	if refresh {
		if err := s.Refresh(ctx, code); err != nil {
			if scanusecase.IsInputError(err) {
				return entity.AnalysisResult{}, err
			}
			slog.Warn("cache refresh failed", "symbol", code, "error", err)
		}
	}
	return s.RunExpert(ctx, code, settings)
}

var fullCmd = &cobra.Command{
	Use:     "full",
	Short:   "Run discovery, filtering and analysis end to end",
	Example: "  scanner full --market TWSE --sector 半導體業",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScanner(cmd, fullSector != "", func(ctx context.Context, s *scanusecase.Scanner, settings entity.ScanSettings) error {
			report, err := s.RunFullScan(ctx, scanusecase.FullScanRequest{
				Market:   fullMarket,
				Sector:   fullSector,
				Settings: settings,
			})
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), outputFormat, report)
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the protected HTTP routes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ttl := cfg.JWTTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		token, err := jwtmw.NewGenerator(cfg.JWTSecret, ttl).GenerateToken(tokenSub, tokenScopes...)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	expertCmd.Flags().BoolVar(&expertRefresh, "refresh", false, "Drop the cached analysis for CODE before scoring")

	fullCmd.Flags().StringVar(&fullMarket, "market", "ALL", "Market: ALL, TWSE, TPEX")
	fullCmd.Flags().StringVar(&fullSector, "sector", "", "Restrict discovery to one sector (needs the symbol master)")

	tokenCmd.Flags().StringVar(&tokenSub, "sub", "cli", "Token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to JWT_TTL)")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{"scan:full"}, "Token scopes")
}

// withScanner loads the configuration, wires a Scanner and runs fn under the command timeout.
// The symbol master is opened only when needSectors is set.
func withScanner(cmd *cobra.Command, needSectors bool, fn func(ctx context.Context, s *scanusecase.Scanner, settings entity.ScanSettings) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	settings, err := overrideSettings(cfg.Scanner.Settings, volumeRatio, maGap, breakoutPct)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	rdb := di.OpenRedis(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	var sectors scanusecase.SectorDirectory
	if needSectors {
		gdb, err := di.OpenDB(cfg)
		if err != nil {
			return fmt.Errorf("open symbol master: %w", err)
		}
		sectors = symbolusecase.NewSymbolUsecase(di.NewSymbolRepository(cfg, gdb, rdb))
	}

	agg := di.NewAggregator(cfg, di.NewUpstreamClient(cfg), nil)
	s := di.NewScanner(cfg, agg, rdb, sectors, nil)

	start := time.Now()
	err = fn(ctx, s, settings)
	slog.Debug("command finished", "command", cmd.Name(), "elapsed", time.Since(start))
	return err
}

// overrideSettings applies non-zero flag values over the configured defaults.
func overrideSettings(base entity.ScanSettings, ratio, gap, breakout float64) (entity.ScanSettings, error) {
	if ratio != 0 {
		base.VolumeRatio = ratio
	}
	if gap != 0 {
		base.MAGap = gap
	}
	if breakout != 0 {
		base.BreakoutPct = breakout
	}
	return base, base.Validate()
}
