package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/config"
	"github.com/RubikVault/rubikvault-site-sub000/pkg/logger"
)

// FailurePrefix starts the single stderr line of an aborted command
const FailurePrefix = "FORECAST_V6_FAILED"

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast v6 - 일일 재현 가능 예측 파이프라인",
	Long: `Forecast v6 Unified CLI

거래일마다 한 번 실행되는 결정적 예측 파이프라인.
S0 데이터 품질부터 S7 원자적 게시까지.

Usage:
  go run ./cmd/forecast [command]

Examples:
  go run ./cmd/forecast run --date 2026-10-14 --mode CI
  go run ./cmd/forecast determinism
  go run ./cmd/forecast status
  go run ./cmd/forecast scheduler start`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config overlay (default: env and .env only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// FailureLine renders err as the one-line abort message
func FailureLine(err error) string {
	return fmt.Sprintf("%s: %s", FailurePrefix, strings.ReplaceAll(err.Error(), "\n", " "))
}

// setup loads config (env, .env, optional overlay) and the root logger
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadWithOverlay(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// resolveMode picks the run mode: explicit flag first, else the CI signal
func resolveMode(flag string, cfg *config.Config) (contracts.Mode, error) {
	if flag != "" {
		return contracts.ParseMode(flag)
	}
	if cfg.CI {
		return contracts.ModeCI, nil
	}
	return contracts.ModeLocal, nil
}
