package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RubikVault/rubikvault-site-sub000/internal/brain"
	"github.com/RubikVault/rubikvault-site-sub000/internal/determinism"
)

// determinismCmd runs the two-run reproducibility harness
var determinismCmd = &cobra.Command{
	Use:   "determinism",
	Short: "재현성 검사 (CI dry-run 2회 해시 비교)",
	Long: `같은 입력으로 CI dry-run을 두 번 실행하고 해시를 비교합니다.

비교 대상: candidates, features, predictions, diagnostics_summary, publish_inputs
하나라도 다르면 키 이름과 함께 실패합니다.

--input-dir 미지정 시 고정 픽스처를 임시 디렉터리에 생성해 사용합니다.

Example:
  go run ./cmd/forecast determinism
  go run ./cmd/forecast determinism --input-dir ./fixtures/frozen --date 2026-10-14`,
	RunE: runDeterminism,
}

var (
	detDate     string
	detInputDir string
	detKeep     bool
)

func init() {
	rootCmd.AddCommand(determinismCmd)

	determinismCmd.Flags().StringVar(&detDate, "date", "", "as-of 날짜 (픽스처 기본: "+determinism.FrozenDate+")")
	determinismCmd.Flags().StringVar(&detInputDir, "input-dir", "", "입력 루트 (기본: 고정 픽스처 생성)")
	determinismCmd.Flags().BoolVar(&detKeep, "keep", false, "생성한 픽스처 디렉터리 유지")
}

func runDeterminism(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	paths := brain.PathsFromConfig(cfg)
	paths.ScanRoot = ""

	date := detDate
	if detInputDir != "" {
		paths.InputDir = detInputDir
	} else {
		tmp, err := os.MkdirTemp("", "forecast-determinism-")
		if err != nil {
			return fmt.Errorf("fixture dir: %w", err)
		}
		if detKeep {
			fmt.Fprintf(cmd.ErrOrStderr(), "fixture kept at %s\n", tmp)
		} else {
			defer os.RemoveAll(tmp)
		}
		if date == "" {
			date = determinism.FrozenDate
		}
		// 픽스처 실행은 실제 ledger/state를 읽지 않음
		paths.InputDir = filepath.Join(tmp, "input")
		paths.PublishRoot = filepath.Join(tmp, "publish")
		paths.LedgerRoot = filepath.Join(tmp, "ledger")
		paths.StateRoot = filepath.Join(tmp, "state")
		if _, err := determinism.Materialize(paths.InputDir, date, determinism.FixtureOptions{}); err != nil {
			return fmt.Errorf("materialize fixture: %w", err)
		}
	}

	report, err := determinism.NewHarness(paths, log).Run(cmd.Context(), date)
	if err != nil {
		return err
	}
	report.Render(cmd.OutOrStdout())
	return report.Err()
}
