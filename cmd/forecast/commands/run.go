package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/RubikVault/rubikvault-site-sub000/internal/brain"
)

// runCmd runs the pipeline once
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "파이프라인 1회 실행 (S0 → S7)",
	Long: `하나의 as-of 날짜에 대해 전체 파이프라인을 실행합니다.

S0 데이터 품질 → S1 PIT universe → S2 후보/피처 → S3 추론/라우팅
→ S4 트리거 → S5 모니터링 → S6 비밀/스키마 게이트 → S7 게시

게이트 실패 시 last-good 번들을 재게시하고 종료 코드 0을 반환합니다 (degrade).
치명적 오류는 아무것도 쓰지 않고 FORECAST_V6_FAILED 한 줄과 함께 종료 코드 1.

Flags:
  --date       as-of 날짜 (YYYY-MM-DD, 기본: 오늘 기준 직전 거래일)
  --mode       LOCAL|CI (기본: CI 환경변수로 추론)
  --dry-run    계산만 하고 아무것도 쓰지 않음
  --input-dir  policies/universe/bars/predictions 루트 재지정

Example:
  go run ./cmd/forecast run
  go run ./cmd/forecast run --date 2026-10-14 --mode CI --dry-run`,
	RunE: runPipeline,
}

var (
	runDate     string
	runMode     string
	runDryRun   bool
	runInputDir string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDate, "date", "", "as-of 날짜 (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "LOCAL|CI")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "계산만 하고 쓰기 생략")
	runCmd.Flags().StringVar(&runInputDir, "input-dir", "", "입력 루트 재지정")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if runInputDir != "" {
		cfg.InputDir = runInputDir
	}
	mode, err := resolveMode(runMode, cfg)
	if err != nil {
		return err
	}

	orch := brain.NewOrchestrator(brain.PathsFromConfig(cfg), log)
	res, err := orch.Run(cmd.Context(), brain.RunConfig{
		Date:   runDate,
		Mode:   mode,
		DryRun: runDryRun,
	})
	if err != nil {
		return err
	}

	renderRunResult(cmd.OutOrStdout(), res)
	return nil
}

// renderRunResult prints the run summary table
func renderRunResult(w io.Writer, res *brain.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("forecast %s (%s)", res.AsOfDate, res.Mode))
	t.AppendRows([]table.Row{
		{"run_id", res.RunID},
		{"state", res.State},
		{"dry_run", res.DryRun},
		{"stages", stageList(res)},
		{"outcome_revision", res.OutcomeRevision},
		{"duration", res.Duration.Round(time.Millisecond).String()},
	})
	if res.Failure != nil {
		t.AppendRow(table.Row{"reason", res.Failure.Reason})
		last := res.LastGoodDateUsed
		if last == "" {
			last = "(none, empty bundle)"
		}
		t.AppendRow(table.Row{"last_good_date_used", last})
	}
	if res.Ledger != nil {
		t.AppendRow(table.Row{"outcomes", fmt.Sprintf("%s matured, %s pending",
			humanize.Comma(int64(res.Ledger.Matured)), humanize.Comma(int64(res.Ledger.Pending)))})
	}
	t.AppendSeparator()
	hashes := res.Hashes.Map()
	for _, key := range []string{"candidates", "features", "predictions", "diagnostics_summary", "publish_inputs"} {
		t.AppendRow(table.Row{key, orDash(hashes[key])})
	}
	if res.ArtifactsHash != "" {
		t.AppendRow(table.Row{"artifacts", res.ArtifactsHash})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

func stageList(res *brain.RunResult) string {
	names := make([]string, 0, len(res.CompletedStages))
	for _, s := range res.CompletedStages {
		names = append(names, string(s))
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, " → ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
