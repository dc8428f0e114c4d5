package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/RubikVault/rubikvault-site-sub000/internal/brain"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
	"github.com/RubikVault/rubikvault-site-sub000/internal/publish"
)

// statusCmd shows the last-good pointer and rollback statistics
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "last-good 포인터와 롤백 통계 조회",
	Long: `현재 last-good 번들과 최근 이력, 롤백 통계를 표시합니다.

표시 정보:
- 현재 last-good 날짜와 artifacts 해시
- 최근 set/rollback 이력
- 롤백 횟수, 평균/최장 롤백 일수 (disaster_recovery 정책 창 기준)

Example:
  go run ./cmd/forecast status
  go run ./cmd/forecast status --history 20`,
	RunE: runStatus,
}

var statusHistory int

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusHistory, "history", 10, "표시할 최근 이력 수")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	pol, err := policy.Load(filepath.Join(cfg.InputDir, brain.PoliciesDir))
	if err != nil {
		return err
	}
	store := publish.NewLastGoodStore(cfg.StateRoot, pol.DisasterRecovery.RollbackWindowDays)
	p, err := store.Load()
	if err != nil {
		return err
	}
	renderStatus(cmd.OutOrStdout(), p, statusHistory)
	return nil
}

// renderStatus prints the pointer, recent history and rollback stats
func renderStatus(w io.Writer, p *contracts.LastGoodPointer, history int) {
	cur := table.NewWriter()
	cur.SetOutputMirror(w)
	cur.SetTitle("last good")
	if p.CurrentLastGood == nil {
		cur.AppendRow(table.Row{"date", "(none)"})
	} else {
		c := p.CurrentLastGood
		cur.AppendRows([]table.Row{
			{"date", c.Date},
			{"artifacts_hash", c.ArtifactsHash},
			{"set_at", fmt.Sprintf("%s (%s)", c.SetAt, since(c.SetAt))},
			{"replaced", orDash(c.ReplacedDate)},
		})
	}
	cur.AppendSeparator()
	cur.AppendRows([]table.Row{
		{"window_days", p.Stats.WindowDays},
		{"rollback_count", p.Stats.RollbackCount},
		{"avg_rollback_days", fmt.Sprintf("%.2f", p.Stats.AvgRollbackDays)},
		{"longest_rollback_days", p.Stats.LongestRollbackDays},
	})
	cur.SetStyle(table.StyleLight)
	cur.Render()

	entries := p.History
	if history >= 0 && len(entries) > history {
		entries = entries[len(entries)-history:]
	}
	if len(entries) == 0 {
		return
	}
	h := table.NewWriter()
	h.SetOutputMirror(w)
	h.SetTitle(fmt.Sprintf("history (last %s)", humanize.Comma(int64(len(entries)))))
	h.AppendHeader(table.Row{"kind", "date", "reason", "used", "when"})
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		h.AppendRow(table.Row{e.Kind, e.Date, e.Reason, orDash(e.LastGoodDateUsed), since(e.SetAt)})
	}
	h.SetStyle(table.StyleLight)
	h.Render()
}

func since(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "-"
	}
	return humanize.Time(t)
}
