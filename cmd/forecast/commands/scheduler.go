package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/RubikVault/rubikvault-site-sub000/internal/brain"
	"github.com/RubikVault/rubikvault-site-sub000/internal/scheduler"
	"github.com/RubikVault/rubikvault-site-sub000/internal/scheduler/jobs"
)

// stagingMaxAge is how old an abandoned staging directory must be before cleanup
const stagingMaxAge = 6 * time.Hour

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `거래일마다 파이프라인을 실행하는 스케줄러를 관리합니다.

Subcommands:
  start   - 스케줄러 데몬 시작
  list    - 등록된 작업과 다음 실행 시각
  run     - 특정 작업 즉시 실행 (동기)

Example:
  go run ./cmd/forecast scheduler start
  go run ./cmd/forecast scheduler run forecast_pipeline`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- forecast_pipeline: FORECAST_SCHEDULE (기본 평일 18:30, FORECAST_TIMEZONE 기준)
- staging_cleanup: 매시간 (중단된 게시의 staging 디렉터리 정리)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerMode string
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().StringVar(&schedulerMode, "mode", "", "LOCAL|CI (기본: CI 환경변수로 추론)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✅ Scheduler started")
	renderJobs(out, sched)
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Fprintln(out, "Shutting down scheduler...")
	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	renderJobs(cmd.OutOrStdout(), sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	res, err := sched.RunJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s completed in %s (%d attempt(s))\n",
		res.JobName, res.Duration.Round(time.Millisecond), res.Attempts)
	return nil
}

func renderJobs(w io.Writer, sched *scheduler.Scheduler) {
	next := sched.Next()
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"job", "next run", ""})
	for _, name := range sched.GetAllJobs() {
		at := next[name]
		t.AppendRow(table.Row{name, at.Format(time.RFC3339), humanize.Time(at)})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

func initScheduler() (*scheduler.Scheduler, error) {
	// 1. Load config + logger
	cfg, log, err := setup()
	if err != nil {
		return nil, err
	}
	mode, err := resolveMode(schedulerMode, cfg)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	// 2. Orchestrator
	paths := brain.PathsFromConfig(cfg)
	orch := brain.NewOrchestrator(paths, log)

	// 3. Scheduler + jobs
	sched := scheduler.New(log, scheduler.WithLocation(loc))
	if err := sched.AddJob(jobs.NewForecastJob(orch, mode, cfg.Schedule, log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewStagingCleanupJob(paths.PublishRoot, stagingMaxAge, log)); err != nil {
		return nil, err
	}
	return sched, nil
}
