package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/RubikVault/rubikvault-site-sub000/internal/brain"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// policyCmd groups policy maintenance
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "정책 문서 검증/초기화",
	Long: `policies/ 아래 16개 정책 문서를 다룹니다.

Subcommands:
  verify  - 모든 정책의 self-hash와 구조 검증
  init    - 서명된 기본 정책 생성

Example:
  go run ./cmd/forecast policy verify
  go run ./cmd/forecast policy init --input-dir ./fixtures/new`,
}

var (
	policyVerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "정책 해시 검증",
		RunE:  runPolicyVerify,
	}

	policyInitCmd = &cobra.Command{
		Use:   "init",
		Short: "서명된 기본 정책 생성",
		RunE:  runPolicyInit,
	}

	policyInputDir string
	policyForce    bool
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyVerifyCmd)
	policyCmd.AddCommand(policyInitCmd)

	policyCmd.PersistentFlags().StringVar(&policyInputDir, "input-dir", "", "입력 루트 재지정")
	policyInitCmd.Flags().BoolVar(&policyForce, "force", false, "기존 정책 덮어쓰기")
}

func policyDir() (string, error) {
	if policyInputDir != "" {
		return filepath.Join(policyInputDir, brain.PoliciesDir), nil
	}
	cfg, _, err := setup()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.InputDir, brain.PoliciesDir), nil
}

func runPolicyVerify(cmd *cobra.Command, args []string) error {
	dir, err := policyDir()
	if err != nil {
		return err
	}
	b, err := policy.Load(dir)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetTitle("policies " + dir)
	t.AppendHeader(table.Row{"policy", "policy_hash"})
	for _, name := range policy.Names() {
		t.AppendRow(table.Row{name, b.Hashes[name]})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func runPolicyInit(cmd *cobra.Command, args []string) error {
	dir, err := policyDir()
	if err != nil {
		return err
	}
	if !policyForce {
		root := filepath.Join(dir, policy.NameRoot+".json")
		if _, err := os.Stat(root); err == nil {
			return fmt.Errorf("%s exists (use --force to overwrite)", root)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := policy.WriteSigned(dir, policy.Defaults()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %d policies written to %s\n", len(policy.Names()), dir)
	return nil
}
