package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cynic/internal/judge"
	"cynic/internal/logging"
	"cynic/internal/orchestrator"
)

type judgeFlags struct {
	domain     string
	analysis   string
	content    string
	cellCtx    string
	novelty    float64
	complexity float64
	risk       float64
	budgetUSD  float64
	tier       int
	jsonOut    bool
}

func newJudgeCommand(flags *rootFlags) *cobra.Command {
	jf := &judgeFlags{}

	cmd := &cobra.Command{
		Use:   "judge [content]",
		Short: "Run one judgment cycle and print the verdict",
		Long: `Evaluates a single cell through the full pipeline: analyzer fan-out,
weighted consensus, axiom scoring, and Q-policy write-back. Content
comes from the argument, --content, or stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := jf.content
			if len(args) > 0 {
				content = args[0]
			}
			if content == "" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				content = strings.TrimSpace(string(data))
			}
			if content == "" {
				return fmt.Errorf("invalid configuration: no content to judge")
			}
			return runJudge(flags, jf, content)
		},
	}

	cmd.Flags().StringVarP(&jf.domain, "domain", "D", "CODE", "Cell domain (CODE, SOLANA, MARKET, SOCIAL, HUMAN, CYNIC, COSMOS)")
	cmd.Flags().StringVarP(&jf.analysis, "analysis", "A", "JUDGE", "Analysis type (PERCEIVE, JUDGE, DECIDE, ACT, LEARN, ACCOUNT, EMERGE)")
	cmd.Flags().StringVar(&jf.content, "content", "", "Cell content (defaults to stdin)")
	cmd.Flags().StringVar(&jf.cellCtx, "context", "", "Free-form context for the analyzers")
	cmd.Flags().Float64Var(&jf.novelty, "novelty", 0.5, "Novelty prior [0,1]")
	cmd.Flags().Float64Var(&jf.complexity, "complexity", 0.5, "Complexity prior [0,1]")
	cmd.Flags().Float64Var(&jf.risk, "risk", 0, "Risk prior [0,1]")
	cmd.Flags().Float64Var(&jf.budgetUSD, "budget", 1.0, "Cost budget in USD")
	cmd.Flags().IntVarP(&jf.tier, "tier", "t", 1, "Requested detail tier [0,3]")
	cmd.Flags().BoolVar(&jf.jsonOut, "json", false, "Emit the full judgment as JSON")

	return cmd
}

func runJudge(flags *rootFlags, jf *judgeFlags, content string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	var log logging.Logger
	if flags.verbose {
		log = logging.NewComponentLogger("CLI")
	}

	c, err := buildCore(cfg, log)
	if err != nil {
		return err
	}

	cell, err := judge.NewCell(judge.CellSpec{
		Domain:     judge.Domain(jf.domain),
		Analysis:   judge.Analysis(jf.analysis),
		Content:    content,
		Context:    jf.cellCtx,
		Novelty:    &jf.novelty,
		Complexity: &jf.complexity,
		Risk:       jf.risk,
		BudgetUSD:  jf.budgetUSD,
		Tier:       jf.tier,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := c.orch.Run(ctx, cell, jf.tier)
	if err != nil {
		return err
	}

	if jf.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Judgment)
	}
	printJudgment(res)
	return nil
}

func printJudgment(res orchestrator.CycleResult) {
	j := res.Judgment

	fmt.Printf("%s %s\n", verdictBadge(j.Verdict), gray(j.ID))
	fmt.Printf("  %s  %.1f/100   %s %.3f\n", bold("score"), j.Score, bold("confidence"), j.Confidence)
	fmt.Printf("  %s  %s:%s tier %d (%s)\n", bold("cell"), j.Cell.Domain, j.Cell.Analysis, res.Tier, res.Level)

	if j.Consensus.Consensus {
		fmt.Printf("  %s  %d/%d votes\n", bold("consensus"), j.Consensus.Votes, j.Consensus.Quorum)
	} else {
		fmt.Printf("  %s  %s\n", bold("no consensus"), red(j.Consensus.Reason))
	}

	if len(j.Votes) > 0 {
		ids := make([]string, 0, len(j.Votes))
		for id := range j.Votes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Printf("  %s\n", bold("votes"))
		for _, id := range ids {
			fmt.Printf("    %-12s %.1f\n", id, j.Votes[id])
		}
	}

	if len(j.AxiomScores) > 0 {
		fmt.Printf("  %s\n", bold("axioms"))
		names := make([]string, 0, len(j.AxiomScores))
		for name := range j.AxiomScores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("    %-12s %.1f\n", name, j.AxiomScores[name])
		}
	}

	if j.ResidualHigh {
		fmt.Printf("  %s residual variance %.3f\n", yellow("unexplained:"), j.ResidualVariance)
	}

	if res.Decision != nil {
		fmt.Printf("  %s %s (estimate %.3f)\n", cyan("recommended:"), bold(res.Decision.RecommendedAction), res.Decision.Estimate)
	}

	fmt.Printf("  %s %.4f USD in %s\n", gray("cost"), j.CostUSD, formatDuration(j.Duration))
}

func verdictBadge(v judge.Verdict) string {
	switch v {
	case judge.VerdictHowl:
		return green(bold("HOWL"))
	case judge.VerdictWag:
		return green("WAG")
	case judge.VerdictGrowl:
		return yellow("GROWL")
	default:
		return red(bold("BARK"))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", d.Seconds()*1000)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
