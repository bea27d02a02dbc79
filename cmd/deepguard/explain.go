package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/deepguard/pkg/cli"
	"mercator-hq/deepguard/pkg/decision"
	"mercator-hq/deepguard/pkg/explain"
)

var explainCmd = &cobra.Command{
	Use:   "explain VERDICT RISK CONFIDENCE",
	Short: "Preview the explanation for a decision",
	Long: `Render the explanation for a verdict, risk level and confidence using the
configured templates. Useful when editing explanation.templates.

Examples:
  deepguard explain DEEPFAKE HIGH 0.92
  deepguard explain uncertain high 0.72 --config deepguard.yaml`,
	Args: cobra.ExactArgs(3),
	RunE: explainDecision,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func explainDecision(cmd *cobra.Command, args []string) error {
	verdict, err := decision.ParseVerdict(args[0])
	if err != nil {
		return err
	}
	risk, err := decision.ParseRiskLevel(args[1])
	if err != nil {
		return err
	}
	confidence, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid confidence %q: not a number", args[2])
	}
	if err := decision.ValidateScore(confidence); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	synth, err := explain.New(cfg.Explanation.Templates)
	if err != nil {
		return cli.WrapConfigError(err)
	}

	text, err := synth.Explain(verdict, confidence, risk)
	if err != nil {
		return cli.NewCommandError("explain", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}
